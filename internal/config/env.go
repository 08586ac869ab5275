package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; variables already set are kept.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func firstEnv(lookup lookupFunc, keys ...string) string {
	for _, k := range keys {
		if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// applyEnv overlays secrets and deployment overrides from the environment.
func applyEnv(cfg *Config, lookup lookupFunc) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if tok := firstEnv(lookup, "POCKET_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"); tok != "" {
		cfg.Telegram.Token = tok
	}
	if raw := firstEnv(lookup, "POCKET_BOT_ADMIN_IDS", "TELEGRAM_ADMIN_IDS"); raw != "" {
		cfg.Telegram.AdminIDs = mergeIDs(cfg.Telegram.AdminIDs, ParseIDList(raw))
	}
	if dsn := firstEnv(lookup, "SIGNALBOT_DATABASE_URL"); dsn != "" {
		cfg.Storage.DSN = dsn
	}
}

// ParseIDList splits on ',' or ';' and keeps the integer entries.
func ParseIDList(raw string) []int64 {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func mergeIDs(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, id := range append(append([]int64(nil), a...), b...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
