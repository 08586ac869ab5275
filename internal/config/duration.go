package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOr parses a Go duration string. Empty or non-positive values yield def.
func DurationOr(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

func checkDurations(cfg *Config) error {
	fields := []struct{ name, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"market.timeout", cfg.Market.Timeout},
		{"market.cache.ttl", cfg.Market.Cache.TTL},
	}
	for _, f := range fields {
		if _, err := DurationOr(f.name, f.raw, 0); err != nil {
			return err
		}
	}
	return nil
}
