package storage

import (
	"context"
	"fmt"
	"strings"

	logx "signalbot/pkg/logx"
)

// Open initializes the configured store and inserts default settings.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"))

	var (
		st  Store
		err error
	)
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		st, err = openSQLite(ctx, cfg, log)
	case "postgres", "postgresql":
		st, err = openPostgres(ctx, cfg, log)
	case "memory":
		st = NewMemory()
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.EnsureDefaults(ctx, StandardDefaults()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("ensure defaults: %w", err)
	}
	log.Info("storage ready", logx.String("driver", driver))
	return st, nil
}
