package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signalbot/internal/config"
	"signalbot/internal/market"
	"signalbot/internal/notifier"
	"signalbot/internal/notifier/broadcast"
	"signalbot/internal/ops"
	"signalbot/internal/storage"
	"signalbot/internal/task/engine"
	logx "signalbot/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && cfg.Telegram.LogChat != 0,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "sqlite":
		if strings.TrimSpace(sc.Path) == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.DurationOr("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
	case "postgres":
		if strings.TrimSpace(sc.DSN) == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=postgres")
		}
		return storage.Config{Driver: driver, DSN: sc.DSN}, nil
	case "memory":
		return storage.Config{Driver: driver}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapBroadcast(cfg *config.Config) broadcast.Config {
	return broadcast.Config{RatePerSec: cfg.Broadcast.RatePerSec}
}

// mapNotifier paces admin and applicant notices like broadcasts, with a
// short dedup window against double submits.
func mapNotifier(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Workers:     2,
		RatePerSec:  cfg.Broadcast.RatePerSec,
		RetryMax:    2,
		DedupWindow: time.Minute,
	}
}

func mapTaskEngine() engine.Config {
	return engine.Config{
		Workers:        4,
		QueueSize:      256,
		DefaultTimeout: time.Minute,
		HistorySize:    200,
	}
}

func mapOps(cfg *config.Config) ops.Config {
	return ops.Config{
		Enabled: cfg.Ops.Enabled,
		Addr:    cfg.Ops.Addr,
		Token:   cfg.Ops.Token,
		Pprof:   cfg.Ops.Pprof,
	}
}

// cacheCounters receives cache hit/miss counts.
type cacheCounters interface {
	CacheHit()
	CacheMiss()
}

// buildMarket assembles TradingView, the optional Yahoo fallback and the
// snapshot cache. The returned close func releases the cache backend.
func buildMarket(ctx context.Context, mc config.MarketConfig, counters cacheCounters, log logx.Logger) (market.Source, func() error, error) {
	nop := func() error { return nil }
	timeout, err := config.DurationOr("market.timeout", mc.Timeout, 10*time.Second)
	if err != nil {
		return nil, nop, err
	}
	sources := []market.Source{market.NewTradingView(timeout, log)}
	if mc.YahooEnabled() {
		sources = append(sources, market.NewYahoo(timeout, log))
	}
	var src market.Source = market.NewChain(log, sources...)

	ttl, err := config.DurationOr("market.cache.ttl", mc.Cache.TTL, time.Minute)
	if err != nil {
		return nil, nop, err
	}
	var opts []market.CachedOption
	if counters != nil {
		opts = append(opts, market.WithCounters(counters.CacheHit, counters.CacheMiss))
	}
	switch mc.Cache.Driver {
	case "", "none":
		return src, nop, nil
	case "memory":
		return market.NewCached(src, market.NewMemoryCache(), ttl, log, opts...), nop, nil
	case "redis":
		rc, err := market.NewRedisCache(ctx, market.RedisOptions{
			Addr:     mc.Cache.Redis.Addr,
			Password: mc.Cache.Redis.Password,
			DB:       mc.Cache.Redis.DB,
			Prefix:   mc.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, nop, fmt.Errorf("market cache: %w", err)
		}
		return market.NewCached(src, rc, ttl, log, opts...), rc.Close, nil
	default:
		return nil, nop, fmt.Errorf("unknown market.cache.driver: %s", mc.Cache.Driver)
	}
}
