package market

import (
	"context"
	"errors"

	logx "signalbot/pkg/logx"
)

// Chain asks each source in order and returns the first snapshot found.
type Chain struct {
	sources []Source
	log     logx.Logger
}

func NewChain(log logx.Logger, sources ...Source) *Chain {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Chain{sources: sources, log: log}
}

func (c *Chain) Snapshot(ctx context.Context, pair string) (*Snapshot, error) {
	var errs []error
	for i, src := range c.sources {
		snap, err := src.Snapshot(ctx, pair)
		if err != nil {
			c.log.Warn("snapshot source failed", logx.Int("index", i), logx.String("pair", pair), logx.Err(err))
			errs = append(errs, err)
			continue
		}
		if snap != nil {
			return snap, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, errors.Join(errs...)
}
