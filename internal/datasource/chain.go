package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hestonlab/internal/surface"
)

// Chain resolves quotes through local data, caches, WRDS and finally the
// bundled sample.
type Chain struct {
	Local  Source
	Caches []Cache
	Remote Source
	Sample Source
	// ForceSample skips every tier but the sample.
	ForceSample bool

	logger *slog.Logger
}

// NewChain assembles a chain. Nil tiers are skipped.
func NewChain(local Source, caches []Cache, remote, sample Source, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{Local: local, Caches: caches, Remote: remote, Sample: sample, logger: logger}
}

// WithForceSample returns a copy of the chain with ForceSample set.
func (c *Chain) WithForceSample(force bool) *Chain {
	cp := *c
	cp.ForceSample = force
	return &cp
}

// Load returns quotes for the date and the tier that produced them.
// Failures in the local and WRDS tiers are logged and fall through; only the
// sample tier's error is returned.
func (c *Chain) Load(ctx context.Context, symbol string, tradeDate time.Time) ([]surface.Quote, Provenance, error) {
	if !c.ForceSample {
		if c.Local != nil {
			quotes, err := c.Local.Load(ctx, symbol, tradeDate)
			switch {
			case err == nil && len(quotes) > 0:
				return quotes, ProvenanceLocal, nil
			case err != nil && !errors.Is(err, ErrNotFound):
				c.logger.WarnContext(ctx, "local fetch failed; falling back",
					slog.String("symbol", symbol),
					slog.String("trade_date", dateKey(tradeDate)),
					slog.String("error", err.Error()))
			}
		}

		for _, cache := range c.Caches {
			quotes, ok, err := cache.Get(ctx, symbol, tradeDate)
			if err != nil {
				c.logger.WarnContext(ctx, "cache read failed",
					slog.String("cache", cache.Name()),
					slog.String("error", err.Error()))
				continue
			}
			if ok {
				return quotes, ProvenanceCache, nil
			}
		}

		if c.Remote != nil {
			quotes, err := c.Remote.Load(ctx, symbol, tradeDate)
			if err == nil && len(quotes) > 0 {
				c.writeBack(ctx, symbol, tradeDate, quotes)
				return quotes, ProvenanceWRDS, nil
			}
			if err != nil {
				c.logger.WarnContext(ctx, "WRDS fetch failed; falling back to sample data",
					slog.String("symbol", symbol),
					slog.String("trade_date", dateKey(tradeDate)),
					slog.String("error", err.Error()))
			}
		}
	}

	if c.Sample == nil {
		return nil, "", fmt.Errorf("no data source produced quotes for %s on %s: %w", symbol, dateKey(tradeDate), ErrNotFound)
	}
	quotes, err := c.Sample.Load(ctx, symbol, tradeDate)
	if err != nil {
		return nil, "", err
	}
	return quotes, ProvenanceSample, nil
}

func (c *Chain) writeBack(ctx context.Context, symbol string, tradeDate time.Time, quotes []surface.Quote) {
	for _, cache := range c.Caches {
		if err := cache.Put(ctx, symbol, tradeDate, quotes, string(ProvenanceWRDS)); err != nil {
			c.logger.WarnContext(ctx, "cache write failed",
				slog.String("cache", cache.Name()),
				slog.String("error", err.Error()))
		}
	}
}
