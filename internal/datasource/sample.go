package datasource

import (
	"context"
	"fmt"
	"os"
	"time"

	apperrors "hestonlab/internal/errors"
	"hestonlab/internal/pricing"
	"hestonlab/internal/surface"
)

// SampleSource serves quotes from the bundled sample CSV. Lines starting
// with '#' are comments; strikes are in index points.
type SampleSource struct {
	Path string
}

// NewSampleSource returns a source reading path.
func NewSampleSource(path string) *SampleSource {
	return &SampleSource{Path: path}
}

func (s *SampleSource) Name() string { return string(ProvenanceSample) }

// Load returns every call for tradeDate. The sample always prices off its
// own spot column, falling back to surface.SpotFallback.
func (s *SampleSource) Load(ctx context.Context, symbol string, tradeDate time.Time) ([]surface.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, apperrors.NewMissingDataError(fmt.Sprintf("Sample data file not found: %s", s.Path), err)
	}
	defer file.Close()

	raw, err := readQuotes(file, readOptions{StrikeScale: 1, Comment: '#'})
	if err != nil {
		return nil, fmt.Errorf("failed to read sample data: %w", err)
	}

	var quotes []surface.Quote
	for _, q := range raw {
		if !sameDay(q.TradeDate, tradeDate) {
			continue
		}
		q.Right = pricing.RightCall
		underlying := q.Spot
		if !(underlying > 0) {
			underlying = surface.SpotFallback
		}
		q.UnderlyingBid, q.UnderlyingAsk = underlying, underlying
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		return nil, apperrors.NewMissingDataError("Sample data missing trade date "+dateKey(tradeDate), nil).
			WithContext("symbol", symbol)
	}
	standardizeQuoteDate(quotes, tradeDate)
	return quotes, nil
}
