package datasource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"hestonlab/internal/pricing"
	"hestonlab/internal/surface"
)

// optionMetricsStrikeScale converts OptionMetrics strike_price to index points.
const optionMetricsStrikeScale = 1000.0

// LocalSource reads OptionMetrics extracts from a local data root.
type LocalSource struct {
	Root string
}

// NewLocalSource returns a source rooted at root. An empty root disables it.
func NewLocalSource(root string) *LocalSource {
	return &LocalSource{Root: root}
}

func (s *LocalSource) Name() string { return string(ProvenanceLocal) }

// Path returns <root>/raw/optionm/<SYMBOL>/<year>/<symbol>_<date>.csv.
func (s *LocalSource) Path(symbol string, tradeDate time.Time) string {
	return filepath.Join(s.Root, "raw", "optionm", upper(symbol), strconv.Itoa(tradeDate.Year()),
		fmt.Sprintf("%s_%s.csv", lower(symbol), dateKey(tradeDate)))
}

// Load reads the extract for tradeDate and keeps calls with a valid market.
// A missing file or an extract with no usable rows yields ErrNotFound.
func (s *LocalSource) Load(ctx context.Context, symbol string, tradeDate time.Time) ([]surface.Quote, error) {
	if s.Root == "" {
		return nil, ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(symbol, tradeDate)
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open local extract: %w", err)
	}
	defer file.Close()

	raw, err := readQuotes(file, readOptions{StrikeScale: optionMetricsStrikeScale})
	if err != nil {
		return nil, fmt.Errorf("failed to read local extract %s: %w", path, err)
	}

	quotes := make([]surface.Quote, 0, len(raw))
	for _, q := range raw {
		if !q.TradeDate.IsZero() && !sameDay(q.TradeDate, tradeDate) {
			continue
		}
		if q.Right != pricing.RightCall || !(q.Bid > 0) || !(q.Ask > q.Bid) {
			continue
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		return nil, ErrNotFound
	}
	standardizeQuoteDate(quotes, tradeDate)
	return quotes, nil
}
