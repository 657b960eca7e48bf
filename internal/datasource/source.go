package datasource

import (
	"context"
	"errors"
	"strings"
	"time"

	"hestonlab/internal/surface"
)

// Provenance tags the tier that produced a quote set.
type Provenance string

const (
	ProvenanceLocal  Provenance = "local"
	ProvenanceCache  Provenance = "cache"
	ProvenanceWRDS   Provenance = "wrds"
	ProvenanceSample Provenance = "sample"
)

// ErrNotFound is returned by a source that has no data for the request.
var ErrNotFound = errors.New("no quotes for symbol and trade date")

// Source delivers raw quotes for one trading date.
type Source interface {
	Name() string
	Load(ctx context.Context, symbol string, tradeDate time.Time) ([]surface.Quote, error)
}

// Cache stores quote sets keyed by symbol and trade date. Get reports a miss
// with ok=false and a nil error.
type Cache interface {
	Name() string
	Get(ctx context.Context, symbol string, tradeDate time.Time) (quotes []surface.Quote, ok bool, err error)
	Put(ctx context.Context, symbol string, tradeDate time.Time, quotes []surface.Quote, source string) error
}

func dateKey(t time.Time) string {
	return t.Format(surface.DateLayout)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// standardizeQuoteDate fills missing quote dates with the trade date, and
// the trade date with the requested date.
func standardizeQuoteDate(quotes []surface.Quote, tradeDate time.Time) {
	for i := range quotes {
		if quotes[i].TradeDate.IsZero() {
			quotes[i].TradeDate = tradeDate
		}
		if quotes[i].QuoteDate.IsZero() {
			quotes[i].QuoteDate = quotes[i].TradeDate
		}
	}
}

func upper(symbol string) string { return strings.ToUpper(symbol) }
func lower(symbol string) string { return strings.ToLower(symbol) }
