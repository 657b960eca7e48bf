// Package asof guards against look-ahead bias: every row of a surface must
// carry the quote date of the trading day it claims to represent.
package asof

import (
	"fmt"
	"strings"
	"time"

	apperrors "hestonlab/internal/errors"
)

const (
	// ContextCalibration labels checks run before fitting a surface.
	ContextCalibration = "calibration"
	// ContextOOS labels checks run on the next-day evaluation surface.
	ContextOOS = "oos"

	dateLayout = "2006-01-02"
	maxSample  = 5
)

// Stamp is the subset of a row the checker needs.
type Stamp struct {
	TradeDate   time.Time
	QuoteDate   time.Time
	TenorBucket string
	Moneyness   float64
	Strike      float64
}

// Record is implemented by any row type that carries as-of dates.
type Record interface {
	AsOf() Stamp
}

// Error reports an as-of violation. It is always a data-integrity error.
type Error struct {
	Context  string
	Reason   string
	Count    int
	Expected string
	Sample   []Stamp
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("[wrds_pipeline] as-of check failed (%s): %s", e.Context, e.Reason)
	}
	return fmt.Sprintf("[wrds_pipeline] as-of check failed (%s): %d rows where quote_date != %s. Sample=%s",
		e.Context, e.Count, e.Expected, formatSample(e.Sample))
}

// ErrorKind classifies the error for apperrors.IsType.
func (e *Error) ErrorKind() apperrors.ErrorType {
	return apperrors.ErrTypeDataIntegrity
}

func formatSample(sample []Stamp) string {
	parts := make([]string, 0, len(sample))
	for _, s := range sample {
		parts = append(parts, fmt.Sprintf("{trade_date: %s, quote_date: %s, tenor_bucket: %s, moneyness: %g, strike: %g}",
			formatDate(s.TradeDate), formatDate(s.QuoteDate), s.TenorBucket, s.Moneyness, s.Strike))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "NaT"
	}
	return t.Format(dateLayout)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Check verifies that every row's quote date equals expected, or the row's own
// trade date when expected is nil. An empty slice passes.
//
// A slice in which no row carries a quote date (or, without an explicit date,
// a trade date) is treated as a missing column.
func Check[R Record](rows []R, expected *time.Time, context string) error {
	if len(rows) == 0 {
		return nil
	}

	stamps := make([]Stamp, len(rows))
	haveQuote, haveTrade := false, false
	for i, r := range rows {
		stamps[i] = r.AsOf()
		haveQuote = haveQuote || !stamps[i].QuoteDate.IsZero()
		haveTrade = haveTrade || !stamps[i].TradeDate.IsZero()
	}
	if !haveQuote {
		return &Error{Context: context, Reason: "missing quote_date column"}
	}

	label := "trade_date"
	if expected == nil {
		if !haveTrade {
			return &Error{Context: context, Reason: "missing trade_date column"}
		}
	} else {
		label = "next_trade_date=" + expected.Format(dateLayout)
	}

	var sample []Stamp
	count := 0
	for _, s := range stamps {
		want := s.TradeDate
		if expected != nil {
			want = *expected
		}
		if s.QuoteDate.IsZero() || want.IsZero() || !sameDay(s.QuoteDate, want) {
			count++
			if len(sample) < maxSample {
				sample = append(sample, s)
			}
		}
	}
	if count == 0 {
		return nil
	}
	return &Error{Context: context, Count: count, Expected: label, Sample: sample}
}
