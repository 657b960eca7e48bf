package surface

import (
	"errors"
	"math"
	"sort"
	"time"

	"hestonlab/internal/pricing"
)

const (
	// SpotFallback is used when a quote carries no usable underlying level.
	SpotFallback = 4500.0
	// DefaultRate and DefaultDividend fill missing carry inputs.
	DefaultRate     = 0.015
	DefaultDividend = 0.01

	spotFloor = 1000.0
	spotCap   = 20000.0
	minMid    = 0.01
	minVega   = 1e-5

	ivClipLow  = 0.05
	ivClipHigh = 3.0
	// Quotes whose implied vol lands on the clip edges come from noisy
	// quotes rather than a real vol estimate.
	ivKeepLow  = 0.051
	ivKeepHigh = 2.99
)

// ErrNoValidQuotes is returned when filtering leaves nothing to aggregate.
var ErrNoValidQuotes = errors.New("No valid quotes after filtering")

// AggregateOptions controls quote filtering.
type AggregateOptions struct {
	Symbol       string
	MinDTE       int
	MinMoneyness float64
	MaxMoneyness float64
}

// DefaultAggregateOptions returns the SPX settings.
func DefaultAggregateOptions() AggregateOptions {
	return AggregateOptions{
		Symbol:       "SPX",
		MinDTE:       21,
		MinMoneyness: 0.75,
		MaxMoneyness: 1.25,
	}
}

// prepared is a quote that survived filtering, with derived fields.
type prepared struct {
	tradeDate time.Time
	quoteDate time.Time
	dte       int
	ttm       float64
	mid       float64
	spot      float64
	strike    float64
	rate      float64
	dividend  float64
	moneyness float64
	iv        float64
	vega      float64
}

func nan() float64 { return math.NaN() }

func firstFinite(values ...float64) float64 {
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return math.NaN()
}

func calendarDays(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// prepareQuotes applies the per-quote filters and derives iv and vega.
func prepareQuotes(quotes []Quote, opts AggregateOptions) []prepared {
	out := make([]prepared, 0, len(quotes))
	for _, q := range quotes {
		dte := calendarDays(q.TradeDate, q.Expiry)
		if dte < opts.MinDTE {
			continue
		}
		mid := 0.5 * (q.Bid + q.Ask)
		if !(q.Bid > 0) || !(mid > minMid) {
			continue
		}

		spot := firstFinite(q.Spot, 0.5*(q.UnderlyingBid+q.UnderlyingAsk), q.ForwardPrice, SpotFallback)
		spot = math.Min(math.Max(spot, spotFloor), spotCap)
		rate := firstFinite(q.Rate, DefaultRate)
		div := firstFinite(q.Dividend, DefaultDividend)
		strike := firstFinite(q.Strike, spot)
		if !(strike > 0) {
			continue
		}

		moneyness := strike / spot
		if moneyness < opts.MinMoneyness || moneyness > opts.MaxMoneyness {
			continue
		}

		ttm := float64(dte) / 365.0
		iv := pricing.ImpliedVol(mid, spot, strike, rate, div, ttm, q.Right)
		iv = math.Min(math.Max(iv, ivClipLow), ivClipHigh)
		if !(iv > ivKeepLow && iv < ivKeepHigh) {
			continue
		}
		vega := pricing.Vega(spot, strike, rate, div, iv, ttm)
		if !(vega > minVega) {
			continue
		}

		quoteDate := q.QuoteDate
		if quoteDate.IsZero() {
			quoteDate = q.TradeDate
		}
		out = append(out, prepared{
			tradeDate: q.TradeDate,
			quoteDate: quoteDate,
			dte:       dte,
			ttm:       ttm,
			mid:       mid,
			spot:      spot,
			strike:    strike,
			rate:      rate,
			dividend:  div,
			moneyness: moneyness,
			iv:        iv,
			vega:      vega,
		})
	}
	return out
}

type accumulator struct {
	row   Row
	count int
}

// groupKey keeps quotes stamped with different dates apart, so a leaked
// quote surfaces as its own row for the as-of check.
type groupKey struct {
	Key
	tradeDate string
	quoteDate string
}

// Aggregate reduces raw quotes for one trading date to a bucketed surface.
// Rows are grouped by (tenor, moneyness rounded to 2dp) and by the quote's
// trade and quote dates; numeric fields take the mean and Quotes counts the
// members. The result is sorted by tenor then moneyness and is fully
// deterministic for a given input.
func Aggregate(quotes []Quote, opts AggregateOptions) ([]Row, error) {
	if opts.Symbol == "" {
		opts.Symbol = "SPX"
	}
	prepared := prepareQuotes(quotes, opts)
	if len(prepared) == 0 {
		return nil, ErrNoValidQuotes
	}

	groups := make(map[groupKey]*accumulator)
	var order []groupKey
	for _, p := range prepared {
		tenor, ok := TenorForDays(p.dte)
		if !ok {
			continue
		}
		key := groupKey{
			Key:       Key{Tenor: tenor, Moneyness: math.RoundToEven(p.moneyness*100) / 100},
			tradeDate: FormatDate(p.tradeDate),
			quoteDate: FormatDate(p.quoteDate),
		}
		acc, exists := groups[key]
		if !exists {
			acc = &accumulator{row: Row{
				Symbol:      opts.Symbol,
				TradeDate:   p.tradeDate,
				QuoteDate:   p.quoteDate,
				TenorBucket: tenor,
				Moneyness:   key.Moneyness,
			}}
			groups[key] = acc
			order = append(order, key)
		}
		acc.count++
		r := &acc.row
		r.Spot += p.spot
		r.Strike += p.strike
		r.Rate += p.rate
		r.Dividend += p.dividend
		r.TTMYears += p.ttm
		r.DaysToExpiration += float64(p.dte)
		r.MidPrice += p.mid
		r.MidIV += p.iv
		r.Vega += p.vega
	}
	if len(order) == 0 {
		return nil, ErrNoValidQuotes
	}

	rows := make([]Row, 0, len(order))
	for _, key := range order {
		acc := groups[key]
		n := float64(acc.count)
		r := acc.row
		r.Spot /= n
		r.Strike /= n
		r.Rate /= n
		r.Dividend /= n
		r.TTMYears /= n
		r.DaysToExpiration /= n
		r.MidPrice /= n
		r.MidIV /= n
		r.Vega /= n
		r.Quotes = acc.count
		rows = append(rows, r)
	}
	Sort(rows)
	return rows, nil
}

// Sort orders rows by tenor bucket, then moneyness.
func Sort(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TenorBucket != rows[j].TenorBucket {
			return rows[i].TenorBucket.Less(rows[j].TenorBucket)
		}
		return rows[i].Moneyness < rows[j].Moneyness
	})
}
