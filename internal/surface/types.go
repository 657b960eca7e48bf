package surface

import (
	"time"

	"hestonlab/internal/asof"
	"hestonlab/internal/pricing"
)

// TickSize is the SPX option tick used to express price errors.
const TickSize = 0.05

// Tenor is a discretised time-to-expiry bucket.
type Tenor string

const (
	Tenor30D Tenor = "30d"
	Tenor60D Tenor = "60d"
	Tenor90D Tenor = "90d"
	Tenor6M  Tenor = "6m"
	Tenor1Y  Tenor = "1y"
)

// tenorBins are the right-closed upper edges in calendar days.
var tenorBins = []struct {
	maxDays int
	tenor   Tenor
}{
	{45, Tenor30D},
	{75, Tenor60D},
	{120, Tenor90D},
	{240, Tenor6M},
	{720, Tenor1Y},
}

// Tenors lists buckets in their natural order.
var Tenors = []Tenor{Tenor30D, Tenor60D, Tenor90D, Tenor6M, Tenor1Y}

// TenorForDays returns the bucket for a days-to-expiry value and false when
// the value falls outside (0, 720].
func TenorForDays(days int) (Tenor, bool) {
	if days < 0 {
		return "", false
	}
	for _, b := range tenorBins {
		if days <= b.maxDays {
			return b.tenor, true
		}
	}
	return "", false
}

// Order returns the categorical position of a tenor; unknown tenors sort last.
func (t Tenor) Order() int {
	for i, v := range Tenors {
		if v == t {
			return i
		}
	}
	return len(Tenors)
}

// Less orders tenors categorically, falling back to lexical order for unknown values.
func (t Tenor) Less(o Tenor) bool {
	if t.Order() != o.Order() {
		return t.Order() < o.Order()
	}
	return t < o
}

// Quote is one raw option quote as delivered by a data source. Missing
// numeric values are NaN.
type Quote struct {
	TradeDate     time.Time     `json:"trade_date"`
	QuoteDate     time.Time     `json:"quote_date"`
	Expiry        time.Time     `json:"exdate"`
	Right         pricing.Right `json:"cp_flag"`
	Strike        float64       `json:"strike"`
	Bid           float64       `json:"best_bid"`
	Ask           float64       `json:"best_offer"`
	Spot          float64       `json:"spot"`
	UnderlyingBid float64       `json:"underlying_bid"`
	UnderlyingAsk float64       `json:"underlying_ask"`
	ForwardPrice  float64       `json:"forward_price"`
	Rate          float64       `json:"rate"`
	Dividend      float64       `json:"dividend"`
}

// Row is one aggregated (tenor, moneyness) node of an implied-vol surface.
type Row struct {
	Symbol           string    `json:"symbol"`
	TradeDate        time.Time `json:"trade_date"`
	QuoteDate        time.Time `json:"quote_date"`
	TenorBucket      Tenor     `json:"tenor_bucket"`
	Moneyness        float64   `json:"moneyness"`
	TTMYears         float64   `json:"ttm_years"`
	DaysToExpiration float64   `json:"days_to_expiration"`
	Spot             float64   `json:"spot"`
	Strike           float64   `json:"strike"`
	Rate             float64   `json:"rate"`
	Dividend         float64   `json:"dividend"`
	MidPrice         float64   `json:"mid_price"`
	MidIV            float64   `json:"mid_iv"`
	Vega             float64   `json:"vega"`
	Quotes           int       `json:"quotes"`
}

// AsOf implements asof.Record.
func (r Row) AsOf() asof.Stamp {
	return asof.Stamp{
		TradeDate:   r.TradeDate,
		QuoteDate:   r.QuoteDate,
		TenorBucket: string(r.TenorBucket),
		Moneyness:   r.Moneyness,
		Strike:      r.Strike,
	}
}

// Key identifies a surface node across trading days.
type Key struct {
	Tenor     Tenor
	Moneyness float64
}

// Key returns the (tenor, moneyness) join key of the row.
func (r Row) Key() Key {
	return Key{Tenor: r.TenorBucket, Moneyness: r.Moneyness}
}

// MeanSpot returns the average spot of the rows, or NaN for an empty surface.
func MeanSpot(rows []Row) float64 {
	if len(rows) == 0 {
		return nan()
	}
	sum := 0.0
	for _, r := range rows {
		sum += r.Spot
	}
	return sum / float64(len(rows))
}
