package calibration

import (
	"math"

	"hestonlab/internal/surface"
)

// PositiveWeights replaces non-finite and non-positive entries with def.
// An empty input yields a single default weight.
func PositiveWeights(values []float64, def float64) []float64 {
	if len(values) == 0 {
		return []float64{def}
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			v = def
		}
		out[i] = v
		sum += v
	}
	if sum <= 0 {
		for i := range out {
			out[i] = def
		}
	}
	return out
}

// MoneynessTaper down-weights wings beyond |m-1| > 0.2 (about 0.74 at m=1.25).
func MoneynessTaper(m float64) float64 {
	d := math.Abs(m - 1)
	if d > 0.2 {
		return math.Exp(-6 * (d - 0.2))
	}
	return 1
}

func rowWeight(r surface.Row) float64 {
	return r.Vega * math.Max(float64(r.Quotes), 1) * MoneynessTaper(r.Moneyness)
}

// VegaQuoteWeights combines sensitivity (vega), liquidity (quote count) and
// the wing taper into strictly positive weights, one per row.
func VegaQuoteWeights(rows []surface.Row) []float64 {
	if len(rows) == 0 {
		return nil
	}
	raw := make([]float64, len(rows))
	for i, r := range rows {
		raw[i] = rowWeight(r)
	}
	return PositiveWeights(raw, 1)
}

// QuoteWeights is max(quotes, 1) per row.
func QuoteWeights(rows []surface.Row) []float64 {
	w := make([]float64, len(rows))
	for i, r := range rows {
		w[i] = math.Max(float64(r.Quotes), 1)
	}
	return w
}
