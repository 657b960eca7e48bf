package calibration

import (
	"math"

	"hestonlab/internal/heston"
	"hestonlab/internal/pricing"
	"hestonlab/internal/surface"
)

// ModeledRow is a surface node with model output and fit errors attached.
type ModeledRow struct {
	surface.Row
	ModelPrice      float64 `json:"model_price"`
	ModelIV         float64 `json:"model_iv"`
	ModelDelta      float64 `json:"model_delta"`
	IVErrorVol      float64 `json:"iv_error_vol"`
	IVErrorBps      float64 `json:"iv_error_bps"`
	PriceErrorTicks float64 `json:"price_error_ticks"`
	Weight          float64 `json:"weight"`
}

// PricerFunc prices the i-th surface node, returning (price, implied vol,
// delta). A NaN delta means the model does not report one.
type PricerFunc func(i int, r surface.Row) (price, iv, delta float64)

// ModelIV prices a node under params and inverts the clamped price to an
// implied vol. The vol is NaN when inversion fails.
func ModelIV(r surface.Row, p Params) (price, iv float64) {
	price = heston.CallPrice(p, r.Spot, r.Strike, r.Rate, r.Dividend, r.TTMYears)
	price = heston.Clamp(price, r.Spot, r.Strike, r.Rate, r.Dividend, r.TTMYears)
	iv = pricing.ImpliedVol(price, r.Spot, r.Strike, r.Rate, r.Dividend, r.TTMYears, pricing.RightCall)
	if math.IsNaN(iv) || math.IsInf(iv, 0) || iv <= 0 {
		iv = math.NaN()
	}
	return price, iv
}

// HestonPricer adapts ModelIV to a PricerFunc.
func HestonPricer(p Params) PricerFunc {
	return func(_ int, r surface.Row) (float64, float64, float64) {
		price, iv := ModelIV(r, p)
		return price, iv, math.NaN()
	}
}

// ApplyModel prices every row under params and attaches the errors.
func ApplyModel(rows []surface.Row, p Params) []ModeledRow {
	return ApplyPricer(rows, HestonPricer(p))
}

// ApplyPricer attaches model output from an arbitrary pricer. Weights are
// VegaQuoteWeights of the input rows.
func ApplyPricer(rows []surface.Row, pricer PricerFunc) []ModeledRow {
	if len(rows) == 0 {
		return nil
	}
	weights := VegaQuoteWeights(rows)
	out := make([]ModeledRow, len(rows))
	for i, r := range rows {
		price, iv, delta := pricer(i, r)
		ivErr := iv - r.MidIV
		out[i] = ModeledRow{
			Row:             r,
			ModelPrice:      price,
			ModelIV:         iv,
			ModelDelta:      delta,
			IVErrorVol:      ivErr,
			IVErrorBps:      ivErr * 1e4,
			PriceErrorTicks: (price - r.MidPrice) / surface.TickSize,
			Weight:          weights[i],
		}
	}
	return out
}

// Rows strips model output.
func Rows(modeled []ModeledRow) []surface.Row {
	out := make([]surface.Row, len(modeled))
	for i, m := range modeled {
		out[i] = m.Row
	}
	return out
}
