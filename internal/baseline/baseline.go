// Package baseline fits the flat-volatility yardstick: one Black-Scholes
// volatility per tenor bucket, estimated as the weighted mean of the
// bucket's implied vols.
package baseline

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"hestonlab/internal/calibration"
	"hestonlab/internal/pricing"
	"hestonlab/internal/surface"
)

// Vols maps a tenor bucket to its fitted flat volatility.
type Vols map[surface.Tenor]float64

// Result is a baseline fit with in-sample diagnostics computed exactly as
// for the Heston fit.
type Result struct {
	Vols    Vols                     `json:"vols"`
	Surface []calibration.ModeledRow `json:"-"`
	Metrics calibration.Metrics      `json:"metrics"`
}

// OOSSummary aggregates a baseline next-day evaluation.
type OOSSummary struct {
	IVMAEBps      float64 `json:"iv_mae_bps"`
	PriceMAETicks float64 `json:"price_mae_ticks"`
}

// FitVols returns the VegaQuoteWeights-weighted mean mid iv per tenor.
func FitVols(rows []surface.Row) Vols {
	groups := make(map[surface.Tenor][]surface.Row)
	for _, r := range rows {
		groups[r.TenorBucket] = append(groups[r.TenorBucket], r)
	}
	vols := make(Vols, len(groups))
	for tenor, group := range groups {
		ivs := make([]float64, len(group))
		for i, r := range group {
			ivs[i] = r.MidIV
		}
		vols[tenor] = stat.Mean(ivs, calibration.VegaQuoteWeights(group))
	}
	return vols
}

func flatPricer(vol func(i int, r surface.Row) float64) calibration.PricerFunc {
	return func(i int, r surface.Row) (float64, float64, float64) {
		v := vol(i, r)
		price := pricing.Call(r.Spot, r.Strike, r.Rate, r.Dividend, v, r.TTMYears)
		delta := pricing.DeltaCall(r.Spot, r.Strike, r.Rate, r.Dividend, v, r.TTMYears)
		return price, v, delta
	}
}

// Fit calibrates the per-tenor baseline to a surface.
func Fit(rows []surface.Row) *Result {
	vols := FitVols(rows)
	modeled := calibration.ApplyPricer(rows, flatPricer(func(_ int, r surface.Row) float64 {
		return vols[r.TenorBucket]
	}))
	return &Result{
		Vols:    vols,
		Surface: modeled,
		Metrics: calibration.InsampleMetrics(modeled),
	}
}

// EvaluateOOS prices a next-day surface with fitted vols. A tenor absent
// from the fit takes the vol of the nearest preceding row in surface order;
// rows before any fitted tenor stay NaN.
func EvaluateOOS(rows []surface.Row, vols Vols) []calibration.ModeledRow {
	if len(rows) == 0 {
		return nil
	}
	filled := make([]float64, len(rows))
	last := math.NaN()
	for i, r := range rows {
		if v, ok := vols[r.TenorBucket]; ok && !math.IsNaN(v) {
			last = v
		}
		filled[i] = last
	}
	return calibration.ApplyPricer(rows, flatPricer(func(i int, _ surface.Row) float64 {
		return filled[i]
	}))
}

// SummarizeOOS returns the weighted mean absolute errors of an OOS
// evaluation. An empty evaluation yields zeros.
func SummarizeOOS(rows []calibration.ModeledRow) OOSSummary {
	if len(rows) == 0 {
		return OOSSummary{}
	}
	weights := calibration.VegaQuoteWeights(calibration.Rows(rows))
	iv := make([]float64, len(rows))
	px := make([]float64, len(rows))
	for i, r := range rows {
		iv[i] = math.Abs(r.IVErrorBps)
		px[i] = math.Abs(r.PriceErrorTicks)
	}
	return OOSSummary{
		IVMAEBps:      stat.Mean(iv, weights),
		PriceMAETicks: stat.Mean(px, weights),
	}
}
