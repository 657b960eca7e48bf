package calibration

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Metrics summarises an in-sample fit. All averages are weighted by
// VegaQuoteWeights.
type Metrics struct {
	IVRMSEVolPts   float64 `json:"iv_rmse_volpts_vega_wt"`
	IVMAEVolPts    float64 `json:"iv_mae_volpts_vega_wt"`
	IVP90Bps       float64 `json:"iv_p90_bps"`
	PriceRMSETicks float64 `json:"price_rmse_ticks"`
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// WeightedPercentile returns the smallest value whose cumulative weight
// reaches p·Σw (p in [0,1]). An empty input yields 0.
func WeightedPercentile(values, weights []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	p = clip(p, 0, 1)
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	total := 0.0
	for _, w := range weights {
		total += w
	}
	cutoff := p * total
	cum := 0.0
	for _, i := range idx {
		cum += weights[i]
		if cum >= cutoff {
			return values[i]
		}
	}
	return values[idx[len(idx)-1]]
}

func weightedRMS(x, w []float64) float64 {
	sq := make([]float64, len(x))
	for i, v := range x {
		sq[i] = v * v
	}
	return math.Sqrt(stat.Mean(sq, w))
}

// InsampleMetrics computes fit quality over rows with finite errors.
func InsampleMetrics(rows []ModeledRow) Metrics {
	nan := math.NaN()
	weights := VegaQuoteWeights(Rows(rows))

	var ivErr, ivW, absIV, absBps []float64
	var pxErr, pxW []float64
	for i, r := range rows {
		if finite(r.IVErrorVol) && finite(weights[i]) {
			ivErr = append(ivErr, r.IVErrorVol)
			ivW = append(ivW, weights[i])
			absIV = append(absIV, math.Abs(r.IVErrorVol))
			absBps = append(absBps, math.Abs(r.IVErrorVol)*1e4)
		}
		if finite(r.PriceErrorTicks) && finite(weights[i]) {
			pxErr = append(pxErr, r.PriceErrorTicks)
			pxW = append(pxW, weights[i])
		}
	}
	if len(ivErr) == 0 {
		return Metrics{IVRMSEVolPts: nan, IVMAEVolPts: nan, IVP90Bps: nan, PriceRMSETicks: nan}
	}

	m := Metrics{
		IVRMSEVolPts:   weightedRMS(ivErr, ivW),
		IVMAEVolPts:    stat.Mean(absIV, ivW),
		IVP90Bps:       WeightedPercentile(absBps, ivW, 0.9),
		PriceRMSETicks: nan,
	}
	if len(pxErr) > 0 {
		m.PriceRMSETicks = weightedRMS(pxErr, pxW)
	}
	return m
}

// OOSIVMetrics returns the weighted mean absolute iv error in bps: 0 for an
// empty surface and NaN when no row has a finite error.
func OOSIVMetrics(rows []ModeledRow) float64 {
	if len(rows) == 0 {
		return 0
	}
	weights := VegaQuoteWeights(Rows(rows))
	var x, w []float64
	for i, r := range rows {
		if finite(r.IVErrorBps) {
			x = append(x, math.Abs(r.IVErrorBps))
			w = append(w, weights[i])
		}
	}
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, w)
}
