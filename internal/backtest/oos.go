package backtest

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"hestonlab/internal/asof"
	"hestonlab/internal/calibration"
	"hestonlab/internal/surface"
)

// OOSBucket summarises next-day pricing errors for one tenor.
type OOSBucket struct {
	TenorBucket   surface.Tenor `json:"tenor_bucket"`
	IVMAEBps      float64       `json:"iv_mae_bps"`
	PriceMAETicks float64       `json:"price_mae_ticks"`
	Quotes        int           `json:"quotes"`
	Weight        float64       `json:"weight"`
}

// OOSResult is the per-node detail, the per-tenor summary and the overall
// weighted iv MAE of an out-of-sample evaluation.
type OOSResult struct {
	Detail   []calibration.ModeledRow `json:"-"`
	Summary  []OOSBucket              `json:"summary"`
	IVMAEBps float64                  `json:"iv_mae_bps"`
}

// EvaluateOOS reprices the next-day surface under params.
//
// When expected is set every row must carry that quote date; a violation is
// returned as an as-of error. Rows whose iv or price error is not finite
// are dropped before summarising, and weights are recomputed on the rows
// that remain.
func EvaluateOOS(rows []surface.Row, params calibration.Params, expected *time.Time) (*OOSResult, error) {
	if expected != nil {
		if err := asof.Check(rows, expected, asof.ContextOOS); err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		return &OOSResult{IVMAEBps: calibration.OOSIVMetrics(nil)}, nil
	}

	modeled := calibration.ApplyModel(rows, params)
	kept := modeled[:0:0]
	for _, m := range modeled {
		if isFinite(m.IVErrorBps) && isFinite(m.PriceErrorTicks) {
			kept = append(kept, m)
		}
	}
	if len(kept) > 0 {
		weights := calibration.VegaQuoteWeights(calibration.Rows(kept))
		for i := range kept {
			kept[i].Weight = weights[i]
		}
	}

	return &OOSResult{
		Detail:   kept,
		Summary:  summarizeByTenor(kept),
		IVMAEBps: calibration.OOSIVMetrics(kept),
	}, nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func summarizeByTenor(rows []calibration.ModeledRow) []OOSBucket {
	type acc struct {
		iv, px, w []float64
		quotes    int
	}
	groups := make(map[surface.Tenor]*acc)
	var order []surface.Tenor
	for _, r := range rows {
		g, ok := groups[r.TenorBucket]
		if !ok {
			g = &acc{}
			groups[r.TenorBucket] = g
			order = append(order, r.TenorBucket)
		}
		g.iv = append(g.iv, math.Abs(r.IVErrorBps))
		g.px = append(g.px, math.Abs(r.PriceErrorTicks))
		g.w = append(g.w, r.Weight)
		g.quotes += r.Quotes
	}
	sortTenors(order)

	out := make([]OOSBucket, 0, len(order))
	for _, tenor := range order {
		g := groups[tenor]
		total := 0.0
		for _, w := range g.w {
			total += w
		}
		out = append(out, OOSBucket{
			TenorBucket:   tenor,
			IVMAEBps:      stat.Mean(g.iv, g.w),
			PriceMAETicks: stat.Mean(g.px, g.w),
			Quotes:        g.quotes,
			Weight:        total,
		})
	}
	return out
}

// QuoteWeightedPriceMAE averages the per-tenor price MAE weighted by
// max(quotes, 1). An empty summary yields NaN.
func QuoteWeightedPriceMAE(summary []OOSBucket) float64 {
	if len(summary) == 0 {
		return math.NaN()
	}
	x := make([]float64, len(summary))
	w := make([]float64, len(summary))
	for i, b := range summary {
		x[i] = b.PriceMAETicks
		w[i] = math.Max(float64(b.Quotes), 1)
	}
	return stat.Mean(x, w)
}
