// Package compare builds the per-tenor Heston versus flat-vol comparison
// table across every date of a batch.
package compare

import (
	"math"
	"sort"
	"time"

	"hestonlab/internal/backtest"
	"hestonlab/internal/calibration"
	"hestonlab/internal/surface"
)

// DateArtifacts is everything the comparator needs from one trade date.
type DateArtifacts struct {
	TradeDate        time.Time
	HestonInsample   []calibration.ModeledRow
	BaselineInsample []calibration.ModeledRow
	HestonOOS        []calibration.ModeledRow
	BaselineOOS      []calibration.ModeledRow
	Hedge            []backtest.HedgeBucket
}

// Row is one tenor of the comparison. Metrics without data are NaN.
type Row struct {
	TenorBucket surface.Tenor `json:"tenor_bucket"`

	HestonIVRMSEVolPts   float64 `json:"heston_iv_rmse_volpts"`
	HestonPriceRMSETicks float64 `json:"heston_price_rmse_ticks"`
	BSIVRMSEVolPts       float64 `json:"bs_iv_rmse_volpts"`
	BSPriceRMSETicks     float64 `json:"bs_price_rmse_ticks"`

	HestonOOSIVMAEBps      float64 `json:"heston_oos_iv_mae_bps"`
	HestonOOSPriceMAETicks float64 `json:"heston_oos_price_mae_ticks"`
	BSOOSIVMAEBps          float64 `json:"bs_oos_iv_mae_bps"`
	BSOOSPriceMAETicks     float64 `json:"bs_oos_price_mae_ticks"`

	HestonPnLSigma float64 `json:"heston_pnl_sigma"`
	Count          float64 `json:"count"`
	MeanTicks      float64 `json:"mean_ticks"`

	DeltaIVRMSEVolPts     float64 `json:"delta_iv_rmse_volpts"`
	DeltaPriceRMSETicks   float64 `json:"delta_price_rmse_ticks"`
	DeltaOOSIVMAEBps      float64 `json:"delta_oos_iv_mae_bps"`
	DeltaOOSPriceMAETicks float64 `json:"delta_oos_price_mae_ticks"`
}

// weighted accumulates Σw·f(x) and Σw over finite observations.
type weighted struct{ num, den float64 }

func (a *weighted) add(x, w float64) {
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(w) {
		return
	}
	a.num += w * x
	a.den += w
}

func (a weighted) mean() float64 {
	if a.den <= 0 {
		return math.NaN()
	}
	return a.num / a.den
}

type insampleAcc struct{ iv, px weighted }

// insample accumulates quote-weighted squared errors per tenor.
func insample(dates []DateArtifacts, pick func(DateArtifacts) []calibration.ModeledRow) map[surface.Tenor]*insampleAcc {
	out := make(map[surface.Tenor]*insampleAcc)
	for _, d := range dates {
		for _, r := range pick(d) {
			a, ok := out[r.TenorBucket]
			if !ok {
				a = &insampleAcc{}
				out[r.TenorBucket] = a
			}
			w := float64(r.Quotes)
			a.iv.add(r.IVErrorVol*r.IVErrorVol, w)
			a.px.add(r.PriceErrorTicks*r.PriceErrorTicks, w)
		}
	}
	return out
}

type oosAcc struct{ iv, px weighted }

// oos averages per-(date, tenor) quote-weighted MAEs, then averages those
// per tenor weighted by each date's quote count.
func oos(dates []DateArtifacts, pick func(DateArtifacts) []calibration.ModeledRow) map[surface.Tenor]*oosAcc {
	out := make(map[surface.Tenor]*oosAcc)
	for _, d := range dates {
		perDate := make(map[surface.Tenor]*oosAcc)
		quotes := make(map[surface.Tenor]float64)
		for _, r := range pick(d) {
			a, ok := perDate[r.TenorBucket]
			if !ok {
				a = &oosAcc{}
				perDate[r.TenorBucket] = a
			}
			w := float64(r.Quotes)
			a.iv.add(math.Abs(r.IVErrorBps), w)
			a.px.add(math.Abs(r.PriceErrorTicks), w)
			quotes[r.TenorBucket] += w
		}
		for tenor, a := range perDate {
			agg, ok := out[tenor]
			if !ok {
				agg = &oosAcc{}
				out[tenor] = agg
			}
			agg.iv.add(a.iv.mean(), quotes[tenor])
			agg.px.add(a.px.mean(), quotes[tenor])
		}
	}
	return out
}

type hedgeAcc struct {
	sigma, ticks weighted
	count        float64
}

func hedge(dates []DateArtifacts) map[surface.Tenor]*hedgeAcc {
	out := make(map[surface.Tenor]*hedgeAcc)
	for _, d := range dates {
		for _, b := range d.Hedge {
			a, ok := out[b.TenorBucket]
			if !ok {
				a = &hedgeAcc{}
				out[b.TenorBucket] = a
			}
			a.sigma.add(b.PnLSigma, 1)
			a.ticks.add(b.MeanTicks, 1)
			a.count += float64(b.Count)
		}
	}
	return out
}

// Build assembles the comparison table, one row per tenor seen anywhere in
// the inputs, in tenor order. Deltas are Heston minus baseline.
func Build(dates []DateArtifacts) []Row {
	hIn := insample(dates, func(d DateArtifacts) []calibration.ModeledRow { return d.HestonInsample })
	bIn := insample(dates, func(d DateArtifacts) []calibration.ModeledRow { return d.BaselineInsample })
	hOOS := oos(dates, func(d DateArtifacts) []calibration.ModeledRow { return d.HestonOOS })
	bOOS := oos(dates, func(d DateArtifacts) []calibration.ModeledRow { return d.BaselineOOS })
	pnl := hedge(dates)

	seen := make(map[surface.Tenor]bool)
	var tenors []surface.Tenor
	collect := func(t surface.Tenor) {
		if !seen[t] {
			seen[t] = true
			tenors = append(tenors, t)
		}
	}
	for _, m := range []map[surface.Tenor]*insampleAcc{hIn, bIn} {
		for t := range m {
			collect(t)
		}
	}
	for _, m := range []map[surface.Tenor]*oosAcc{hOOS, bOOS} {
		for t := range m {
			collect(t)
		}
	}
	for t := range pnl {
		collect(t)
	}
	sort.Slice(tenors, func(i, j int) bool { return tenors[i].Less(tenors[j]) })

	nan := math.NaN()
	rows := make([]Row, 0, len(tenors))
	for _, t := range tenors {
		r := Row{
			TenorBucket:            t,
			HestonIVRMSEVolPts:     nan,
			HestonPriceRMSETicks:   nan,
			BSIVRMSEVolPts:         nan,
			BSPriceRMSETicks:       nan,
			HestonOOSIVMAEBps:      nan,
			HestonOOSPriceMAETicks: nan,
			BSOOSIVMAEBps:          nan,
			BSOOSPriceMAETicks:     nan,
			HestonPnLSigma:         nan,
			Count:                  nan,
			MeanTicks:              nan,
		}
		if a, ok := hIn[t]; ok {
			r.HestonIVRMSEVolPts = math.Sqrt(a.iv.mean())
			r.HestonPriceRMSETicks = math.Sqrt(a.px.mean())
		}
		if a, ok := bIn[t]; ok {
			r.BSIVRMSEVolPts = math.Sqrt(a.iv.mean())
			r.BSPriceRMSETicks = math.Sqrt(a.px.mean())
		}
		if a, ok := hOOS[t]; ok {
			r.HestonOOSIVMAEBps = a.iv.mean()
			r.HestonOOSPriceMAETicks = a.px.mean()
		}
		if a, ok := bOOS[t]; ok {
			r.BSOOSIVMAEBps = a.iv.mean()
			r.BSOOSPriceMAETicks = a.px.mean()
		}
		if a, ok := pnl[t]; ok {
			r.HestonPnLSigma = a.sigma.mean()
			r.MeanTicks = a.ticks.mean()
			r.Count = a.count
		}
		r.DeltaIVRMSEVolPts = r.HestonIVRMSEVolPts - r.BSIVRMSEVolPts
		r.DeltaPriceRMSETicks = r.HestonPriceRMSETicks - r.BSPriceRMSETicks
		r.DeltaOOSIVMAEBps = r.HestonOOSIVMAEBps - r.BSOOSIVMAEBps
		r.DeltaOOSPriceMAETicks = r.HestonOOSPriceMAETicks - r.BSOOSPriceMAETicks
		rows = append(rows, r)
	}
	return rows
}

// Columns is the comparison table header.
var Columns = []string{
	"tenor_bucket",
	"heston_iv_rmse_volpts", "heston_price_rmse_ticks",
	"bs_iv_rmse_volpts", "bs_price_rmse_ticks",
	"heston_oos_iv_mae_bps", "heston_oos_price_mae_ticks",
	"bs_oos_iv_mae_bps", "bs_oos_price_mae_ticks",
	"heston_pnl_sigma", "count", "mean_ticks",
	"delta_iv_rmse_volpts", "delta_price_rmse_ticks",
	"delta_oos_iv_mae_bps", "delta_oos_price_mae_ticks",
}

// Values returns the numeric cells of r in Columns order, after the tenor.
func (r Row) Values() []float64 {
	return []float64{
		r.HestonIVRMSEVolPts, r.HestonPriceRMSETicks,
		r.BSIVRMSEVolPts, r.BSPriceRMSETicks,
		r.HestonOOSIVMAEBps, r.HestonOOSPriceMAETicks,
		r.BSOOSIVMAEBps, r.BSOOSPriceMAETicks,
		r.HestonPnLSigma, r.Count, r.MeanTicks,
		r.DeltaIVRMSEVolPts, r.DeltaPriceRMSETicks,
		r.DeltaOOSIVMAEBps, r.DeltaOOSPriceMAETicks,
	}
}

// Record renders r as CSV cells.
func (r Row) Record() []string {
	out := []string{string(r.TenorBucket)}
	for _, v := range r.Values() {
		out = append(out, surface.FormatFloat(v))
	}
	return out
}
