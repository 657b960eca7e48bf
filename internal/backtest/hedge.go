package backtest

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"hestonlab/internal/pricing"
	"hestonlab/internal/surface"
)

// HedgeRow is the one-day delta-hedged P&L of a surface node held from
// today to tomorrow.
type HedgeRow struct {
	TenorBucket surface.Tenor `json:"tenor_bucket"`
	Moneyness   float64       `json:"moneyness"`
	PnL         float64       `json:"pnl"`
	PnLTicks    float64       `json:"pnl_per_tick"`
	Quotes      int           `json:"quotes"`
}

// HedgeBucket summarises hedge P&L per tenor. Each node counts
// max(quotes, 1) times.
type HedgeBucket struct {
	TenorBucket surface.Tenor `json:"tenor_bucket"`
	MeanPnL     float64       `json:"mean_pnl"`
	MeanTicks   float64       `json:"mean_ticks"`
	PnLSigma    float64       `json:"pnl_sigma"`
	Count       int           `json:"count"`
}

func sortTenors(tenors []surface.Tenor) {
	sort.SliceStable(tenors, func(i, j int) bool { return tenors[i].Less(tenors[j]) })
}

// SimulateHedge joins the two surfaces on (tenor, moneyness) and hedges each
// node with its Black-Scholes delta at today's implied vol. Spot levels are
// the mean spot of each whole surface. An empty join yields empty results.
func SimulateHedge(today, tomorrow []surface.Row) ([]HedgeRow, []HedgeBucket) {
	next := make(map[surface.Key]surface.Row, len(tomorrow))
	for _, r := range tomorrow {
		if _, dup := next[r.Key()]; !dup {
			next[r.Key()] = r
		}
	}

	spotT := surface.MeanSpot(today)
	spotT1 := surface.MeanSpot(tomorrow)
	spotChange := spotT1 - spotT

	var detail []HedgeRow
	for _, t := range today {
		n, ok := next[t.Key()]
		if !ok {
			continue
		}
		delta := pricing.DeltaCall(spotT, t.Strike, t.Rate, t.Dividend, t.MidIV, t.TTMYears)
		pnl := (n.MidPrice - t.MidPrice) - delta*spotChange
		detail = append(detail, HedgeRow{
			TenorBucket: t.TenorBucket,
			Moneyness:   t.Moneyness,
			PnL:         pnl,
			PnLTicks:    pnl / surface.TickSize,
			Quotes:      t.Quotes,
		})
	}
	if len(detail) == 0 {
		return nil, nil
	}
	return detail, summarizeHedge(detail)
}

func summarizeHedge(detail []HedgeRow) []HedgeBucket {
	type acc struct{ pnl, ticks, w []float64 }
	groups := make(map[surface.Tenor]*acc)
	var order []surface.Tenor
	for _, d := range detail {
		g, ok := groups[d.TenorBucket]
		if !ok {
			g = &acc{}
			groups[d.TenorBucket] = g
			order = append(order, d.TenorBucket)
		}
		g.pnl = append(g.pnl, d.PnL)
		g.ticks = append(g.ticks, d.PnLTicks)
		g.w = append(g.w, float64(max(d.Quotes, 1)))
	}
	sortTenors(order)

	out := make([]HedgeBucket, 0, len(order))
	for _, tenor := range order {
		g := groups[tenor]
		count := 0.0
		for _, w := range g.w {
			count += w
		}
		// Frequency weights: the unbiased variance divides by Σw - 1,
		// matching the sample std of the expanded observations.
		meanTicks, sigma := stat.MeanStdDev(g.ticks, g.w)
		if count < 2 || !isFinite(sigma) {
			sigma = 0
		}
		out = append(out, HedgeBucket{
			TenorBucket: tenor,
			MeanPnL:     zeroIfNaN(stat.Mean(g.pnl, g.w)),
			MeanTicks:   zeroIfNaN(meanTicks),
			PnLSigma:    sigma,
			Count:       int(count),
		})
	}
	return out
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
