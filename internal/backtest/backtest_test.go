package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hestonlab/internal/calibration"
	apperrors "hestonlab/internal/errors"
	"hestonlab/internal/pricing"
	"hestonlab/internal/surface"
)

var (
	today    = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	tomorrow = time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC)
	params   = calibration.Params{Kappa: 1.5, Theta: 0.05, Sigma: 0.6, Rho: -0.6, V0: 0.035}
)

func node(date time.Time, tenor surface.Tenor, days int, m, spot, vol float64, quotes int) surface.Row {
	t := float64(days) / 365
	k := 4500 * m
	return surface.Row{
		Symbol: "SPX", TradeDate: date, QuoteDate: date,
		TenorBucket: tenor, Moneyness: m, TTMYears: t, DaysToExpiration: float64(days),
		Spot: spot, Strike: k, Rate: 0.015, Dividend: 0.01,
		MidPrice: pricing.Call(spot, k, 0.015, 0.01, vol, t),
		MidIV:    vol,
		Vega:     pricing.Vega(spot, k, 0.015, 0.01, vol, t),
		Quotes:   quotes,
	}
}

func nextSurface() []surface.Row {
	return []surface.Row{
		node(tomorrow, surface.Tenor30D, 30, 0.95, 4510, 0.21, 2),
		node(tomorrow, surface.Tenor30D, 30, 1.0, 4510, 0.19, 1),
		node(tomorrow, surface.Tenor90D, 91, 1.0, 4510, 0.2, 4),
	}
}

func TestEvaluateOOS_Summaries(t *testing.T) {
	res, err := EvaluateOOS(nextSurface(), params, &tomorrow)
	require.NoError(t, err)
	require.Len(t, res.Detail, 3)
	require.Len(t, res.Summary, 2)

	assert.Equal(t, surface.Tenor30D, res.Summary[0].TenorBucket)
	assert.Equal(t, 3, res.Summary[0].Quotes)
	assert.Equal(t, surface.Tenor90D, res.Summary[1].TenorBucket)
	assert.Equal(t, 4, res.Summary[1].Quotes)
	for _, b := range res.Summary {
		assert.Greater(t, b.IVMAEBps, 0.0)
		assert.Greater(t, b.Weight, 0.0)
	}
	assert.Greater(t, res.IVMAEBps, 0.0)
	assert.False(t, math.IsNaN(QuoteWeightedPriceMAE(res.Summary)))
}

func TestEvaluateOOS_LookAheadIsFatal(t *testing.T) {
	rows := nextSurface()
	rows[0].QuoteDate = tomorrow.AddDate(0, 0, 1)

	_, err := EvaluateOOS(rows, params, &tomorrow)
	require.Error(t, err)
	assert.True(t, apperrors.IsDataIntegrity(err))
	assert.Contains(t, err.Error(), "(oos)")
	assert.Contains(t, err.Error(), "next_trade_date=2024-06-17")
}

func TestEvaluateOOS_Empty(t *testing.T) {
	res, err := EvaluateOOS(nil, params, &tomorrow)
	require.NoError(t, err)
	assert.Empty(t, res.Detail)
	assert.Empty(t, res.Summary)
	assert.Equal(t, 0.0, res.IVMAEBps)
	assert.True(t, math.IsNaN(QuoteWeightedPriceMAE(res.Summary)))
}

func TestSimulateHedge_IdenticalSurfacesHaveZeroPnL(t *testing.T) {
	rows := []surface.Row{
		node(today, surface.Tenor30D, 30, 0.95, 4500, 0.21, 2),
		node(today, surface.Tenor30D, 30, 1.0, 4500, 0.2, 1),
		node(today, surface.Tenor90D, 91, 1.0, 4500, 0.2, 3),
	}
	detail, summary := SimulateHedge(rows, rows)
	require.Len(t, detail, 3)
	require.Len(t, summary, 2)
	for _, d := range detail {
		assert.Equal(t, 0.0, d.PnL)
		assert.Equal(t, 0.0, d.PnLTicks)
	}
	assert.Equal(t, HedgeBucket{TenorBucket: surface.Tenor30D, Count: 3}, summary[0])
	assert.Equal(t, HedgeBucket{TenorBucket: surface.Tenor90D, Count: 3}, summary[1])
}

func TestSimulateHedge_DeltaHedgedPnL(t *testing.T) {
	a := node(today, surface.Tenor30D, 30, 1.0, 4500, 0.2, 2)
	b := node(tomorrow, surface.Tenor30D, 30, 1.0, 4520, 0.2, 1)
	b.MidPrice = a.MidPrice + 15

	detail, summary := SimulateHedge([]surface.Row{a}, []surface.Row{b})
	require.Len(t, detail, 1)

	delta := pricing.DeltaCall(4500, a.Strike, 0.015, 0.01, 0.2, a.TTMYears)
	want := 15 - delta*20
	assert.InDelta(t, want, detail[0].PnL, 1e-9)
	assert.InDelta(t, want/surface.TickSize, detail[0].PnLTicks, 1e-9)

	// Two copies of one observation: mean unchanged, zero dispersion.
	require.Len(t, summary, 1)
	assert.Equal(t, 2, summary[0].Count)
	assert.InDelta(t, want, summary[0].MeanPnL, 1e-9)
	assert.InDelta(t, 0, summary[0].PnLSigma, 1e-9)
}

func TestSimulateHedge_SigmaUsesExpandedSample(t *testing.T) {
	a1 := node(today, surface.Tenor30D, 30, 1.0, 4500, 0.2, 1)
	a2 := node(today, surface.Tenor30D, 30, 1.05, 4500, 0.2, 2)
	b1, b2 := a1, a2
	b1.MidPrice += 0.05
	b2.MidPrice += 0.2

	_, summary := SimulateHedge([]surface.Row{a1, a2}, []surface.Row{b1, b2})
	require.Len(t, summary, 1)
	// Expanded ticks: {1, 4, 4}; mean 3, sample std sqrt(3).
	assert.Equal(t, 3, summary[0].Count)
	assert.InDelta(t, 3, summary[0].MeanTicks, 1e-9)
	assert.InDelta(t, math.Sqrt(3), summary[0].PnLSigma, 1e-9)
}

func TestSimulateHedge_NoOverlap(t *testing.T) {
	a := node(today, surface.Tenor30D, 30, 1.0, 4500, 0.2, 1)
	b := node(tomorrow, surface.Tenor90D, 91, 1.0, 4500, 0.2, 1)
	detail, summary := SimulateHedge([]surface.Row{a}, []surface.Row{b})
	assert.Empty(t, detail)
	assert.Empty(t, summary)
}
