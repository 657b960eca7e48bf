package compare

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hestonlab/internal/backtest"
	"hestonlab/internal/calibration"
	"hestonlab/internal/surface"
)

func modeled(tenor surface.Tenor, quotes int, ivErr, pxErr float64) calibration.ModeledRow {
	return calibration.ModeledRow{
		Row:             surface.Row{TenorBucket: tenor, Quotes: quotes},
		IVErrorVol:      ivErr,
		IVErrorBps:      ivErr * 1e4,
		PriceErrorTicks: pxErr,
	}
}

func TestBuild(t *testing.T) {
	d1 := DateArtifacts{
		TradeDate: time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC),
		HestonInsample: []calibration.ModeledRow{
			modeled(surface.Tenor90D, 1, 0.01, 1),
			modeled(surface.Tenor30D, 3, 0.02, 2),
		},
		BaselineInsample: []calibration.ModeledRow{
			modeled(surface.Tenor30D, 3, 0.04, 4),
		},
		HestonOOS: []calibration.ModeledRow{
			modeled(surface.Tenor30D, 1, 0.001, 1),
			modeled(surface.Tenor30D, 3, -0.003, -3),
		},
		BaselineOOS: []calibration.ModeledRow{
			modeled(surface.Tenor30D, 2, 0.005, 5),
		},
		Hedge: []backtest.HedgeBucket{{TenorBucket: surface.Tenor30D, MeanTicks: 1, PnLSigma: 2, Count: 4}},
	}
	d2 := DateArtifacts{
		TradeDate: time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC),
		HestonInsample: []calibration.ModeledRow{
			modeled(surface.Tenor30D, 1, 0.0, math.NaN()),
		},
		HestonOOS: []calibration.ModeledRow{
			modeled(surface.Tenor30D, 4, 0.005, 5),
		},
		Hedge: []backtest.HedgeBucket{{TenorBucket: surface.Tenor30D, MeanTicks: 3, PnLSigma: 4, Count: 6}},
	}

	rows := Build([]DateArtifacts{d1, d2})
	require.Len(t, rows, 2)
	assert.Equal(t, surface.Tenor30D, rows[0].TenorBucket)
	assert.Equal(t, surface.Tenor90D, rows[1].TenorBucket)

	r := rows[0]
	// 30d in-sample: weights 3 and 1 for squared errors 4e-4 and 0.
	assert.InDelta(t, math.Sqrt(3*4e-4/4), r.HestonIVRMSEVolPts, 1e-12)
	assert.InDelta(t, 2, r.HestonPriceRMSETicks, 1e-12)
	assert.InDelta(t, 0.04, r.BSIVRMSEVolPts, 1e-12)
	assert.InDelta(t, r.HestonIVRMSEVolPts-0.04, r.DeltaIVRMSEVolPts, 1e-12)

	// Date 1: (10·1 + 30·3)/4 = 25 bps over 4 quotes; date 2: 50 bps over 4.
	assert.InDelta(t, 37.5, r.HestonOOSIVMAEBps, 1e-9)
	assert.InDelta(t, 3.75, r.HestonOOSPriceMAETicks, 1e-9)
	assert.InDelta(t, 50, r.BSOOSIVMAEBps, 1e-9)
	assert.InDelta(t, -12.5, r.DeltaOOSIVMAEBps, 1e-9)

	assert.Equal(t, 3.0, r.HestonPnLSigma)
	assert.Equal(t, 2.0, r.MeanTicks)
	assert.Equal(t, 10.0, r.Count)

	long := rows[1]
	assert.InDelta(t, 0.01, long.HestonIVRMSEVolPts, 1e-12)
	assert.True(t, math.IsNaN(long.BSIVRMSEVolPts))
	assert.True(t, math.IsNaN(long.DeltaIVRMSEVolPts))
	assert.True(t, math.IsNaN(long.HestonPnLSigma))
	assert.True(t, math.IsNaN(long.Count))

	rec := long.Record()
	require.Len(t, rec, len(Columns))
	assert.Equal(t, "90d", rec[0])
	assert.Equal(t, "", rec[3])
}

func TestBuild_Empty(t *testing.T) {
	assert.Empty(t, Build(nil))
}
