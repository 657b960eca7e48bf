package pipeline

import (
	"math"

	"hestonlab/internal/calibration"
	"hestonlab/internal/exporter"
	"hestonlab/internal/heston"
)

func nan() float64 { return math.NaN() }

// FitSummary is the heston_fit.json document.
type FitSummary struct {
	TradeDate      string                       `json:"trade_date"`
	NextTradeDate  string                       `json:"next_trade_date"`
	Label          string                       `json:"label"`
	Regime         string                       `json:"regime"`
	Params         calibration.Params           `json:"params"`
	IVRMSEVolPts   exporter.Float               `json:"iv_rmse_volpts_vega_wt"`
	IVMAEVolPts    exporter.Float               `json:"iv_mae_volpts_vega_wt"`
	IVP90Bps       exporter.Float               `json:"iv_p90_bps"`
	PriceRMSETicks exporter.Float               `json:"price_rmse_ticks"`
	BootstrapCI    map[string][2]exporter.Float `json:"bootstrap_ci"`
	SourceToday    string                       `json:"source_today"`
	SourceNext     string                       `json:"source_next"`
	Converged      bool                         `json:"converged"`
	Evaluations    int                          `json:"evaluations"`
	IVMAEBps       exporter.Float               `json:"iv_mae_bps"`
}

// metricsMap renders metrics for a manifest entry.
func metricsMap(m calibration.Metrics) map[string]interface{} {
	return map[string]interface{}{
		"iv_rmse_volpts_vega_wt": exporter.Float(m.IVRMSEVolPts),
		"iv_mae_volpts_vega_wt":  exporter.Float(m.IVMAEVolPts),
		"iv_p90_bps":             exporter.Float(m.IVP90Bps),
		"price_rmse_ticks":       exporter.Float(m.PriceRMSETicks),
	}
}

func intervals(ci calibration.ConfidenceIntervals) map[string][2]exporter.Float {
	out := make(map[string][2]exporter.Float, len(ci))
	for _, name := range heston.Names {
		if band, ok := ci[name]; ok {
			out[name] = [2]exporter.Float{exporter.Float(band.Low), exporter.Float(band.High)}
		}
	}
	return out
}
