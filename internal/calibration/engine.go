package calibration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hestonlab/internal/asof"
	apperrors "hestonlab/internal/errors"
	"hestonlab/internal/surface"
)

// Result is a calibrated parameter set with its in-sample diagnostics.
type Result struct {
	Params      Params       `json:"params"`
	Surface     []ModeledRow `json:"-"`
	Metrics     Metrics      `json:"metrics"`
	Converged   bool         `json:"success"`
	Evaluations int          `json:"nit"`
	Cost        float64      `json:"cost"`
}

// Calibrate fits Heston parameters to a single-date surface.
//
// The surface must pass the as-of check for its own trade date; a violation
// is returned unchanged so callers can classify it as a data-integrity
// failure. Rows with non-positive vega are fitted with unit vega weight.
func Calibrate(ctx context.Context, rows []surface.Row, cfg Config) (*Result, error) {
	start := time.Now()
	logger := slog.Default()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := asof.Check(rows, nil, asof.ContextCalibration); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.NewMissingDataError("no surface rows to calibrate", nil)
	}

	tr, err := NewTransform(cfg.Transform)
	if err != nil {
		return nil, apperrors.NewConfigError("calibration transform", err)
	}

	fitRows := make([]surface.Row, len(rows))
	copy(fitRows, rows)
	for i := range fitRows {
		if !(fitRows[i].Vega > 0) {
			fitRows[i].Vega = 1
		}
	}

	logger.DebugContext(ctx, "starting heston calibration",
		slog.Int("rows", len(fitRows)),
		slog.Int("max_evals", cfg.MaxEvals),
		slog.String("objective", string(cfg.Objective)),
		slog.String("transform", tr.Name()))

	obj := newObjective(fitRows, cfg, tr)
	sol, err := levenbergMarquardt(ctx, obj.residuals, obj.size(), tr.ToInternal(InitialGuess), defaultSolverSettings(cfg.MaxEvals))
	if err != nil {
		return nil, fmt.Errorf("calibration interrupted: %w", err)
	}

	params, _ := tr.FromInternal(sol.X)
	modeled := ApplyModel(fitRows, params)
	result := &Result{
		Params:      params,
		Surface:     modeled,
		Metrics:     InsampleMetrics(modeled),
		Converged:   sol.Converged,
		Evaluations: sol.Evaluations,
		Cost:        sol.Cost,
	}

	logger.DebugContext(ctx, "heston calibration completed",
		slog.Duration("duration", time.Since(start)),
		slog.Bool("converged", result.Converged),
		slog.Int("evaluations", result.Evaluations),
		slog.Float64("iv_rmse_volpts", result.Metrics.IVRMSEVolPts))
	return result, nil
}
