package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"hestonlab/internal/backtest"
	"hestonlab/internal/baseline"
	"hestonlab/internal/calibration"
	apperrors "hestonlab/internal/errors"
	"hestonlab/internal/exporter"
	"hestonlab/internal/infrastructure"
	"hestonlab/internal/operations"
	"hestonlab/internal/surface"
)

// Per-date artifact names.
const (
	FitTableFile     = "heston_fit_table.csv"
	FitSummaryFile   = "heston_fit.json"
	OOSDetailFile    = "oos_pricing_detail.csv"
	OOSSummaryFile   = "oos_pricing_summary.csv"
	HedgeDetailFile  = "delta_hedge_pnl.csv"
	HedgeSummaryFile = "delta_hedge_pnl_summary.csv"
	BaselineFitFile  = "bs_fit_table.csv"
	BaselineOOSFile  = "bs_oos_summary.csv"
)

// dateRun carries the intermediate results of one Run between its steps.
type dateRun struct {
	p      *Pipeline
	req    RunRequest
	dir    string
	cal    calibration.Config
	res    *DateResult
	writer *exporter.CSVWriter

	rawToday []surface.Quote
	rawNext  []surface.Quote
}

// Run calibrates one trade date, tests the fit on the next trade date and
// writes the per-date artifacts and manifest entries.
//
// The returned result is populated up to the step that failed.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*DateResult, error) {
	if req.Symbol == "" {
		req.Symbol = p.cfg.Source.Symbol
	}
	if req.TradeDate.IsZero() {
		return nil, apperrors.NewAppValidationError("trade date is required")
	}
	if req.NextTradeDate.IsZero() {
		req.NextTradeDate = NextBusinessDay(req.TradeDate)
	}
	dir := req.OutputDir
	if dir == "" {
		dir = p.paths.OutputDir
	}

	runID := infrastructure.NewRunID()
	ctx = infrastructure.WithRunID(ctx, runID)
	run := &dateRun{
		p:      p,
		req:    req,
		dir:    dir,
		cal:    p.CalibrationConfig(req.Fast),
		res:    &DateResult{Request: req, RunID: runID, Artifacts: map[string]string{}},
		writer: exporter.NewCSVWriter(dir, p.logger),
	}

	steps := []operations.Step{
		operations.NewFuncStep(operations.StepIDLoad, operations.StepNameLoad, run.load),
		operations.NewFuncStep(operations.StepIDSurface, operations.StepNameSurface, run.aggregate),
		operations.NewFuncStep(operations.StepIDCalibrate, operations.StepNameCalibrate, run.calibrate),
		operations.NewFuncStep(operations.StepIDBootstrap, operations.StepNameBootstrap, run.bootstrap),
		operations.NewFuncStep(operations.StepIDOOS, operations.StepNameOOS, run.outOfSample),
		operations.NewFuncStep(operations.StepIDBaseline, operations.StepNameBaseline, run.fitBaseline),
		operations.NewFuncStep(operations.StepIDHedge, operations.StepNameHedge, run.hedge),
		operations.NewFuncStep(operations.StepIDArtifacts, operations.StepNameArtifacts, run.writeArtifacts),
		operations.NewFuncStep(operations.StepIDManifest, operations.StepNameManifest, run.recordManifest),
	}
	tradeDay := surface.FormatDate(req.TradeDate)
	state := operations.NewRunState(runID, tradeDay, steps)

	p.logger.InfoContext(ctx, "Starting date run",
		slog.String("symbol", req.Symbol),
		slog.String("trade_date", tradeDay),
		slog.String("next_trade_date", surface.FormatDate(req.NextTradeDate)),
		slog.Bool("fast", req.Fast))

	start := time.Now()
	ctx, span := p.tracer.TraceRun(ctx, runID, tradeDay, surface.FormatDate(req.NextTradeDate))
	err := p.newRunner(req.BatchID).Run(ctx, state, steps)
	p.tracer.RecordRunCompletion(ctx, span, time.Since(start), err)
	span.End()
	run.res.Steps = state.Results()

	if err != nil {
		p.logger.ErrorContext(ctx, "Date run failed",
			slog.String("trade_date", tradeDay),
			slog.String("error", err.Error()))
		return run.res, err
	}
	p.logger.InfoContext(ctx, "Date run completed",
		slog.String("trade_date", tradeDay),
		slog.Duration("duration", time.Since(start)))
	return run.res, nil
}

func (r *dateRun) load(ctx context.Context, state *operations.RunState) error {
	today, src, err := r.p.loader.Load(ctx, r.req.Symbol, r.req.TradeDate)
	if err != nil {
		return fmt.Errorf("load %s: %w", surface.FormatDate(r.req.TradeDate), err)
	}
	r.p.tracer.RecordSourceLoad(ctx, string(src))
	r.rawToday, r.res.SourceToday = today, src

	next, srcNext, err := r.p.loader.Load(ctx, r.req.Symbol, r.req.NextTradeDate)
	if err != nil {
		return fmt.Errorf("load %s: %w", surface.FormatDate(r.req.NextTradeDate), err)
	}
	r.p.tracer.RecordSourceLoad(ctx, string(srcNext))
	r.rawNext, r.res.SourceNext = next, srcNext

	step := state.Step(operations.StepIDLoad)
	step.SetMetadata("quotes_today", len(today))
	step.SetMetadata("quotes_next", len(next))
	step.SetMetadata("source_today", string(src))
	step.SetMetadata("source_next", string(srcNext))
	return nil
}

func (r *dateRun) aggregate(ctx context.Context, state *operations.RunState) error {
	opts := surface.DefaultAggregateOptions()
	opts.Symbol = r.req.Symbol

	today, err := surface.Aggregate(r.rawToday, opts)
	if err != nil {
		return apperrors.NewMissingDataError("no usable quotes on trade date", err).
			WithContext("trade_date", surface.FormatDate(r.req.TradeDate))
	}
	next, err := surface.Aggregate(r.rawNext, opts)
	if err != nil {
		r.p.logger.WarnContext(ctx, "Next-day surface unavailable; continuing without OOS data",
			slog.String("next_trade_date", surface.FormatDate(r.req.NextTradeDate)),
			slog.String("error", err.Error()))
		next = nil
	}
	r.res.Today, r.res.Next = today, next

	todayPath := r.p.paths.SurfacePath(r.dir, r.req.Symbol, r.req.TradeDate)
	nextPath := r.p.paths.SurfacePath(r.dir, r.req.Symbol, r.req.NextTradeDate)
	if err := surface.WriteCSV(todayPath, today); err != nil {
		return apperrors.NewStorageError("failed to write surface", err).WithContext("path", todayPath)
	}
	if err := surface.WriteCSV(nextPath, next); err != nil {
		return apperrors.NewStorageError("failed to write surface", err).WithContext("path", nextPath)
	}
	r.res.Artifacts["surface_today"] = todayPath
	r.res.Artifacts["surface_next"] = nextPath

	step := state.Step(operations.StepIDSurface)
	step.SetMetadata("nodes_today", len(today))
	step.SetMetadata("nodes_next", len(next))
	return nil
}

func (r *dateRun) calibrate(ctx context.Context, state *operations.RunState) error {
	fit, err := calibration.Calibrate(ctx, r.res.Today, r.cal)
	if err != nil {
		return err
	}
	r.res.Fit = fit

	step := state.Step(operations.StepIDCalibrate)
	step.SetMetadata("converged", fit.Converged)
	step.SetMetadata("evaluations", fit.Evaluations)
	step.SetMetadata("iv_rmse_volpts", operations.JSONFloat(fit.Metrics.IVRMSEVolPts))
	return nil
}

func (r *dateRun) bootstrap(ctx context.Context, state *operations.RunState) error {
	state.Step(operations.StepIDBootstrap).UpdateProgress(0, fmt.Sprintf("%d resamples", r.cal.Iterations()))
	ci, err := calibration.Bootstrap(ctx, r.res.Today, r.res.Fit.Params, r.cal, nil)
	if err != nil {
		return err
	}
	r.res.Bootstrap = ci
	r.p.tracer.RecordCalibration(ctx, "heston", r.res.Fit.Metrics.IVRMSEVolPts, ci.Iterations-ci.Succeeded)

	step := state.Step(operations.StepIDBootstrap)
	step.SetMetadata("iterations", ci.Iterations)
	step.SetMetadata("succeeded", ci.Succeeded)
	return nil
}

func (r *dateRun) outOfSample(ctx context.Context, state *operations.RunState) error {
	expected := r.req.NextTradeDate
	oos, err := backtest.EvaluateOOS(r.res.Next, r.res.Fit.Params, &expected)
	if err != nil {
		return err
	}
	r.res.OOS = oos
	state.Step(operations.StepIDOOS).SetMetadata("nodes", len(oos.Detail))
	return nil
}

func (r *dateRun) fitBaseline(ctx context.Context, state *operations.RunState) error {
	fit := baseline.Fit(r.res.Today)
	r.res.Baseline = fit
	r.res.BaselineOOS = baseline.EvaluateOOS(r.res.Next, fit.Vols)
	r.res.BaselineOOSSummary = baseline.SummarizeOOS(r.res.BaselineOOS)
	r.p.tracer.RecordCalibration(ctx, "baseline", fit.Metrics.IVRMSEVolPts, 0)

	state.Step(operations.StepIDBaseline).SetMetadata("tenors", len(fit.Vols))
	return nil
}

func (r *dateRun) hedge(ctx context.Context, state *operations.RunState) error {
	r.res.HedgeDetail, r.res.HedgeSummary = backtest.SimulateHedge(r.res.Today, r.res.Next)
	state.Step(operations.StepIDHedge).SetMetadata("nodes", len(r.res.HedgeDetail))
	return nil
}

func (r *dateRun) writeArtifacts(ctx context.Context, state *operations.RunState) error {
	res := r.res
	tables := []struct {
		key   string
		file  string
		table exporter.Table
	}{
		{"fit_table", FitTableFile, exporter.FitTable(res.Fit.Surface)},
		{"oos_detail", OOSDetailFile, exporter.OOSDetailTable(res.OOS.Detail)},
		{"oos_summary", OOSSummaryFile, exporter.OOSSummaryTable(res.OOS.Summary)},
		{"pnl_detail", HedgeDetailFile, exporter.HedgeDetailTable(res.HedgeDetail)},
		{"pnl_summary", HedgeSummaryFile, exporter.HedgeSummaryTable(res.HedgeSummary)},
		{"bs_fit_csv", BaselineFitFile, exporter.BaselineFitTable(res.Baseline.Surface)},
		{"bs_oos_csv", BaselineOOSFile, exporter.BaselineOOSTable(res.BaselineOOS)},
	}
	for _, t := range tables {
		path, err := r.writer.WriteTable(t.file, t.table)
		if err != nil {
			return err
		}
		res.Artifacts[t.key] = path
	}

	res.Summary = r.summary()
	fitJSON := filepath.Join(r.dir, FitSummaryFile)
	if err := exporter.WriteJSON(fitJSON, res.Summary); err != nil {
		return err
	}
	res.Artifacts["fit_json"] = fitJSON

	state.Step(operations.StepIDArtifacts).SetMetadata("files", len(res.Artifacts))
	return nil
}

func (r *dateRun) summary() *FitSummary {
	res := r.res
	m := res.Fit.Metrics
	return &FitSummary{
		TradeDate:      surface.FormatDate(r.req.TradeDate),
		NextTradeDate:  surface.FormatDate(r.req.NextTradeDate),
		Label:          r.req.Label,
		Regime:         r.req.Regime,
		Params:         res.Fit.Params,
		IVRMSEVolPts:   exporter.Float(m.IVRMSEVolPts),
		IVMAEVolPts:    exporter.Float(m.IVMAEVolPts),
		IVP90Bps:       exporter.Float(m.IVP90Bps),
		PriceRMSETicks: exporter.Float(m.PriceRMSETicks),
		BootstrapCI:    intervals(res.Bootstrap.Intervals),
		SourceToday:    string(res.SourceToday),
		SourceNext:     string(res.SourceNext),
		Converged:      res.Fit.Converged,
		Evaluations:    res.Fit.Evaluations,
		IVMAEBps:       exporter.Float(res.OOS.IVMAEBps),
	}
}

func (r *dateRun) recordManifest(ctx context.Context, state *operations.RunState) error {
	res := r.res
	rel := r.p.paths.Relative
	tradeDay := surface.FormatDate(r.req.TradeDate)
	nextDay := surface.FormatDate(r.req.NextTradeDate)

	_, err := r.p.manifest.UpdateRun(operations.RunKeyHeston, map[string]interface{}{
		"trade_date":      tradeDay,
		"next_trade_date": nextDay,
		"summary":         rel(res.Artifacts["fit_json"]),
		"surface_csv":     rel(res.Artifacts["fit_table"]),
		"params":          res.Fit.Params,
		"metrics":         metricsMap(res.Fit.Metrics),
		"iv_mae_bps":      exporter.Float(res.OOS.IVMAEBps),
		"inputs":          operations.DescribeInputs([]string{res.Artifacts["surface_today"], res.Artifacts["surface_next"]}),
	}, true, "trade_date")
	if err != nil {
		return err
	}

	entry := map[string]interface{}{
		"run_id":          res.RunID,
		"symbol":          r.req.Symbol,
		"trade_date":      tradeDay,
		"next_trade_date": nextDay,
		"label":           r.req.Label,
		"regime":          r.req.Regime,
		"source_today":    string(res.SourceToday),
		"source_next":     string(res.SourceNext),
		"timestamp":       r.p.now().UTC().Format(time.RFC3339Nano),
	}
	for key, path := range res.Artifacts {
		entry[key] = rel(path)
	}
	if _, err := r.p.manifest.UpdateRun(operations.RunKeyPipeline, entry, true, "trade_date"); err != nil {
		return err
	}

	infrastructure.AddSpanEvent(ctx, "manifest_updated", map[string]interface{}{
		"trade_date": tradeDay,
		"artifacts":  len(res.Artifacts),
	})
	return nil
}
