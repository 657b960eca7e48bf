package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"hestonlab/internal/compare"
	"hestonlab/internal/exporter"
	"hestonlab/internal/infrastructure"
	"hestonlab/internal/operations"
	"hestonlab/internal/surface"
)

// Batch artifact names, written under the output directory.
const (
	AggPricingFile         = "wrds_agg_pricing.csv"
	AggBaselinePricingFile = "wrds_agg_pricing_bs.csv"
	AggOOSFile             = "wrds_agg_oos.csv"
	AggBaselineOOSFile     = "wrds_agg_oos_bs.csv"
	AggPnLFile             = "wrds_agg_pnl.csv"
	ComparisonFile         = "wrds_bs_heston_comparison.csv"
	ComparisonWorkbookFile = "wrds_bs_heston_comparison.xlsx"
)

// BatchOptions tunes a dateset batch.
type BatchOptions struct {
	// BatchID defaults to a fresh UUID.
	BatchID string
	Symbol  string
	Fast    bool
	// Workers defaults to the configured dateset worker count.
	Workers int
}

// DateOutcome is the result of one dateset entry.
type DateOutcome struct {
	Entry  Entry
	Result *DateResult
	Err    error
}

// BatchResult collects every date of a batch and the batch artifacts.
type BatchResult struct {
	BatchID    string
	Dateset    string
	Outcomes   []DateOutcome
	Comparison []compare.Row
	Artifacts  map[string]string
}

// Failed returns the number of dates whose run failed.
func (b *BatchResult) Failed() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// RunDateset loads a dateset file and runs it as a batch.
func (p *Pipeline) RunDateset(ctx context.Context, path string, opts BatchOptions) (*BatchResult, error) {
	ds, err := LoadDateset(path)
	if err != nil {
		return nil, err
	}
	return p.RunBatch(ctx, ds, path, opts)
}

// RunBatch runs every entry of ds and writes the aggregate tables, the
// comparison table and workbook, and a manifest entry keyed by name.
//
// A failing date is recorded as an error row and does not stop the batch.
// Results are ordered as in the dateset regardless of worker count.
func (p *Pipeline) RunBatch(ctx context.Context, ds *Dateset, name string, opts BatchOptions) (*BatchResult, error) {
	if opts.BatchID == "" {
		opts.BatchID = infrastructure.NewRunID()
	}
	if opts.Symbol == "" {
		opts.Symbol = p.cfg.Source.Symbol
	}
	workers := opts.Workers
	if workers < 1 {
		workers = p.cfg.Calibration.DatesetWorkers
	}
	if workers < 1 {
		workers = 1
	}

	reporter := operations.BatchReporter{BatchID: opts.BatchID, Next: p.reporter}
	dates := make([]string, len(ds.Dates))
	for i, e := range ds.Dates {
		dates[i] = e.TradeDate
	}
	reporter.ReportProgress(operations.ProgressUpdate{
		EventType: operations.EventTypeBatchStatus,
		Status:    string(operations.RunStatusRunning),
		Message:   fmt.Sprintf("running %d dates", len(dates)),
		Metadata:  map[string]interface{}{"dates": dates, "dateset": name},
	})
	p.logger.InfoContext(ctx, "Starting dateset batch",
		slog.String("batch_id", opts.BatchID),
		slog.String("dateset", name),
		slog.Int("dates", len(dates)),
		slog.Int("workers", workers))

	tracker := operations.NewProgressTracker(len(ds.Dates))
	outcomes := make([]DateOutcome, len(ds.Dates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, entry := range ds.Dates {
		g.Go(func() error {
			outcomes[i] = p.runEntry(gctx, entry, opts)
			tracker.Record(entry.TradeDate, outcomes[i].Err)
			reporter.ReportProgress(tracker.Update(opts.BatchID, entry.TradeDate))
			if outcomes[i].Err != nil {
				p.logger.WarnContext(gctx, "Dateset entry failed",
					slog.String("batch_id", opts.BatchID),
					slog.String("trade_date", entry.TradeDate),
					slog.String("error", outcomes[i].Err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		reporter.ReportProgress(operations.ProgressUpdate{
			EventType: operations.EventTypeBatchError,
			Status:    string(operations.RunStatusCancelled),
			Message:   err.Error(),
		})
		return nil, err
	}

	result := &BatchResult{
		BatchID:   opts.BatchID,
		Dateset:   name,
		Outcomes:  outcomes,
		Artifacts: map[string]string{},
	}
	if err := p.writeBatch(ctx, result, opts); err != nil {
		reporter.ReportProgress(operations.ProgressUpdate{
			EventType: operations.EventTypeBatchError,
			Status:    string(operations.RunStatusFailed),
			Message:   err.Error(),
		})
		return result, err
	}

	_, ok, failed := tracker.Counts()
	reporter.ReportProgress(operations.ProgressUpdate{
		EventType: operations.EventTypeBatchComplete,
		Status:    string(operations.RunStatusCompleted),
		Progress:  100,
		Message:   fmt.Sprintf("%d succeeded, %d failed", ok, failed),
		Metadata:  map[string]interface{}{"artifacts": len(result.Artifacts)},
	})
	p.logger.InfoContext(ctx, "Dateset batch completed",
		slog.String("batch_id", opts.BatchID),
		slog.Int("succeeded", ok),
		slog.Int("failed", failed))
	return result, nil
}

func (p *Pipeline) runEntry(ctx context.Context, entry Entry, opts BatchOptions) DateOutcome {
	trade, next, err := entry.Dates()
	if err != nil {
		return DateOutcome{Entry: entry, Err: err}
	}
	if entry.NextTradeDate == "" {
		entry.NextTradeDate = surface.FormatDate(next)
	}
	res, err := p.Run(ctx, RunRequest{
		Symbol:        opts.Symbol,
		TradeDate:     trade,
		NextTradeDate: next,
		Label:         entry.Label,
		Regime:        entry.Regime,
		Comment:       entry.Comment,
		Fast:          opts.Fast,
		OutputDir:     p.paths.DateDir(trade),
		BatchID:       opts.BatchID,
	})
	return DateOutcome{Entry: entry, Result: res, Err: err}
}

func (p *Pipeline) writeBatch(ctx context.Context, b *BatchResult, opts BatchOptions) error {
	var (
		pricing, baselinePricing []exporter.PricingRow
		oosParts, bsOOSParts     []exporter.Table
		pnlParts                 []exporter.Table
		artifacts                []compare.DateArtifacts
	)
	for _, o := range b.Outcomes {
		e := o.Entry
		row := exporter.PricingRow{
			TradeDate:     e.TradeDate,
			NextTradeDate: e.NextTradeDate,
			Label:         e.Label,
			Regime:        e.Regime,
			Comment:       e.Comment,
		}
		if o.Err != nil {
			pricing = append(pricing, exporter.ErrorPricingRow(row, o.Err))
			continue
		}

		res := o.Result
		row.Status = "ok"
		row.SourceToday = string(res.SourceToday)
		row.SourceNext = string(res.SourceNext)
		row.Metrics = res.Fit.Metrics
		row.IVMAEBps = res.OOS.IVMAEBps
		row.PriceMAETicks = res.PriceMAETicks()
		pricing = append(pricing, row)

		bs := row
		bs.Metrics = res.Baseline.Metrics
		bs.IVMAEBps = res.BaselineOOSSummary.IVMAEBps
		bs.PriceMAETicks = res.BaselineOOSSummary.PriceMAETicks
		baselinePricing = append(baselinePricing, bs)

		tag := exporter.Tag{TradeDate: e.TradeDate, Label: e.Label, Regime: e.Regime}
		oosParts = append(oosParts, exporter.OOSSummaryTable(res.OOS.Summary).Tagged(tag))
		bsOOSParts = append(bsOOSParts, exporter.BaselineOOSAggTable(res.BaselineOOS).Tagged(tag))
		pnlParts = append(pnlParts, exporter.HedgeSummaryTable(res.HedgeSummary).Tagged(tag))

		artifacts = append(artifacts, compare.DateArtifacts{
			TradeDate:        res.Request.TradeDate,
			HestonInsample:   res.Fit.Surface,
			BaselineInsample: res.Baseline.Surface,
			HestonOOS:        res.OOS.Detail,
			BaselineOOS:      res.BaselineOOS,
			Hedge:            res.HedgeSummary,
		})
	}
	b.Comparison = compare.Build(artifacts)

	pricingTable := exporter.PricingTable(pricing)
	baselineTable := exporter.BaselinePricingTable(baselinePricing)
	comparison := exporter.ComparisonTable(b.Comparison)
	tables := []struct {
		key   string
		file  string
		table exporter.Table
	}{
		{"pricing_csv", AggPricingFile, pricingTable},
		{"pricing_bs_csv", AggBaselinePricingFile, baselineTable},
		{"oos_csv", AggOOSFile, exporter.Concat(exporter.TaggedHeaders(exporter.OOSSummaryHeaders), oosParts...)},
		{"oos_bs_csv", AggBaselineOOSFile, exporter.Concat(exporter.TaggedHeaders(exporter.BaselineOOSAggHeaders), bsOOSParts...)},
		{"pnl_csv", AggPnLFile, exporter.Concat(exporter.TaggedHeaders(exporter.HedgeSummaryHeaders), pnlParts...)},
		{"comparison_csv", ComparisonFile, comparison},
	}
	writer := exporter.NewCSVWriter(p.paths.OutputDir, p.logger)
	for _, t := range tables {
		path, err := writer.WriteTable(t.file, t.table)
		if err != nil {
			return err
		}
		b.Artifacts[t.key] = path
	}

	workbook := p.paths.OutputPath(ComparisonWorkbookFile)
	if err := exporter.WriteWorkbook(workbook, []exporter.Sheet{
		{Name: "comparison", Table: comparison},
		{Name: "pricing", Table: pricingTable},
		{Name: "pricing_bs", Table: baselineTable},
	}); err != nil {
		return err
	}
	b.Artifacts["comparison_xlsx"] = workbook

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, comparison); err != nil {
			p.logger.WarnContext(ctx, "Failed to publish comparison table",
				slog.String("batch_id", b.BatchID),
				slog.String("error", err.Error()))
		}
	}

	entry := map[string]interface{}{
		"batch_id":  b.BatchID,
		"symbol":    opts.Symbol,
		"dateset":   b.Dateset,
		"dates":     len(b.Outcomes),
		"failed":    b.Failed(),
		"timestamp": p.now().UTC().Format(time.RFC3339Nano),
	}
	for key, path := range b.Artifacts {
		entry[key] = p.paths.Relative(path)
	}
	_, err := p.manifest.UpdateRun(operations.RunKeyDateset, entry, true, "dateset")
	return err
}
