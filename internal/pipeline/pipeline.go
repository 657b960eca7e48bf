package pipeline

import (
	"context"
	"log/slog"
	"time"

	"hestonlab/internal/backtest"
	"hestonlab/internal/baseline"
	"hestonlab/internal/calibration"
	"hestonlab/internal/config"
	"hestonlab/internal/datasource"
	"hestonlab/internal/exporter"
	"hestonlab/internal/operations"
	"hestonlab/internal/surface"
)

// Per-run calibration budgets.
const (
	FastMaxEvals         = 120
	FullMaxEvals         = 220
	FastBootstrapSamples = 60
	FullBootstrapSamples = 150
	RunSeed              = 19
)

// QuoteLoader resolves raw quotes and reports which tier produced them.
// *datasource.Chain implements it.
type QuoteLoader interface {
	Load(ctx context.Context, symbol string, tradeDate time.Time) ([]surface.Quote, datasource.Provenance, error)
}

// Pipeline runs per-date calibrations and dateset batches and writes their
// artifacts.
type Pipeline struct {
	cfg       *config.Config
	paths     *config.Paths
	loader    QuoteLoader
	manifest  *operations.RunManifest
	tracer    *operations.StepTracer
	reporter  operations.ProgressReporter
	publisher exporter.Publisher
	logger    *slog.Logger

	stepTimeout time.Duration
	retry       operations.RetryConfig
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTracer sets the span and metric recorder.
func WithTracer(tracer *operations.StepTracer) Option {
	return func(p *Pipeline) { p.tracer = tracer }
}

// WithReporter sets the progress sink for step and batch events.
func WithReporter(reporter operations.ProgressReporter) Option {
	return func(p *Pipeline) {
		if reporter != nil {
			p.reporter = reporter
		}
	}
}

// WithPublisher mirrors the comparison table after each batch.
func WithPublisher(publisher exporter.Publisher) Option {
	return func(p *Pipeline) { p.publisher = publisher }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetry sets the step retry policy.
func WithRetry(retry operations.RetryConfig) Option {
	return func(p *Pipeline) { p.retry = retry }
}

// WithStepTimeout bounds each step of a run.
func WithStepTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) { p.stepTimeout = timeout }
}

// New creates a pipeline writing under paths and recording runs in the
// manifest at paths.ManifestPath.
func New(cfg *config.Config, paths *config.Paths, loader QuoteLoader, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:         cfg,
		paths:       paths,
		loader:      loader,
		manifest:    operations.NewRunManifest(paths.ManifestPath),
		reporter:    operations.NopReporter{},
		logger:      slog.Default(),
		stepTimeout: operations.DefaultStepTimeout,
		retry:       operations.NewRetryConfig(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer, _ = operations.NewStepTracer(nil)
	}
	return p
}

// Manifest returns the run-provenance manifest.
func (p *Pipeline) Manifest() *operations.RunManifest {
	return p.manifest
}

// CalibrationConfig derives the per-run calibration settings.
func (p *Pipeline) CalibrationConfig(fast bool) calibration.Config {
	c := calibration.DefaultConfig()
	c.Fast = fast
	c.MaxEvals = FullMaxEvals
	c.BootstrapSamples = FullBootstrapSamples
	if fast {
		c.MaxEvals = FastMaxEvals
		c.BootstrapSamples = FastBootstrapSamples
	}
	c.Seed = RunSeed

	cc := p.cfg.Calibration
	c.Objective = calibration.Objective(cc.Objective)
	c.Transform = cc.Transform
	c.FellerPenalty = cc.FellerPenalty
	c.RhoPenalty = cc.RhoPenalty
	c.Workers = cc.Workers
	return c
}

func (p *Pipeline) newRunner(batchID string) *operations.Runner {
	var reporter operations.ProgressReporter = p.reporter
	if batchID != "" {
		reporter = operations.BatchReporter{BatchID: batchID, Next: p.reporter}
	}
	return operations.NewRunner(p.tracer, p.logger,
		operations.WithReporter(reporter),
		operations.WithStepTimeout(p.stepTimeout),
		operations.WithRetry(p.retry))
}

// RunRequest selects one trade date to calibrate and test.
type RunRequest struct {
	Symbol        string
	TradeDate     time.Time
	NextTradeDate time.Time
	Label         string
	Regime        string
	Comment       string
	Fast          bool
	// OutputDir defaults to the configured output directory.
	OutputDir string
	BatchID   string
}

// DateResult is everything one run produced.
type DateResult struct {
	Request     RunRequest
	RunID       string
	SourceToday datasource.Provenance
	SourceNext  datasource.Provenance

	Today []surface.Row
	Next  []surface.Row

	Fit       *calibration.Result
	Bootstrap *calibration.BootstrapResult
	OOS       *backtest.OOSResult

	Baseline           *baseline.Result
	BaselineOOS        []calibration.ModeledRow
	BaselineOOSSummary baseline.OOSSummary

	HedgeDetail  []backtest.HedgeRow
	HedgeSummary []backtest.HedgeBucket

	Summary   *FitSummary
	Artifacts map[string]string
	Steps     []operations.StepResult
}

// PriceMAETicks is the quote-weighted mean of the per-tenor OOS price MAE.
// It is NaN without OOS buckets, including an empty next-day surface, where
// the OOS iv_mae_bps is 0.
func (r *DateResult) PriceMAETicks() float64 {
	if r.OOS == nil {
		return nan()
	}
	return backtest.QuoteWeightedPriceMAE(r.OOS.Summary)
}
