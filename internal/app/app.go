package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"hestonlab/internal/config"
	"hestonlab/internal/datasource"
	"hestonlab/internal/exporter"
	"hestonlab/internal/infrastructure"
	"hestonlab/internal/middleware"
	"hestonlab/internal/operations"
	"hestonlab/internal/pipeline"
	transport "hestonlab/internal/transport/http"
	ws "hestonlab/internal/websocket"
)

const AppName = "hestonlab"

const (
	batchCleanupInterval = time.Hour
	batchRetention       = 24 * time.Hour
)

// Version is overridden at link time with -ldflags "-X hestonlab/internal/app.Version=...".
var Version = ""

// BuildVersion returns Version, falling back to the module build info.
func BuildVersion() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// Options are the command-line overrides applied on top of the config file.
type Options struct {
	ConfigPath string
	// BaseDir anchors relative paths; empty means the working directory.
	BaseDir     string
	ForceSample bool
	// Serve wires the WebSocket hub and batch status tracking.
	Serve bool
}

// Application holds every wired component of one process.
type Application struct {
	Config    *config.Config
	Paths     *config.Paths
	Logger    *slog.Logger
	OTel      *infrastructure.OTelProviders
	Tracer    *operations.StepTracer
	Loader    *datasource.Chain
	Publisher exporter.Publisher
	Pipeline  *pipeline.Pipeline
	Manifest  *operations.RunManifest

	// Set only in serve mode.
	Hub    *ws.Hub
	Status *operations.StatusBroadcaster

	closers []func() error
}

// New loads configuration and wires the data sources, exporters and
// pipeline. Callers must Close the application.
func New(ctx context.Context, opts Options) (*Application, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.ForceSample {
		cfg.Source.ForceSample = true
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.InfoContext(ctx, "Application starting",
		slog.String("name", AppName),
		slog.String("version", BuildVersion()),
		slog.String("config", opts.ConfigPath))

	paths, err := config.ResolvePaths(opts.BaseDir, cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution(logger)

	a := &Application{
		Config:   cfg,
		Paths:    paths,
		Logger:   logger,
		Manifest: operations.NewRunManifest(paths.ManifestPath),
	}

	a.OTel, err = infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.OTel.Shutdown(shutdownCtx)
	})
	if a.Tracer, err = operations.NewStepTracer(a.OTel); err != nil {
		a.Close()
		return nil, err
	}

	a.Loader = a.buildChain(ctx)

	if cfg.Sheets.Enabled {
		publisher, err := exporter.NewSheetsPublisher(ctx, cfg.Sheets, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize sheets publisher: %w", err)
		}
		a.Publisher = publisher
	}

	reporter := operations.ProgressReporter(logReporter{logger: logger})
	if opts.Serve {
		a.Hub, err = ws.NewHub(logger, a.OTel.Meter)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize WebSocket hub: %w", err)
		}
		a.Hub.Start()
		a.Status = operations.NewStatusBroadcaster(a.Hub, logger)
		cleanupCtx, stopCleanup := context.WithCancel(context.Background())
		go a.cleanupBatches(cleanupCtx, batchCleanupInterval, batchRetention)
		a.closers = append(a.closers, func() error {
			stopCleanup()
			a.Status.Stop()
			a.Hub.Stop()
			return nil
		})
		reporter = operations.MultiReporter{a.Status, operations.HubReporter{Hub: a.Hub}, reporter}
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithTracer(a.Tracer),
		pipeline.WithReporter(reporter),
	}
	if a.Publisher != nil {
		pipeOpts = append(pipeOpts, pipeline.WithPublisher(a.Publisher))
	}
	a.Pipeline = pipeline.New(cfg, paths, a.Loader, pipeOpts...)
	return a, nil
}

// buildChain assembles local data, the file and redis caches, WRDS and the
// bundled sample. Unavailable remote tiers are logged and skipped.
func (a *Application) buildChain(ctx context.Context) *datasource.Chain {
	src := a.Config.Source

	var local datasource.Source
	if a.Paths.LocalRoot != "" {
		local = datasource.NewLocalSource(a.Paths.LocalRoot)
	}

	var caches []datasource.Cache
	if a.Paths.CacheDir != "" {
		caches = append(caches, datasource.NewFileCache(a.Paths.CacheDir, a.Logger))
	}
	if src.Redis.Addr != "" {
		rc := datasource.DefaultRedisConfig()
		rc.Addr = src.Redis.Addr
		rc.Password = src.Redis.Password
		rc.DB = src.Redis.DB
		if src.Redis.TTL > 0 {
			rc.TTL = src.Redis.TTL
		}
		redisCache := datasource.NewRedisCache(rc, a.Logger)
		a.closers = append(a.closers, redisCache.Close)
		caches = append(caches, redisCache)
	}

	var remote datasource.Source
	wc := datasource.WRDSConfig{
		Enabled:       src.WRDS.Enabled,
		DSN:           src.WRDS.DSN,
		Host:          src.WRDS.Host,
		Port:          src.WRDS.Port,
		Username:      src.WRDS.Username,
		Password:      src.WRDS.Password,
		QueryTimeout:  src.WRDS.QueryTimeout,
		RatePerSecond: src.WRDS.RatePerSecond,
		Burst:         src.WRDS.Burst,
	}
	if wc.HasCredentials() {
		wrds, err := datasource.NewWRDSSource(wc, a.Logger)
		if err != nil {
			a.Logger.WarnContext(ctx, "WRDS unavailable; continuing without it",
				slog.String("error", err.Error()))
		} else {
			a.closers = append(a.closers, wrds.Close)
			remote = wrds
		}
	} else if src.WRDS.Enabled {
		a.Logger.WarnContext(ctx, "WRDS enabled without credentials; skipping")
	}

	var sample datasource.Source
	if a.Paths.SampleFile != "" {
		sample = datasource.NewSampleSource(a.Paths.SampleFile)
	}

	a.Logger.InfoContext(ctx, "Data sources ready",
		slog.Bool("local", local != nil),
		slog.Int("caches", len(caches)),
		slog.Bool("wrds", remote != nil),
		slog.Bool("force_sample", src.ForceSample))
	return datasource.NewChain(local, caches, remote, sample, a.Logger).WithForceSample(src.ForceSample)
}

// Handler builds the HTTP surface over the wired components. baseCtx bounds
// batches started through the API.
func (a *Application) Handler(baseCtx context.Context) (*transport.Server, error) {
	otelMW, err := middleware.NewOTelMiddleware(a.OTel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize HTTP instrumentation: %w", err)
	}
	var limiter *middleware.RateLimiter
	if a.Config.Server.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(a.Config.Server.RateLimitRPS, a.Config.Server.RateLimitBurst, a.Logger)
	}
	srv := transport.NewServer(transport.Deps{
		Batches:     a.Pipeline,
		Manifest:    a.Manifest,
		Status:      a.Status,
		Hub:         a.Hub,
		Metrics:     a.OTel.PrometheusHTTP,
		OTel:        otelMW,
		Limiter:     limiter,
		Logger:      a.Logger,
		Version:     BuildVersion(),
		BaseContext: baseCtx,
	})
	return srv, nil
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
// and waits for running batches. An empty addr uses the configured port.
func (a *Application) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = fmt.Sprintf(":%d", a.Config.Server.Port)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return a.serve(ctx, ln)
}

func (a *Application) serve(ctx context.Context, ln net.Listener) error {
	batchCtx, cancelBatches := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBatches()

	handler, err := a.Handler(batchCtx)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.InfoContext(ctx, "HTTP server listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if err := handler.Wait(shutdownCtx); err != nil {
		a.Logger.Warn("Cancelling unfinished batches", slog.String("error", err.Error()))
		cancelBatches()
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer waitCancel()
		_ = handler.Wait(waitCtx)
	}
	return nil
}

// cleanupBatches drops finished batch snapshots older than maxAge.
func (a *Application) cleanupBatches(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Status.CleanupOldBatches(ctx, maxAge)
		}
	}
}

// Close releases every resource in reverse order of acquisition.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// logReporter writes step completions and batch milestones to the log.
type logReporter struct {
	logger *slog.Logger
}

func (l logReporter) ReportProgress(u operations.ProgressUpdate) {
	switch u.EventType {
	case operations.EventTypeStepProgress:
		if u.Status != string(operations.StepStatusCompleted) && u.Status != string(operations.StepStatusFailed) {
			return
		}
	case operations.EventTypeBatchProgress, operations.EventTypeBatchComplete, operations.EventTypeBatchError:
	default:
		return
	}
	l.logger.Info(u.Message,
		slog.String("event", u.EventType),
		slog.String("step", u.StepID),
		slog.String("status", u.Status),
		slog.String("trade_date", u.TradeDate),
		slog.Int("progress", u.Progress))
}
