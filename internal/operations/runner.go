package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "hestonlab/internal/errors"
)

// Runner executes the steps of a per-date run in order. The first failing
// step stops the run and the remaining steps are marked skipped.
type Runner struct {
	tracer   *StepTracer
	reporter ProgressReporter
	logger   *slog.Logger
	timeout  time.Duration
	retry    RetryConfig
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithReporter sets the progress sink.
func WithReporter(reporter ProgressReporter) RunnerOption {
	return func(r *Runner) {
		if reporter != nil {
			r.reporter = reporter
		}
	}
}

// WithStepTimeout bounds each step.
func WithStepTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = timeout }
}

// WithRetry sets the retry policy for source and storage failures.
func WithRetry(cfg RetryConfig) RunnerOption {
	return func(r *Runner) { r.retry = cfg }
}

// NewRunner creates a runner. A nil tracer records nothing.
func NewRunner(tracer *StepTracer, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer, _ = NewStepTracer(nil)
	}
	r := &Runner{
		tracer:   tracer,
		reporter: NopReporter{},
		logger:   logger,
		timeout:  DefaultStepTimeout,
		retry:    NewRetryConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.retry.MaxAttempts < 1 {
		r.retry.MaxAttempts = 1
	}
	return r
}

// Run executes steps against state.
func (r *Runner) Run(ctx context.Context, state *RunState, steps []Step) error {
	state.Start()
	r.logger.InfoContext(ctx, "run_start",
		slog.String("run_id", state.ID),
		slog.String("label", state.Label),
		slog.Int("steps", len(steps)))

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			r.skipRemaining(state, steps[i:], "run cancelled")
			state.Cancel()
			return err
		}
		if err := r.executeStep(ctx, state, step); err != nil {
			r.skipRemaining(state, steps[i+1:], fmt.Sprintf("step %s failed", step.ID()))
			state.Fail(err)
			r.logger.ErrorContext(ctx, "run_failed",
				slog.String("run_id", state.ID),
				slog.String("step", step.ID()),
				slog.Duration("duration", state.Duration()),
				slog.String("error", err.Error()))
			return err
		}
	}

	state.Complete()
	r.logger.InfoContext(ctx, "run_complete",
		slog.String("run_id", state.ID),
		slog.Duration("duration", state.Duration()))
	return nil
}

func (r *Runner) executeStep(ctx context.Context, state *RunState, step Step) error {
	stepState := state.Step(step.ID())
	if stepState == nil {
		return fmt.Errorf("step %s not registered with run %s", step.ID(), state.ID)
	}

	ctx, span := r.tracer.TraceStep(ctx, state.ID, step.ID())
	defer span.End()

	stepCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		stepState.Start()
		r.report(state, stepState, "step started")
		r.logger.DebugContext(ctx, "step_start",
			slog.String("run_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt))

		start := time.Now()
		err = step.Execute(stepCtx, state)
		duration := time.Since(start)

		if err == nil {
			stepState.Complete()
			r.tracer.RecordStepCompletion(ctx, span, step.ID(), duration, nil)
			r.report(state, stepState, "step completed")
			r.logger.InfoContext(ctx, "step_complete",
				slog.String("run_id", state.ID),
				slog.String("step", step.ID()),
				slog.Duration("duration", duration))
			return nil
		}

		r.logger.ErrorContext(ctx, "step_execution_failed",
			slog.String("run_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))

		if !retryable(err) || attempt >= r.retry.MaxAttempts {
			stepState.Fail(err)
			r.tracer.RecordStepCompletion(ctx, span, step.ID(), duration, err)
			r.report(state, stepState, fmt.Sprintf("step failed: %v", err))
			return fmt.Errorf("step %s: %w", step.ID(), err)
		}

		delay := r.retryDelay(attempt)
		r.logger.WarnContext(ctx, "step_retry",
			slog.String("run_id", state.ID),
			slog.String("step", step.ID()),
			slog.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-stepCtx.Done():
			stepState.Fail(stepCtx.Err())
			r.report(state, stepState, "step timed out")
			return fmt.Errorf("step %s: %w", step.ID(), stepCtx.Err())
		}
	}
	return err
}

// retryable reports whether a failure is worth another attempt. Data
// integrity and configuration errors never are.
func retryable(err error) bool {
	return apperrors.IsType(err, apperrors.ErrTypeSource) || apperrors.IsType(err, apperrors.ErrTypeStorage)
}

func (r *Runner) retryDelay(attempt int) time.Duration {
	delay := float64(r.retry.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= r.retry.Multiplier
	}
	if d := time.Duration(delay); d < r.retry.MaxDelay {
		return d
	}
	return r.retry.MaxDelay
}

func (r *Runner) skipRemaining(state *RunState, steps []Step, reason string) {
	for _, step := range steps {
		if s := state.Step(step.ID()); s != nil && s.GetStatus() == StepStatusPending {
			s.Skip(reason)
		}
	}
}

func (r *Runner) report(state *RunState, step *StepState, message string) {
	r.reporter.ReportProgress(ProgressUpdate{
		RunID:     state.ID,
		TradeDate: state.Label,
		EventType: EventTypeStepProgress,
		StepID:    step.ID,
		Status:    string(step.GetStatus()),
		Progress:  state.Progress(),
		Message:   message,
	})
}
