package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"hestonlab/internal/infrastructure"
)

const (
	TracerName = "hestonlab.pipeline"
)

// StepTracer provides OpenTelemetry instrumentation for pipeline runs
type StepTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

// NewStepTracer creates a tracer bound to the given providers.
func NewStepTracer(providers *infrastructure.OTelProviders) (*StepTracer, error) {
	if providers == nil {
		providers = infrastructure.NoopProviders()
	}
	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	return &StepTracer{tracer: providers.Tracer, metrics: metrics}, nil
}

// TraceRun creates a span for a whole per-date run
func (st *StepTracer) TraceRun(ctx context.Context, runID, tradeDate, nextDate string) (context.Context, trace.Span) {
	return st.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.trade_date", tradeDate),
			attribute.String("run.next_trade_date", nextDate),
		),
	)
}

// RecordRunCompletion closes out the run span and counts the run.
func (st *StepTracer) RecordRunCompletion(ctx context.Context, span trace.Span, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	span.SetAttributes(
		attribute.String("run.status", status),
		attribute.Float64("run.duration_seconds", duration.Seconds()),
	)
	st.metrics.DateRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "run completed")
}

// TraceStep creates a span for an individual step
func (st *StepTracer) TraceStep(ctx context.Context, runID, stepID string) (context.Context, trace.Span) {
	return st.tracer.Start(ctx, fmt.Sprintf("pipeline.step.%s", stepID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.id", stepID),
		),
	)
}

// RecordStepCompletion records step metrics and the span outcome.
func (st *StepTracer) RecordStepCompletion(ctx context.Context, span trace.Span, stepID string, duration time.Duration, err error) {
	status := string(StepStatusCompleted)
	if err != nil {
		status = string(StepStatusFailed)
	}

	span.SetAttributes(
		attribute.String("step.status", status),
		attribute.Float64("step.duration_seconds", duration.Seconds()),
	)

	attrs := metric.WithAttributes(
		attribute.String("step", stepID),
		attribute.String("status", status),
	)
	st.metrics.StepExecutions.Add(ctx, 1, attrs)
	st.metrics.StepDuration.Record(ctx, duration.Seconds(), attrs)

	infrastructure.AddSpanEvent(ctx, "step.completed", map[string]interface{}{
		"step_id":  stepID,
		"status":   status,
		"duration": duration.Seconds(),
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "step execution failed")
		return
	}
	span.SetStatus(codes.Ok, "step completed")
}

// RecordCalibration records the fit quality of one calibration.
func (st *StepTracer) RecordCalibration(ctx context.Context, model string, rmse float64, bootstrapFailures int) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	st.metrics.CalibrationRMSE.Record(ctx, rmse, attrs)
	if bootstrapFailures > 0 {
		st.metrics.BootstrapFailures.Add(ctx, int64(bootstrapFailures))
	}
}

// RecordSourceLoad counts a quote load by provenance.
func (st *StepTracer) RecordSourceLoad(ctx context.Context, provenance string) {
	st.metrics.SourceLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("provenance", provenance)))
}
