package infrastructure

import (
	"context"

	"github.com/google/uuid"
)

// NewRunID returns a fresh identifier for a run or batch.
func NewRunID() string {
	return uuid.New().String()
}

// EnsureTraceID ensures the context has a trace ID, generating one if needed
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		return WithTraceID(ctx, uuid.New().String())
	}
	return ctx
}

// EnsureRunID tags ctx with a new run ID unless it already has one, and
// returns the ID in effect.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if runID := GetRunID(ctx); runID != "" {
		return ctx, runID
	}
	runID := NewRunID()
	return WithRunID(ctx, runID), runID
}
