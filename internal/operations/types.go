package operations

import (
	"time"
)

// Per-date pipeline step identifiers
const (
	StepIDLoad      = "load"
	StepIDSurface   = "surface"
	StepIDCalibrate = "calibrate"
	StepIDBootstrap = "bootstrap"
	StepIDOOS       = "oos"
	StepIDBaseline  = "baseline"
	StepIDHedge     = "hedge"
	StepIDArtifacts = "artifacts"
	StepIDManifest  = "manifest"
)

// Per-date pipeline step names
const (
	StepNameLoad      = "Quote Loading"
	StepNameSurface   = "Surface Aggregation"
	StepNameCalibrate = "Heston Calibration"
	StepNameBootstrap = "Bootstrap Intervals"
	StepNameOOS       = "Next-Day OOS Pricing"
	StepNameBaseline  = "Flat-Vol Baseline"
	StepNameHedge     = "Delta-Hedge Backtest"
	StepNameArtifacts = "Artifact Export"
	StepNameManifest  = "Manifest Update"
)

// WebSocket event types - using frontend format
const (
	EventTypeBatchStatus   = "batch:status"
	EventTypeBatchProgress = "batch:progress"
	EventTypeBatchComplete = "batch:complete"
	EventTypeBatchError    = "batch:error"
	EventTypeStepProgress  = "step:progress"
)

// Manifest run keys
const (
	RunKeyHeston   = "wrds_heston"
	RunKeyPipeline = "wrds_pipeline"
	RunKeyDateset  = "wrds_dateset"
)

// Default timeouts
const (
	DefaultStepTimeout = 30 * time.Minute
	DefaultRetryDelay  = 2 * time.Second
)

// RetryConfig defines retry behavior for steps. Only source and storage
// failures are retried.
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  1,
		InitialDelay: DefaultRetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// StepResult is the JSON view of a finished step.
type StepResult struct {
	StepID   string                 `json:"step_id"`
	Name     string                 `json:"name"`
	Status   StepStatus             `json:"status"`
	Duration string                 `json:"duration"`
	Message  string                 `json:"message,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
