// Package operations runs the steps of a per-date pipeline and records what
// each run produced.
//
// Core Components:
//
// Runner: executes Steps in order against a RunState. Each step gets a span,
// a timeout and step metrics; the first failure stops the run and marks the
// remaining steps skipped. Source and storage failures may be retried;
// data-integrity failures never are.
//
// RunState and StepState: the runtime status of a run and of each of its
// steps, safe for concurrent readers.
//
// RunManifest: the run-provenance JSON file. UpdateRun rereads and rewrites
// the whole document under a mutex, replacing or appending entries keyed by
// an id field. DescribeInputs checksums input files.
//
// StatusBroadcaster: folds progress events into batch snapshots for the HTTP
// API and pushes each snapshot to the WebSocket hub.
//
// Usage:
//
//	steps := []operations.Step{
//		operations.NewFuncStep(operations.StepIDLoad, operations.StepNameLoad, run.load),
//		operations.NewFuncStep(operations.StepIDCalibrate, operations.StepNameCalibrate, run.calibrate),
//	}
//	state := operations.NewRunState(runID, "2024-06-14", steps)
//	err := runner.Run(ctx, state, steps)
package operations
