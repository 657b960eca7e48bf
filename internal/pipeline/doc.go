// Package pipeline calibrates Heston to one trade date, tests the fit on the
// next trade date and runs datesets of such dates as batches.
//
// Run executes the per-date steps through operations.Runner: load quotes,
// aggregate surfaces, calibrate, bootstrap, evaluate out of sample, fit the
// flat-vol baseline, simulate the delta hedge, write artifacts and record
// the run in the manifest. RunDateset fans dates out over a bounded worker
// group, keeps results in dateset order and writes the batch tables, the
// comparison table and its workbook.
package pipeline
