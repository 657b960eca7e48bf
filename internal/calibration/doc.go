// Package calibration fits the five-parameter Heston model to an aggregated
// implied-volatility surface and quantifies the fit.
//
// Calibrate minimises vega- and liquidity-weighted implied-vol residuals
// (or tick-scaled price residuals) with a Levenberg-Marquardt solver working
// in an unconstrained internal space chosen by the Transform strategy. Two
// extra residuals penalise an extreme Feller ratio and near-unit
// correlation. Nodes the model cannot price are charged a fixed sentinel
// instead of producing an error, so the solver steers away from degenerate
// regions on its own.
//
// Bootstrap resamples surface rows with replacement and reports 5%/95%
// bands per parameter. Every random draw is taken up front from a single
// seeded source, which makes the bands independent of the worker count.
//
// ApplyModel, InsampleMetrics and OOSIVMetrics are shared with the baseline
// and backtest packages so every model is scored the same way.
package calibration
