// Package pricing holds the flat-volatility (Black-Scholes-Merton) yardstick
// used across the calibration pipeline: call and put prices, delta, vega and
// an implied-volatility solver.
//
// All functions take a continuous dividend yield and are total: degenerate
// inputs (non-positive time, volatility, spot or strike) return a defined
// value instead of an error. Callers filter out-of-range results.
package pricing
