// Package backtest scores a calibrated model against the next trading day:
// out-of-sample repricing of the next-day surface and a one-day
// delta-hedged P&L per surface node.
package backtest
