// Package exporter writes run artifacts.
//
// Table builders turn calibration, backtest and comparison results into
// header-plus-records tables with stable column orders. CSVWriter writes
// them under an output root, WriteJSON writes summaries with NaN rendered as
// null, WriteWorkbook saves the comparison as .xlsx and SheetsPublisher
// mirrors a table into a Google Sheets tab.
//
// Example usage:
//
//	w := exporter.NewCSVWriter(dateDir, logger)
//	if _, err := w.WriteTable("heston_fit_table.csv", exporter.FitTable(fit.Surface)); err != nil {
//		return err
//	}
package exporter
