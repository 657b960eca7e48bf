package exporter

import (
	"math"

	"hestonlab/internal/backtest"
	"hestonlab/internal/calibration"
	"hestonlab/internal/compare"
)

// Table is a header row plus string records, ready for CSV or a sheet.
type Table struct {
	Headers []string
	Records [][]string
}

// Len returns the number of data records.
func (t Table) Len() int { return len(t.Records) }

// Tag identifies which dateset entry a batch row came from.
type Tag struct {
	TradeDate string
	Label     string
	Regime    string
}

var tagHeaders = []string{"trade_date", "label", "regime"}

// Tagged prefixes every record with the tag columns.
func (t Table) Tagged(tag Tag) Table {
	out := Table{
		Headers: append(append([]string{}, tagHeaders...), t.Headers...),
		Records: make([][]string, 0, len(t.Records)),
	}
	for _, rec := range t.Records {
		row := append([]string{tag.TradeDate, tag.Label, tag.Regime}, rec...)
		out.Records = append(out.Records, row)
	}
	return out
}

// Concat stacks tables that share headers. headers is used when every part
// is empty.
func Concat(headers []string, parts ...Table) Table {
	out := Table{Headers: headers}
	for _, p := range parts {
		out.Records = append(out.Records, p.Records...)
	}
	return out
}

// FitTableHeaders is the heston_fit_table.csv schema.
var FitTableHeaders = []string{
	"symbol", "trade_date", "tenor_bucket", "moneyness", "ttm_years", "vega",
	"mid_price", "model_price", "mid_iv", "model_iv", "iv_error_bps",
	"price_error_ticks", "quotes", "weight",
}

// FitTable renders the in-sample fitted surface.
func FitTable(rows []calibration.ModeledRow) Table {
	t := Table{Headers: FitTableHeaders}
	for _, r := range rows {
		t.Records = append(t.Records, []string{
			r.Symbol,
			formatDate(r.TradeDate),
			string(r.TenorBucket),
			formatFloat(r.Moneyness),
			formatFloat(r.TTMYears),
			formatFloat(r.Vega),
			formatFloat(r.MidPrice),
			formatFloat(r.ModelPrice),
			formatFloat(r.MidIV),
			formatFloat(r.ModelIV),
			formatFloat(r.IVErrorBps),
			formatFloat(r.PriceErrorTicks),
			formatInt(r.Quotes),
			formatFloat(r.Weight),
		})
	}
	return t
}

// OOSDetailHeaders is the oos_pricing_detail.csv schema.
var OOSDetailHeaders = []string{
	"symbol", "trade_date", "tenor_bucket", "moneyness", "vega", "mid_iv",
	"model_iv", "iv_error_bps", "mid_price", "model_price",
	"price_error_ticks", "quotes", "weight",
}

// OOSDetailTable renders the next-day surface repriced under the fit.
func OOSDetailTable(rows []calibration.ModeledRow) Table {
	t := Table{Headers: OOSDetailHeaders}
	for _, r := range rows {
		t.Records = append(t.Records, []string{
			r.Symbol,
			formatDate(r.TradeDate),
			string(r.TenorBucket),
			formatFloat(r.Moneyness),
			formatFloat(r.Vega),
			formatFloat(r.MidIV),
			formatFloat(r.ModelIV),
			formatFloat(r.IVErrorBps),
			formatFloat(r.MidPrice),
			formatFloat(r.ModelPrice),
			formatFloat(r.PriceErrorTicks),
			formatInt(r.Quotes),
			formatFloat(r.Weight),
		})
	}
	return t
}

// OOSSummaryHeaders is the oos_pricing_summary.csv schema.
var OOSSummaryHeaders = []string{"tenor_bucket", "iv_mae_bps", "price_mae_ticks", "quotes", "weight"}

// OOSSummaryTable renders the per-tenor next-day errors.
func OOSSummaryTable(buckets []backtest.OOSBucket) Table {
	t := Table{Headers: OOSSummaryHeaders}
	for _, b := range buckets {
		t.Records = append(t.Records, []string{
			string(b.TenorBucket),
			formatFloat(b.IVMAEBps),
			formatFloat(b.PriceMAETicks),
			formatInt(b.Quotes),
			formatFloat(b.Weight),
		})
	}
	return t
}

// BaselineFitHeaders is the bs_fit_table.csv schema.
var BaselineFitHeaders = []string{
	"symbol", "trade_date", "tenor_bucket", "moneyness", "ttm_years", "spot",
	"strike", "vega", "mid_price", "mid_iv", "fit_vol", "model_price",
	"model_iv", "model_delta", "iv_error_bps", "price_error_ticks", "quotes",
	"weight",
}

// BaselineFitTable renders the flat-vol fit. The model iv of a flat-vol node
// is its tenor's fitted vol.
func BaselineFitTable(rows []calibration.ModeledRow) Table {
	t := Table{Headers: BaselineFitHeaders}
	for _, r := range rows {
		t.Records = append(t.Records, []string{
			r.Symbol,
			formatDate(r.TradeDate),
			string(r.TenorBucket),
			formatFloat(r.Moneyness),
			formatFloat(r.TTMYears),
			formatFloat(r.Spot),
			formatFloat(r.Strike),
			formatFloat(r.Vega),
			formatFloat(r.MidPrice),
			formatFloat(r.MidIV),
			formatFloat(r.ModelIV),
			formatFloat(r.ModelPrice),
			formatFloat(r.ModelIV),
			formatFloat(r.ModelDelta),
			formatFloat(r.IVErrorBps),
			formatFloat(r.PriceErrorTicks),
			formatInt(r.Quotes),
			formatFloat(r.Weight),
		})
	}
	return t
}

// BaselineOOSHeaders is the bs_oos_summary.csv schema.
var BaselineOOSHeaders = []string{
	"symbol", "trade_date", "tenor_bucket", "moneyness", "ttm_years",
	"mid_price", "mid_iv", "fit_vol", "model_price", "model_iv",
	"model_delta", "iv_error_bps", "price_error_ticks", "quotes",
}

// BaselineOOSTable renders the next-day surface under the flat vols.
func BaselineOOSTable(rows []calibration.ModeledRow) Table {
	t := Table{Headers: BaselineOOSHeaders}
	for _, r := range rows {
		t.Records = append(t.Records, []string{
			r.Symbol,
			formatDate(r.TradeDate),
			string(r.TenorBucket),
			formatFloat(r.Moneyness),
			formatFloat(r.TTMYears),
			formatFloat(r.MidPrice),
			formatFloat(r.MidIV),
			formatFloat(r.ModelIV),
			formatFloat(r.ModelPrice),
			formatFloat(r.ModelIV),
			formatFloat(r.ModelDelta),
			formatFloat(r.IVErrorBps),
			formatFloat(r.PriceErrorTicks),
			formatInt(r.Quotes),
		})
	}
	return t
}

// BaselineOOSAggHeaders is the per-row schema of wrds_agg_oos_bs.csv before
// the tag columns.
var BaselineOOSAggHeaders = []string{"tenor_bucket", "iv_error_bps", "price_error_ticks", "quotes"}

// BaselineOOSAggTable keeps the columns the batch aggregate needs.
func BaselineOOSAggTable(rows []calibration.ModeledRow) Table {
	t := Table{Headers: BaselineOOSAggHeaders}
	for _, r := range rows {
		t.Records = append(t.Records, []string{
			string(r.TenorBucket),
			formatFloat(r.IVErrorBps),
			formatFloat(r.PriceErrorTicks),
			formatInt(r.Quotes),
		})
	}
	return t
}

// HedgeDetailHeaders is the delta_hedge_pnl.csv schema.
var HedgeDetailHeaders = []string{"tenor_bucket", "moneyness", "pnl", "pnl_per_tick", "quotes"}

// HedgeDetailTable renders the per-node hedge P&L.
func HedgeDetailTable(rows []backtest.HedgeRow) Table {
	t := Table{Headers: HedgeDetailHeaders}
	for _, r := range rows {
		t.Records = append(t.Records, []string{
			string(r.TenorBucket),
			formatFloat(r.Moneyness),
			formatFloat(r.PnL),
			formatFloat(r.PnLTicks),
			formatInt(r.Quotes),
		})
	}
	return t
}

// HedgeSummaryHeaders is the delta_hedge_pnl_summary.csv schema.
var HedgeSummaryHeaders = []string{"tenor_bucket", "mean_pnl", "mean_ticks", "pnl_sigma", "count"}

// HedgeSummaryTable renders the per-tenor hedge P&L.
func HedgeSummaryTable(buckets []backtest.HedgeBucket) Table {
	t := Table{Headers: HedgeSummaryHeaders}
	for _, b := range buckets {
		t.Records = append(t.Records, []string{
			string(b.TenorBucket),
			formatFloat(b.MeanPnL),
			formatFloat(b.MeanTicks),
			formatFloat(b.PnLSigma),
			formatInt(b.Count),
		})
	}
	return t
}

// PricingRow is one dateset entry of the batch pricing table. Rows with
// status "error" carry NaN metrics and the error text.
type PricingRow struct {
	TradeDate     string
	NextTradeDate string
	Label         string
	Regime        string
	Comment       string
	Status        string
	SourceToday   string
	SourceNext    string
	Metrics       calibration.Metrics
	IVMAEBps      float64
	PriceMAETicks float64
	Error         string
}

// ErrorPricingRow returns a row for a date whose run failed.
func ErrorPricingRow(base PricingRow, err error) PricingRow {
	nan := math.NaN()
	base.Status = "error"
	base.Metrics = calibration.Metrics{IVRMSEVolPts: nan, IVMAEVolPts: nan, IVP90Bps: nan, PriceRMSETicks: nan}
	base.IVMAEBps = nan
	base.PriceMAETicks = nan
	if err != nil {
		base.Error = err.Error()
	}
	return base
}

// PricingHeaders is the wrds_agg_pricing.csv schema.
var PricingHeaders = []string{
	"trade_date", "next_trade_date", "label", "regime", "comment", "status",
	"source_today", "source_next", "iv_rmse_volpts_vega_wt",
	"iv_mae_volpts_vega_wt", "iv_p90_bps", "price_rmse_ticks", "iv_mae_bps",
	"price_mae_ticks", "error",
}

// PricingTable renders the Heston batch summary.
func PricingTable(rows []PricingRow) Table {
	t := Table{Headers: PricingHeaders}
	for _, r := range rows {
		t.Records = append(t.Records, []string{
			r.TradeDate,
			r.NextTradeDate,
			r.Label,
			r.Regime,
			r.Comment,
			r.Status,
			r.SourceToday,
			r.SourceNext,
			formatFloat(r.Metrics.IVRMSEVolPts),
			formatFloat(r.Metrics.IVMAEVolPts),
			formatFloat(r.Metrics.IVP90Bps),
			formatFloat(r.Metrics.PriceRMSETicks),
			formatFloat(r.IVMAEBps),
			formatFloat(r.PriceMAETicks),
			r.Error,
		})
	}
	return t
}

// BaselinePricingHeaders is the wrds_agg_pricing_bs.csv schema.
var BaselinePricingHeaders = []string{
	"trade_date", "next_trade_date", "label", "regime", "status",
	"iv_rmse_volpts_vega_wt", "iv_mae_volpts_vega_wt", "iv_p90_bps",
	"price_rmse_ticks", "iv_mae_bps", "price_mae_ticks",
}

// BaselinePricingTable renders the flat-vol batch summary.
func BaselinePricingTable(rows []PricingRow) Table {
	t := Table{Headers: BaselinePricingHeaders}
	for _, r := range rows {
		t.Records = append(t.Records, []string{
			r.TradeDate,
			r.NextTradeDate,
			r.Label,
			r.Regime,
			r.Status,
			formatFloat(r.Metrics.IVRMSEVolPts),
			formatFloat(r.Metrics.IVMAEVolPts),
			formatFloat(r.Metrics.IVP90Bps),
			formatFloat(r.Metrics.PriceRMSETicks),
			formatFloat(r.IVMAEBps),
			formatFloat(r.PriceMAETicks),
		})
	}
	return t
}

// TaggedHeaders returns the schema of a batch aggregate built from tables
// with the given per-date headers.
func TaggedHeaders(headers []string) []string {
	return append(append([]string{}, tagHeaders...), headers...)
}

// ComparisonTable renders the Heston versus flat-vol comparison.
func ComparisonTable(rows []compare.Row) Table {
	t := Table{Headers: compare.Columns}
	for _, r := range rows {
		t.Records = append(t.Records, r.Record())
	}
	return t
}
