// Package surface turns raw option quotes for a single trading date into an
// aggregated implied-volatility surface.
//
// # Pipeline
//
// Aggregate applies the quote filters (minimum days to expiry, positive bid,
// moneyness window, implied-vol sanity range, minimum vega), buckets each
// surviving quote by tenor and moneyness, and averages each bucket:
//
//	quotes, err := src.Load(ctx, "SPX", tradeDate)
//	rows, err := surface.Aggregate(quotes, surface.DefaultAggregateOptions())
//
// Tenor buckets are right-closed day ranges: (0,45] 30d, (45,75] 60d,
// (75,120] 90d, (120,240] 6m and (240,720] 1y. Anything longer is dropped.
// Moneyness buckets are K/S rounded to two decimals.
//
// # Persistence
//
// WriteCSV and ReadCSV use a fixed column order (see Columns). Missing
// numeric values are written as empty cells and read back as NaN.
package surface
