package datasource

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"time"

	apperrors "hestonlab/internal/errors"
	"hestonlab/internal/pricing"
	"hestonlab/internal/surface"
)

// QuoteColumns is the canonical layout used for cache files and redis entries.
var QuoteColumns = []string{
	"trade_date", "quote_date", "exdate", "cp_flag", "strike",
	"best_bid", "best_offer", "spot", "underlying_bid", "underlying_ask",
	"forward_price", "rate", "divyield",
}

// readOptions adapts the reader to the layout of each source.
type readOptions struct {
	// StrikeScale divides a strike_price column; OptionMetrics stores strikes x1000.
	StrikeScale float64
	// Comment enables line comments, as in the bundled sample file.
	Comment rune
}

// columnAliases lists accepted header names per field, in priority order.
var columnAliases = map[string][]string{
	"trade_date":     {"trade_date", "date"},
	"quote_date":     {"quote_date"},
	"exdate":         {"exdate"},
	"cp_flag":        {"cp_flag"},
	"strike":         {"strike"},
	"strike_price":   {"strike_price"},
	"bid":            {"best_bid", "bid"},
	"ask":            {"best_offer", "ask"},
	"spot":           {"spot", "close"},
	"underlying_bid": {"underlying_bid"},
	"underlying_ask": {"underlying_ask"},
	"forward_price":  {"forward_price"},
	"rate":           {"rate"},
	"dividend":       {"divyield", "dividend"},
}

// QuoteRecord renders a quote in QuoteColumns order.
func QuoteRecord(q surface.Quote) []string {
	return []string{
		surface.FormatDate(q.TradeDate),
		surface.FormatDate(q.QuoteDate),
		surface.FormatDate(q.Expiry),
		string(q.Right),
		surface.FormatFloat(q.Strike),
		surface.FormatFloat(q.Bid),
		surface.FormatFloat(q.Ask),
		surface.FormatFloat(q.Spot),
		surface.FormatFloat(q.UnderlyingBid),
		surface.FormatFloat(q.UnderlyingAsk),
		surface.FormatFloat(q.ForwardPrice),
		surface.FormatFloat(q.Rate),
		surface.FormatFloat(q.Dividend),
	}
}

// WriteQuotes encodes quotes in the canonical layout.
func WriteQuotes(w io.Writer, quotes []surface.Quote) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(QuoteColumns); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, q := range quotes {
		if err := writer.Write(QuoteRecord(q)); err != nil {
			return fmt.Errorf("failed to write quote %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadQuotes decodes the canonical layout.
func ReadQuotes(r io.Reader) ([]surface.Quote, error) {
	return readQuotes(r, readOptions{StrikeScale: 1})
}

func readQuotes(r io.Reader, opts readOptions) ([]surface.Quote, error) {
	reader := csv.NewReader(r)
	reader.Comment = opts.Comment
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read quotes: %w", err)
	}
	return decodeRecords(header, records, opts)
}

func decodeRecords(header []string, records [][]string, opts readOptions) ([]surface.Quote, error) {
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}
	position := make(map[string]int, len(header))
	for i, name := range header {
		position[name] = i
	}
	index := make(map[string]int, len(columnAliases))
	for field, names := range columnAliases {
		for _, name := range names {
			if i, ok := position[name]; ok {
				index[field] = i
				break
			}
		}
	}

	if _, ok := index["bid"]; !ok {
		return nil, apperrors.NewDataIntegrityError("quote data missing bid/ask columns", nil)
	}
	if _, ok := index["ask"]; !ok {
		return nil, apperrors.NewDataIntegrityError("quote data missing bid/ask columns", nil)
	}
	if _, ok := index["exdate"]; !ok {
		return nil, apperrors.NewDataIntegrityError("quote data missing exdate column", nil).
			WithContext("column", "exdate")
	}
	_, haveStrike := index["strike"]
	_, haveStrikePrice := index["strike_price"]
	if !haveStrike && !haveStrikePrice {
		return nil, apperrors.NewDataIntegrityError("quote data missing strike column", nil).
			WithContext("column", "strike")
	}
	scale := opts.StrikeScale
	if scale == 0 {
		scale = 1
	}

	quotes := make([]surface.Quote, 0, len(records))
	for n, rec := range records {
		var firstErr error
		cell := func(field string) (string, bool) {
			i, ok := index[field]
			if !ok || i >= len(rec) {
				return "", false
			}
			return rec[i], true
		}
		num := func(field string) float64 {
			s, ok := cell(field)
			if !ok {
				return math.NaN()
			}
			v, err := surface.ParseFloat(s)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("column %s: %w", field, err)
			}
			return v
		}
		date := func(field string) time.Time {
			s, ok := cell(field)
			if !ok {
				return time.Time{}
			}
			v, err := surface.ParseDate(s)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("column %s: %w", field, err)
			}
			return v
		}

		q := surface.Quote{
			TradeDate:     date("trade_date"),
			QuoteDate:     date("quote_date"),
			Expiry:        date("exdate"),
			Right:         pricing.RightCall,
			Bid:           num("bid"),
			Ask:           num("ask"),
			Spot:          num("spot"),
			UnderlyingBid: num("underlying_bid"),
			UnderlyingAsk: num("underlying_ask"),
			ForwardPrice:  num("forward_price"),
			Rate:          num("rate"),
			Dividend:      num("dividend"),
		}
		if flag, ok := cell("cp_flag"); ok && flag != "" {
			q.Right = pricing.ParseRight(flag)
		}
		if haveStrike {
			q.Strike = num("strike")
		} else {
			q.Strike = num("strike_price") / scale
		}
		if firstErr != nil {
			return nil, fmt.Errorf("line %d: %w", n+2, firstErr)
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// quoteRecords converts quotes into a header plus cell matrix.
func quoteRecords(quotes []surface.Quote) [][]string {
	out := make([][]string, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, QuoteRecord(q))
	}
	return out
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF {
		return s[3:]
	}
	return s
}
