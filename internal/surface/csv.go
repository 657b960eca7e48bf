package surface

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	apperrors "hestonlab/internal/errors"
)

// DateLayout is the on-disk date format.
const DateLayout = "2006-01-02"

// Columns is the stable surface CSV schema.
var Columns = []string{
	"symbol", "trade_date", "quote_date", "tenor_bucket", "moneyness",
	"ttm_years", "days_to_expiration", "spot", "strike", "rate", "dividend",
	"mid_price", "mid_iv", "vega", "quotes",
}

// FormatFloat renders a float for CSV output; NaN becomes an empty cell.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseFloat is the inverse of FormatFloat.
func ParseFloat(s string) (float64, error) {
	if s == "" || s == "NaN" || s == "nan" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// FormatDate renders a date; the zero time becomes an empty cell.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate accepts YYYY-MM-DD or an RFC3339 timestamp, keeping the day only.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	return time.Parse(DateLayout, s)
}

// Record returns the row as CSV cells in Columns order.
func (r Row) Record() []string {
	return []string{
		r.Symbol,
		FormatDate(r.TradeDate),
		FormatDate(r.QuoteDate),
		string(r.TenorBucket),
		FormatFloat(r.Moneyness),
		FormatFloat(r.TTMYears),
		FormatFloat(r.DaysToExpiration),
		FormatFloat(r.Spot),
		FormatFloat(r.Strike),
		FormatFloat(r.Rate),
		FormatFloat(r.Dividend),
		FormatFloat(r.MidPrice),
		FormatFloat(r.MidIV),
		FormatFloat(r.Vega),
		strconv.Itoa(r.Quotes),
	}
}

// WriteCSV writes rows to path, creating parent directories. An empty
// surface produces a header-only file.
func WriteCSV(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create surface file: %w", err)
	}
	defer file.Close()

	if err := Write(file, rows); err != nil {
		return err
	}
	return file.Close()
}

// Write encodes rows as CSV.
func Write(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, r := range rows {
		if err := writer.Write(r.Record()); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV loads a surface written by WriteCSV.
func ReadCSV(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open surface file: %w", err)
	}
	defer file.Close()
	return Read(file)
}

// Read decodes a surface CSV. Every schema column must be present in the
// header; extra columns are ignored.
func Read(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, apperrors.NewDataIntegrityError("surface csv is empty", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	// Tolerate a UTF-8 BOM written by spreadsheet tools.
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			return nil, apperrors.NewDataIntegrityError("surface csv missing column "+col, nil).
				WithContext("column", col)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}
		row, err := parseRecord(rec, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF {
		return s[3:]
	}
	return s
}

func parseRecord(rec []string, index map[string]int) (Row, error) {
	var firstErr error
	get := func(col string) string { return rec[index[col]] }
	num := func(col string) float64 {
		v, err := ParseFloat(get(col))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("column %s: %w", col, err)
		}
		return v
	}
	date := func(col string) time.Time {
		v, err := ParseDate(get(col))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("column %s: %w", col, err)
		}
		return v
	}

	row := Row{
		Symbol:           get("symbol"),
		TradeDate:        date("trade_date"),
		QuoteDate:        date("quote_date"),
		TenorBucket:      Tenor(get("tenor_bucket")),
		Moneyness:        num("moneyness"),
		TTMYears:         num("ttm_years"),
		DaysToExpiration: num("days_to_expiration"),
		Spot:             num("spot"),
		Strike:           num("strike"),
		Rate:             num("rate"),
		Dividend:         num("dividend"),
		MidPrice:         num("mid_price"),
		MidIV:            num("mid_iv"),
		Vega:             num("vega"),
	}
	quotes := num("quotes")
	if !math.IsNaN(quotes) {
		row.Quotes = int(quotes)
	}
	return row, firstErr
}
