package asof

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hestonlab/internal/errors"
)

type row struct {
	trade, quote time.Time
	strike       float64
}

func (r row) AsOf() Stamp {
	return Stamp{TradeDate: r.trade, QuoteDate: r.quote, TenorBucket: "30d", Moneyness: 1.0, Strike: r.strike}
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCheck_Passes(t *testing.T) {
	d := day("2024-06-14")
	next := day("2024-06-17")

	tests := []struct {
		name     string
		rows     []row
		expected *time.Time
	}{
		{"empty table", nil, nil},
		{"same day", []row{{d, d, 4500}, {d, d, 4600}}, nil},
		{"explicit next date", []row{{next, next, 4500}}, &next},
		{"time of day ignored", []row{{d, d.Add(15 * time.Hour), 4500}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, Check(tt.rows, tt.expected, ContextCalibration))
		})
	}
}

func TestCheck_OneDayLeakIsFatal(t *testing.T) {
	d := day("2024-06-14")
	leak := d.AddDate(0, 0, 1)
	rows := []row{{d, d, 4400}, {d, leak, 4500}, {d, leak, 4600}}

	for _, context := range []string{ContextCalibration, ContextOOS} {
		t.Run(context, func(t *testing.T) {
			err := Check(rows, nil, context)
			require.Error(t, err)

			var asofErr *Error
			require.True(t, errors.As(err, &asofErr))
			assert.Equal(t, 2, asofErr.Count)
			assert.Equal(t, context, asofErr.Context)
			assert.Contains(t, err.Error(), "("+context+")")
			assert.Contains(t, err.Error(), "2 rows where quote_date != trade_date")
			assert.Contains(t, err.Error(), "quote_date: 2024-06-15")
			assert.True(t, apperrors.IsDataIntegrity(err))
		})
	}
}

func TestCheck_ExplicitDateLabel(t *testing.T) {
	d := day("2024-06-14")
	next := day("2024-06-17")

	err := Check([]row{{d, d, 4500}}, &next, ContextOOS)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quote_date != next_trade_date=2024-06-17")
}

func TestCheck_SampleCappedAtFive(t *testing.T) {
	d := day("2024-06-14")
	rows := make([]row, 12)
	for i := range rows {
		rows[i] = row{d, d.AddDate(0, 0, -1), float64(4000 + i)}
	}

	err := Check(rows, nil, ContextCalibration)
	var asofErr *Error
	require.True(t, errors.As(err, &asofErr))
	assert.Equal(t, 12, asofErr.Count)
	assert.Len(t, asofErr.Sample, 5)
}

func TestCheck_MissingColumns(t *testing.T) {
	d := day("2024-06-14")

	err := Check([]row{{d, time.Time{}, 4500}}, nil, ContextCalibration)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing quote_date column")

	err = Check([]row{{time.Time{}, d, 4500}}, nil, ContextOOS)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing trade_date column")

	// An explicit expected date does not need trade dates.
	assert.NoError(t, Check([]row{{time.Time{}, d, 4500}}, &d, ContextOOS))
}
