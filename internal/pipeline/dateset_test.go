package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hestonlab/internal/errors"
)

func TestParseDateset(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []Entry
		wantErr bool
	}{
		{
			name: "json",
			body: `{"dates":[{"trade_date":"2024-06-13","label":"calm"},{"trade_date":"2024-06-14","next_trade_date":"2024-06-17"}]}`,
			want: []Entry{
				{TradeDate: "2024-06-13", Label: "calm"},
				{TradeDate: "2024-06-14", NextTradeDate: "2024-06-17"},
			},
		},
		{
			name: "yaml",
			body: "dates:\n  - trade_date: \"2024-06-13\"\n    regime: high_vol\n    comment: CPI print\n",
			want: []Entry{{TradeDate: "2024-06-13", Regime: "high_vol", Comment: "CPI print"}},
		},
		{name: "empty list", body: `{"dates":[]}`, wantErr: true},
		{name: "no dates key", body: "label: x\n", wantErr: true},
		{name: "bad date", body: `{"dates":[{"trade_date":"06/13/2024"}]}`, wantErr: true},
		{name: "bad next date", body: `{"dates":[{"trade_date":"2024-06-13","next_trade_date":"soon"}]}`, wantErr: true},
		{name: "garbage", body: "dates: [unterminated", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := ParseDateset([]byte(tt.body), "test")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ds.Dates)
		})
	}
}

func TestLoadDateset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dateset.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dates:\n  - trade_date: \"2024-06-14\"\n"), 0644))

	ds, err := LoadDateset(path)
	require.NoError(t, err)
	require.Len(t, ds.Dates, 1)

	_, err = LoadDateset(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestNextBusinessDay(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2024-06-13", "2024-06-14"}, // Thu -> Fri
		{"2024-06-14", "2024-06-17"}, // Fri -> Mon
		{"2024-06-15", "2024-06-17"}, // Sat -> Mon
		{"2024-06-16", "2024-06-17"}, // Sun -> Mon
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			day, err := time.Parse(time.DateOnly, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, NextBusinessDay(day).Format(time.DateOnly))
		})
	}
}

func TestEntryDates(t *testing.T) {
	trade, next, err := Entry{TradeDate: "2024-06-14"}.Dates()
	require.NoError(t, err)
	assert.Equal(t, "2024-06-14", trade.Format(time.DateOnly))
	assert.Equal(t, "2024-06-17", next.Format(time.DateOnly))

	_, next, err = Entry{TradeDate: "2024-06-14", NextTradeDate: "2024-06-18"}.Dates()
	require.NoError(t, err)
	assert.Equal(t, "2024-06-18", next.Format(time.DateOnly))

	_, _, err = Entry{TradeDate: "bad"}.Dates()
	require.Error(t, err)
}
