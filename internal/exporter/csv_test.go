package exporter

import (
	"bytes"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hestonlab/internal/errors"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVWriter_WriteCSV(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		options WriteOptions
		want    [][]string
		bom     bool
	}{
		{
			name: "headers and records",
			path: "a/b/table.csv",
			options: WriteOptions{
				Headers: []string{"tenor_bucket", "iv_mae_bps"},
				Records: [][]string{{"1M", "12.5"}, {"3M", ""}},
			},
			want: [][]string{{"tenor_bucket", "iv_mae_bps"}, {"1M", "12.5"}, {"3M", ""}},
		},
		{
			name:    "headers only",
			path:    "empty.csv",
			options: WriteOptions{Headers: []string{"tenor_bucket"}},
			want:    [][]string{{"tenor_bucket"}},
		},
		{
			name: "bom prefix",
			path: "bom.csv",
			options: WriteOptions{
				Headers:   []string{"x"},
				Records:   [][]string{{"1"}},
				BOMPrefix: true,
			},
			bom: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			w := NewCSVWriter(root, quietLogger())
			require.NoError(t, w.WriteCSV(tt.path, tt.options))

			full := filepath.Join(root, tt.path)
			raw, err := os.ReadFile(full)
			require.NoError(t, err)
			assert.Equal(t, tt.bom, bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}))
			if tt.want != nil {
				assert.Equal(t, tt.want, readCSV(t, full))
			}

			leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(full), ".export-*"))
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestCSVWriter_Overwrites(t *testing.T) {
	root := t.TempDir()
	w := NewCSVWriter(root, quietLogger())
	tbl := Table{Headers: []string{"h"}, Records: [][]string{{"1"}, {"2"}}}

	path, err := w.WriteTable("t.csv", tbl)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "t.csv"), path)

	tbl.Records = [][]string{{"3"}}
	_, err = w.WriteTable("t.csv", tbl)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"h"}, {"3"}}, readCSV(t, path))
}

func TestCSVWriter_AbsolutePath(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "abs.csv")
	w := NewCSVWriter(t.TempDir(), nil)
	require.NoError(t, w.WriteCSV(abs, WriteOptions{Headers: []string{"x"}}))
	assert.FileExists(t, abs)
}

func TestCSVWriter_StorageError(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	err := NewCSVWriter(root, quietLogger()).WriteCSV("file/nested.csv", WriteOptions{Headers: []string{"x"}})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}
