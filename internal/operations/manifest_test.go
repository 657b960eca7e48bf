package operations

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest(t *testing.T) *RunManifest {
	t.Helper()
	m := NewRunManifest(filepath.Join(t.TempDir(), "artifacts", "manifest.json"))
	m.now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	m.git = func() map[string]interface{} { return map[string]interface{}{"sha": "abc123"} }
	return m
}

func readDoc(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestRunManifest_AppendReplacesByID(t *testing.T) {
	m := testManifest(t)

	_, err := m.UpdateRun(RunKeyHeston, map[string]interface{}{"trade_date": "2024-06-14", "rmse": 0.02}, true, "trade_date")
	require.NoError(t, err)
	_, err = m.UpdateRun(RunKeyHeston, map[string]interface{}{"trade_date": "2024-06-12", "rmse": 0.03}, true, "trade_date")
	require.NoError(t, err)
	stored, err := m.UpdateRun(RunKeyHeston, map[string]interface{}{"trade_date": "2024-06-14", "rmse": 0.01}, true, "trade_date")
	require.NoError(t, err)

	items, ok := stored.([]interface{})
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "2024-06-12", items[0].(map[string]interface{})["trade_date"])
	assert.Equal(t, "2024-06-14", items[1].(map[string]interface{})["trade_date"])
	assert.Equal(t, 0.01, items[1].(map[string]interface{})["rmse"])
}

func TestRunManifest_ReplaceAndPreserveOtherKeys(t *testing.T) {
	m := testManifest(t)

	_, err := m.UpdateRun(RunKeyDateset, map[string]interface{}{"dates": 3}, false, "")
	require.NoError(t, err)
	_, err = m.UpdateRun(RunKeyPipeline, map[string]interface{}{"trade_date": "2024-06-14"}, true, "trade_date")
	require.NoError(t, err)
	_, err = m.UpdateRun(RunKeyDateset, map[string]interface{}{"dates": 5}, false, "")
	require.NoError(t, err)

	doc := readDoc(t, m.Path())
	runs := doc["runs"].(map[string]interface{})
	assert.Equal(t, float64(5), runs[RunKeyDateset].(map[string]interface{})["dates"])
	assert.Len(t, runs[RunKeyPipeline], 1)
	assert.Equal(t, "2024-06-15T12:00:00Z", doc["generated_at"])
	assert.Equal(t, "abc123", doc["git"].(map[string]interface{})["sha"])
	assert.Contains(t, doc, "system")
}

func TestRunManifest_FileFormat(t *testing.T) {
	m := testManifest(t)
	_, err := m.UpdateRun("b_key", map[string]interface{}{"z": 1, "a": 2}, false, "")
	require.NoError(t, err)

	raw, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	text := string(raw)
	assert.True(t, strings.HasSuffix(text, "}\n"))
	assert.Contains(t, text, "\n  \"build\"")
	assert.Less(t, strings.Index(text, `"a"`), strings.Index(text, `"z"`))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(m.Path()), ".manifest-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRunManifest_ConcurrentUpdates(t *testing.T) {
	m := testManifest(t)
	dates := []string{"2024-06-10", "2024-06-11", "2024-06-12", "2024-06-13", "2024-06-14"}

	var wg sync.WaitGroup
	for _, d := range dates {
		wg.Add(1)
		go func(d string) {
			defer wg.Done()
			_, err := m.UpdateRun(RunKeyHeston, map[string]interface{}{"trade_date": d}, true, "trade_date")
			assert.NoError(t, err)
		}(d)
	}
	wg.Wait()

	runs, err := m.Runs()
	require.NoError(t, err)
	items := runs[RunKeyHeston].([]interface{})
	require.Len(t, items, len(dates))
	for i, d := range dates {
		assert.Equal(t, d, items[i].(map[string]interface{})["trade_date"])
	}
}

func TestRunManifest_CorruptFile(t *testing.T) {
	m := testManifest(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.Path()), 0755))
	require.NoError(t, os.WriteFile(m.Path(), []byte("{not json"), 0644))

	_, err := m.UpdateRun(RunKeyHeston, map[string]interface{}{"trade_date": "2024-06-14"}, true, "trade_date")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse manifest")
}

func TestDescribeInputs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "quotes.csv")
	require.NoError(t, os.WriteFile(file, []byte("abc"), 0644))

	entries := DescribeInputs([]string{file, filepath.Join(dir, "missing.csv"), dir, ""})
	require.Len(t, entries, 3)

	assert.Equal(t, file, entries[0]["path"])
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", entries[0]["sha256"])
	assert.Equal(t, int64(3), entries[0]["size_bytes"])

	assert.NotContains(t, entries[1], "sha256")
	assert.NotContains(t, entries[2], "sha256")
}

func TestJSONFloat(t *testing.T) {
	assert.Nil(t, JSONFloat(math.NaN()))
	assert.Nil(t, JSONFloat(math.Inf(1)))
	assert.Equal(t, 1.5, JSONFloat(1.5))
}
