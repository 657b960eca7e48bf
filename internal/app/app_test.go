package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hestonlab/internal/datasource"
	"hestonlab/internal/infrastructure"
	"hestonlab/internal/operations"
)

func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hestonlab.yaml")
	body := fmt.Sprintf(`
logging:
  level: error
  format: text
  output: stdout
paths:
  output_dir: %[1]s/out
  cache_dir: %[1]s/cache
  sample_file: %[1]s/sample.csv
  manifest_path: %[1]s/out/manifest.json
telemetry:
  enable_tracing: false
  enable_metrics: true
  metric_exporter: prometheus
server:
  shutdown_timeout: 2s
%[2]s`, dir, extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	t.Cleanup(infrastructure.ResetLoggerForTesting)
	return path, dir
}

func newApp(t *testing.T, opts Options) *Application {
	t.Helper()
	a, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_CLI(t *testing.T) {
	path, dir := writeConfig(t, "")
	a := newApp(t, Options{ConfigPath: path, ForceSample: true})

	assert.True(t, a.Config.Source.ForceSample, "flag overrides file")
	assert.True(t, a.Loader.ForceSample)
	assert.Equal(t, filepath.Join(dir, "out"), a.Paths.OutputDir)
	assert.DirExists(t, a.Paths.PerDateDir)
	assert.DirExists(t, filepath.Join(dir, "cache"))

	assert.Nil(t, a.Loader.Local)
	assert.Len(t, a.Loader.Caches, 1)
	assert.Nil(t, a.Loader.Remote)
	assert.NotNil(t, a.Loader.Sample)

	assert.Nil(t, a.Hub)
	assert.Nil(t, a.Status)
	assert.Nil(t, a.Publisher)
	assert.NotNil(t, a.Pipeline)
	assert.Equal(t, filepath.Join(dir, "out", "manifest.json"), a.Manifest.Path())
}

func TestNew_Tiers(t *testing.T) {
	path, dir := writeConfig(t, `source:
  redis:
    addr: 127.0.0.1:1
  wrds:
    enabled: true
    username: analyst
    password: secret
`)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "local"), 0755))
	t.Setenv("HESTON_PATHS_LOCAL_ROOT", filepath.Join(dir, "local"))

	a := newApp(t, Options{ConfigPath: path})

	assert.NotNil(t, a.Loader.Local)
	require.Len(t, a.Loader.Caches, 2)
	assert.IsType(t, &datasource.RedisCache{}, a.Loader.Caches[1])
	// sql.Open is lazy, so the source exists without reaching WRDS.
	assert.IsType(t, &datasource.WRDSSource{}, a.Loader.Remote)
}

func TestNew_SheetsNeedCredentials(t *testing.T) {
	credsDir := t.TempDir()
	path, _ := writeConfig(t, fmt.Sprintf(`sheets:
  enabled: true
  spreadsheet_id: abc
  credentials_file: %s/missing.json
`, credsDir))

	_, err := New(context.Background(), Options{ConfigPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheets")
}

func TestNew_InvalidConfig(t *testing.T) {
	path, _ := writeConfig(t, `calibration:
  objective: vega
`)
	_, err := New(context.Background(), Options{ConfigPath: path})
	assert.Error(t, err)
}

func TestServe(t *testing.T) {
	path, _ := writeConfig(t, "")
	a := newApp(t, Options{ConfigPath: path, Serve: true})
	require.NotNil(t, a.Hub)
	require.NotNil(t, a.Status)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln) }()

	client := &http.Client{Timeout: 2 * time.Second}
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = client.Get(base + "/healthz")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health["status"])

	assert.Eventually(t, func() bool {
		resp, err := client.Get(base + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		metrics, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(metrics), "http_requests_total")
	}, 2*time.Second, 20*time.Millisecond)

	resp, err = client.Get(base + "/api/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_AddressInUse(t *testing.T) {
	path, _ := writeConfig(t, "")
	a := newApp(t, Options{ConfigPath: path, Serve: true})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = a.Serve(context.Background(), ln.Addr().String())
	assert.Error(t, err)
}

type capture struct {
	records []string
}

func (c *capture) Enabled(context.Context, slog.Level) bool { return true }
func (c *capture) Handle(_ context.Context, r slog.Record) error {
	c.records = append(c.records, r.Message)
	return nil
}
func (c *capture) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *capture) WithGroup(string) slog.Handler      { return c }

func TestLogReporter(t *testing.T) {
	h := &capture{}
	r := logReporter{logger: slog.New(h)}

	r.ReportProgress(operations.ProgressUpdate{EventType: operations.EventTypeStepProgress, Status: string(operations.StepStatusActive), Message: "active"})
	r.ReportProgress(operations.ProgressUpdate{EventType: operations.EventTypeStepProgress, Status: string(operations.StepStatusCompleted), Message: "fit done"})
	r.ReportProgress(operations.ProgressUpdate{EventType: operations.EventTypeBatchStatus, Message: "status"})
	r.ReportProgress(operations.ProgressUpdate{EventType: operations.EventTypeBatchComplete, Message: "batch done"})

	assert.Equal(t, []string{"fit done", "batch done"}, h.records)
}

func TestBuildVersion(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "1.2.3"
	assert.Equal(t, "1.2.3", BuildVersion())
	Version = ""
	assert.NotEmpty(t, BuildVersion())
}
