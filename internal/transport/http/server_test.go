package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hestonlab/internal/middleware"
	"hestonlab/internal/operations"
	"hestonlab/internal/pipeline"
	"hestonlab/internal/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner reports like the pipeline and blocks until released.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []pipeline.BatchOptions
	release chan struct{}
	status  *operations.StatusBroadcaster
	err     error
}

func (f *fakeRunner) RunBatch(ctx context.Context, ds *pipeline.Dateset, name string, opts pipeline.BatchOptions) (*pipeline.BatchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.status != nil {
		f.status.ReportProgress(operations.ProgressUpdate{
			BatchID:   opts.BatchID,
			EventType: operations.EventTypeBatchComplete,
			Status:    string(operations.RunStatusCompleted),
		})
	}
	return &pipeline.BatchResult{BatchID: opts.BatchID, Dateset: name}, nil
}

type fixture struct {
	server   *Server
	manifest *operations.RunManifest
	status   *operations.StatusBroadcaster
	runner   *fakeRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	manifest := operations.NewRunManifest(filepath.Join(t.TempDir(), "manifest.json"))
	status := operations.NewStatusBroadcaster(nil, quietLogger())
	t.Cleanup(status.Stop)
	runner := &fakeRunner{status: status}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "hestonlab_test_total"}))

	srv := NewServer(Deps{
		Batches:  runner,
		Manifest: manifest,
		Status:   status,
		Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:   quietLogger(),
		Version:  "test",
	})
	return &fixture{server: srv, manifest: manifest, status: status, runner: runner}
}

func (f *fixture) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var live map[string]interface{}
	decode(t, rec, &live)
	assert.Equal(t, "ok", live["status"])
	assert.Equal(t, "test", live["version"])
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReady_CorruptManifest(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.manifest.Path(), []byte("{not json"), 0644))

	rec := f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hestonlab_test_total")
}

func TestRuns(t *testing.T) {
	f := newFixture(t)
	_, err := f.manifest.UpdateRun(operations.RunKeyHeston, map[string]interface{}{
		"trade_date": "2024-06-14",
		"summary":    "docs/artifacts/wrds/heston_fit.json",
	}, true, "trade_date")
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/runs", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var doc map[string]interface{}
		decode(t, rec, &doc)
		runs := doc["runs"].(map[string]interface{})
		assert.Contains(t, runs, operations.RunKeyHeston)
	})

	t.Run("get", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/runs/"+operations.RunKeyHeston, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var entries []map[string]interface{}
		decode(t, rec, &entries)
		require.Len(t, entries, 1)
		assert.Equal(t, "2024-06-14", entries[0]["trade_date"])
	})

	t.Run("missing key", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/runs/nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		var body map[string]interface{}
		decode(t, rec, &body)
		assert.Equal(t, false, body["success"])
	})
}

func TestStartBatch_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"no dates", `{"dates":[]}`},
		{"bad date", `{"dates":[{"trade_date":"14/06/2024"}]}`},
		{"bad workers", `{"workers":99,"dates":[{"trade_date":"2024-06-14"}]}`},
		{"bad symbol", `{"symbol":"S&P","dates":[{"trade_date":"2024-06-14"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodPost, "/api/batches", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, f.runner.calls)
		})
	}
}

func TestStartBatch(t *testing.T) {
	f := newFixture(t)
	f.runner.release = make(chan struct{})

	rec := f.do(t, http.MethodPost, "/api/batches",
		`{"name":"june","symbol":"SPX","fast":true,"workers":2,"dates":[{"trade_date":"2024-06-13"},{"trade_date":"2024-06-14","label":"friday"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var accepted BatchAccepted
	decode(t, rec, &accepted)
	assert.NotEmpty(t, accepted.BatchID)
	assert.Equal(t, 2, accepted.Dates)
	assert.Equal(t, "/api/batches/"+accepted.BatchID, accepted.Href)

	t.Run("snapshot is visible while queued", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, accepted.Href, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var snap operations.BatchSnapshot
		decode(t, rec, &snap)
		assert.Equal(t, accepted.BatchID, snap.BatchID)
		require.Len(t, snap.Dates, 2)
		assert.Equal(t, "2024-06-13", snap.Dates[0].TradeDate)
	})

	t.Run("second batch conflicts", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/batches", `{"dates":[{"trade_date":"2024-06-17"}]}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	close(f.runner.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.server.Wait(ctx))

	f.runner.mu.Lock()
	require.Len(t, f.runner.calls, 1)
	opts := f.runner.calls[0]
	f.runner.mu.Unlock()
	assert.Equal(t, accepted.BatchID, opts.BatchID)
	assert.Equal(t, "SPX", opts.Symbol)
	assert.True(t, opts.Fast)
	assert.Equal(t, 2, opts.Workers)

	t.Run("completed snapshot", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, accepted.Href, "")
		var snap operations.BatchSnapshot
		decode(t, rec, &snap)
		assert.Equal(t, string(operations.RunStatusCompleted), snap.Status)
	})

	t.Run("list", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/batches", "")
		var snaps []operations.BatchSnapshot
		decode(t, rec, &snaps)
		assert.Len(t, snaps, 1)
	})

	t.Run("a new batch can start after the first finished", func(t *testing.T) {
		f.runner.release = nil
		rec := f.do(t, http.MethodPost, "/api/batches", `{"dates":[{"trade_date":"2024-06-17"}]}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		require.NoError(t, f.server.Wait(ctx))
	})
}

func TestStartBatch_RunnerErrorReleasesSlot(t *testing.T) {
	f := newFixture(t)
	f.runner.err = errors.New("manifest locked")

	body := `{"dates":[{"trade_date":"2024-06-14"}]}`
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/batches", body).Code)
	require.NoError(t, f.server.Wait(context.Background()))
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/batches", body).Code)
	require.NoError(t, f.server.Wait(context.Background()))
}

func TestGetBatch_NotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/batches/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitedAPI(t *testing.T) {
	srv := NewServer(Deps{
		Manifest: operations.NewRunManifest(filepath.Join(t.TempDir(), "manifest.json")),
		Limiter:  middleware.NewRateLimiter(0.001, 1, quietLogger()),
		Logger:   quietLogger(),
	})
	codes := make([]int, 0, 3)
	for _, path := range []string{"/api/runs", "/api/runs", "/healthz"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		codes = append(codes, rec.Code)
	}
	// Health checks sit outside the limited API group.
	assert.Equal(t, []int{200, 429, 200}, codes)
}

func TestWebSocketRoute(t *testing.T) {
	hub, err := websocket.NewHub(quietLogger(), nil)
	require.NoError(t, err)
	hub.Start()
	defer hub.Stop()

	srv := NewServer(Deps{Hub: hub, Logger: quietLogger()})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", bytes.NewReader(nil)))
	// A plain GET is refused by the upgrader, which proves the route is wired.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
