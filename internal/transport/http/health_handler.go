package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"hestonlab/internal/operations"
	"hestonlab/internal/websocket"
)

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	manifest *operations.RunManifest
	hub      *websocket.Hub
	version  string
	started  time.Time
}

// NewHealthHandler creates a health handler. hub may be nil.
func NewHealthHandler(manifest *operations.RunManifest, hub *websocket.Hub, version string) *HealthHandler {
	return &HealthHandler{manifest: manifest, hub: hub, version: version, started: time.Now()}
}

// Live handles GET /healthz.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.hub != nil {
		clients = h.hub.ClientCount()
	}
	render.JSON(w, r, map[string]interface{}{
		"status":            "ok",
		"version":           h.version,
		"uptime":            time.Since(h.started).Round(time.Second).String(),
		"websocket_clients": clients,
	})
}

// Ready handles GET /readyz. The service is ready when the manifest can
// be read; a missing manifest counts as empty.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.manifest == nil {
		render.JSON(w, r, map[string]string{"status": "ready"})
		return
	}
	if _, err := h.manifest.Load(); err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ready", "manifest": h.manifest.Path()})
}
