package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "hestonlab/internal/errors"
	"hestonlab/internal/operations"
)

// RunsHandler exposes the run-provenance manifest.
type RunsHandler struct {
	manifest *operations.RunManifest
	logger   *slog.Logger
}

// NewRunsHandler creates a runs handler.
func NewRunsHandler(manifest *operations.RunManifest, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{manifest: manifest, logger: logger.With(slog.String("handler", "runs"))}
}

// Routes returns the runs router.
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{key}", h.Get)
	return r
}

// List handles GET /api/runs and returns the whole manifest document.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	doc, err := h.manifest.Load()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, doc)
}

// Get handles GET /api/runs/{key}.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	runs, err := h.manifest.Runs()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, ok := runs[key]
	if !ok {
		render.Render(w, r, apperrors.NewErrorResponse(apperrors.NotFoundError("run "+key)))
		return
	}
	render.JSON(w, r, entry)
}

func (h *RunsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "Failed to read manifest",
		slog.String("path", h.manifest.Path()),
		slog.String("error", err.Error()))
	render.Render(w, r, apperrors.NewErrorResponse(apperrors.FromError(err)))
}
