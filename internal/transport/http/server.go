package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apperrors "hestonlab/internal/errors"
	"hestonlab/internal/middleware"
	"hestonlab/internal/operations"
	"hestonlab/internal/websocket"
)

// Deps are the collaborators the router serves. Metrics, OTel, Limiter and
// Hub are optional.
type Deps struct {
	Batches  BatchRunner
	Manifest *operations.RunManifest
	Status   *operations.StatusBroadcaster
	Hub      *websocket.Hub
	Metrics  http.Handler
	OTel     *middleware.OTelMiddleware
	Limiter  *middleware.RateLimiter
	Logger   *slog.Logger
	Version  string
	// BaseContext bounds background batches; it defaults to Background.
	BaseContext context.Context
}

// Server owns the router and the background batch handler.
type Server struct {
	router  chi.Router
	batches *BatchHandler
}

// NewServer builds the router.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.BaseContext == nil {
		d.BaseContext = context.Background()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	if d.OTel != nil {
		r.Use(d.OTel.Handler)
	}
	r.Use(middleware.StructuredLogger(d.Logger))
	r.Use(middleware.Recoverer(d.Logger))

	health := NewHealthHandler(d.Manifest, d.Hub, d.Version)
	r.Get("/healthz", health.Live)
	r.Get("/readyz", health.Ready)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.Hub != nil {
		r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
			websocket.ServeWS(d.Hub, w, req)
		})
	}

	batches := NewBatchHandler(d.BaseContext, d.Batches, d.Status, d.Logger)
	r.Route("/api", func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(d.Limiter.Handler)
		}
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Mount("/runs", NewRunsHandler(d.Manifest, d.Logger).Routes())
		r.Mount("/batches", batches.Routes())
	})
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		render.Render(w, req, apperrors.NewErrorResponse(apperrors.ErrNotFound))
	})

	return &Server{router: r, batches: batches}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Wait blocks until background batches have finished or ctx ends.
func (s *Server) Wait(ctx context.Context) error {
	return s.batches.Wait(ctx)
}
