package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	apperrors "hestonlab/internal/errors"
	"hestonlab/internal/operations"
	"hestonlab/internal/pipeline"
)

var validate = validator.New()

// BatchRunner runs a dateset. *pipeline.Pipeline implements it.
type BatchRunner interface {
	RunBatch(ctx context.Context, ds *pipeline.Dateset, name string, opts pipeline.BatchOptions) (*pipeline.BatchResult, error)
}

// BatchRequest is the body of POST /api/batches.
type BatchRequest struct {
	Name    string           `json:"name"`
	Symbol  string           `json:"symbol" validate:"omitempty,alpha,max=10"`
	Fast    bool             `json:"fast"`
	Workers int              `json:"workers" validate:"omitempty,min=1,max=32"`
	Dates   []pipeline.Entry `json:"dates" validate:"required,min=1,dive"`
}

// Bind implements render.Binder.
func (b *BatchRequest) Bind(r *http.Request) error {
	if err := validate.Struct(b); err != nil {
		return err
	}
	if b.Name == "" {
		b.Name = "api"
	}
	return nil
}

// BatchAccepted is the 202 response to a batch submission.
type BatchAccepted struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
	Dates   int    `json:"dates"`
	Href    string `json:"href"`
}

// BatchHandler starts batches in the background, one at a time, and
// serves their snapshots.
type BatchHandler struct {
	base    context.Context
	runner  BatchRunner
	status  *operations.StatusBroadcaster
	logger  *slog.Logger
	running *semaphore.Weighted
	wg      sync.WaitGroup
}

// NewBatchHandler creates a batch handler. Batches run under base.
func NewBatchHandler(base context.Context, runner BatchRunner, status *operations.StatusBroadcaster, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{
		base:    base,
		runner:  runner,
		status:  status,
		logger:  logger.With(slog.String("handler", "batches")),
		running: semaphore.NewWeighted(1),
	}
}

// Routes returns the batches router.
func (h *BatchHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Start)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	return r
}

// Start handles POST /api/batches.
func (h *BatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := &BatchRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(apperrors.InvalidRequestWithError(err)))
		return
	}
	if h.runner == nil {
		render.Render(w, r, apperrors.NewErrorResponse(apperrors.ErrBatchesDisabled))
		return
	}
	if !h.running.TryAcquire(1) {
		render.Render(w, r, apperrors.NewErrorResponse(apperrors.ErrBatchRunning))
		return
	}

	batchID := uuid.NewString()
	dates := make([]string, len(req.Dates))
	for i, e := range req.Dates {
		dates[i] = e.TradeDate
	}
	if h.status != nil {
		h.status.ReportProgress(operations.ProgressUpdate{
			BatchID:   batchID,
			EventType: operations.EventTypeBatchStatus,
			Status:    string(operations.RunStatusPending),
			Message:   "queued",
			Metadata:  map[string]interface{}{"dates": dates},
		})
	}

	h.logger.InfoContext(ctx, "Batch accepted",
		slog.String("batch_id", batchID),
		slog.String("name", req.Name),
		slog.Int("dates", len(dates)),
		slog.Bool("fast", req.Fast))

	ds := &pipeline.Dateset{Dates: req.Dates}
	opts := pipeline.BatchOptions{
		BatchID: batchID,
		Symbol:  req.Symbol,
		Fast:    req.Fast,
		Workers: req.Workers,
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.running.Release(1)
		res, err := h.runner.RunBatch(h.base, ds, req.Name, opts)
		if err != nil {
			h.logger.Error("Batch failed",
				slog.String("batch_id", batchID),
				slog.String("error", err.Error()))
			return
		}
		h.logger.Info("Batch finished",
			slog.String("batch_id", batchID),
			slog.Int("failed_dates", res.Failed()))
	}()

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, BatchAccepted{
		BatchID: batchID,
		Status:  string(operations.RunStatusPending),
		Dates:   len(dates),
		Href:    fmt.Sprintf("/api/batches/%s", batchID),
	})
}

// List handles GET /api/batches.
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	snapshots := []*operations.BatchSnapshot{}
	if h.status != nil {
		snapshots = append(snapshots, h.status.GetAllSnapshots()...)
	}
	render.JSON(w, r, snapshots)
}

// Get handles GET /api/batches/{id}.
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.status != nil {
		if snapshot, ok := h.status.GetSnapshot(id); ok {
			render.JSON(w, r, snapshot)
			return
		}
	}
	render.Render(w, r, apperrors.NewErrorResponse(apperrors.NotFoundError("batch "+id)))
}

// Wait blocks until every background batch has returned or ctx ends.
func (h *BatchHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("batches still running"), ctx.Err())
	}
}
