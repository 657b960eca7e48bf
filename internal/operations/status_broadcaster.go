package operations

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// EventTypeBatchSnapshot carries a full BatchSnapshot to clients.
const EventTypeBatchSnapshot = "batch:snapshot"

// StatusBroadcaster is the single authority for batch status. It folds
// progress events into per-batch snapshots and broadcasts each new snapshot
// to the hub. Updates are applied one at a time on a dedicated goroutine.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	batches map[string]*BatchSnapshot
	hub     WebSocketHub
	logger  *slog.Logger
	updates chan updateRequest
	stop    chan struct{}
	once    sync.Once
}

// BatchSnapshot is the complete state of a batch at a point in time
type BatchSnapshot struct {
	BatchID     string         `json:"batch_id"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"`
	Dates       []DateSnapshot `json:"dates"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DateSnapshot is the state of one trade date inside a batch
type DateSnapshot struct {
	TradeDate   string `json:"trade_date"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step,omitempty"`
	Error       string `json:"error,omitempty"`
}

type updateRequest struct {
	update ProgressUpdate
	done   chan struct{}
}

// NewStatusBroadcaster creates a broadcaster. hub may be nil.
func NewStatusBroadcaster(hub WebSocketHub, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	sb := &StatusBroadcaster{
		batches: make(map[string]*BatchSnapshot),
		hub:     hub,
		logger:  logger,
		updates: make(chan updateRequest, 100),
		stop:    make(chan struct{}),
	}
	go sb.processUpdates()
	return sb
}

func (sb *StatusBroadcaster) processUpdates() {
	for {
		select {
		case <-sb.stop:
			return
		case req := <-sb.updates:
			sb.apply(req.update)
			close(req.done)
		}
	}
}

// ReportProgress applies the update and waits until it is visible. Events
// without a batch ID are ignored.
func (sb *StatusBroadcaster) ReportProgress(update ProgressUpdate) {
	if update.BatchID == "" {
		return
	}
	req := updateRequest{update: update, done: make(chan struct{})}
	select {
	case sb.updates <- req:
		<-req.done
	case <-sb.stop:
	}
}

func (sb *StatusBroadcaster) apply(update ProgressUpdate) {
	sb.mu.Lock()
	now := time.Now()
	snapshot, ok := sb.batches[update.BatchID]
	if !ok {
		snapshot = &BatchSnapshot{
			BatchID:   update.BatchID,
			Status:    string(RunStatusPending),
			StartedAt: now,
		}
		sb.batches[update.BatchID] = snapshot
	}

	switch update.EventType {
	case EventTypeBatchStatus:
		snapshot.Status = update.Status
		snapshot.Message = update.Message
		if dates, ok := update.Metadata["dates"].([]string); ok {
			for _, d := range dates {
				snapshot.date(d)
			}
		}
	case EventTypeBatchProgress:
		snapshot.Status = string(RunStatusRunning)
		snapshot.Progress = update.Progress
		snapshot.Message = update.Message
		snapshot.Metadata = update.Metadata
		if update.TradeDate != "" {
			d := snapshot.date(update.TradeDate)
			d.Progress = 100
			d.CurrentStep = ""
			if d.Status != string(RunStatusFailed) {
				d.Status = string(RunStatusCompleted)
			}
		}
	case EventTypeStepProgress:
		d := snapshot.date(update.TradeDate)
		d.Progress = update.Progress
		d.CurrentStep = update.StepID
		if update.Status == string(StepStatusFailed) {
			d.Status = string(RunStatusFailed)
			d.Error = update.Message
		} else if d.Status == string(RunStatusPending) {
			d.Status = string(RunStatusRunning)
		}
	case EventTypeBatchComplete:
		snapshot.Status = string(RunStatusCompleted)
		snapshot.Progress = 100
		snapshot.Message = update.Message
		snapshot.CompletedAt = &now
	case EventTypeBatchError:
		snapshot.Status = string(RunStatusFailed)
		snapshot.Error = update.Message
		snapshot.CompletedAt = &now
	}
	snapshot.UpdatedAt = now
	out := snapshot.clone()
	sb.mu.Unlock()

	sb.broadcast(out)
}

func (s *BatchSnapshot) date(tradeDate string) *DateSnapshot {
	for i := range s.Dates {
		if s.Dates[i].TradeDate == tradeDate {
			return &s.Dates[i]
		}
	}
	s.Dates = append(s.Dates, DateSnapshot{TradeDate: tradeDate, Status: string(RunStatusPending)})
	sort.Slice(s.Dates, func(i, j int) bool { return s.Dates[i].TradeDate < s.Dates[j].TradeDate })
	for i := range s.Dates {
		if s.Dates[i].TradeDate == tradeDate {
			return &s.Dates[i]
		}
	}
	return nil
}

func (s *BatchSnapshot) clone() *BatchSnapshot {
	out := *s
	out.Dates = append([]DateSnapshot(nil), s.Dates...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func (sb *StatusBroadcaster) broadcast(snapshot *BatchSnapshot) {
	if sb.hub == nil {
		return
	}
	sb.logger.Debug("broadcasting batch snapshot",
		slog.String("batch_id", snapshot.BatchID),
		slog.String("status", snapshot.Status),
		slog.Int("progress", snapshot.Progress),
		slog.Int("dates", len(snapshot.Dates)))
	sb.hub.BroadcastUpdate(EventTypeBatchSnapshot, snapshot.BatchID, snapshot.Status, snapshot)
}

// GetSnapshot returns a copy of a batch's snapshot
func (sb *StatusBroadcaster) GetSnapshot(batchID string) (*BatchSnapshot, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	snapshot, ok := sb.batches[batchID]
	if !ok {
		return nil, false
	}
	return snapshot.clone(), true
}

// GetAllSnapshots returns every known batch, newest first
func (sb *StatusBroadcaster) GetAllSnapshots() []*BatchSnapshot {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	out := make([]*BatchSnapshot, 0, len(sb.batches))
	for _, snapshot := range sb.batches {
		out = append(out, snapshot.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// CleanupOldBatches drops finished batches older than maxAge
func (sb *StatusBroadcaster) CleanupOldBatches(ctx context.Context, maxAge time.Duration) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	now := time.Now()
	for id, snapshot := range sb.batches {
		if snapshot.CompletedAt != nil && now.Sub(*snapshot.CompletedAt) > maxAge {
			delete(sb.batches, id)
			sb.logger.InfoContext(ctx, "cleaned up old batch",
				slog.String("batch_id", id),
				slog.String("status", snapshot.Status))
		}
	}
}

// Stop shuts down the update goroutine
func (sb *StatusBroadcaster) Stop() {
	sb.once.Do(func() { close(sb.stop) })
}
