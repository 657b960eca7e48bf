package operations

// WebSocketHub interface for sending WebSocket messages
type WebSocketHub interface {
	BroadcastUpdate(eventType, step, status string, metadata interface{})
}

// ProgressUpdate is one progress event from a run or batch.
type ProgressUpdate struct {
	BatchID   string                 `json:"batch_id,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	TradeDate string                 `json:"trade_date,omitempty"`
	EventType string                 `json:"event_type"`
	StepID    string                 `json:"step_id,omitempty"`
	Status    string                 `json:"status"`
	Progress  int                    `json:"progress"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ProgressReporter receives progress events. Implementations must be safe
// for concurrent use; dateset workers report in parallel.
type ProgressReporter interface {
	ReportProgress(update ProgressUpdate)
}

// HubReporter forwards progress events to a WebSocket hub.
type HubReporter struct {
	Hub WebSocketHub
}

// ReportProgress broadcasts the update.
func (h HubReporter) ReportProgress(update ProgressUpdate) {
	if h.Hub == nil {
		return
	}
	h.Hub.BroadcastUpdate(update.EventType, update.StepID, update.Status, update)
}

// NopReporter discards progress events.
type NopReporter struct{}

// ReportProgress does nothing.
func (NopReporter) ReportProgress(ProgressUpdate) {}

// BatchReporter stamps every event with a batch ID before forwarding it.
type BatchReporter struct {
	BatchID string
	Next    ProgressReporter
}

// ReportProgress forwards the stamped update.
func (b BatchReporter) ReportProgress(update ProgressUpdate) {
	if b.Next == nil {
		return
	}
	if update.BatchID == "" {
		update.BatchID = b.BatchID
	}
	b.Next.ReportProgress(update)
}

// MultiReporter forwards every event to each reporter in order.
type MultiReporter []ProgressReporter

// ReportProgress fans the update out. Nil entries are skipped.
func (m MultiReporter) ReportProgress(update ProgressUpdate) {
	for _, r := range m {
		if r != nil {
			r.ReportProgress(update)
		}
	}
}
