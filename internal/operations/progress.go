package operations

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker counts finished dates of a batch
type ProgressTracker struct {
	mu        sync.Mutex
	total     int
	succeeded int
	failed    int
	message   string
	startTime time.Time
	now       func() time.Time
}

// NewProgressTracker creates a tracker for total dates
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{total: total, startTime: time.Now(), now: time.Now}
}

// Record marks one date finished.
func (p *ProgressTracker) Record(tradeDate string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.failed++
		p.message = fmt.Sprintf("%s failed: %v", tradeDate, err)
		return
	}
	p.succeeded++
	p.message = fmt.Sprintf("%s done", tradeDate)
}

// Counts returns finished, succeeded and failed dates.
func (p *ProgressTracker) Counts() (done, succeeded, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.succeeded + p.failed, p.succeeded, p.failed
}

// Percentage returns progress in [0, 100].
func (p *ProgressTracker) Percentage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total <= 0 {
		return 100
	}
	return (p.succeeded + p.failed) * 100 / p.total
}

// Message returns the latest status line.
func (p *ProgressTracker) Message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

// ETA estimates the time remaining from the mean time per finished date.
func (p *ProgressTracker) ETA() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	done := p.succeeded + p.failed
	if done == 0 || p.total == 0 {
		return "calculating..."
	}
	perDate := p.now().Sub(p.startTime).Seconds() / float64(done)
	remaining := perDate * float64(p.total-done)

	switch {
	case remaining < 60:
		return fmt.Sprintf("%.0f seconds", remaining)
	case remaining < 3600:
		return fmt.Sprintf("%.1f minutes", remaining/60)
	default:
		return fmt.Sprintf("%.1f hours", remaining/3600)
	}
}

// IsComplete returns true once every date has finished
func (p *ProgressTracker) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.succeeded+p.failed >= p.total
}

// Update builds a batch progress event from the current counts.
func (p *ProgressTracker) Update(batchID, tradeDate string) ProgressUpdate {
	done, succeeded, failed := p.Counts()
	return ProgressUpdate{
		BatchID:   batchID,
		TradeDate: tradeDate,
		EventType: EventTypeBatchProgress,
		Status:    string(RunStatusRunning),
		Progress:  p.Percentage(),
		Message:   p.Message(),
		Metadata: map[string]interface{}{
			"total":     p.total,
			"done":      done,
			"succeeded": succeeded,
			"failed":    failed,
			"eta":       p.ETA(),
		},
	}
}
