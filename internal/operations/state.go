package operations

import (
	"sync"
	"time"
)

// RunStatus represents the overall status of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunState tracks one per-date run: its status and the state of each step
// in execution order.
type RunState struct {
	mu sync.RWMutex

	ID        string     `json:"id"`
	Label     string     `json:"label,omitempty"`
	Status    RunStatus  `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Error     string     `json:"error,omitempty"`

	order []string
	steps map[string]*StepState
}

// NewRunState creates a pending run with one pending StepState per step.
func NewRunState(id, label string, steps []Step) *RunState {
	state := &RunState{
		ID:     id,
		Label:  label,
		Status: RunStatusPending,
		steps:  make(map[string]*StepState, len(steps)),
	}
	for _, step := range steps {
		state.order = append(state.order, step.ID())
		state.steps[step.ID()] = NewStepState(step.ID(), step.Name())
	}
	return state
}

// Start marks the run as running
func (r *RunState) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusRunning
	r.StartTime = time.Now()
}

// Complete marks the run as completed
func (r *RunState) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusCompleted
}

// Fail marks the run as failed
func (r *RunState) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusFailed
	if err != nil {
		r.Error = err.Error()
	}
}

// Cancel marks the run as cancelled
func (r *RunState) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusCancelled
}

// GetStatus returns the run status.
func (r *RunState) GetStatus() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// Step returns the state of a specific step, or nil.
func (r *RunState) Step(stepID string) *StepState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.steps[stepID]
}

// Steps returns step states in execution order.
func (r *RunState) Steps() []*StepState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*StepState, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.steps[id])
	}
	return out
}

// Duration returns the duration of the run
func (r *RunState) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.StartTime.IsZero() {
		return 0
	}
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	return time.Since(r.StartTime)
}

// Progress is the mean step progress, 0-100.
func (r *RunState) Progress() int {
	steps := r.Steps()
	if len(steps) == 0 {
		return 0
	}
	var total float64
	for _, s := range steps {
		s.mu.RLock()
		if s.Status == StepStatusSkipped {
			total += 100
		} else {
			total += s.Progress
		}
		s.mu.RUnlock()
	}
	return int(total / float64(len(steps)))
}

// HasFailures returns true if any step has failed
func (r *RunState) HasFailures() bool {
	for _, s := range r.Steps() {
		if s.GetStatus() == StepStatusFailed {
			return true
		}
	}
	return false
}

// Results returns the JSON view of every step in execution order.
func (r *RunState) Results() []StepResult {
	steps := r.Steps()
	out := make([]StepResult, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Result())
	}
	return out
}
