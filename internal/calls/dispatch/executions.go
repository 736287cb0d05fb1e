package dispatch

import (
	"sync"
	"time"

	"hireline_backend/internal/calls/domain"
)

// Async execution states.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// executionRetention is how long a finished execution stays pollable.
const executionRetention = time.Hour

// Execution is a point-in-time snapshot of one async dispatch.
type Execution struct {
	ID         string              `json:"executionId"`
	Status     string              `json:"status"`
	StartedAt  time.Time           `json:"startedAt"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
	Result     *domain.BatchResult `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// executionLog keeps recent async dispatches for status polling. Finished
// entries are pruned once the retention window passes.
type executionLog struct {
	mu      sync.Mutex
	entries map[string]*Execution
	now     func() time.Time
}

func newExecutionLog() *executionLog {
	return &executionLog{
		entries: make(map[string]*Execution),
		now:     time.Now,
	}
}

func (l *executionLog) start(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune()
	l.entries[id] = &Execution{
		ID:        id,
		Status:    ExecutionRunning,
		StartedAt: l.now(),
	}
}

func (l *executionLog) finish(id string, batch domain.BatchResult, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exec, ok := l.entries[id]
	if !ok {
		return
	}
	finished := l.now()
	exec.FinishedAt = &finished
	if err != nil {
		exec.Status = ExecutionFailed
		exec.Error = err.Error()
		return
	}
	exec.Status = ExecutionCompleted
	exec.Result = &batch
}

func (l *executionLog) get(id string) (Execution, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exec, ok := l.entries[id]
	if !ok {
		return Execution{}, false
	}
	return *exec, true
}

// prune drops finished entries past retention. Caller holds the lock.
func (l *executionLog) prune() {
	cutoff := l.now().Add(-executionRetention)
	for id, exec := range l.entries {
		if exec.FinishedAt != nil && exec.FinishedAt.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}
