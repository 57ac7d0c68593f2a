package partition

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the phase of a partition load.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// LoadingState is the transient per-partition load state. It is held
// in memory only and never persisted.
type LoadingState struct {
	Status      Status    `json:"status"`
	Progress    float64   `json:"progress"`
	Error       string    `json:"error,omitempty"`
	OperationID string    `json:"operation_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// stateTracker keeps the loading state per partition key.
type stateTracker struct {
	mu     sync.RWMutex
	states map[string]LoadingState
}

func newStateTracker() *stateTracker {
	return &stateTracker{states: make(map[string]LoadingState)}
}

// get returns the state for a key, idle when never touched.
func (t *stateTracker) get(key string) LoadingState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[key]; ok {
		return s
	}
	return LoadingState{Status: StatusIdle}
}

// setLoading marks a fresh load attempt and returns its operation id.
func (t *stateTracker) setLoading(key string) string {
	opID := uuid.New().String()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[key] = LoadingState{
		Status:      StatusLoading,
		OperationID: opID,
		UpdatedAt:   time.Now(),
	}
	return opID
}

// setProgress updates the percentage of a running load.
func (t *stateTracker) setProgress(key string, percentage float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.states[key]
	s.Progress = percentage
	s.UpdatedAt = time.Now()
	t.states[key] = s
}

// setSuccess marks a completed load.
func (t *stateTracker) setSuccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.states[key]
	s.Status = StatusSuccess
	s.Progress = 100
	s.Error = ""
	s.UpdatedAt = time.Now()
	t.states[key] = s
}

// setError marks a failed load with its message.
func (t *stateTracker) setError(key string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.states[key]
	s.Status = StatusError
	s.Error = err.Error()
	s.UpdatedAt = time.Now()
	t.states[key] = s
}

// clear drops the state for a key.
func (t *stateTracker) clear(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, key)
}
