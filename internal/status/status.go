// Package status keeps one lifecycle record per crawl run. Records are built
// from progress events and served by the ops API.
package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/yacrawler/internal/progress"
)

// ErrNotFound is returned when no record exists for a run id.
var ErrNotFound = errors.New("run status not found")

// State is the lifecycle phase of a run.
type State string

// Run states.
const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCanceled  State = "canceled"
)

// RunStatus summarizes a crawl run.
type RunStatus struct {
	RunID       string        `json:"run_id"`
	State       State         `json:"state"`
	StartedAt   time.Time     `json:"started_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	FinishedAt  time.Time     `json:"finished_at,omitzero"`
	Tasks       int           `json:"tasks"`
	Fetched     int           `json:"fetched"`
	FetchErrors int           `json:"fetch_errors"`
	StageErrors int           `json:"stage_errors"`
	Canceled    int           `json:"canceled_tasks"`
	Enqueued    int           `json:"enqueued"`
	Bytes       int64         `json:"bytes"`
	Active      int           `json:"active"`
	Duration    time.Duration `json:"duration_ns"`
}

// Apply folds evt into the record. Events for other runs are ignored.
func (s *RunStatus) Apply(evt progress.Event) {
	if s.RunID == "" {
		s.RunID = evt.RunID
	}
	if evt.RunID != s.RunID {
		return
	}
	switch evt.Stage {
	case progress.StageRunStart:
		s.State = StateRunning
		s.StartedAt = evt.TS
	case progress.StageRunDone:
		s.State = StateCompleted
		if evt.Note == progress.OutcomeCanceled {
			s.State = StateCanceled
		}
		s.FinishedAt = evt.TS
		s.Duration = evt.Dur
	case progress.StageTaskStart:
		s.Tasks++
	case progress.StageFetchDone:
		s.Fetched++
		s.Bytes += evt.Bytes
		s.Enqueued += evt.Enqueued
	case progress.StageFetchError:
		s.FetchErrors++
	case progress.StageStageError:
		s.StageErrors++
	case progress.StageTaskCanceled:
		s.Canceled++
	}
	s.Active = evt.Active
	if evt.TS.After(s.UpdatedAt) {
		s.UpdatedAt = evt.TS
	}
}

// Store persists run records.
type Store interface {
	Put(ctx context.Context, status RunStatus) error
	Get(ctx context.Context, runID string) (RunStatus, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]RunStatus
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]RunStatus)}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, status RunStatus) error {
	if status.RunID == "" {
		return errors.New("run id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[status.RunID] = status
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, runID string) (RunStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.runs[runID]
	if !ok {
		return RunStatus{}, ErrNotFound
	}
	return status, nil
}
