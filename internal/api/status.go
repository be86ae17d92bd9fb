package api

import (
	"sync"
	"time"

	"github.com/dashpay/functest-runner/internal/job"
	"github.com/dashpay/functest-runner/internal/scheduler"
)

// Status is the progress of a run as served by /jobs.
type Status struct {
	RunID     string              `json:"run_id"`
	StartedAt time.Time           `json:"started_at"`
	Total     int                 `json:"total"`
	Finished  int                 `json:"finished"`
	Pending   int                 `json:"pending"`
	Running   []scheduler.JobInfo `json:"running"`
	Results   []job.Result        `json:"results"`
}

// Store holds the last published status. The scheduler is single-threaded,
// so the runner publishes into the store between scheduling steps and the
// HTTP handlers only ever read copies.
type Store struct {
	mu     sync.RWMutex
	status Status
}

// NewStore creates an empty status for a run of total tests.
func NewStore(runID string, total int, startedAt time.Time) *Store {
	return &Store{status: Status{
		RunID:     runID,
		StartedAt: startedAt,
		Total:     total,
		Pending:   total,
		Running:   []scheduler.JobInfo{},
		Results:   []job.Result{},
	}}
}

// SetQueue replaces the running and pending part of the status.
func (s *Store) SetQueue(running []scheduler.JobInfo, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = append([]scheduler.JobInfo{}, running...)
	s.status.Pending = pending
}

// AddResult records a finished test.
func (s *Store) AddResult(r job.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Results = append(s.status.Results, r)
	s.status.Finished = len(s.status.Results)
}

// Snapshot returns a copy of the current status.
func (s *Store) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.Running = append([]scheduler.JobInfo{}, s.status.Running...)
	st.Results = append([]job.Result{}, s.status.Results...)
	return st
}
