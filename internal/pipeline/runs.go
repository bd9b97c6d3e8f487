package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an asynchronous run.
type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCanceled  RunStatus = "canceled"
)

// Done reports whether the run has reached a final state.
func (s RunStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Run tracks one pipeline run queued through the Orchestrator.
type Run struct {
	mu sync.Mutex

	ID          string
	ConfigPath  string // Relative to the orchestrator root; empty means discover
	RoutingMode string // Overrides routing.mode when set

	status    RunStatus
	stage     string
	summary   *Summary
	err       string
	createdAt time.Time
	updatedAt time.Time
}

// NewRun returns a queued run with a fresh id.
func NewRun(configPath, routingMode string) *Run {
	now := time.Now()
	return &Run{
		ID:          uuid.NewString(),
		ConfigPath:  configPath,
		RoutingMode: routingMode,
		status:      StatusQueued,
		stage:       "queued",
		createdAt:   now,
		updatedAt:   now,
	}
}

// SetStatus updates run status atomically.
func (r *Run) SetStatus(status RunStatus, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.stage = stage
	r.updatedAt = time.Now()
}

// SetStage records the progress message of the stage in flight.
func (r *Run) SetStage(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = stage
	r.updatedAt = time.Now()
}

// Complete marks the run completed with its summary.
func (r *Run) Complete(s *Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = StatusCompleted
	r.stage = "done"
	r.summary = s
	r.updatedAt = time.Now()
}

// Fail records err and moves the run to status.
func (r *Run) Fail(status RunStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.err = err.Error()
	r.updatedAt = time.Now()
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID          string    `json:"run_id"`
	Status      RunStatus `json:"status"`
	Stage       string    `json:"stage"`
	ConfigPath  string    `json:"config,omitempty"`
	RoutingMode string    `json:"routing_mode,omitempty"`
	Summary     *Summary  `json:"summary,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var summary *Summary
	if r.summary != nil {
		s := *r.summary
		summary = &s
	}
	return RunSnapshot{
		ID:          r.ID,
		Status:      r.status,
		Stage:       r.stage,
		ConfigPath:  r.ConfigPath,
		RoutingMode: r.RoutingMode,
		Summary:     summary,
		Error:       r.err,
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
	}
}

func (r *Run) lastUpdate() (RunStatus, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.updatedAt
}

// RunStore is a thread-safe in-memory run registry with TTL eviction.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]*Run
	ttl  time.Duration
}

func NewRunStore(ttl time.Duration) *RunStore {
	return &RunStore{
		runs: make(map[string]*Run),
		ttl:  ttl,
	}
}

func (s *RunStore) Put(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

func (s *RunStore) Get(id string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

func (s *RunStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Cleanup removes finished runs not updated within the TTL.
func (s *RunStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, run := range s.runs {
		status, updated := run.lastUpdate()
		if status.Done() && now.Sub(updated) > s.ttl {
			delete(s.runs, id)
		}
	}
}
