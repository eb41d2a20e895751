package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/liamcoop/stagegate/rules"
)

var (
	// ErrJobNotFound is returned when a job ID does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when creating a job whose ID is taken.
	ErrJobExists = errors.New("job already exists")

	// ErrStageConflict is returned when a job's stage changed between the
	// snapshot and the write. Callers retry with a fresh snapshot.
	ErrStageConflict = errors.New("job stage changed concurrently")
)

// Job is the slice of a CRM job record the pipeline needs
type Job struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Stage     rules.Stage `json:"stage"`
	ContactID string      `json:"contactId,omitempty"`
	PartnerID string      `json:"partnerId,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Transition records an authorized stage change
type Transition struct {
	ID    string      `json:"id"`
	JobID string      `json:"jobId"`
	From  rules.Stage `json:"from"`
	To    rules.Stage `json:"to"`
	Actor string      `json:"actor,omitempty"`
	At    time.Time   `json:"at"`
}

// JobStore persists jobs and their stage history
type JobStore interface {
	// Create a new job
	Create(ctx context.Context, job *Job) error

	// Get a job by ID
	Get(ctx context.Context, id string) (*Job, error)

	// ApplyTransition moves the job from tr.From to tr.To and records tr.
	// It fails with ErrStageConflict if the stored stage is no longer tr.From.
	ApplyTransition(ctx context.Context, tr *Transition) error

	// ListTransitions returns a job's history, oldest first
	ListTransitions(ctx context.Context, jobID string) ([]*Transition, error)
}

// InMemoryJobStore implements JobStore using in-memory maps.
// Thread-safe with RWMutex.
type InMemoryJobStore struct {
	jobs        map[string]*Job
	transitions map[string][]*Transition
	mu          sync.RWMutex
}

// NewInMemoryJobStore creates a new in-memory job store
func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{
		jobs:        make(map[string]*Job),
		transitions: make(map[string][]*Transition),
	}
}

// Create adds a job and sets its timestamps
func (s *InMemoryJobStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	stored := *job
	s.jobs[job.ID] = &stored
	return nil
}

// Get returns a copy of the job
func (s *InMemoryJobStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	out := *job
	return &out, nil
}

// ApplyTransition updates the stage if it still matches tr.From
func (s *InMemoryJobStore) ApplyTransition(_ context.Context, tr *Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[tr.JobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, tr.JobID)
	}

	if job.Stage != tr.From {
		return fmt.Errorf("%w: job %s is at %s, expected %s", ErrStageConflict, tr.JobID, job.Stage, tr.From)
	}

	job.Stage = tr.To
	job.UpdatedAt = tr.At

	recorded := *tr
	s.transitions[tr.JobID] = append(s.transitions[tr.JobID], &recorded)
	return nil
}

// ListTransitions returns copies of the job's transitions, oldest first
func (s *InMemoryJobStore) ListTransitions(_ context.Context, jobID string) ([]*Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.jobs[jobID]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	history := s.transitions[jobID]
	out := make([]*Transition, len(history))
	for i, tr := range history {
		cp := *tr
		out[i] = &cp
	}
	return out, nil
}
