package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/stagegate/internal/logger"
	"github.com/liamcoop/stagegate/rules"
)

// Service is the job-update caller of the stage engine: it loads a job,
// asks the provider for a fresh snapshot, authorizes the move and only then
// persists it.
type Service struct {
	store           JobStore
	provider        FactProvider
	table           *rules.Table
	evaluator       *rules.Evaluator
	authorizer      *rules.Authorizer
	snapshotTimeout time.Duration
	now             func() time.Time
}

// NewService wires a service. snapshotTimeout bounds snapshot assembly only.
func NewService(store JobStore, provider FactProvider, table *rules.Table, snapshotTimeout time.Duration) *Service {
	return &Service{
		store:           store,
		provider:        provider,
		table:           table,
		evaluator:       rules.NewEvaluator(table),
		authorizer:      rules.NewAuthorizer(table),
		snapshotTimeout: snapshotTimeout,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Table returns the rule table the service authorizes against
func (s *Service) Table() *rules.Table {
	return s.table
}

// CreateJob stores a new job at the table's initial stage
func (s *Service) CreateJob(ctx context.Context, title, contactID string) (*Job, error) {
	job := &Job{
		ID:        uuid.New().String(),
		Title:     title,
		Stage:     s.table.Initial(),
		ContactID: contactID,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Job returns a job by ID
func (s *Service) Job(ctx context.Context, jobID string) (*Job, error) {
	return s.store.Get(ctx, jobID)
}

// History returns the job's transitions, oldest first
func (s *Service) History(ctx context.Context, jobID string) ([]*Transition, error) {
	return s.store.ListTransitions(ctx, jobID)
}

// Readiness evaluates stage's prerequisites against the job's live facts
func (s *Service) Readiness(ctx context.Context, jobID string, stage rules.Stage) (rules.Verdict, error) {
	if !s.table.Has(stage) {
		return rules.Verdict{}, fmt.Errorf("%w: %q", rules.ErrUnknownStage, stage)
	}

	if _, err := s.store.Get(ctx, jobID); err != nil {
		return rules.Verdict{}, err
	}

	facts, err := s.snapshot(ctx, jobID)
	if err != nil {
		return rules.Verdict{}, err
	}

	return s.evaluator.Evaluate(stage, facts)
}

// Transition moves a job to stage to if the authorizer allows it. A denied
// move returns the decision with a nil transition and no error. Errors are
// reserved for unknown stages, missing jobs, snapshot failures and
// ErrStageConflict when another writer moved the job first.
func (s *Service) Transition(ctx context.Context, jobID string, to rules.Stage, actor string) (rules.Decision, *Transition, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return rules.Decision{}, nil, err
	}

	facts, err := s.snapshot(ctx, jobID)
	if err != nil {
		return rules.Decision{}, nil, err
	}

	decision, err := s.authorizer.Authorize(job.Stage, to, facts)
	if err != nil {
		return rules.Decision{}, nil, err
	}
	logger.Transition(decision.Allowed)

	if !decision.Allowed {
		logger.Debug("transition rejected",
			"job_id", jobID,
			"from", job.Stage,
			"to", to,
			"reason", decision.Reason,
		)
		return decision, nil, nil
	}

	tr := &Transition{
		ID:    uuid.New().String(),
		JobID: jobID,
		From:  job.Stage,
		To:    to,
		Actor: actor,
		At:    s.now(),
	}
	if err := s.store.ApplyTransition(ctx, tr); err != nil {
		return decision, nil, err
	}

	logger.Info("job stage changed", "job_id", jobID, "from", tr.From, "to", tr.To, "actor", actor)
	return decision, tr, nil
}

func (s *Service) snapshot(ctx context.Context, jobID string) (rules.Facts, error) {
	if s.snapshotTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.snapshotTimeout)
		defer cancel()
	}

	facts, err := s.provider.Snapshot(ctx, jobID)
	if err != nil {
		logger.SnapshotFailures.Add(1)
		return nil, fmt.Errorf("failed to assemble facts for job %s: %w", jobID, err)
	}
	return facts, nil
}
