package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/liamcoop/stagegate/rules"
)

// PostgresJobStore implements JobStore backed by PostgreSQL
type PostgresJobStore struct {
	db *sql.DB
}

// NewPostgresJobStore creates a new PostgreSQL-backed JobStore
func NewPostgresJobStore(db *sql.DB) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// Create inserts a new job
func (s *PostgresJobStore) Create(ctx context.Context, job *Job) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)
	`, job.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check job existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, title, stage, contact_id, partner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.ID, job.Title, string(job.Stage), nullString(job.ContactID), nullString(job.PartnerID),
		job.CreatedAt, job.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// Get retrieves a job by ID
func (s *PostgresJobStore) Get(ctx context.Context, id string) (*Job, error) {
	if !isUUID(id) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	var (
		job       Job
		stage     string
		contactID sql.NullString
		partnerID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, stage, contact_id, partner_id, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`, id).Scan(
		&job.ID,
		&job.Title,
		&stage,
		&contactID,
		&partnerID,
		&job.CreatedAt,
		&job.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.Stage = rules.Stage(stage)
	job.ContactID = contactID.String
	job.PartnerID = partnerID.String
	return &job, nil
}

// ApplyTransition updates the job's stage and records the transition in one
// transaction. The UPDATE is conditional on the stage still being tr.From.
func (s *PostgresJobStore) ApplyTransition(ctx context.Context, tr *Transition) error {
	if !isUUID(tr.JobID) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, tr.JobID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET stage = $1, updated_at = $2
		WHERE id = $3 AND stage = $4
	`, string(tr.To), tr.At, tr.JobID, string(tr.From))
	if err != nil {
		return fmt.Errorf("failed to update job stage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT stage FROM jobs WHERE id = $1`, tr.JobID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, tr.JobID)
		}
		if err != nil {
			return fmt.Errorf("failed to read job stage: %w", err)
		}
		return fmt.Errorf("%w: job %s is at %s, expected %s", ErrStageConflict, tr.JobID, current, tr.From)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stage_transitions (id, job_id, from_stage, to_stage, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tr.ID, tr.JobID, string(tr.From), string(tr.To), nullString(tr.Actor), tr.At)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	return nil
}

// ListTransitions returns the job's history, oldest first
func (s *PostgresJobStore) ListTransitions(ctx context.Context, jobID string) ([]*Transition, error) {
	if _, err := s.Get(ctx, jobID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, from_stage, to_stage, actor, created_at
		FROM stage_transitions
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	history := []*Transition{}
	for rows.Next() {
		var (
			tr       Transition
			from, to string
			actor    sql.NullString
		)
		if err := rows.Scan(&tr.ID, &tr.JobID, &from, &to, &actor, &tr.At); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.From = rules.Stage(from)
		tr.To = rules.Stage(to)
		tr.Actor = actor.String
		history = append(history, &tr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}

	return history, nil
}

// isUUID guards UUID columns; anything else cannot match a stored job.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = pq.ErrorCode("23505")

// isUniqueViolation reports whether err is a duplicate-key error, which is
// how a concurrent Create of the same ID surfaces past the EXISTS check.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
