package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/google/uuid"

	"github.com/engagic/ingest/pkg/models"
)

// ErrNoJobAvailable is returned by ClaimNext when the queue has nothing
// pending.
var ErrNoJobAvailable = errors.New("repository: no queue job available")

// QueueRepository stores and claims QueueJob rows, the handoff surface
// to the external summarization processor.
type QueueRepository struct {
	db DB
}

// Enqueue inserts a new pending job for sourceURL, idempotent on
// sourceURL: a meeting whose agenda or packet URL is already queued
// produces no second row, per the "at most one job per source_url"
// invariant. Returns the new job's id, or "" when a job for sourceURL
// already existed and nothing was inserted.
func (r *QueueRepository) Enqueue(ctx context.Context, sourceURL, meetingID, banana string, priority int) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO queue_jobs (id, source_url, meeting_id, banana, status, priority, max_attempts)
		VALUES ($1, $2, $3, $4, 'pending', $5, 3)
		ON CONFLICT (source_url) DO NOTHING
		RETURNING id
	`, uuid.NewString(), sourceURL, meetingID, banana, priority).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("repository: enqueue job for %s: %w", sourceURL, err)
	}
	return id, nil
}

// HasPendingForSourceURL reports whether a pending or processing job
// already exists for sourceURL, the check the sync orchestrator's
// enqueue decider uses before inserting another one.
func (r *QueueRepository) HasPendingForSourceURL(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM queue_jobs WHERE source_url = $1 AND status IN ('pending', 'processing'))
	`, sourceURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: has pending for %s: %w", sourceURL, err)
	}
	return exists, nil
}

// ClaimNext atomically claims the highest-priority pending job, using
// FOR UPDATE SKIP LOCKED so concurrent processors never block on each
// other the way a plain row lock would.
//
// pool must be the real pgxpool.Pool (not a transaction-scoped
// Repositories) because the claim itself needs its own transaction,
// distinct from whatever transaction the caller might already be in.
func ClaimNext(ctx context.Context, pool *pgxpool.Pool) (*models.QueueJob, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: claim next: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var job models.QueueJob
	var status string
	err = tx.QueryRow(ctx, `
		SELECT id, source_url, meeting_id, banana, status, priority, attempts, max_attempts, last_error, created_at, updated_at
		FROM queue_jobs
		WHERE status = 'pending'
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`).Scan(&job.ID, &job.SourceURL, &job.MeetingID, &job.Banana, &status, &job.Priority, &job.Attempts, &job.MaxAttempts, &job.LastError, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobAvailable
		}
		return nil, fmt.Errorf("repository: claim next: select: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE queue_jobs SET status = 'processing', claimed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`, job.ID)
	if err != nil {
		return nil, fmt.Errorf("repository: claim next: update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: claim next: commit: %w", err)
	}

	job.Status = models.QueueJobProcessing
	return &job, nil
}

// ClaimByID atomically claims a specific pending job, the city-scoped
// counterpart to ClaimNext used by sync-and-process-city so a forced
// run only drains the jobs it just looked up, even if another process
// is draining the global queue concurrently. Returns ErrNoJobAvailable
// if jobID is no longer pending (already claimed elsewhere).
func ClaimByID(ctx context.Context, pool *pgxpool.Pool, jobID string) (*models.QueueJob, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: claim by id: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var job models.QueueJob
	var status string
	err = tx.QueryRow(ctx, `
		SELECT id, source_url, meeting_id, banana, status, priority, attempts, max_attempts, last_error, created_at, updated_at
		FROM queue_jobs WHERE id = $1 AND status = 'pending'
		FOR UPDATE SKIP LOCKED
	`, jobID).Scan(&job.ID, &job.SourceURL, &job.MeetingID, &job.Banana, &status, &job.Priority, &job.Attempts, &job.MaxAttempts, &job.LastError, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobAvailable
		}
		return nil, fmt.Errorf("repository: claim by id: select: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE queue_jobs SET status = 'processing', claimed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`, job.ID)
	if err != nil {
		return nil, fmt.Errorf("repository: claim by id: update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: claim by id: commit: %w", err)
	}

	job.Status = models.QueueJobProcessing
	return &job, nil
}

// Complete marks a job as finished, either because the summarization
// processor succeeded, or, when err is non-nil, because it failed -- in
// which case the job is either retried (incrementing attempts) or
// transitioned to dead_letter once max_attempts is exhausted.
func (r *QueueRepository) Complete(ctx context.Context, jobID string, procErr error) error {
	if procErr == nil {
		_, err := r.db.Exec(ctx, `UPDATE queue_jobs SET status = 'completed', updated_at = CURRENT_TIMESTAMP WHERE id = $1`, jobID)
		if err != nil {
			return fmt.Errorf("repository: complete job %s: %w", jobID, err)
		}
		return nil
	}

	errMsg := procErr.Error()
	_, err := r.db.Exec(ctx, `
		UPDATE queue_jobs
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'dead_letter' ELSE 'pending' END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`, jobID, errMsg)
	if err != nil {
		return fmt.Errorf("repository: fail job %s: %w", jobID, err)
	}
	return nil
}

// CountPending returns how many jobs are pending or processing across
// every city, the headline number the conductor's status report is
// built on.
func (r *QueueRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM queue_jobs WHERE status IN ('pending', 'processing')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository: count pending jobs: %w", err)
	}
	return count, nil
}

// ForCity returns banana's pending and processing queue jobs (completed,
// failed and dead-lettered jobs are not returned), used by
// sync-and-process-city to drain exactly that city's work.
func (r *QueueRepository) ForCity(ctx context.Context, banana string) ([]models.QueueJob, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, source_url, meeting_id, banana, status, priority, attempts, max_attempts, last_error, created_at, updated_at
		FROM queue_jobs WHERE banana = $1 AND status IN ('pending', 'processing') ORDER BY priority DESC, created_at
	`, banana)
	if err != nil {
		return nil, fmt.Errorf("repository: queue jobs for city %s: %w", banana, err)
	}
	defer rows.Close()

	var jobs []models.QueueJob
	for rows.Next() {
		var j models.QueueJob
		var status string
		if err := rows.Scan(&j.ID, &j.SourceURL, &j.MeetingID, &j.Banana, &status, &j.Priority, &j.Attempts, &j.MaxAttempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: scan queue job: %w", err)
		}
		j.Status = models.QueueJobStatus(status)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
