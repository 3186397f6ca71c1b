// Package jobs is the durable registry of pipeline runs: status
// transitions, error messages, result handles, and timestamps.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/documently/docuflow/engine/domain"
	"github.com/documently/docuflow/pkg/fn"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Registry persists Job records in Postgres.
type Registry struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// New creates a job Registry.
func New(pool *pgxpool.Pool, log *slog.Logger) *Registry {
	return &Registry{pool: pool, log: log}
}

var statusUpdateRetry = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: 200 * time.Millisecond,
	MaxWait:     2 * time.Second,
	Jitter:      true,
}

// Create inserts a new Job in the queued state.
func (r *Registry) Create(ctx context.Context, userID, documentURL string) (domain.Job, error) {
	job := domain.Job{
		ID:          uuid.NewString(),
		UserID:      userID,
		DocumentURL: documentURL,
		Status:      domain.StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, document_url, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.UserID, job.DocumentURL, job.Status, job.CreatedAt,
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}
	r.log.Info("job created", "job_id", job.ID, "user_id", userID)
	return job, nil
}

// UpdateStatus moves job_id to a new stage, setting started_at on the
// first transition away from queued. It retries up to 3 times on
// transient storage failure and never returns an error that should abort
// the pipeline — callers log the returned error and continue.
func (r *Registry) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg string) error {
	result := fn.Retry(ctx, statusUpdateRetry, func(ctx context.Context) fn.Result[struct{}] {
		_, err := r.pool.Exec(ctx, `
			UPDATE jobs
			SET status = $2,
			    error_message = NULLIF($3, ''),
			    started_at = COALESCE(started_at, CASE WHEN $2 <> 'queued' THEN now() END)
			WHERE id = $1`,
			jobID, status, errMsg,
		)
		return fn.FromPair(struct{}{}, err)
	})
	if result.IsErr() {
		_, err := result.Unwrap()
		r.log.Error("job status update exhausted retries", "job_id", jobID, "status", status, "err", err)
		return err
	}
	return nil
}

// Complete marks jobID completed with its resulting document and question
// count.
func (r *Registry) Complete(ctx context.Context, jobID, documentID string, questionCount int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, document_id = $3, question_count = $4, completed_at = now()
		WHERE id = $1`,
		jobID, domain.StatusCompleted, documentID, questionCount,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail marks jobID failed with the given user-visible error message.
func (r *Registry) Fail(ctx context.Context, jobID, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, error_message = $3, completed_at = now()
		WHERE id = $1`,
		jobID, domain.StatusFailed, errMsg,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Get fetches a Job by id.
func (r *Registry) Get(ctx context.Context, jobID string) (domain.Job, error) {
	var j domain.Job
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, document_url, status, COALESCE(error_message, ''),
		       COALESCE(document_id, ''), question_count, created_at, started_at, completed_at
		FROM jobs WHERE id = $1`, jobID,
	).Scan(&j.ID, &j.UserID, &j.DocumentURL, &j.Status, &j.ErrorMessage,
		&j.DocumentID, &j.QuestionCount, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListByUser returns a page of jobs owned by userID, most recent first.
func (r *Registry) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, document_url, status, COALESCE(error_message, ''),
		       COALESCE(document_id, ''), question_count, created_at, started_at, completed_at
		FROM jobs WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		var j domain.Job
		if err := rows.Scan(&j.ID, &j.UserID, &j.DocumentURL, &j.Status, &j.ErrorMessage,
			&j.DocumentID, &j.QuestionCount, &j.CreatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
