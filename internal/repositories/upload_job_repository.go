package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/handihand/backend/internal/db"
	"github.com/handihand/backend/internal/models"
)

// PostgresUploadJobRepository stores upload job status durably, keyed by the
// polling token handed to the client. This replaces process-local state:
// status survives restarts and is visible to every server instance.
type PostgresUploadJobRepository struct {
	pool db.Pool
}

// NewPostgresUploadJobRepository constructs an upload job repository backed by PostgreSQL.
func NewPostgresUploadJobRepository(pool db.Pool) *PostgresUploadJobRepository {
	return &PostgresUploadJobRepository{pool: pool}
}

// Create records a new job in the processing state.
func (r *PostgresUploadJobRepository) Create(ctx context.Context, job models.UploadJob) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO upload_jobs (token, account_id, status, detail)
        VALUES ($1, $2, $3, $4)
    `, job.Token, job.AccountID, job.Status, job.Detail)
	if err != nil {
		return fmt.Errorf("insert upload job: %w", err)
	}

	return nil
}

// Find loads a job by its polling token.
func (r *PostgresUploadJobRepository) Find(ctx context.Context, token string) (models.UploadJob, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.UploadJob{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT token, account_id, status, detail, created_at, updated_at
        FROM upload_jobs
        WHERE token = $1
    `, token)

	var job models.UploadJob
	if err := row.Scan(&job.Token, &job.AccountID, &job.Status, &job.Detail, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.UploadJob{}, ErrNotFound
		}
		return models.UploadJob{}, fmt.Errorf("select upload job: %w", err)
	}

	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return job, nil
}

// SetStatus moves a job to a new state, recording optional detail for
// failures.
func (r *PostgresUploadJobRepository) SetStatus(ctx context.Context, token, status, detail string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE upload_jobs
        SET status = $2, detail = $3, updated_at = NOW()
        WHERE token = $1
    `, token, status, detail)
	if err != nil {
		return fmt.Errorf("update upload job status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// FailStaleProcessingBefore fails processing jobs not touched since the
// cutoff and returns how many rows it moved. Ingestion runs under a bounded
// budget, so a row still processing that long after its last update belongs
// to a worker that never reported back; failing it lets pollers stop waiting
// and the terminal sweep reclaim the row.
func (r *PostgresUploadJobRepository) FailStaleProcessingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE upload_jobs
        SET status = $1, detail = 'ingestion did not finish', updated_at = NOW()
        WHERE status = $2 AND updated_at < $3
    `, models.UploadStatusFailed, models.UploadStatusProcessing, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("fail stale upload jobs: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DeleteFinishedBefore evicts terminal jobs older than the cutoff and
// returns how many rows were removed.
func (r *PostgresUploadJobRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM upload_jobs
        WHERE status <> $1 AND updated_at < $2
    `, models.UploadStatusProcessing, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("evict upload jobs: %w", err)
	}

	return tag.RowsAffected(), nil
}
