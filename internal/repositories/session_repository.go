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

// PostgresSessionStore persists browser sessions to PostgreSQL. Expiry is a
// read-time concern: an expired row stays in place until deleted and lookups
// return it as-is, leaving the caller to judge `now < expires_at`.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Create stores a new session record.
func (s *PostgresSessionStore) Create(ctx context.Context, session models.Session) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO sessions (session_id, account_id, expires_at, refreshed_at)
        VALUES ($1, $2, $3, $4)
    `, session.ID, session.AccountID, session.ExpiresAt.UTC(), session.RefreshedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// Find loads a session by its opaque id.
func (s *PostgresSessionStore) Find(ctx context.Context, sessionID string) (models.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT session_id, account_id, expires_at, refreshed_at, created_at
        FROM sessions
        WHERE session_id = $1
    `, sessionID)

	var (
		session     models.Session
		expiresAt   time.Time
		refreshedAt time.Time
		createdAt   time.Time
	)
	if err := row.Scan(&session.ID, &session.AccountID, &expiresAt, &refreshedAt, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrNotFound
		}
		return models.Session{}, fmt.Errorf("select session: %w", err)
	}

	session.ExpiresAt = expiresAt.UTC()
	session.RefreshedAt = refreshedAt.UTC()
	session.CreatedAt = createdAt.UTC()
	return session, nil
}

// Extend pushes the session expiry forward. The write itself is idempotent;
// throttling how often it runs is the caller's concern.
func (s *PostgresSessionStore) Extend(ctx context.Context, sessionID string, expiresAt, refreshedAt time.Time) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE sessions
        SET expires_at = $2, refreshed_at = $3
        WHERE session_id = $1
    `, sessionID, expiresAt.UTC(), refreshedAt.UTC())
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a session by its id.
func (s *PostgresSessionStore) Delete(ctx context.Context, sessionID string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM sessions
        WHERE session_id = $1
    `, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
