package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/handihand/backend/internal/db"
	"github.com/handihand/backend/internal/models"
)

// PostgresVerificationStore persists single-use tokens (email verification,
// one-time CSRF, session CSRF). Consumption is a single conditional
// DELETE ... RETURNING so that two requests racing on the same code can never
// both succeed.
type PostgresVerificationStore struct {
	pool db.Pool
}

// NewPostgresVerificationStore constructs a verification token store backed by PostgreSQL.
func NewPostgresVerificationStore(pool db.Pool) *PostgresVerificationStore {
	return &PostgresVerificationStore{pool: pool}
}

// Issue persists a freshly generated token, filling in its id and creation time.
func (s *PostgresVerificationStore) Issue(ctx context.Context, tok *models.VerificationToken) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = conn.QueryRow(ctx, `
        INSERT INTO verifications (code, kind, email, session_id)
        VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
        RETURNING id, created_at
    `, tok.Code, tok.Kind, tok.Email, tok.SessionID).Scan(&tok.ID, &tok.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert verification token: %w", err)
	}

	tok.CreatedAt = tok.CreatedAt.UTC()
	return nil
}

// Consume atomically deletes the token matching (code, kind) and reports
// whether a row was removed. A false return means invalid or already used.
func (s *PostgresVerificationStore) Consume(ctx context.Context, code string, kind models.TokenKind) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id int64
	err = conn.QueryRow(ctx, `
        DELETE FROM verifications
        WHERE code = $1 AND kind = $2
        RETURNING id
    `, code, kind).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume verification token: %w", err)
	}

	return true, nil
}

// ConsumeForSession atomically deletes a session-bound CSRF token. The code
// must match AND the token must have been minted for the given session.
func (s *PostgresVerificationStore) ConsumeForSession(ctx context.Context, code, sessionID string) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id int64
	err = conn.QueryRow(ctx, `
        DELETE FROM verifications
        WHERE code = $1 AND kind = $2 AND session_id = $3
        RETURNING id
    `, code, models.TokenSessionCSRF, sessionID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume session csrf token: %w", err)
	}

	return true, nil
}

// FindEmailVerification loads the newest matching email verification token
// without consuming it, so the caller can judge expiry first.
func (s *PostgresVerificationStore) FindEmailVerification(ctx context.Context, email, code string) (models.VerificationToken, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.VerificationToken{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, code, kind, COALESCE(email, ''), COALESCE(session_id, ''), created_at
        FROM verifications
        WHERE email = $1 AND code = $2 AND kind = $3
        ORDER BY created_at DESC
        LIMIT 1
    `, email, code, models.TokenEmailVerify)

	var tok models.VerificationToken
	if err := row.Scan(&tok.ID, &tok.Code, &tok.Kind, &tok.Email, &tok.SessionID, &tok.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VerificationToken{}, ErrNotFound
		}
		return models.VerificationToken{}, fmt.Errorf("select email verification token: %w", err)
	}

	tok.CreatedAt = tok.CreatedAt.UTC()
	return tok, nil
}

// DeleteByID removes a token by its primary key.
func (s *PostgresVerificationStore) DeleteByID(ctx context.Context, id int64) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM verifications
        WHERE id = $1
    `, id)
	if err != nil {
		return fmt.Errorf("delete verification token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
