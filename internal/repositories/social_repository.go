package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/handihand/backend/internal/db"
	"github.com/handihand/backend/internal/models"
)

// Reaction selects which join table a social operation targets.
type Reaction string

const (
	ReactionLike Reaction = "likes"
	ReactionSave Reaction = "saves"
)

func (r Reaction) table() (string, error) {
	switch r {
	case ReactionLike:
		return "likes", nil
	case ReactionSave:
		return "saves", nil
	default:
		return "", fmt.Errorf("unknown reaction %q", string(r))
	}
}

// PostgresSocialRepository persists likes, saves and comments.
//
// Add and Remove are single conditional statements (INSERT ... ON CONFLICT
// DO NOTHING, plain DELETE), so two concurrent identical requests both
// succeed while exactly one row changes.
type PostgresSocialRepository struct {
	pool db.Pool
}

// NewPostgresSocialRepository constructs a social repository backed by PostgreSQL.
func NewPostgresSocialRepository(pool db.Pool) *PostgresSocialRepository {
	return &PostgresSocialRepository{pool: pool}
}

// Add records a reaction, ignoring duplicates.
func (r *PostgresSocialRepository) Add(ctx context.Context, reaction Reaction, accountID int64, videoID string) error {
	table, err := reaction.table()
	if err != nil {
		return err
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO `+table+` (account_id, video_id)
        VALUES ($1, $2)
        ON CONFLICT (account_id, video_id) DO NOTHING
    `, accountID, videoID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert %s: %w", table, err)
	}

	return nil
}

// Remove deletes a reaction if present.
func (r *PostgresSocialRepository) Remove(ctx context.Context, reaction Reaction, accountID int64, videoID string) error {
	table, err := reaction.table()
	if err != nil {
		return err
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM `+table+`
        WHERE account_id = $1 AND video_id = $2
    `, accountID, videoID); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}

	return nil
}

// Count returns how many accounts reacted to the video.
func (r *PostgresSocialRepository) Count(ctx context.Context, reaction Reaction, videoID string) (int64, error) {
	table, err := reaction.table()
	if err != nil {
		return 0, err
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int64
	if err := conn.QueryRow(ctx, `
        SELECT COUNT(*) FROM `+table+`
        WHERE video_id = $1
    `, videoID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}

	return count, nil
}

// Has reports whether the account already reacted to the video.
func (r *PostgresSocialRepository) Has(ctx context.Context, reaction Reaction, accountID int64, videoID string) (bool, error) {
	table, err := reaction.table()
	if err != nil {
		return false, err
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var one int
	err = conn.QueryRow(ctx, `
        SELECT 1 FROM `+table+`
        WHERE account_id = $1 AND video_id = $2
    `, accountID, videoID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select %s: %w", table, err)
	}

	return true, nil
}

// AddComment stores a new comment.
func (r *PostgresSocialRepository) AddComment(ctx context.Context, comment models.Comment) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO comments (video_id, account_id, body)
        VALUES ($1, $2, $3)
    `, comment.VideoID, comment.AccountID, comment.Body)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert comment: %w", err)
	}

	return nil
}

// CommentView joins a comment with its author's current profile data.
type CommentView struct {
	Comment  models.Comment
	Username string
	Photo    string
}

// ListComments returns the comments on a video, oldest first, each joined
// with the author's most recent profile.
func (r *PostgresSocialRepository) ListComments(ctx context.Context, videoID string) ([]CommentView, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT c.id, c.video_id, c.account_id, c.body, c.created_at,
               COALESCE(p.username, ''), COALESCE(p.photo, '')
        FROM comments c
        LEFT JOIN LATERAL (
            SELECT username, photo
            FROM profiles
            WHERE account_id = c.account_id
            ORDER BY created_at DESC
            LIMIT 1
        ) p ON true
        WHERE c.video_id = $1
        ORDER BY c.created_at ASC
    `, videoID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var views []CommentView
	for rows.Next() {
		var view CommentView
		if err := rows.Scan(&view.Comment.ID, &view.Comment.VideoID, &view.Comment.AccountID,
			&view.Comment.Body, &view.Comment.CreatedAt, &view.Username, &view.Photo); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		view.Comment.CreatedAt = view.Comment.CreatedAt.UTC()
		views = append(views, view)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	return views, nil
}
