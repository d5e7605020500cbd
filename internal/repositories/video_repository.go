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

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos
// and their tag associations.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a video record and links it to the given tag words within
// one transaction. Unknown tag words are silently skipped; tags are
// read-only reference data and uploads never mint new ones.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video, tagWords []string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin video insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
        INSERT INTO videos (id, account_id, country_code, title, description, name, content_type, size, upload_url, thumbnail_url)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, video.ID, video.AccountID, video.CountryCode, video.Title, video.Description,
		video.Name, video.ContentType, video.Size, video.UploadURL, video.ThumbnailURL)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert video: %w", err)
	}

	for _, word := range tagWords {
		var tagID int64
		err := tx.QueryRow(ctx, `SELECT id FROM tags WHERE word = $1`, word).Scan(&tagID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("select tag %q: %w", word, err)
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO video_tags (video_id, tag_id)
            VALUES ($1, $2)
            ON CONFLICT (video_id, tag_id) DO NOTHING
        `, video.ID, tagID); err != nil {
			return fmt.Errorf("link tag %q: %w", word, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit video insert: %w", err)
	}

	return nil
}

// VideoSearch filters the browse listing. Zero values match everything, so
// an empty search pages through the whole catalogue newest first.
type VideoSearch struct {
	CountryCode string
	Keyword     string
	TagWords    []string
	AccountID   int64
	Page        int
	Size        int
}

// VideoListing is one browse result with its tag words denormalized.
type VideoListing struct {
	models.Video
	Tags []string
}

const (
	defaultVideoPageSize = 20
	maxVideoPageSize     = 100
)

// List pages through videos matching the search, newest first. Keyword
// matches title or description; tag words match when the video carries at
// least one of them.
func (r *PostgresVideoRepository) List(ctx context.Context, search VideoSearch) ([]VideoListing, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	size := search.Size
	if size <= 0 {
		size = defaultVideoPageSize
	}
	if size > maxVideoPageSize {
		size = maxVideoPageSize
	}
	page := search.Page
	if page < 0 {
		page = 0
	}
	tagWords := search.TagWords
	if tagWords == nil {
		tagWords = []string{}
	}

	rows, err := conn.Query(ctx, `
        SELECT v.id, v.account_id, v.country_code, v.title, v.description, v.name,
               v.content_type, v.size, v.upload_url, v.thumbnail_url, v.created_at,
               COALESCE((
                   SELECT array_agg(t.word ORDER BY t.word)
                   FROM video_tags vt
                   JOIN tags t ON t.id = vt.tag_id
                   WHERE vt.video_id = v.id
               ), ARRAY[]::text[]) AS tag_words
        FROM videos v
        WHERE ($1 = '' OR v.country_code = $1)
          AND ($2 = '' OR v.title ILIKE '%' || $2 || '%' OR v.description ILIKE '%' || $2 || '%')
          AND ($3 = 0 OR v.account_id = $3)
          AND (cardinality($4::text[]) = 0 OR EXISTS (
              SELECT 1
              FROM video_tags vt
              JOIN tags t ON t.id = vt.tag_id
              WHERE vt.video_id = v.id AND t.word = ANY($4::text[])
          ))
        ORDER BY v.created_at DESC
        LIMIT $5 OFFSET $6
    `, search.CountryCode, search.Keyword, search.AccountID, tagWords, size, page*size)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var listings []VideoListing
	for rows.Next() {
		var l VideoListing
		if err := rows.Scan(&l.ID, &l.AccountID, &l.CountryCode, &l.Title, &l.Description,
			&l.Name, &l.ContentType, &l.Size, &l.UploadURL, &l.ThumbnailURL, &l.CreatedAt, &l.Tags); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		l.CreatedAt = l.CreatedAt.UTC()
		listings = append(listings, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return listings, nil
}

// FindByID fetches a single video.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, account_id, country_code, title, description, name, content_type, size, upload_url, thumbnail_url, created_at
        FROM videos
        WHERE id = $1
    `, id)

	var v models.Video
	if err := row.Scan(&v.ID, &v.AccountID, &v.CountryCode, &v.Title, &v.Description,
		&v.Name, &v.ContentType, &v.Size, &v.UploadURL, &v.ThumbnailURL, &v.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}

	v.CreatedAt = v.CreatedAt.UTC()
	return v, nil
}

// PostgresTagRepository exposes the tags reference table.
type PostgresTagRepository struct {
	pool db.Pool
}

// NewPostgresTagRepository constructs a tag repository backed by PostgreSQL.
func NewPostgresTagRepository(pool db.Pool) *PostgresTagRepository {
	return &PostgresTagRepository{pool: pool}
}

// List returns every known tag ordered by word.
func (r *PostgresTagRepository) List(ctx context.Context) ([]models.Tag, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, word
        FROM tags
        ORDER BY word ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.Word); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}

	return tags, nil
}
