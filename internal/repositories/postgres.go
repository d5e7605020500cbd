package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/handihand/backend/internal/db"
	"github.com/handihand/backend/internal/models"
)

// PostgresAccountRepository provides PostgreSQL-backed persistence for accounts.
//
// Password handling never leaves the database: hashes are produced with
// pgcrypto's crypt()/gen_salt() on insert and the sign-in check is a single
// SQL predicate, so application code never sees or compares a hash.
type PostgresAccountRepository struct {
	pool db.Pool
}

// NewPostgresAccountRepository constructs an account repository backed by PostgreSQL.
func NewPostgresAccountRepository(pool db.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

const accountColumns = `id, identity_type, identity_value, state, created_at`

// Create persists a new account. An empty password creates a password-less
// account (OAuth-only). A duplicate (identity type, identity value) pair is
// reported as ErrConflict.
func (r *PostgresAccountRepository) Create(ctx context.Context, identityType models.IdentityType, identityValue, password, state string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var (
		id  int64
		row pgx.Row
	)
	if password == "" {
		row = conn.QueryRow(ctx, `
        INSERT INTO accounts (identity_type, identity_value, password_hash, state)
        VALUES ($1, $2, NULL, $3)
        RETURNING id
    `, identityType, identityValue, state)
	} else {
		row = conn.QueryRow(ctx, `
        INSERT INTO accounts (identity_type, identity_value, password_hash, state)
        VALUES ($1, $2, crypt($3, gen_salt('bf')), $4)
        RETURNING id
    `, identityType, identityValue, password, state)
	}

	if err := row.Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}

	return id, nil
}

// FindByIdentity fetches an account by its (identity type, identity value) pair.
func (r *PostgresAccountRepository) FindByIdentity(ctx context.Context, identityType models.IdentityType, identityValue string) (models.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE identity_type = $1 AND identity_value = $2
    `, identityType, identityValue)

	return scanAccount(row, "select account by identity")
}

// FindByID fetches an account by its primary key.
func (r *PostgresAccountRepository) FindByID(ctx context.Context, id int64) (models.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE id = $1
    `, id)

	return scanAccount(row, "select account by id")
}

// SetState transitions an account's lifecycle state. The update is idempotent.
func (r *PostgresAccountRepository) SetState(ctx context.Context, id int64, state string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE accounts
        SET state = $2
        WHERE id = $1
    `, id, state)
	if err != nil {
		return fmt.Errorf("update account state: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// VerifyPassword evaluates the password match as a single SQL predicate and
// returns the matched account. No match at all is reported as ErrNotFound so
// callers cannot distinguish an unknown email from a wrong password.
func (r *PostgresAccountRepository) VerifyPassword(ctx context.Context, email, password string) (models.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE identity_type = 'email'
          AND identity_value = $1
          AND password_hash IS NOT NULL
          AND password_hash = crypt($2, password_hash)
    `, email, password)

	return scanAccount(row, "verify password")
}

// EnsureVerifiedByEmail finds or creates the email account inside one
// transaction, promoting wait_verification accounts to verified. Used by the
// OAuth callback, where control of the mailbox has been proven externally.
func (r *PostgresAccountRepository) EnsureVerifiedByEmail(ctx context.Context, email string) (models.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("begin oauth account sync: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE identity_type = 'email' AND identity_value = $1
        FOR UPDATE
    `, email)

	account, err := scanAccount(row, "select account for oauth sync")
	switch {
	case errors.Is(err, ErrNotFound):
		created := tx.QueryRow(ctx, `
            INSERT INTO accounts (identity_type, identity_value, password_hash, state)
            VALUES ('email', $1, NULL, $2)
            RETURNING `+accountColumns+`
        `, email, models.AccountStateVerified)
		account, err = scanAccount(created, "insert oauth account")
		if err != nil {
			return models.Account{}, err
		}
	case err != nil:
		return models.Account{}, err
	case account.State == models.AccountStateWaitVerification:
		if _, err := tx.Exec(ctx, `UPDATE accounts SET state = $2 WHERE id = $1`, account.ID, models.AccountStateVerified); err != nil {
			return models.Account{}, fmt.Errorf("promote oauth account: %w", err)
		}
		account.State = models.AccountStateVerified
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Account{}, fmt.Errorf("commit oauth account sync: %w", err)
	}

	return account, nil
}

func scanAccount(row pgx.Row, op string) (models.Account, error) {
	var account models.Account
	if err := row.Scan(&account.ID, &account.IdentityType, &account.IdentityValue, &account.State, &account.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	account.CreatedAt = account.CreatedAt.UTC()
	return account, nil
}

// PostgresProfileRepository provides PostgreSQL-backed persistence for profiles.
type PostgresProfileRepository struct {
	pool db.Pool
}

// NewPostgresProfileRepository constructs a profile repository backed by PostgreSQL.
func NewPostgresProfileRepository(pool db.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

const profileColumns = `id, account_id, username, country_code, region, city, postcode, street_address, extended_address, photo, created_at, updated_at`

// Create persists a new profile record and returns its id.
func (r *PostgresProfileRepository) Create(ctx context.Context, profile models.Profile) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id int64
	err = conn.QueryRow(ctx, `
        INSERT INTO profiles (account_id, username, country_code, region, city, postcode, street_address, extended_address, photo)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `, profile.AccountID, profile.Username, profile.CountryCode, profile.Region, profile.City,
		profile.Postcode, profile.StreetAddress, profile.ExtendedAddress, profile.Photo).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert profile: %w", err)
	}

	return id, nil
}

// FindLatestByAccount returns the most recent profile for the account.
func (r *PostgresProfileRepository) FindLatestByAccount(ctx context.Context, accountID int64) (models.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Profile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+profileColumns+`
        FROM profiles
        WHERE account_id = $1
        ORDER BY created_at DESC
        LIMIT 1
    `, accountID)

	return scanProfile(row, "select latest profile")
}

// Update replaces the mutable fields of an existing profile. A username
// already held by a different profile is reported as ErrConflict; the
// uniqueness check and the write share one transaction so two concurrent
// updates cannot both claim the same name.
func (r *PostgresProfileRepository) Update(ctx context.Context, profile models.Profile) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin profile update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if profile.Username != "" {
		var holder int64
		err := tx.QueryRow(ctx, `
            SELECT id FROM profiles WHERE username = $1 AND id <> $2 LIMIT 1
        `, profile.Username, profile.ID).Scan(&holder)
		switch {
		case err == nil:
			return ErrConflict
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("check username uniqueness: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `
        UPDATE profiles
        SET username = $2,
            country_code = $3,
            region = $4,
            city = $5,
            postcode = $6,
            street_address = $7,
            extended_address = $8,
            photo = $9,
            updated_at = NOW()
        WHERE id = $1
    `, profile.ID, profile.Username, profile.CountryCode, profile.Region, profile.City,
		profile.Postcode, profile.StreetAddress, profile.ExtendedAddress, profile.Photo)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit profile update: %w", err)
	}

	return nil
}

// SetPhoto updates only the avatar location for a profile.
func (r *PostgresProfileRepository) SetPhoto(ctx context.Context, profileID int64, photoURL string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE profiles
        SET photo = $2, updated_at = NOW()
        WHERE id = $1
    `, profileID, photoURL)
	if err != nil {
		return fmt.Errorf("update profile photo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanProfile(row pgx.Row, op string) (models.Profile, error) {
	var (
		p         models.Profile
		updatedAt time.Time
	)
	err := row.Scan(&p.ID, &p.AccountID, &p.Username, &p.CountryCode, &p.Region, &p.City,
		&p.Postcode, &p.StreetAddress, &p.ExtendedAddress, &p.Photo, &p.CreatedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, ErrNotFound
		}
		return models.Profile{}, fmt.Errorf("%s: %w", op, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = updatedAt.UTC()
	return p, nil
}

// PostgresCountryRepository exposes the countries reference table.
type PostgresCountryRepository struct {
	pool db.Pool
}

// NewPostgresCountryRepository constructs a country repository backed by PostgreSQL.
func NewPostgresCountryRepository(pool db.Pool) *PostgresCountryRepository {
	return &PostgresCountryRepository{pool: pool}
}

// Exists reports whether the ISO 3166-1 alpha-2 code is known.
func (r *PostgresCountryRepository) Exists(ctx context.Context, code string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var found string
	err = conn.QueryRow(ctx, `SELECT code FROM countries WHERE code = $1`, code).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select country: %w", err)
	}
	return true, nil
}
