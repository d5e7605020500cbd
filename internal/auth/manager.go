package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/handihand/backend/internal/models"
	"github.com/handihand/backend/internal/repositories"
	"github.com/handihand/backend/internal/token"
)

// AccountStore captures the account persistence operations the orchestrator
// needs. Credential material never crosses this boundary as a hash: the
// store hashes on create and evaluates the password match itself.
type AccountStore interface {
	FindByIdentity(ctx context.Context, identityType models.IdentityType, identityValue string) (models.Account, error)
	FindByID(ctx context.Context, id int64) (models.Account, error)
	Create(ctx context.Context, identityType models.IdentityType, identityValue, password, state string) (int64, error)
	SetState(ctx context.Context, id int64, state string) error
	VerifyPassword(ctx context.Context, email, password string) (models.Account, error)
	EnsureVerifiedByEmail(ctx context.Context, email string) (models.Account, error)
}

// SessionStore persists browser sessions.
type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	Find(ctx context.Context, sessionID string) (models.Session, error)
	Extend(ctx context.Context, sessionID string, expiresAt, refreshedAt time.Time) error
	Delete(ctx context.Context, sessionID string) error
}

// TokenStore persists single-use verification and CSRF tokens. Consume
// operations are atomic delete-and-report, the single-use guarantee.
type TokenStore interface {
	Issue(ctx context.Context, tok *models.VerificationToken) error
	Consume(ctx context.Context, code string, kind models.TokenKind) (bool, error)
	ConsumeForSession(ctx context.Context, code, sessionID string) (bool, error)
	FindEmailVerification(ctx context.Context, email, code string) (models.VerificationToken, error)
	DeleteByID(ctx context.Context, id int64) error
}

// ProfileStore persists presentation profiles.
type ProfileStore interface {
	FindLatestByAccount(ctx context.Context, accountID int64) (models.Profile, error)
	Create(ctx context.Context, profile models.Profile) (int64, error)
	Update(ctx context.Context, profile models.Profile) error
}

// EmailSender dispatches verification emails.
type EmailSender interface {
	SendVerification(ctx context.Context, to, link string) error
}

// ManagerConfig tunes the orchestrator's windows and URLs.
type ManagerConfig struct {
	// BaseURL prefixes the email callback links.
	BaseURL string
	// SessionTTL is how long a session lives from creation or extension.
	SessionTTL time.Duration
	// ExtendEvery throttles sliding extension: a session refreshed more
	// recently than this is left alone.
	ExtendEvery time.Duration
	// VerifyWindow bounds how old an email verification token may be.
	VerifyWindow time.Duration
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 7 * 24 * time.Hour
	}
	if c.ExtendEvery <= 0 {
		c.ExtendEvery = 24 * time.Hour
	}
	if c.VerifyWindow <= 0 {
		c.VerifyWindow = 5 * time.Minute
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	return c
}

// Manager orchestrates signup, verification, sign-in, sessions and CSRF.
type Manager struct {
	accounts AccountStore
	sessions SessionStore
	tokens   TokenStore
	profiles ProfileStore
	mail     EmailSender
	google   *GoogleProvider

	cfg    ManagerConfig
	logger *slog.Logger

	// NowFunc overrides the clock in tests.
	NowFunc func() time.Time
}

// NewManager constructs the auth orchestrator. The google provider may be
// nil when OAuth sign-in is not configured.
func NewManager(accounts AccountStore, sessions SessionStore, tokens TokenStore, profiles ProfileStore, mail EmailSender, google *GoogleProvider, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if accounts == nil || sessions == nil || tokens == nil {
		panic("auth: account, session and token stores must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		accounts: accounts,
		sessions: sessions,
		tokens:   tokens,
		profiles: profiles,
		mail:     mail,
		google:   google,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

func (m *Manager) now() time.Time {
	if m.NowFunc != nil {
		return m.NowFunc().UTC()
	}
	return time.Now().UTC()
}

// SignupResult reports either field-level validation errors or the one-time
// CSRF token the caller needs for the resend flow.
type SignupResult struct {
	FieldErrors FieldErrors
	CSRF        string
}

// SignUp validates the form, creates an unverified account and dispatches a
// verification email. A duplicate email surfaces as a field error, not an
// error return.
func (m *Manager) SignUp(ctx context.Context, form SignupForm) (SignupResult, error) {
	if errs := ValidateSignup(form); !errs.Empty() {
		return SignupResult{FieldErrors: errs}, nil
	}

	email := strings.TrimSpace(form.Email)
	password := strings.TrimSpace(form.Password)

	if _, err := m.accounts.FindByIdentity(ctx, models.IdentityEmail, email); err == nil {
		return SignupResult{FieldErrors: FieldErrors{"email": {"Email already exists"}}}, nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return SignupResult{}, fmt.Errorf("look up existing account: %w", err)
	}

	if _, err := m.accounts.Create(ctx, models.IdentityEmail, email, password, models.AccountStateWaitVerification); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			// Lost the race against a concurrent signup for the same address.
			return SignupResult{FieldErrors: FieldErrors{"email": {"Email already exists"}}}, nil
		}
		return SignupResult{}, fmt.Errorf("create account: %w", err)
	}

	csrf, err := m.issueVerificationPair(ctx, email)
	if err != nil {
		return SignupResult{}, err
	}

	return SignupResult{CSRF: csrf}, nil
}

// issueVerificationPair mints an email verification token plus the one-time
// CSRF token guarding the resend flow, and dispatches the email.
func (m *Manager) issueVerificationPair(ctx context.Context, email string) (string, error) {
	verify := &models.VerificationToken{
		Code:  token.New(),
		Kind:  models.TokenEmailVerify,
		Email: email,
	}
	if err := m.tokens.Issue(ctx, verify); err != nil {
		return "", fmt.Errorf("issue verification token: %w", err)
	}

	csrf := &models.VerificationToken{
		Code: token.New(),
		Kind: models.TokenOneTimeCSRF,
	}
	if err := m.tokens.Issue(ctx, csrf); err != nil {
		return "", fmt.Errorf("issue one-time csrf token: %w", err)
	}

	link := fmt.Sprintf("%s/api/auth/callback?email=%s&token=%s",
		m.cfg.BaseURL, url.QueryEscape(email), url.QueryEscape(verify.Code))
	if err := m.mail.SendVerification(ctx, email, link); err != nil {
		return "", fmt.Errorf("send verification email: %w", err)
	}

	return csrf.Code, nil
}

// VerifyOutcome classifies the result of an email verification callback.
type VerifyOutcome int

const (
	// VerifyUnknownToken means the (email, code) pair is invalid or already used.
	VerifyUnknownToken VerifyOutcome = iota
	// VerifyExpired means the token arrived outside its validity window while
	// the account still awaits verification; the user must request a new email.
	VerifyExpired
	// VerifySignedIn means the account is verified and a session was created.
	VerifySignedIn
)

// VerifyResult carries the outcome-specific payload: a fresh one-time CSRF
// token for the resend page, or the newly established session.
type VerifyResult struct {
	Outcome VerifyOutcome
	CSRF    string
	Session models.Session
}

// VerifyEmail handles the verification callback. Policy, deliberately: the
// token is consumed in every branch, including the expired one, so a stale
// link can never be replayed and the user is forced onto a fresh token.
func (m *Manager) VerifyEmail(ctx context.Context, email, code string) (VerifyResult, error) {
	tok, err := m.tokens.FindEmailVerification(ctx, email, code)
	if errors.Is(err, repositories.ErrNotFound) {
		return VerifyResult{Outcome: VerifyUnknownToken}, nil
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("look up verification token: %w", err)
	}

	switch err := m.tokens.DeleteByID(ctx, tok.ID); {
	case errors.Is(err, repositories.ErrNotFound):
		// A concurrent callback won the delete; treat this one as spent.
		return VerifyResult{Outcome: VerifyUnknownToken}, nil
	case err != nil:
		return VerifyResult{}, fmt.Errorf("consume verification token: %w", err)
	}

	account, err := m.accounts.FindByIdentity(ctx, models.IdentityEmail, email)
	if errors.Is(err, repositories.ErrNotFound) {
		m.logger.Error("verification callback for nonexistent account", "email", email)
		return VerifyResult{}, ErrInconsistentData
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("look up account for verification: %w", err)
	}

	if m.now().Sub(tok.CreatedAt) > m.cfg.VerifyWindow && account.State == models.AccountStateWaitVerification {
		csrf := &models.VerificationToken{Code: token.New(), Kind: models.TokenOneTimeCSRF}
		if err := m.tokens.Issue(ctx, csrf); err != nil {
			return VerifyResult{}, fmt.Errorf("issue resend csrf token: %w", err)
		}
		return VerifyResult{Outcome: VerifyExpired, CSRF: csrf.Code}, nil
	}

	if account.State == models.AccountStateWaitVerification {
		if err := m.accounts.SetState(ctx, account.ID, models.AccountStateVerified); err != nil {
			return VerifyResult{}, fmt.Errorf("mark account verified: %w", err)
		}
	}

	session, err := m.newSession(ctx, account.ID)
	if err != nil {
		return VerifyResult{}, err
	}

	return VerifyResult{Outcome: VerifySignedIn, Session: session}, nil
}

// ResendVerification requires and consumes a one-time CSRF token, then
// issues a fresh verification email and returns the replacement CSRF token.
func (m *Manager) ResendVerification(ctx context.Context, email, csrf string) (string, error) {
	if email == "" || csrf == "" {
		return "", ErrInvalidCSRF
	}

	consumed, err := m.tokens.Consume(ctx, csrf, models.TokenOneTimeCSRF)
	if err != nil {
		return "", fmt.Errorf("consume one-time csrf token: %w", err)
	}
	if !consumed {
		return "", ErrInvalidCSRF
	}

	return m.issueVerificationPair(ctx, email)
}

// SignInWithPassword authenticates against the store's atomic password
// predicate and establishes a session for verified accounts.
func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) (models.Session, error) {
	account, err := m.accounts.VerifyPassword(ctx, strings.TrimSpace(email), strings.TrimSpace(password))
	if errors.Is(err, repositories.ErrNotFound) {
		return models.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("verify password: %w", err)
	}

	if !account.Verified() {
		return models.Session{}, ErrNotVerified
	}

	return m.newSession(ctx, account.ID)
}

// CurrentSession resolves a session id to an active session. An expired row
// is treated as absent and opportunistically deleted.
func (m *Manager) CurrentSession(ctx context.Context, sessionID string) (models.Session, error) {
	if sessionID == "" {
		return models.Session{}, ErrSessionNotFound
	}

	session, err := m.sessions.Find(ctx, sessionID)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("find session: %w", err)
	}

	if !m.now().Before(session.ExpiresAt) {
		if err := m.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			m.logger.Warn("delete expired session", "sessionId", sessionID, "error", err)
		}
		return models.Session{}, ErrSessionNotFound
	}

	return session, nil
}

// ExtendSession slides the session expiry forward when it was last refreshed
// more than ExtendEvery ago. The returned bool reports whether the cookie
// needs re-setting.
func (m *Manager) ExtendSession(ctx context.Context, sessionID string) (models.Session, bool, error) {
	session, err := m.CurrentSession(ctx, sessionID)
	if err != nil {
		return models.Session{}, false, err
	}

	now := m.now()
	if now.Sub(session.RefreshedAt) < m.cfg.ExtendEvery {
		return session, false, nil
	}

	session.ExpiresAt = now.Add(m.cfg.SessionTTL)
	session.RefreshedAt = now
	if err := m.sessions.Extend(ctx, sessionID, session.ExpiresAt, session.RefreshedAt); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Session{}, false, ErrSessionNotFound
		}
		return models.Session{}, false, fmt.Errorf("extend session: %w", err)
	}

	return session, true, nil
}

// SignOut removes the session. Deletion is best effort: a transient store
// failure must not block sign-out, so it is logged and swallowed.
func (m *Manager) SignOut(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if err := m.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		m.logger.Error("delete session on sign-out", "sessionId", sessionID, "error", err)
	}
}

// IssueSessionCSRF mints a single-use CSRF token bound to the session.
func (m *Manager) IssueSessionCSRF(ctx context.Context, sessionID string) (string, error) {
	if _, err := m.CurrentSession(ctx, sessionID); err != nil {
		return "", err
	}

	csrf := &models.VerificationToken{
		Code:      token.New(),
		Kind:      models.TokenSessionCSRF,
		SessionID: sessionID,
	}
	if err := m.tokens.Issue(ctx, csrf); err != nil {
		return "", fmt.Errorf("issue session csrf token: %w", err)
	}

	return csrf.Code, nil
}

// VerifySessionCSRF consumes the submitted token. It succeeds only when the
// code matches a stored token minted for this exact session; each token
// therefore protects one state-changing submission.
func (m *Manager) VerifySessionCSRF(ctx context.Context, code, sessionID string) error {
	if code == "" || sessionID == "" {
		return ErrInvalidCSRF
	}

	consumed, err := m.tokens.ConsumeForSession(ctx, code, sessionID)
	if err != nil {
		return fmt.Errorf("consume session csrf token: %w", err)
	}
	if !consumed {
		return ErrInvalidCSRF
	}

	return nil
}

// AccountForSession loads the account owning a session, flagging the broken
// invariant of a dangling session as a system error.
func (m *Manager) AccountForSession(ctx context.Context, session models.Session) (models.Account, error) {
	account, err := m.accounts.FindByID(ctx, session.AccountID)
	if errors.Is(err, repositories.ErrNotFound) {
		m.logger.Error("session references nonexistent account", "sessionId", session.ID, "accountId", session.AccountID)
		return models.Account{}, ErrInconsistentData
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("find account for session: %w", err)
	}
	return account, nil
}

func (m *Manager) newSession(ctx context.Context, accountID int64) (models.Session, error) {
	now := m.now()
	session := models.Session{
		ID:          token.New(),
		AccountID:   accountID,
		ExpiresAt:   now.Add(m.cfg.SessionTTL),
		RefreshedAt: now,
		CreatedAt:   now,
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}

	return session, nil
}
