package auth

import "errors"

var (
	// ErrSessionNotFound indicates the cookie does not map to an active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidCredentials indicates the email/password pair did not match an account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotVerified indicates the account exists but has not completed email verification.
	ErrNotVerified = errors.New("account not verified")
	// ErrInvalidCSRF indicates a missing, mismatched or already-used CSRF token.
	ErrInvalidCSRF = errors.New("invalid csrf token")
	// ErrStateMismatch indicates the OAuth state round-trip failed, a possible forgery.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrInconsistentData flags a broken invariant, e.g. a session whose account vanished.
	ErrInconsistentData = errors.New("inconsistent account data")
)
