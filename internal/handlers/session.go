package handlers

import (
	"errors"
	"net/http"

	"github.com/handihand/backend/internal/auth"
	"github.com/handihand/backend/internal/logging"
	"github.com/handihand/backend/internal/models"
)

// sessionGuard resolves the sessionid cookie to an active session, sliding
// its expiry forward when the throttle window allows. An extended session
// re-sets the cookie so the browser tracks the new expiry.
type sessionGuard struct {
	Auth AuthService
}

// current returns the request's session, or false after writing a 401.
func (g sessionGuard) current(w http.ResponseWriter, r *http.Request) (models.Session, bool) {
	ctx := r.Context()

	sessionID := cookieValue(r, sessionCookieName)
	if sessionID == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return models.Session{}, false
	}

	session, extended, err := g.Auth.ExtendSession(ctx, sessionID)
	if errors.Is(err, auth.ErrSessionNotFound) {
		clearSessionCookie(w)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return models.Session{}, false
	}
	if err != nil {
		logging.FromContext(ctx).Error("resolve session", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "session services unavailable"})
		return models.Session{}, false
	}

	if extended {
		setSessionCookie(w, session)
	}
	return session, true
}

// peek resolves the session without requiring one; browsing endpoints use it
// to personalize responses for signed-in viewers.
func (g sessionGuard) peek(r *http.Request) (models.Session, bool) {
	sessionID := cookieValue(r, sessionCookieName)
	if sessionID == "" {
		return models.Session{}, false
	}
	session, err := g.Auth.CurrentSession(r.Context(), sessionID)
	if err != nil {
		return models.Session{}, false
	}
	return session, true
}
