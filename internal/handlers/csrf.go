package handlers

import (
	"net/http"

	"github.com/handihand/backend/internal/logging"
)

// CSRFHandler mints per-session single-use CSRF tokens ahead of form
// submissions.
type CSRFHandler struct {
	Auth AuthService
}

// Issue handles GET /api/csrf. The token travels only in the httpOnly
// cookie; the body confirms issuance without exposing the value.
func (h CSRFHandler) Issue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	session, ok := sessionGuard{Auth: h.Auth}.current(w, r)
	if !ok {
		return
	}

	code, err := h.Auth.IssueSessionCSRF(ctx, session.ID)
	if err != nil {
		logging.FromContext(ctx).Error("issue csrf token", "sessionId", session.ID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "could not issue token"})
		return
	}

	setCSRFCookie(w, code)
	respondJSON(ctx, w, http.StatusOK, map[string]bool{"ok": true})
}
