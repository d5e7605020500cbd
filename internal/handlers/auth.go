package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/handihand/backend/internal/auth"
	"github.com/handihand/backend/internal/logging"
)

// AuthHandler implements the signup, sign-in, verification and sign-out
// endpoints. Browser-facing flows answer with redirects; form submissions
// answer with server-action style JSON.
type AuthHandler struct {
	Auth    AuthService
	Limiter RateLimiter
}

// SignUp handles POST /api/auth/signup.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "signup") {
		logger.Warn("signup rate limited", "ip", clientIP(r))
		respondJSON(ctx, w, http.StatusTooManyRequests, formResult{Success: false, Error: map[string][]string{"form": {"too many attempts, slow down"}}})
		return
	}

	if err := r.ParseForm(); err != nil {
		logger.Warn("invalid signup form", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, formResult{Success: false, Error: map[string][]string{"form": {"invalid form submission"}}})
		return
	}

	form := auth.SignupForm{
		Email:          r.PostFormValue("email"),
		Password:       r.PostFormValue("password"),
		PasswordRepeat: r.PostFormValue("passwordRepeat"),
		PolicyAgree:    r.PostFormValue("policyAgree"),
	}

	result, err := h.Auth.SignUp(ctx, form)
	if err != nil {
		logger.Error("signup failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, formResult{Success: false, Error: map[string][]string{"form": {"signup is temporarily unavailable"}}})
		return
	}
	if !result.FieldErrors.Empty() {
		respondFieldErrors(ctx, w, result.FieldErrors)
		return
	}

	respondJSON(ctx, w, http.StatusOK, formResult{Success: true, CSRF: result.CSRF})
}

// SignIn handles POST /api/auth/signin.
func (h AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "signin") {
		logger.Warn("signin rate limited", "ip", clientIP(r))
		respondJSON(ctx, w, http.StatusTooManyRequests, formResult{Success: false, Error: map[string][]string{"form": {"too many attempts, slow down"}}})
		return
	}

	if err := r.ParseForm(); err != nil {
		logger.Warn("invalid signin form", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, formResult{Success: false, Error: map[string][]string{"form": {"invalid form submission"}}})
		return
	}

	form := auth.SigninForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	if errs := auth.ValidateSignin(form); !errs.Empty() {
		respondFieldErrors(ctx, w, errs)
		return
	}

	session, err := h.Auth.SignInWithPassword(ctx, form.Email, form.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondJSON(ctx, w, http.StatusUnauthorized, formResult{Success: false, Error: map[string][]string{"email": {"Invalid email or password"}}})
		return
	case errors.Is(err, auth.ErrNotVerified):
		respondJSON(ctx, w, http.StatusForbidden, formResult{Success: false, Error: map[string][]string{"email": {"Email has not been verified yet"}}})
		return
	case err != nil:
		logger.Error("signin failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, formResult{Success: false, Error: map[string][]string{"form": {"sign-in is temporarily unavailable"}}})
		return
	}

	setSessionCookie(w, session)
	respondJSON(ctx, w, http.StatusOK, formResult{Success: true})
}

// Callback handles GET /api/auth/callback?email&token, the link from the
// verification email.
func (h AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	email := r.URL.Query().Get("email")
	code := r.URL.Query().Get("token")
	if email == "" || code == "" {
		http.Redirect(w, r, notFoundPath, http.StatusSeeOther)
		return
	}

	result, err := h.Auth.VerifyEmail(ctx, email, code)
	if err != nil {
		logger.Error("email verification failed", "email", email, "error", err)
		http.Redirect(w, r, errorPath, http.StatusSeeOther)
		return
	}

	switch result.Outcome {
	case auth.VerifySignedIn:
		setSessionCookie(w, result.Session)
		http.Redirect(w, r, landingPath, http.StatusSeeOther)
	case auth.VerifyExpired:
		q := url.Values{}
		q.Set("email", email)
		q.Set("expired", "true")
		q.Set("csrf", result.CSRF)
		http.Redirect(w, r, verifyPath+"?"+q.Encode(), http.StatusSeeOther)
	default:
		http.Redirect(w, r, notFoundPath, http.StatusSeeOther)
	}
}

// Resend handles POST /api/auth/resend, guarded by the one-time CSRF token
// issued alongside the previous verification email.
func (h AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "resend") {
		logger.Warn("resend rate limited", "ip", clientIP(r))
		respondJSON(ctx, w, http.StatusTooManyRequests, formResult{Success: false, Error: map[string][]string{"form": {"too many attempts, slow down"}}})
		return
	}

	if err := r.ParseForm(); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, formResult{Success: false, Error: map[string][]string{"form": {"invalid form submission"}}})
		return
	}

	email := r.PostFormValue("email")
	csrf := r.PostFormValue("csrf")

	next, err := h.Auth.ResendVerification(ctx, email, csrf)
	if errors.Is(err, auth.ErrInvalidCSRF) {
		logger.Error("resend rejected", "email", email)
		respondJSON(ctx, w, http.StatusForbidden, formResult{Success: false, Error: map[string][]string{"form": {"verification request expired, please sign up again"}}})
		return
	}
	if err != nil {
		logger.Error("resend verification failed", "email", email, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, formResult{Success: false, Error: map[string][]string{"form": {"could not send verification email"}}})
		return
	}

	respondJSON(ctx, w, http.StatusOK, formResult{Success: true, CSRF: next})
}

// GoogleSignIn handles GET /api/auth/signin/google.
func (h AuthHandler) GoogleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !h.Auth.GoogleEnabled() {
		logger.Error("google sign-in requested but not configured")
		http.Redirect(w, r, errorPath, http.StatusSeeOther)
		return
	}

	state, authURL, err := h.Auth.BeginGoogleSignIn()
	if err != nil {
		logger.Error("begin google sign-in", "error", err)
		http.Redirect(w, r, errorPath, http.StatusSeeOther)
		return
	}

	setOAuthStateCookie(w, state)
	http.Redirect(w, r, authURL, http.StatusSeeOther)
}

// GoogleCallback handles GET /api/auth/callback/google?code&state&error.
func (h AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)
	query := r.URL.Query()

	clearOAuthStateCookie(w)

	if denied := query.Get("error"); denied != "" {
		logger.Warn("google sign-in denied by provider", "error", denied)
		http.Redirect(w, r, errorPath, http.StatusSeeOther)
		return
	}

	session, err := h.Auth.CompleteGoogleSignIn(ctx, query.Get("code"), query.Get("state"), cookieValue(r, oauthStateCookieName))
	if errors.Is(err, auth.ErrStateMismatch) {
		logger.Error("google callback state mismatch")
		http.Redirect(w, r, errorPath, http.StatusSeeOther)
		return
	}
	if err != nil {
		logger.Error("google sign-in failed", "error", err)
		http.Redirect(w, r, errorPath, http.StatusSeeOther)
		return
	}

	setSessionCookie(w, session)
	http.Redirect(w, r, landingPath, http.StatusSeeOther)
}

// SignOut handles GET /api/auth/signout. Always redirects home, whether or
// not a session existed.
func (h AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if sessionID := cookieValue(r, sessionCookieName); sessionID != "" {
		h.Auth.SignOut(r.Context(), sessionID)
	}

	clearSessionCookie(w)
	http.Redirect(w, r, landingPath, http.StatusSeeOther)
}
