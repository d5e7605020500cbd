package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/handihand/backend/internal/models"
	"github.com/handihand/backend/internal/repositories"
	"github.com/handihand/backend/internal/token"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// GoogleConfig configures the Google OAuth code-flow provider. The endpoint
// fields exist so tests can point the provider at an httptest server.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// GoogleProfile is the slice of the OpenID userinfo response we care about.
type GoogleProfile struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// displayName is the username candidate for profile sync. Some accounts
// carry no composite name claim, only the given/family parts.
func (gp GoogleProfile) displayName() string {
	if name := strings.TrimSpace(gp.Name); name != "" {
		return name
	}
	return strings.TrimSpace(strings.TrimSpace(gp.GivenName) + " " + strings.TrimSpace(gp.FamilyName))
}

// GoogleProvider runs the three legs of the authorization code flow against
// Google's endpoints.
type GoogleProvider struct {
	cfg        GoogleConfig
	httpClient *http.Client
}

// NewGoogleProvider builds a provider, filling in Google's production
// endpoints where the config leaves them blank.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.CallbackURL == "" {
		return nil, errors.New("auth: google client id, secret and callback url are required")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = googleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = googleTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = googleUserInfoURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &GoogleProvider{cfg: cfg, httpClient: client}, nil
}

// AuthCodeURL renders the consent-screen redirect for the given state value.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", p.cfg.CallbackURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	return p.cfg.AuthURL + "?" + q.Encode()
}

// Exchange trades the authorization code for an access token.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("redirect_uri", p.cfg.CallbackURL)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}
	return payload.AccessToken, nil
}

// FetchProfile loads the OpenID userinfo document for the access token.
func (p *GoogleProvider) FetchProfile(ctx context.Context, accessToken string) (GoogleProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return GoogleProfile{}, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return GoogleProfile{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return GoogleProfile{}, fmt.Errorf("read userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return GoogleProfile{}, fmt.Errorf("userinfo endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var profile GoogleProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return GoogleProfile{}, fmt.Errorf("decode userinfo response: %w", err)
	}
	if profile.Email == "" {
		return GoogleProfile{}, errors.New("userinfo response missing email")
	}
	return profile, nil
}

// GoogleEnabled reports whether OAuth sign-in was configured.
func (m *Manager) GoogleEnabled() bool {
	return m.google != nil
}

// BeginGoogleSignIn mints the anti-forgery state value and the consent URL
// to redirect the browser to. The caller stores the state in a short-lived
// cookie and must present it back on the callback.
func (m *Manager) BeginGoogleSignIn() (state, authURL string, err error) {
	if m.google == nil {
		return "", "", errors.New("auth: google sign-in is not configured")
	}
	state = token.New()
	return state, m.google.AuthCodeURL(state), nil
}

// CompleteGoogleSignIn finishes the callback leg: it checks the state echo
// against the stored value, exchanges the code, resolves the Google identity
// to a verified local account and establishes a session. Accounts reached
// through Google are verified by construction; an existing unverified
// email/password account for the same address is promoted.
func (m *Manager) CompleteGoogleSignIn(ctx context.Context, code, gotState, wantState string) (models.Session, error) {
	if m.google == nil {
		return models.Session{}, errors.New("auth: google sign-in is not configured")
	}
	if gotState == "" || wantState == "" || gotState != wantState {
		return models.Session{}, ErrStateMismatch
	}

	accessToken, err := m.google.Exchange(ctx, code)
	if err != nil {
		return models.Session{}, err
	}

	profile, err := m.google.FetchProfile(ctx, accessToken)
	if err != nil {
		return models.Session{}, err
	}

	account, err := m.accounts.EnsureVerifiedByEmail(ctx, profile.Email)
	if err != nil {
		return models.Session{}, fmt.Errorf("ensure account for google identity: %w", err)
	}

	m.syncGoogleProfile(ctx, account.ID, profile)

	return m.newSession(ctx, account.ID)
}

// syncGoogleProfile patches the local profile from the provider's claims,
// filling only fields that are currently empty. Failures here never abort
// the sign-in; the profile is a convenience, the session is the point.
func (m *Manager) syncGoogleProfile(ctx context.Context, accountID int64, gp GoogleProfile) {
	if m.profiles == nil {
		return
	}

	incoming := models.Profile{
		AccountID: accountID,
		Username:  gp.displayName(),
		Photo:     gp.Picture,
	}

	existing, err := m.profiles.FindLatestByAccount(ctx, accountID)
	if errors.Is(err, repositories.ErrNotFound) {
		if _, err := m.profiles.Create(ctx, incoming); err != nil {
			m.logger.Warn("create profile from google claims", "accountId", accountID, "error", err)
		}
		return
	}
	if err != nil {
		m.logger.Warn("load profile for google sync", "accountId", accountID, "error", err)
		return
	}

	merged, changed := mergeProfile(existing, incoming)
	if !changed {
		return
	}

	if err := m.profiles.Update(ctx, merged); err != nil {
		if errors.Is(err, repositories.ErrConflict) && merged.Username != existing.Username {
			// The claimed display name is already taken as a username; keep
			// the rest of the patch.
			merged.Username = existing.Username
			if merged != existing {
				err = m.profiles.Update(ctx, merged)
			} else {
				return
			}
		}
		if err != nil {
			m.logger.Warn("patch profile from google claims", "accountId", accountID, "error", err)
		}
	}
}

// mergeProfile fills empty fields of existing from incoming and reports
// whether anything changed. Populated fields always win over the provider.
func mergeProfile(existing, incoming models.Profile) (models.Profile, bool) {
	merged := existing
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&merged.Username, incoming.Username)
	fill(&merged.CountryCode, incoming.CountryCode)
	fill(&merged.Region, incoming.Region)
	fill(&merged.City, incoming.City)
	fill(&merged.Postcode, incoming.Postcode)
	fill(&merged.StreetAddress, incoming.StreetAddress)
	fill(&merged.ExtendedAddress, incoming.ExtendedAddress)
	fill(&merged.Photo, incoming.Photo)
	return merged, merged != existing
}
