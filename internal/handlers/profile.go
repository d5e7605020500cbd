package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/handihand/backend/internal/auth"
	"github.com/handihand/backend/internal/logging"
	"github.com/handihand/backend/internal/models"
	"github.com/handihand/backend/internal/repositories"
	"github.com/handihand/backend/internal/uploads"
)

const profileFormLimit = 16 << 20

// Field length limits for profile submissions.
const (
	maxUsernameLength = 50
	maxRegionLength   = 100
	maxCityLength     = 50
	maxPostcodeLength = 50
	maxStreetLength   = 100
	maxExtendedLength = 100
)

// ProfileHandler implements profile editing, including the optional photo
// upload. Submissions require a live session plus a single-use CSRF token.
type ProfileHandler struct {
	Auth      AuthService
	Profiles  ProfileStore
	Countries CountryChecker
	Storage   AssetStorage
}

type profileResponse struct {
	OK    bool                `json:"ok"`
	Error map[string][]string `json:"error,omitempty"`
}

// Update handles POST /api/profile.
func (h ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Profiles == nil || h.Countries == nil {
		logger.Error("profile dependencies unavailable", "hasProfiles", h.Profiles != nil, "hasCountries", h.Countries != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, profileResponse{OK: false, Error: map[string][]string{"form": {"profile services unavailable"}}})
		return
	}

	session, ok := sessionGuard{Auth: h.Auth}.current(w, r)
	if !ok {
		return
	}

	csrf := cookieValue(r, csrfCookieName)
	clearCSRFCookie(w)
	if err := h.Auth.VerifySessionCSRF(ctx, csrf, session.ID); err != nil {
		logger.Error("profile update rejected by csrf check", "sessionId", session.ID, "error", err)
		respondJSON(ctx, w, http.StatusForbidden, profileResponse{OK: false, Error: map[string][]string{"form": {"request could not be verified, please retry"}}})
		return
	}

	if err := r.ParseMultipartForm(profileFormLimit); err != nil {
		logger.Warn("invalid profile form", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, profileResponse{OK: false, Error: map[string][]string{"form": {"invalid form submission"}}})
		return
	}

	submitted := models.Profile{
		AccountID:       session.AccountID,
		Username:        strings.TrimSpace(r.FormValue("username")),
		CountryCode:     strings.ToLower(strings.TrimSpace(r.FormValue("country"))),
		Region:          strings.TrimSpace(r.FormValue("region")),
		City:            strings.TrimSpace(r.FormValue("city")),
		Postcode:        strings.TrimSpace(r.FormValue("postcode")),
		StreetAddress:   strings.TrimSpace(r.FormValue("streetAddress")),
		ExtendedAddress: strings.TrimSpace(r.FormValue("extendedAddress")),
	}

	errs := h.validate(r, submitted)
	if !errs.Empty() {
		respondJSON(ctx, w, http.StatusBadRequest, profileResponse{OK: false, Error: errs})
		return
	}

	photoURL, err := h.storePhoto(r, session.AccountID)
	if err != nil {
		logger.Error("store profile photo", "accountId", session.AccountID, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, profileResponse{OK: false, Error: map[string][]string{"photo": {"photo could not be processed"}}})
		return
	}
	submitted.Photo = photoURL

	if err := h.save(r, submitted); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondJSON(ctx, w, http.StatusBadRequest, profileResponse{OK: false, Error: map[string][]string{"username": {"Username is already taken"}}})
			return
		}
		logger.Error("save profile", "accountId", session.AccountID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, profileResponse{OK: false, Error: map[string][]string{"form": {"profile could not be saved"}}})
		return
	}

	respondJSON(ctx, w, http.StatusOK, profileResponse{OK: true})
}

func (h ProfileHandler) validate(r *http.Request, p models.Profile) auth.FieldErrors {
	errs := auth.FieldErrors{}

	check := func(field, value string, max int) {
		if len(value) > max {
			errs[field] = append(errs[field], fmt.Sprintf("%s must be at most %d characters", field, max))
		}
	}
	check("username", p.Username, maxUsernameLength)
	check("region", p.Region, maxRegionLength)
	check("city", p.City, maxCityLength)
	check("postcode", p.Postcode, maxPostcodeLength)
	check("streetAddress", p.StreetAddress, maxStreetLength)
	check("extendedAddress", p.ExtendedAddress, maxExtendedLength)

	if p.CountryCode != "" {
		exists, err := h.Countries.Exists(r.Context(), p.CountryCode)
		if err != nil {
			logging.FromContext(r.Context()).Error("check country code", "code", p.CountryCode, "error", err)
			errs["country"] = append(errs["country"], "country could not be verified")
		} else if !exists {
			errs["country"] = append(errs["country"], "unknown country")
		}
	}

	return errs
}

// storePhoto normalizes and stores an uploaded photo, returning its public
// URL or empty when the form carried no photo.
func (h ProfileHandler) storePhoto(r *http.Request, accountID int64) (string, error) {
	file, _, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read photo field: %w", err)
	}
	defer file.Close()

	if h.Storage == nil {
		return "", errors.New("asset storage unavailable")
	}

	normalized, err := uploads.NormalizePhoto(file)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("profiles/%d/photo.jpg", accountID)
	return h.Storage.Save(r.Context(), key, "image/jpeg", bytes.NewReader(normalized))
}

// save writes the submission over the latest profile, or creates the first
// one. Submitted values overwrite; blank fields keep their stored value, so
// a partial form cannot wipe an address.
func (h ProfileHandler) save(r *http.Request, submitted models.Profile) error {
	ctx := r.Context()

	existing, err := h.Profiles.FindLatestByAccount(ctx, submitted.AccountID)
	if errors.Is(err, repositories.ErrNotFound) {
		_, err := h.Profiles.Create(ctx, submitted)
		return err
	}
	if err != nil {
		return err
	}

	merged := existing
	overwrite := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	overwrite(&merged.Username, submitted.Username)
	overwrite(&merged.CountryCode, submitted.CountryCode)
	overwrite(&merged.Region, submitted.Region)
	overwrite(&merged.City, submitted.City)
	overwrite(&merged.Postcode, submitted.Postcode)
	overwrite(&merged.StreetAddress, submitted.StreetAddress)
	overwrite(&merged.ExtendedAddress, submitted.ExtendedAddress)
	overwrite(&merged.Photo, submitted.Photo)

	if merged == existing {
		return nil
	}
	return h.Profiles.Update(ctx, merged)
}
