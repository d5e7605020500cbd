package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/handihand/backend/internal/logging"
	"github.com/handihand/backend/internal/repositories"
)

// VideosHandler serves the public browse and search listing.
type VideosHandler struct {
	Videos VideoLister
}

type videoView struct {
	ID           string    `json:"id"`
	AccountID    int64     `json:"accountId"`
	CountryCode  string    `json:"countryCode"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	Tags         []string  `json:"tags"`
	CreatedAt    time.Time `json:"createdAt"`
}

// List handles GET /api/videos. Every filter is optional: countryCode,
// keyword, tags (repeatable or comma separated), accountId, page and size.
func (h VideosHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	query := r.URL.Query()

	search := repositories.VideoSearch{
		CountryCode: strings.ToLower(strings.TrimSpace(query.Get("countryCode"))),
		Keyword:     strings.TrimSpace(query.Get("keyword")),
		TagWords:    splitTagParams(query["tags"]),
	}

	if raw := query.Get("accountId"); raw != "" {
		accountID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "accountId must be numeric"})
			return
		}
		search.AccountID = accountID
	}

	var err error
	if search.Page, err = pagingParam(query.Get("page")); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "page must be numeric"})
		return
	}
	if search.Size, err = pagingParam(query.Get("size")); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "size must be numeric"})
		return
	}

	listings, err := h.Videos.List(ctx, search)
	if err != nil {
		logging.FromContext(ctx).Error("list videos", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "video services unavailable"})
		return
	}

	out := make([]videoView, 0, len(listings))
	for _, l := range listings {
		tags := l.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, videoView{
			ID:           l.ID,
			AccountID:    l.AccountID,
			CountryCode:  l.CountryCode,
			Title:        l.Title,
			Description:  l.Description,
			URL:          l.UploadURL,
			ThumbnailURL: l.ThumbnailURL,
			Tags:         tags,
			CreatedAt:    l.CreatedAt,
		})
	}
	respondJSON(ctx, w, http.StatusOK, out)
}

func pagingParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// splitTagParams accepts both repeated tags params and comma separated
// lists, which is how the frontend sends multi-tag filters.
func splitTagParams(values []string) []string {
	var words []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if word := strings.ToLower(strings.TrimSpace(part)); word != "" {
				words = append(words, word)
			}
		}
	}
	return words
}
