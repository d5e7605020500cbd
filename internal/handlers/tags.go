package handlers

import (
	"net/http"

	"github.com/handihand/backend/internal/logging"
)

// TagsHandler serves the read-only tag vocabulary.
type TagsHandler struct {
	Tags TagLister
}

type tagView struct {
	ID   int64  `json:"id"`
	Word string `json:"word"`
}

// List handles GET /api/tags.
func (h TagsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	tags, err := h.Tags.List(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list tags", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "tag services unavailable"})
		return
	}

	out := make([]tagView, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tagView{ID: tag.ID, Word: tag.Word})
	}
	respondJSON(ctx, w, http.StatusOK, out)
}
