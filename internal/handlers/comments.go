package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/handihand/backend/internal/logging"
	"github.com/handihand/backend/internal/models"
	"github.com/handihand/backend/internal/repositories"
)

const maxCommentLength = 1000

// CommentsHandler serves comment threads under videos.
type CommentsHandler struct {
	Auth   AuthService
	Social SocialStore
}

type commentPayload struct {
	VideoID string `json:"videoId"`
	Comment string `json:"comment"`
}

type commentView struct {
	ID        int64     `json:"id"`
	VideoID   string    `json:"videoId"`
	AccountID int64     `json:"accountId"`
	Comment   string    `json:"comment"`
	Username  string    `json:"username"`
	Photo     string    `json:"photo"`
	CreatedAt time.Time `json:"createdAt"`
}

// Handle dispatches GET (public listing) and POST (authenticated create).
// Both answer with the refreshed thread.
func (h CommentsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r, r.URL.Query().Get("videoId"))
	case http.MethodPost:
		h.create(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h CommentsHandler) list(w http.ResponseWriter, r *http.Request, videoID string) {
	ctx := r.Context()

	if videoID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "videoId is required"})
		return
	}

	views, err := h.Social.ListComments(ctx, videoID)
	if err != nil {
		logging.FromContext(ctx).Error("list comments", "videoId", videoID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "comment services unavailable"})
		return
	}

	out := make([]commentView, 0, len(views))
	for _, v := range views {
		out = append(out, toCommentView(v))
	}
	respondJSON(ctx, w, http.StatusOK, out)
}

func (h CommentsHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	session, ok := sessionGuard{Auth: h.Auth}.current(w, r)
	if !ok {
		return
	}

	var req commentPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid comment payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	body := strings.TrimSpace(req.Comment)
	switch {
	case req.VideoID == "":
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "videoId is required"})
		return
	case body == "":
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "comment cannot be empty"})
		return
	case len(body) > maxCommentLength:
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "comment is too long"})
		return
	}

	comment := models.Comment{
		VideoID:   req.VideoID,
		AccountID: session.AccountID,
		Body:      body,
	}
	if err := h.Social.AddComment(ctx, comment); err != nil {
		logger.Error("add comment", "videoId", req.VideoID, "accountId", session.AccountID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "comment services unavailable"})
		return
	}

	h.list(w, r, req.VideoID)
}

func toCommentView(v repositories.CommentView) commentView {
	return commentView{
		ID:        v.Comment.ID,
		VideoID:   v.Comment.VideoID,
		AccountID: v.Comment.AccountID,
		Comment:   v.Comment.Body,
		Username:  v.Username,
		Photo:     v.Photo,
		CreatedAt: v.Comment.CreatedAt,
	}
}
