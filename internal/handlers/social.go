package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/handihand/backend/internal/logging"
	"github.com/handihand/backend/internal/repositories"
)

// SocialHandler implements the likes and saves endpoints. The two share
// their shape; only the backing table and the response keys differ.
type SocialHandler struct {
	Auth     AuthService
	Social   SocialStore
	Reaction repositories.Reaction
}

type reactionRequest struct {
	AccountID int64  `json:"accountId"`
	VideoID   string `json:"videoId"`
	ReqType   string `json:"reqType"`
}

// Handle dispatches GET (public counts) and POST (authenticated toggles).
func (h SocialHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPost:
		h.post(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// get answers counts for anyone, plus the has-reacted flag when the caller
// identifies an account.
func (h SocialHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	query := r.URL.Query()

	videoID := query.Get("videoId")
	if videoID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "videoId is required"})
		return
	}

	count, err := h.Social.Count(ctx, h.Reaction, videoID)
	if err != nil {
		logger.Error("count reactions", "reaction", string(h.Reaction), "videoId", videoID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "reaction services unavailable"})
		return
	}

	has := false
	if raw := query.Get("accountId"); raw != "" {
		accountID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "accountId must be numeric"})
			return
		}
		has, err = h.Social.Has(ctx, h.Reaction, accountID, videoID)
		if err != nil {
			logger.Error("check reaction", "reaction", string(h.Reaction), "videoId", videoID, "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "reaction services unavailable"})
			return
		}
	}

	h.respondState(w, r, has, count)
}

// post toggles the caller's reaction. The acting account always comes from
// the session, never from the request body.
func (h SocialHandler) post(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	session, ok := sessionGuard{Auth: h.Auth}.current(w, r)
	if !ok {
		return
	}

	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reaction payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.VideoID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "videoId is required"})
		return
	}

	var err error
	switch req.ReqType {
	case "add":
		err = h.Social.Add(ctx, h.Reaction, session.AccountID, req.VideoID)
	case "remove":
		err = h.Social.Remove(ctx, h.Reaction, session.AccountID, req.VideoID)
	default:
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "reqType must be add or remove"})
		return
	}
	if errors.Is(err, repositories.ErrNotFound) {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "video not found"})
		return
	}
	if err != nil {
		logger.Error("toggle reaction", "reaction", string(h.Reaction), "videoId", req.VideoID, "reqType", req.ReqType, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "reaction services unavailable"})
		return
	}

	count, err := h.Social.Count(ctx, h.Reaction, req.VideoID)
	if err != nil {
		logger.Error("count reactions", "reaction", string(h.Reaction), "videoId", req.VideoID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "reaction services unavailable"})
		return
	}
	has, err := h.Social.Has(ctx, h.Reaction, session.AccountID, req.VideoID)
	if err != nil {
		logger.Error("check reaction", "reaction", string(h.Reaction), "videoId", req.VideoID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "reaction services unavailable"})
		return
	}

	h.respondState(w, r, has, count)
}

func (h SocialHandler) respondState(w http.ResponseWriter, r *http.Request, has bool, count int64) {
	var payload map[string]any
	if h.Reaction == repositories.ReactionSave {
		payload = map[string]any{"hasSaved": has, "saves": count}
	} else {
		payload = map[string]any{"hasLiked": has, "likes": count}
	}
	respondJSON(r.Context(), w, http.StatusOK, payload)
}
