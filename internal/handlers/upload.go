package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/handihand/backend/internal/logging"
	"github.com/handihand/backend/internal/models"
	"github.com/handihand/backend/internal/repositories"
	"github.com/handihand/backend/internal/token"
	"github.com/handihand/backend/internal/uploads"
)

const (
	videoFormLimit = 64 << 20
	imageFormLimit = 16 << 20
)

// UploadHandler implements the asynchronous video upload flow, the direct
// image upload, the job polling endpoint and the transcoding param signer.
type UploadHandler struct {
	Auth    AuthService
	Jobs    UploadJobStore
	Queue   UploadQueue
	Storage AssetStorage
	Signer  ParamsSigner
}

// Video handles POST /api/upload/video. The request returns as soon as the
// upload is buffered and queued; the outcome is observable only through
// check_status with the returned token.
func (h UploadHandler) Video(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	session, ok := sessionGuard{Auth: h.Auth}.current(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(videoFormLimit); err != nil {
		logger.Warn("invalid video upload form", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid form submission"})
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "video file is required"})
		return
	}
	defer file.Close()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}

	tempPath, size, err := bufferUpload(file)
	if err != nil {
		logger.Error("buffer video upload", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "upload could not be accepted"})
		return
	}

	thumbnail, err := h.readThumbnail(r)
	if err != nil {
		_ = os.Remove(tempPath)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "thumbnail could not be processed"})
		return
	}

	checkToken := token.New()
	if err := h.Jobs.Create(ctx, models.UploadJob{
		Token:     checkToken,
		AccountID: session.AccountID,
		Status:    models.UploadStatusProcessing,
	}); err != nil {
		_ = os.Remove(tempPath)
		logger.Error("create upload job", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "upload could not be accepted"})
		return
	}

	job := uploads.VideoJob{
		Token: checkToken,
		Video: models.Video{
			ID:          uuid.NewString(),
			AccountID:   session.AccountID,
			CountryCode: strings.ToLower(strings.TrimSpace(r.FormValue("country"))),
			Title:       title,
			Description: strings.TrimSpace(r.FormValue("description")),
			Name:        safeFilename(header.Filename),
			ContentType: header.Header.Get("Content-Type"),
			Size:        size,
		},
		Tags:          splitTags(r.FormValue("tags")),
		FilePath:      tempPath,
		Thumbnail:     thumbnail,
		ThumbnailType: "image/jpeg",
	}

	if err := h.Queue.Enqueue(ctx, job); err != nil {
		_ = os.Remove(tempPath)
		logger.Error("enqueue video upload", "uploadToken", checkToken, "error", err)
		if err := h.Jobs.SetStatus(ctx, checkToken, models.UploadStatusFailed, "ingestion queue unavailable"); err != nil {
			logger.Error("mark upload job failed", "uploadToken", checkToken, "error", err)
		}
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "upload queue is full, try again"})
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]string{"checkToken": checkToken})
}

// CheckStatus handles GET /api/upload/check_status?token.
func (h UploadHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	pollToken := r.URL.Query().Get("token")
	if pollToken == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}

	job, err := h.Jobs.Find(ctx, pollToken)
	if errors.Is(err, repositories.ErrNotFound) {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "unknown upload token"})
		return
	}
	if err != nil {
		logging.FromContext(ctx).Error("find upload job", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "upload services unavailable"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": job.Status})
}

// Image handles POST /api/upload/image: a synchronous, normalized image
// store used for video cover art.
func (h UploadHandler) Image(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	session, ok := sessionGuard{Auth: h.Auth}.current(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(imageFormLimit); err != nil {
		logger.Warn("invalid image upload form", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid form submission"})
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "image file is required"})
		return
	}
	defer file.Close()

	normalized, err := uploads.NormalizePhoto(file)
	if err != nil {
		logger.Warn("reject image upload", "accountId", session.AccountID, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "file is not a supported image"})
		return
	}

	key := fmt.Sprintf("images/%s.jpg", uuid.NewString())
	location, err := h.Storage.Save(ctx, key, "image/jpeg", bytes.NewReader(normalized))
	if err != nil {
		logger.Error("store image upload", "accountId", session.AccountID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "image could not be stored"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"url": location})
}

// TransloaditParams handles GET /api/transloadit/params.
func (h UploadHandler) TransloaditParams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	if _, ok := (sessionGuard{Auth: h.Auth}).current(w, r); !ok {
		return
	}

	if h.Signer == nil || !h.Signer.Enabled() {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "transcoding is not configured"})
		return
	}

	signed, err := h.Signer.Sign()
	if err != nil {
		logging.FromContext(ctx).Error("sign transloadit params", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "could not sign parameters"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, signed)
}

// bufferUpload spills the multipart stream to a temp file owned by the
// ingestion worker from here on.
func bufferUpload(file multipart.File) (string, int64, error) {
	tmp, err := os.CreateTemp("", "handihand-upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}

	size, err := io.Copy(tmp, file)
	closeErr := tmp.Close()
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("buffer upload: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("flush upload buffer: %w", closeErr)
	}

	return tmp.Name(), size, nil
}

// readThumbnail renders the optional cover image into the player's frame.
func (h UploadHandler) readThumbnail(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("thumbnail")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read thumbnail field: %w", err)
	}
	defer file.Close()

	return uploads.Thumbnail(file)
}

func safeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "video"
	}
	return base
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		word := strings.ToLower(strings.TrimSpace(part))
		if word != "" {
			out = append(out, word)
		}
	}
	return out
}
