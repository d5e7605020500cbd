package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/handihand/backend/internal/models"
)

// videoUploadRequest builds a multipart POST with a video part and extra
// form fields.
func videoUploadRequest(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile("video", filename)
		if err != nil {
			t.Fatalf("create video part: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write video part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload/video", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pollStatus(t *testing.T, env *testEnv, checkToken string) string {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/upload/check_status?token="+checkToken, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("check_status code = %d, body %s", rec.Code, rec.Body)
		}
		status := decodeMap(t, rec)["status"].(string)
		if status != models.UploadStatusProcessing {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatal("upload never left processing")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestVideoUploadFlow(t *testing.T) {
	env := newTestEnv(t)
	session, account := env.signIn(t, "maker@example.com")

	req := videoUploadRequest(t, map[string]string{
		"title":       "Throwing a bowl",
		"description": "step by step",
		"country":     "DE",
		"tags":        "Ceramics, wheel ,",
	}, "bowl.mp4", "not really an mp4")
	req.AddCookie(session)

	rec := env.do(req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body)
	}
	checkToken, _ := decodeMap(t, rec)["checkToken"].(string)
	if checkToken == "" {
		t.Fatal("no checkToken in response")
	}

	if status := pollStatus(t, env, checkToken); status != models.UploadStatusOK {
		t.Fatalf("final status = %q", status)
	}

	videos, tags := env.recorder.Videos()
	if len(videos) != 1 {
		t.Fatalf("recorded %d videos", len(videos))
	}
	video := videos[0]
	if video.Title != "Throwing a bowl" || video.AccountID != account.ID || video.CountryCode != "de" || video.Name != "bowl.mp4" {
		t.Fatalf("recorded video = %+v", video)
	}
	if got, want := tags[0], []string{"ceramics", "wheel"}; len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("recorded tags = %v", got)
	}

	// The bytes landed under the video's key.
	key := "videos/" + video.ID + "/bowl.mp4"
	body, contentType, ok := env.store.Object(key)
	if !ok {
		t.Fatalf("object %s not stored", key)
	}
	if string(body) != "not really an mp4" {
		t.Fatalf("stored bytes = %q", body)
	}
	if video.UploadURL != "mem://"+key {
		t.Fatalf("upload url = %q", video.UploadURL)
	}
	_ = contentType
}

func TestVideoUploadRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	req := videoUploadRequest(t, map[string]string{"title": "x"}, "a.mp4", "data")
	if rec := env.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestVideoUploadValidation(t *testing.T) {
	env := newTestEnv(t)
	session, _ := env.signIn(t, "maker@example.com")

	req := videoUploadRequest(t, map[string]string{"title": "no file"}, "", "")
	req.AddCookie(session)
	if rec := env.do(req); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file status = %d", rec.Code)
	}

	req = videoUploadRequest(t, map[string]string{"title": "   "}, "a.mp4", "data")
	req.AddCookie(session)
	if rec := env.do(req); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank title status = %d", rec.Code)
	}
}

func TestCheckStatusUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/upload/check_status?token=missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestImageUpload(t *testing.T) {
	env := newTestEnv(t)
	session, _ := env.signIn(t, "maker@example.com")

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), A: 255})
		}
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "cover.png")
	if err != nil {
		t.Fatalf("create image part: %v", err)
	}
	if _, err := part.Write(pngBuf.Bytes()); err != nil {
		t.Fatalf("write image part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(session)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	location, _ := decodeMap(t, rec)["url"].(string)
	if !strings.HasPrefix(location, "mem://images/") || !strings.HasSuffix(location, ".jpg") {
		t.Fatalf("url = %q", location)
	}
	if env.store.Len() != 1 {
		t.Fatalf("stored %d objects", env.store.Len())
	}
}

func TestImageUploadRejectsGarbage(t *testing.T) {
	env := newTestEnv(t)
	session, _ := env.signIn(t, "maker@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("image", "cover.png")
	_, _ = part.Write([]byte("definitely not an image"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(session)
	if rec := env.do(req); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTransloaditParams(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(httptest.NewRequest(http.MethodGet, "/api/transloadit/params", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}

	session, _ := env.signIn(t, "maker@example.com")
	req := httptest.NewRequest(http.MethodGet, "/api/transloadit/params", nil)
	req.AddCookie(session)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var signed struct {
		Params    string `json:"params"`
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&signed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if signed.Params == "" || !strings.HasPrefix(signed.Signature, "sha384:") {
		t.Fatalf("signed params = %+v", signed)
	}
}
