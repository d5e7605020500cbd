package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/handihand/backend/internal/auth"
	"github.com/handihand/backend/internal/config"
	"github.com/handihand/backend/internal/models"
	"github.com/handihand/backend/internal/repositories"
	"github.com/handihand/backend/internal/storage"
	"github.com/handihand/backend/internal/token"
	"github.com/handihand/backend/internal/uploads"
)

// testEnv assembles the full route surface over in-memory collaborators.
type testEnv struct {
	mux      *http.ServeMux
	manager  *auth.Manager
	accounts *auth.MemoryAccountStore
	sessions *auth.MemorySessionStore
	tokens   *auth.MemoryTokenStore
	profiles *auth.MemoryProfileStore
	mail     *auth.RecordingEmailSender
	social   *fakeSocial
	jobs     *fakeJobStore
	store    *storage.MemoryStorage
	recorder *captureRecorder
	ingestor *uploads.Ingestor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		accounts: auth.NewMemoryAccountStore(),
		sessions: auth.NewMemorySessionStore(),
		tokens:   auth.NewMemoryTokenStore(),
		profiles: auth.NewMemoryProfileStore(),
		mail:     &auth.RecordingEmailSender{},
		social:   newFakeSocial(),
		jobs:     newFakeJobStore(),
		store:    storage.NewMemoryStorage(),
		recorder: &captureRecorder{},
	}
	env.manager = auth.NewManager(env.accounts, env.sessions, env.tokens,
		env.profiles, env.mail, nil, auth.ManagerConfig{BaseURL: "https://handihand.test"}, nil)
	env.ingestor = uploads.NewIngestor(env.store, env.recorder, env.jobs, uploads.IngestorConfig{Workers: 1}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.ingestor.Shutdown(ctx)
	})

	deps := Dependencies{
		Auth:       env.manager,
		Profiles:   env.profiles,
		Countries:  fakeCountries{"de": true, "fr": true},
		Social:     env.social,
		Videos:     env.recorder,
		Tags:       staticTags{{ID: 1, Word: "ceramics"}, {ID: 2, Word: "woodwork"}},
		UploadJobs: env.jobs,
		Uploads:    env.ingestor,
		Storage:    env.store,
		Signer:     uploads.NewTransloaditSigner(config.TransloaditConfig{AuthKey: "k", AuthSecret: "s"}),
	}

	env.mux = http.NewServeMux()
	RegisterRoutes(env.mux, deps, nil)
	return env
}

// signIn provisions a verified account plus a live session and returns the
// session cookie to attach to requests.
func (e *testEnv) signIn(t *testing.T, email string) (*http.Cookie, models.Account) {
	t.Helper()

	ctx := context.Background()
	account, err := e.accounts.EnsureVerifiedByEmail(ctx, email)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	now := time.Now().UTC()
	session := models.Session{
		ID:          token.New(),
		AccountID:   account.ID,
		ExpiresAt:   now.Add(7 * 24 * time.Hour),
		RefreshedAt: now,
		CreatedAt:   now,
	}
	if err := e.sessions.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &http.Cookie{Name: "sessionid", Value: session.ID}, account
}

// backdateToken ages a pending verification token past its window.
func (e *testEnv) backdateToken(t *testing.T, code string) {
	t.Helper()
	if code == "" {
		t.Fatal("no token to backdate")
	}
	e.tokens.Backdate(code, time.Now().UTC().Add(-time.Hour))
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

type fakeCountries map[string]bool

func (f fakeCountries) Exists(_ context.Context, code string) (bool, error) {
	return f[code], nil
}

type staticTags []models.Tag

func (s staticTags) List(context.Context) ([]models.Tag, error) {
	return s, nil
}

// captureRecorder keeps every ingested video for assertions and serves the
// browse listing over what it captured.
type captureRecorder struct {
	mu     sync.Mutex
	videos []models.Video
	tags   [][]string
}

func (c *captureRecorder) Create(_ context.Context, video models.Video, tags []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videos = append(c.videos, video)
	c.tags = append(c.tags, tags)
	return nil
}

func (c *captureRecorder) Videos() ([]models.Video, [][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Video(nil), c.videos...), append([][]string(nil), c.tags...)
}

func (c *captureRecorder) List(_ context.Context, search repositories.VideoSearch) ([]repositories.VideoListing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []repositories.VideoListing
	for i, video := range c.videos {
		if search.CountryCode != "" && video.CountryCode != search.CountryCode {
			continue
		}
		if search.AccountID != 0 && video.AccountID != search.AccountID {
			continue
		}
		if search.Keyword != "" {
			haystack := strings.ToLower(video.Title + " " + video.Description)
			if !strings.Contains(haystack, strings.ToLower(search.Keyword)) {
				continue
			}
		}
		if len(search.TagWords) > 0 && !tagsOverlap(c.tags[i], search.TagWords) {
			continue
		}
		out = append(out, repositories.VideoListing{
			Video: video,
			Tags:  append([]string(nil), c.tags[i]...),
		})
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})

	size := search.Size
	if size <= 0 {
		size = 20
	}
	start := search.Page * size
	if start >= len(out) {
		return nil, nil
	}
	if end := start + size; end < len(out) {
		out = out[start:end]
	} else {
		out = out[start:]
	}
	return out, nil
}

func tagsOverlap(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

// fakeSocial is a mutex-guarded SocialStore over maps.
type fakeSocial struct {
	mu        sync.Mutex
	reactions map[string]map[int64]bool
	comments  []repositories.CommentView
	nextID    int64
}

func newFakeSocial() *fakeSocial {
	return &fakeSocial{reactions: make(map[string]map[int64]bool), nextID: 1}
}

func (f *fakeSocial) key(reaction repositories.Reaction, videoID string) string {
	return string(reaction) + "/" + videoID
}

func (f *fakeSocial) Add(_ context.Context, reaction repositories.Reaction, accountID int64, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.key(reaction, videoID)
	if f.reactions[key] == nil {
		f.reactions[key] = make(map[int64]bool)
	}
	f.reactions[key][accountID] = true
	return nil
}

func (f *fakeSocial) Remove(_ context.Context, reaction repositories.Reaction, accountID int64, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reactions[f.key(reaction, videoID)], accountID)
	return nil
}

func (f *fakeSocial) Count(_ context.Context, reaction repositories.Reaction, videoID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.reactions[f.key(reaction, videoID)])), nil
}

func (f *fakeSocial) Has(_ context.Context, reaction repositories.Reaction, accountID int64, videoID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reactions[f.key(reaction, videoID)][accountID], nil
}

func (f *fakeSocial) AddComment(_ context.Context, comment models.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	comment.ID = f.nextID
	f.nextID++
	comment.CreatedAt = time.Now().UTC()
	f.comments = append(f.comments, repositories.CommentView{
		Comment:  comment,
		Username: "maker-" + strconv.FormatInt(comment.AccountID, 10),
	})
	return nil
}

func (f *fakeSocial) ListComments(_ context.Context, videoID string) ([]repositories.CommentView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repositories.CommentView
	for _, view := range f.comments {
		if view.Comment.VideoID == videoID {
			out = append(out, view)
		}
	}
	return out, nil
}

// fakeJobStore implements UploadJobStore and the ingestor's JobTracker.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]models.UploadJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]models.UploadJob)}
}

func (f *fakeJobStore) Create(_ context.Context, job models.UploadJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.Token] = job
	return nil
}

func (f *fakeJobStore) Find(_ context.Context, tok string) (models.UploadJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[tok]
	if !ok {
		return models.UploadJob{}, repositories.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobStore) SetStatus(_ context.Context, tok, status, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[tok]
	if !ok {
		return repositories.ErrNotFound
	}
	job.Status = status
	job.Detail = detail
	f.jobs[tok] = job
	return nil
}
