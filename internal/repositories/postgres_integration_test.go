package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/handihand/backend/internal/models"
	"github.com/handihand/backend/internal/token"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyTestMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

// applyTestMigrations replays the migration files in order. The pgcrypto
// migration is skipped: CockroachDB ships without the extension and the
// password predicates it backs are not exercised here.
func applyTestMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || strings.Contains(entry.Name(), "pgcrypto") {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE upload_jobs, comments, saves, likes, video_tags, tags, videos, countries, verifications, sessions, profiles, accounts CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestAccount(t *testing.T, email string) models.Account {
	t.Helper()
	ctx := context.Background()
	repo := NewPostgresAccountRepository(testPool)

	id, err := repo.Create(ctx, models.IdentityEmail, email, "", models.AccountStateVerified)
	if err != nil {
		t.Fatalf("create test account: %v", err)
	}
	account, err := repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("load test account: %v", err)
	}
	return account
}

func createTestVideo(t *testing.T, accountID int64, title string) models.Video {
	t.Helper()
	video := models.Video{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Title:     title,
	}
	if err := NewPostgresVideoRepository(testPool).Create(context.Background(), video, nil); err != nil {
		t.Fatalf("create test video: %v", err)
	}
	return video
}

func TestPostgresAccountRepository_CreateFindAndPromote(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresAccountRepository(testPool)

	id, err := repo.Create(ctx, models.IdentityEmail, "alice@example.com", "", models.AccountStateWaitVerification)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	if _, err := repo.Create(ctx, models.IdentityEmail, "alice@example.com", "", models.AccountStateWaitVerification); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate identity, got %v", err)
	}

	account, err := repo.FindByIdentity(ctx, models.IdentityEmail, "alice@example.com")
	if err != nil {
		t.Fatalf("find by identity: %v", err)
	}
	if account.ID != id || account.State != models.AccountStateWaitVerification {
		t.Fatalf("unexpected account: %+v", account)
	}

	if err := repo.SetState(ctx, id, models.AccountStateVerified); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := repo.SetState(ctx, id+999, models.AccountStateVerified); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown account, got %v", err)
	}

	if _, err := repo.FindByIdentity(ctx, models.IdentityEmail, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown identity, got %v", err)
	}
}

func TestPostgresAccountRepository_EnsureVerifiedByEmail(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresAccountRepository(testPool)

	// Unknown email: a verified account appears.
	created, err := repo.EnsureVerifiedByEmail(ctx, "oauth@example.com")
	if err != nil {
		t.Fatalf("ensure verified (create): %v", err)
	}
	if created.State != models.AccountStateVerified {
		t.Fatalf("expected verified account, got %+v", created)
	}

	// Existing unverified email: the account is promoted, not duplicated.
	pendingID, err := repo.Create(ctx, models.IdentityEmail, "pending@example.com", "", models.AccountStateWaitVerification)
	if err != nil {
		t.Fatalf("create pending account: %v", err)
	}
	promoted, err := repo.EnsureVerifiedByEmail(ctx, "pending@example.com")
	if err != nil {
		t.Fatalf("ensure verified (promote): %v", err)
	}
	if promoted.ID != pendingID || promoted.State != models.AccountStateVerified {
		t.Fatalf("expected promoted account %d, got %+v", pendingID, promoted)
	}

	// Idempotent on a verified account.
	again, err := repo.EnsureVerifiedByEmail(ctx, "pending@example.com")
	if err != nil {
		t.Fatalf("ensure verified (repeat): %v", err)
	}
	if again.ID != pendingID {
		t.Fatalf("expected same account, got %+v", again)
	}
}

func TestPostgresVerificationStore_ConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	store := NewPostgresVerificationStore(testPool)

	tok := models.VerificationToken{
		Code:  token.New(),
		Kind:  models.TokenEmailVerify,
		Email: "alice@example.com",
	}
	if err := store.Issue(ctx, &tok); err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if tok.ID == 0 || tok.CreatedAt.IsZero() {
		t.Fatalf("issue did not backfill id/created_at: %+v", tok)
	}

	found, err := store.FindEmailVerification(ctx, tok.Email, tok.Code)
	if err != nil {
		t.Fatalf("find token: %v", err)
	}
	if found.ID != tok.ID {
		t.Fatalf("unexpected token found: %+v", found)
	}

	// Racing consumers: exactly one wins the DELETE.
	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Consume(ctx, tok.Code, tok.Kind)
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", wins)
	}

	if _, err := store.FindEmailVerification(ctx, tok.Email, tok.Code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after consume, got %v", err)
	}
}

func TestPostgresVerificationStore_SessionBoundCSRF(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	store := NewPostgresVerificationStore(testPool)

	tok := models.VerificationToken{
		Code:      token.New(),
		Kind:      models.TokenSessionCSRF,
		SessionID: "session-a",
	}
	if err := store.Issue(ctx, &tok); err != nil {
		t.Fatalf("issue csrf token: %v", err)
	}

	// The wrong session cannot spend it.
	ok, err := store.ConsumeForSession(ctx, tok.Code, "session-b")
	if err != nil {
		t.Fatalf("consume for wrong session: %v", err)
	}
	if ok {
		t.Fatal("token consumed by a different session")
	}

	ok, err = store.ConsumeForSession(ctx, tok.Code, "session-a")
	if err != nil {
		t.Fatalf("consume for owner session: %v", err)
	}
	if !ok {
		t.Fatal("owner session could not consume its token")
	}

	// Spent means spent.
	ok, err = store.ConsumeForSession(ctx, tok.Code, "session-a")
	if err != nil {
		t.Fatalf("replay consume: %v", err)
	}
	if ok {
		t.Fatal("csrf token consumed twice")
	}
}

func TestPostgresSessionStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	account := createTestAccount(t, "owner@example.com")
	store := NewPostgresSessionStore(testPool)

	now := time.Now().UTC().Truncate(time.Millisecond)
	session := models.Session{
		ID:          token.New(),
		AccountID:   account.ID,
		ExpiresAt:   now.Add(24 * time.Hour),
		RefreshedAt: now,
		CreatedAt:   now,
	}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	loaded, err := store.Find(ctx, session.ID)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if loaded.AccountID != account.ID || !timesClose(loaded.ExpiresAt, session.ExpiresAt, time.Millisecond) {
		t.Fatalf("unexpected session: %+v", loaded)
	}

	extendedExpiry := now.Add(72 * time.Hour)
	if err := store.Extend(ctx, session.ID, extendedExpiry, now.Add(time.Hour)); err != nil {
		t.Fatalf("extend session: %v", err)
	}
	loaded, err = store.Find(ctx, session.ID)
	if err != nil {
		t.Fatalf("find extended session: %v", err)
	}
	if !timesClose(loaded.ExpiresAt, extendedExpiry, time.Millisecond) {
		t.Fatalf("expected extended expiry, got %v", loaded.ExpiresAt)
	}

	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Find(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPostgresProfileRepository_LatestWinsAndUsernameConflict(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	account := createTestAccount(t, "maker@example.com")
	other := createTestAccount(t, "other@example.com")
	repo := NewPostgresProfileRepository(testPool)

	firstID, err := repo.Create(ctx, models.Profile{AccountID: account.ID, Username: "maker", City: "Berlin"})
	if err != nil {
		t.Fatalf("create first profile: %v", err)
	}

	// Later profiles shadow earlier ones.
	time.Sleep(10 * time.Millisecond)
	if _, err := repo.Create(ctx, models.Profile{AccountID: account.ID, Username: "maker-two", City: "Hamburg"}); err != nil {
		t.Fatalf("create second profile: %v", err)
	}

	latest, err := repo.FindLatestByAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("find latest profile: %v", err)
	}
	if latest.Username != "maker-two" || latest.City != "Hamburg" {
		t.Fatalf("expected newest profile, got %+v", latest)
	}

	// Another account cannot grab a taken username via update.
	otherID, err := repo.Create(ctx, models.Profile{AccountID: other.ID})
	if err != nil {
		t.Fatalf("create other profile: %v", err)
	}
	otherProfile, err := repo.FindLatestByAccount(ctx, other.ID)
	if err != nil {
		t.Fatalf("find other profile: %v", err)
	}
	if otherProfile.ID != otherID {
		t.Fatalf("expected profile %d, got %+v", otherID, otherProfile)
	}
	otherProfile.Username = "maker-two"
	if err := repo.Update(ctx, otherProfile); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for taken username, got %v", err)
	}

	// Updating your own profile with your own name is fine.
	latest.City = "Munich"
	if err := repo.Update(ctx, latest); err != nil {
		t.Fatalf("update own profile: %v", err)
	}

	if err := repo.SetPhoto(ctx, firstID, "mem://profiles/1/photo.jpg"); err != nil {
		t.Fatalf("set photo: %v", err)
	}
}

func TestPostgresVideoRepository_CreateWithTags(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	account := createTestAccount(t, "maker@example.com")

	if _, err := testPool.Exec(ctx, `INSERT INTO tags (word) VALUES ('ceramics'), ('woodwork')`); err != nil {
		t.Fatalf("seed tags: %v", err)
	}

	repo := NewPostgresVideoRepository(testPool)
	video := models.Video{
		ID:          uuid.NewString(),
		AccountID:   account.ID,
		Title:       "Throwing a bowl",
		Name:        "bowl.mp4",
		ContentType: "video/mp4",
		Size:        1024,
		UploadURL:   "mem://videos/x/bowl.mp4",
	}

	// Unknown tag words are skipped, not invented.
	if err := repo.Create(ctx, video, []string{"ceramics", "no-such-tag"}); err != nil {
		t.Fatalf("create video: %v", err)
	}

	fetched, err := repo.FindByID(ctx, video.ID)
	if err != nil {
		t.Fatalf("find video: %v", err)
	}
	if fetched.Title != video.Title || fetched.UploadURL != video.UploadURL || fetched.Size != video.Size {
		t.Fatalf("unexpected video: %+v", fetched)
	}

	var linked int
	if err := testPool.QueryRow(ctx, `SELECT count(*) FROM video_tags WHERE video_id = $1`, video.ID).Scan(&linked); err != nil {
		t.Fatalf("count video tags: %v", err)
	}
	if linked != 1 {
		t.Fatalf("expected 1 linked tag, got %d", linked)
	}

	if err := repo.Create(ctx, video, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate video id, got %v", err)
	}

	tags, err := NewPostgresTagRepository(testPool).List(ctx)
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(tags))
	}
}

func TestPostgresVideoRepository_ListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	maker := createTestAccount(t, "maker@example.com")
	weaver := createTestAccount(t, "weaver@example.com")

	if _, err := testPool.Exec(ctx, `INSERT INTO tags (word) VALUES ('ceramics'), ('woodwork')`); err != nil {
		t.Fatalf("seed tags: %v", err)
	}

	repo := NewPostgresVideoRepository(testPool)
	seed := func(id string, accountID int64, country, title, description string, ageMinutes int, tagWords ...string) {
		t.Helper()
		if err := repo.Create(ctx, models.Video{
			ID:          id,
			AccountID:   accountID,
			CountryCode: country,
			Title:       title,
			Description: description,
			Name:        "clip.mp4",
		}, tagWords); err != nil {
			t.Fatalf("seed video %s: %v", id, err)
		}
		if _, err := testPool.Exec(ctx,
			`UPDATE videos SET created_at = NOW() - ($2::int * INTERVAL '1 minute') WHERE id = $1`,
			id, ageMinutes); err != nil {
			t.Fatalf("age video %s: %v", id, err)
		}
	}

	bowl := uuid.NewString()
	vase := uuid.NewString()
	mug := uuid.NewString()
	seed(bowl, maker.ID, "de", "Turning a walnut bowl", "", 3, "woodwork")
	seed(vase, weaver.ID, "fr", "Throwing a vase", "stoneware on the wheel", 2, "ceramics")
	seed(mug, weaver.ID, "de", "Glazing mugs", "", 1, "ceramics")

	all, err := repo.List(ctx, VideoSearch{})
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d videos, want 3", len(all))
	}
	if all[0].ID != mug || all[2].ID != bowl {
		t.Fatalf("listing is not newest first: %q, %q, %q", all[0].ID, all[1].ID, all[2].ID)
	}
	if len(all[0].Tags) != 1 || all[0].Tags[0] != "ceramics" {
		t.Fatalf("tag words = %v", all[0].Tags)
	}

	german, err := repo.List(ctx, VideoSearch{CountryCode: "de"})
	if err != nil {
		t.Fatalf("list by country: %v", err)
	}
	if len(german) != 2 {
		t.Fatalf("country filter returned %d videos, want 2", len(german))
	}

	byKeyword, err := repo.List(ctx, VideoSearch{Keyword: "wheel"})
	if err != nil {
		t.Fatalf("list by keyword: %v", err)
	}
	if len(byKeyword) != 1 || byKeyword[0].ID != vase {
		t.Fatalf("keyword should match descriptions too: %+v", byKeyword)
	}

	byTag, err := repo.List(ctx, VideoSearch{TagWords: []string{"ceramics", "basketry"}})
	if err != nil {
		t.Fatalf("list by tags: %v", err)
	}
	if len(byTag) != 2 {
		t.Fatalf("tag filter returned %d videos, want 2", len(byTag))
	}

	mine, err := repo.List(ctx, VideoSearch{AccountID: weaver.ID, CountryCode: "de"})
	if err != nil {
		t.Fatalf("list by account: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != mug {
		t.Fatalf("account+country filter returned %+v", mine)
	}

	first, err := repo.List(ctx, VideoSearch{Size: 2})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first) != 2 || first[0].ID != mug {
		t.Fatalf("first page = %d videos starting %q", len(first), first[0].ID)
	}
	second, err := repo.List(ctx, VideoSearch{Size: 2, Page: 1})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second) != 1 || second[0].ID != bowl {
		t.Fatalf("second page = %+v", second)
	}
}

func TestPostgresSocialRepository_Reactions(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	account := createTestAccount(t, "fan@example.com")
	video := createTestVideo(t, account.ID, "Carving spoons")
	repo := NewPostgresSocialRepository(testPool)

	// Adding twice stays one row.
	if err := repo.Add(ctx, ReactionLike, account.ID, video.ID); err != nil {
		t.Fatalf("add like: %v", err)
	}
	if err := repo.Add(ctx, ReactionLike, account.ID, video.ID); err != nil {
		t.Fatalf("re-add like: %v", err)
	}

	count, err := repo.Count(ctx, ReactionLike, video.ID)
	if err != nil {
		t.Fatalf("count likes: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 like, got %d", count)
	}

	has, err := repo.Has(ctx, ReactionLike, account.ID, video.ID)
	if err != nil {
		t.Fatalf("has like: %v", err)
	}
	if !has {
		t.Fatal("expected has like")
	}

	// Likes and saves are separate tables.
	saves, err := repo.Count(ctx, ReactionSave, video.ID)
	if err != nil {
		t.Fatalf("count saves: %v", err)
	}
	if saves != 0 {
		t.Fatalf("expected 0 saves, got %d", saves)
	}

	if err := repo.Add(ctx, ReactionLike, account.ID, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}

	if err := repo.Remove(ctx, ReactionLike, account.ID, video.ID); err != nil {
		t.Fatalf("remove like: %v", err)
	}
	count, err = repo.Count(ctx, ReactionLike, video.ID)
	if err != nil {
		t.Fatalf("count likes after remove: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 likes, got %d", count)
	}
}

func TestPostgresSocialRepository_Comments(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	author := createTestAccount(t, "author@example.com")
	video := createTestVideo(t, author.ID, "Weaving a basket")
	repo := NewPostgresSocialRepository(testPool)

	if _, err := NewPostgresProfileRepository(testPool).Create(ctx, models.Profile{
		AccountID: author.ID,
		Username:  "weaver",
		Photo:     "mem://profiles/1/photo.jpg",
	}); err != nil {
		t.Fatalf("create author profile: %v", err)
	}

	if err := repo.AddComment(ctx, models.Comment{VideoID: video.ID, AccountID: author.ID, Body: "first"}); err != nil {
		t.Fatalf("add first comment: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := repo.AddComment(ctx, models.Comment{VideoID: video.ID, AccountID: author.ID, Body: "second"}); err != nil {
		t.Fatalf("add second comment: %v", err)
	}

	if err := repo.AddComment(ctx, models.Comment{VideoID: uuid.NewString(), AccountID: author.ID, Body: "orphan"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}

	views, err := repo.ListComments(ctx, video.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(views))
	}
	if views[0].Comment.Body != "first" || views[1].Comment.Body != "second" {
		t.Fatalf("comments out of order: %+v", views)
	}
	if views[0].Username != "weaver" || views[0].Photo == "" {
		t.Fatalf("expected joined profile data, got %+v", views[0])
	}
}

func TestPostgresUploadJobRepository_LifecycleAndSweep(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUploadJobRepository(testPool)

	finished := models.UploadJob{Token: token.New(), AccountID: 1, Status: models.UploadStatusProcessing}
	pending := models.UploadJob{Token: token.New(), AccountID: 1, Status: models.UploadStatusProcessing}
	for _, job := range []models.UploadJob{finished, pending} {
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}

	if err := repo.SetStatus(ctx, finished.Token, models.UploadStatusFailed, "storage unavailable"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := repo.SetStatus(ctx, token.New(), models.UploadStatusOK, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown job, got %v", err)
	}

	job, err := repo.Find(ctx, finished.Token)
	if err != nil {
		t.Fatalf("find job: %v", err)
	}
	if job.Status != models.UploadStatusFailed || job.Detail != "storage unavailable" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if !job.Finished() {
		t.Fatal("failed job should be terminal")
	}

	// The sweep takes old terminal jobs and leaves in-flight ones alone.
	deleted, err := repo.DeleteFinishedBefore(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sweep jobs: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 swept job, got %d", deleted)
	}
	if _, err := repo.Find(ctx, finished.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected swept job gone, got %v", err)
	}
	if _, err := repo.Find(ctx, pending.Token); err != nil {
		t.Fatalf("processing job must survive the sweep: %v", err)
	}
}

func TestPostgresUploadJobRepository_FailsAbandonedProcessingJobs(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUploadJobRepository(testPool)

	stale := models.UploadJob{Token: token.New(), AccountID: 1, Status: models.UploadStatusProcessing}
	fresh := models.UploadJob{Token: token.New(), AccountID: 1, Status: models.UploadStatusProcessing}
	for _, job := range []models.UploadJob{stale, fresh} {
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}

	// Age one job past the cutoff; the other stays current.
	if _, err := testPool.Exec(ctx,
		`UPDATE upload_jobs SET updated_at = NOW() - INTERVAL '2 hours' WHERE token = $1`,
		stale.Token); err != nil {
		t.Fatalf("age job: %v", err)
	}

	failed, err := repo.FailStaleProcessingBefore(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("fail stale jobs: %v", err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 failed job, got %d", failed)
	}

	job, err := repo.Find(ctx, stale.Token)
	if err != nil {
		t.Fatalf("find stale job: %v", err)
	}
	if job.Status != models.UploadStatusFailed || job.Detail == "" {
		t.Fatalf("stale job should be failed with detail, got %+v", job)
	}

	job, err = repo.Find(ctx, fresh.Token)
	if err != nil {
		t.Fatalf("find fresh job: %v", err)
	}
	if job.Status != models.UploadStatusProcessing {
		t.Fatalf("fresh job should stay processing, got %q", job.Status)
	}

	// Once failed, the terminal sweep can reclaim the row.
	deleted, err := repo.DeleteFinishedBefore(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sweep jobs: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 swept job, got %d", deleted)
	}
}

func TestPostgresCountryRepository_Exists(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	if _, err := testPool.Exec(ctx, `INSERT INTO countries (code, name) VALUES ('de', 'Germany')`); err != nil {
		t.Fatalf("seed countries: %v", err)
	}

	repo := NewPostgresCountryRepository(testPool)
	exists, err := repo.Exists(ctx, "de")
	if err != nil {
		t.Fatalf("check country: %v", err)
	}
	if !exists {
		t.Fatal("expected de to exist")
	}

	exists, err = repo.Exists(ctx, "zz")
	if err != nil {
		t.Fatalf("check unknown country: %v", err)
	}
	if exists {
		t.Fatal("expected zz to be unknown")
	}
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
