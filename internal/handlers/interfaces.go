package handlers

import (
	"context"

	"github.com/handihand/backend/internal/auth"
	"github.com/handihand/backend/internal/models"
	"github.com/handihand/backend/internal/repositories"
	"github.com/handihand/backend/internal/uploads"
)

// AuthService exposes the auth orchestrator operations handlers depend on.
type AuthService interface {
	SignUp(ctx context.Context, form auth.SignupForm) (auth.SignupResult, error)
	VerifyEmail(ctx context.Context, email, code string) (auth.VerifyResult, error)
	ResendVerification(ctx context.Context, email, csrf string) (string, error)
	SignInWithPassword(ctx context.Context, email, password string) (models.Session, error)
	CurrentSession(ctx context.Context, sessionID string) (models.Session, error)
	ExtendSession(ctx context.Context, sessionID string) (models.Session, bool, error)
	SignOut(ctx context.Context, sessionID string)
	IssueSessionCSRF(ctx context.Context, sessionID string) (string, error)
	VerifySessionCSRF(ctx context.Context, code, sessionID string) error
	GoogleEnabled() bool
	BeginGoogleSignIn() (state, authURL string, err error)
	CompleteGoogleSignIn(ctx context.Context, code, gotState, wantState string) (models.Session, error)
}

// ProfileStore persists presentation profiles.
type ProfileStore interface {
	FindLatestByAccount(ctx context.Context, accountID int64) (models.Profile, error)
	Create(ctx context.Context, profile models.Profile) (int64, error)
	Update(ctx context.Context, profile models.Profile) error
}

// CountryChecker validates profile country codes against reference data.
type CountryChecker interface {
	Exists(ctx context.Context, code string) (bool, error)
}

// SocialStore persists likes, saves and comments.
type SocialStore interface {
	Add(ctx context.Context, reaction repositories.Reaction, accountID int64, videoID string) error
	Remove(ctx context.Context, reaction repositories.Reaction, accountID int64, videoID string) error
	Count(ctx context.Context, reaction repositories.Reaction, videoID string) (int64, error)
	Has(ctx context.Context, reaction repositories.Reaction, accountID int64, videoID string) (bool, error)
	AddComment(ctx context.Context, comment models.Comment) error
	ListComments(ctx context.Context, videoID string) ([]repositories.CommentView, error)
}

// VideoLister serves the public browse listing.
type VideoLister interface {
	List(ctx context.Context, search repositories.VideoSearch) ([]repositories.VideoListing, error)
}

// TagLister loads the tag vocabulary.
type TagLister interface {
	List(ctx context.Context) ([]models.Tag, error)
}

// UploadJobStore tracks asynchronous upload jobs by polling token.
type UploadJobStore interface {
	Create(ctx context.Context, job models.UploadJob) error
	Find(ctx context.Context, token string) (models.UploadJob, error)
	SetStatus(ctx context.Context, token, status, detail string) error
}

// UploadQueue accepts video ingestion jobs.
type UploadQueue interface {
	Enqueue(ctx context.Context, job uploads.VideoJob) error
}

// AssetStorage stores standalone assets such as profile photos.
type AssetStorage = uploads.AssetStorage

// ParamsSigner vouches for browser-side transcoding requests.
type ParamsSigner interface {
	Enabled() bool
	Sign() (uploads.SignedParams, error)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Auth       AuthService
	Profiles   ProfileStore
	Countries  CountryChecker
	Social     SocialStore
	Videos     VideoLister
	Tags       TagLister
	UploadJobs UploadJobStore
	Uploads    UploadQueue
	Storage    AssetStorage
	Signer     ParamsSigner
}
