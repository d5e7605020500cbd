package models

import "time"

// IdentityType distinguishes how an account proves who it is.
type IdentityType string

const (
	IdentityEmail  IdentityType = "email"
	IdentityPhone  IdentityType = "phone"
	IdentityGoogle IdentityType = "google"
)

// Account lifecycle states.
const (
	AccountStateWaitVerification = "wait_verification"
	AccountStateVerified         = "verified"
)

// Account represents a registered identity within Handihand.
type Account struct {
	ID            int64
	IdentityType  IdentityType
	IdentityValue string
	State         string
	CreatedAt     time.Time
}

// Verified reports whether the account may sign in.
func (a Account) Verified() bool {
	return a.State == AccountStateVerified
}

// Profile holds the user-editable presentation data attached to an account.
// The most recent profile per account wins when several exist.
type Profile struct {
	ID              int64
	AccountID       int64
	Username        string
	CountryCode     string
	Region          string
	City            string
	Postcode        string
	StreetAddress   string
	ExtendedAddress string
	Photo           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Session is a server-side record of an authenticated browsing context,
// referenced by the opaque id stored in the sessionid cookie.
type Session struct {
	ID          string
	AccountID   int64
	ExpiresAt   time.Time
	RefreshedAt time.Time
	CreatedAt   time.Time
}

// TokenKind tags the purpose of a verification token.
type TokenKind string

const (
	TokenEmailVerify TokenKind = "email_verify"
	TokenOneTimeCSRF TokenKind = "csrf_onetime"
	TokenSessionCSRF TokenKind = "csrf_session"
)

// VerificationToken is a short-lived, single-use opaque credential. Email
// verification tokens carry the target address; session CSRF tokens carry
// the session they were minted for.
type VerificationToken struct {
	ID        int64
	Code      string
	Kind      TokenKind
	Email     string
	SessionID string
	CreatedAt time.Time
}

// Video is an uploaded clip along with its stored asset locations.
type Video struct {
	ID           string
	AccountID    int64
	CountryCode  string
	Title        string
	Description  string
	Name         string
	ContentType  string
	Size         int64
	UploadURL    string
	ThumbnailURL string
	CreatedAt    time.Time
}

// Tag is read-only reference data associated to videos via video_tags.
type Tag struct {
	ID   int64
	Word string
}

// Comment is a viewer remark on a video.
type Comment struct {
	ID        int64
	VideoID   string
	AccountID int64
	Body      string
	CreatedAt time.Time
}

// Country is reference data used to validate profile country codes.
type Country struct {
	Code string
	Name string
}

// Upload job states surfaced through the polling endpoint.
const (
	UploadStatusProcessing = "processing"
	UploadStatusOK         = "ok"
	UploadStatusFailed     = "failed"
)

// UploadJob is the durable status record behind the asynchronous video
// upload flow, keyed by the polling token handed to the client.
type UploadJob struct {
	Token     string
	AccountID int64
	Status    string
	Detail    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Finished reports whether the job reached a terminal state.
func (j UploadJob) Finished() bool {
	return j.Status == UploadStatusOK || j.Status == UploadStatusFailed
}
