package handlers

import (
	"net/http"

	"github.com/handihand/backend/internal/repositories"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies, limiter RateLimiter) {
	health := HealthHandler{}
	authh := AuthHandler{Auth: deps.Auth, Limiter: limiter}
	csrf := CSRFHandler{Auth: deps.Auth}
	profile := ProfileHandler{Auth: deps.Auth, Profiles: deps.Profiles, Countries: deps.Countries, Storage: deps.Storage}
	likes := SocialHandler{Auth: deps.Auth, Social: deps.Social, Reaction: repositories.ReactionLike}
	saves := SocialHandler{Auth: deps.Auth, Social: deps.Social, Reaction: repositories.ReactionSave}
	comments := CommentsHandler{Auth: deps.Auth, Social: deps.Social}
	videos := VideosHandler{Videos: deps.Videos}
	tags := TagsHandler{Tags: deps.Tags}
	upload := UploadHandler{Auth: deps.Auth, Jobs: deps.UploadJobs, Queue: deps.Uploads, Storage: deps.Storage, Signer: deps.Signer}

	mux.HandleFunc("/healthz", health.Handle)

	mux.HandleFunc("/api/auth/signup", authh.SignUp)
	mux.HandleFunc("/api/auth/signin", authh.SignIn)
	mux.HandleFunc("/api/auth/callback", authh.Callback)
	mux.HandleFunc("/api/auth/resend", authh.Resend)
	mux.HandleFunc("/api/auth/signin/google", authh.GoogleSignIn)
	mux.HandleFunc("/api/auth/callback/google", authh.GoogleCallback)
	mux.HandleFunc("/api/auth/signout", authh.SignOut)

	mux.HandleFunc("/api/csrf", csrf.Issue)
	mux.HandleFunc("/api/profile", profile.Update)

	mux.HandleFunc("/api/likes", likes.Handle)
	mux.HandleFunc("/api/saves", saves.Handle)
	mux.HandleFunc("/api/comments", comments.Handle)
	mux.HandleFunc("/api/videos", videos.List)
	mux.HandleFunc("/api/tags", tags.List)

	mux.HandleFunc("/api/upload/video", upload.Video)
	mux.HandleFunc("/api/upload/image", upload.Image)
	mux.HandleFunc("/api/upload/check_status", upload.CheckStatus)
	mux.HandleFunc("/api/transloadit/params", upload.TransloaditParams)
}
