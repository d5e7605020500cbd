package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/handihand/backend/internal/auth"
	"github.com/handihand/backend/internal/config"
	"github.com/handihand/backend/internal/db"
	"github.com/handihand/backend/internal/handlers"
	"github.com/handihand/backend/internal/mail"
	"github.com/handihand/backend/internal/repositories"
	"github.com/handihand/backend/internal/storage"
	"github.com/handihand/backend/internal/tags"
	"github.com/handihand/backend/internal/uploads"
)

const tagCacheTTL = 10 * time.Minute

// backgroundWorkers holds the long-running pieces serve must stop on
// shutdown.
type backgroundWorkers struct {
	ingestor *uploads.Ingestor
	sweeper  *uploads.Sweeper
}

// buildDependencies wires concrete implementations for the HTTP handlers
// and the background workers behind them.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, backgroundWorkers, error) {
	accounts := repositories.NewPostgresAccountRepository(pool)
	profiles := repositories.NewPostgresProfileRepository(pool)
	countries := repositories.NewPostgresCountryRepository(pool)
	sessions := repositories.NewPostgresSessionStore(pool)
	tokens := repositories.NewPostgresVerificationStore(pool)
	social := repositories.NewPostgresSocialRepository(pool)
	videos := repositories.NewPostgresVideoRepository(pool)
	tagRepo := repositories.NewPostgresTagRepository(pool)
	uploadJobs := repositories.NewPostgresUploadJobRepository(pool)

	sender, err := mail.NewSMTPSender(cfg.SMTP)
	if err != nil {
		return handlers.Dependencies{}, backgroundWorkers{}, fmt.Errorf("configure mail sender: %w", err)
	}

	var google *auth.GoogleProvider
	if cfg.Google.Enabled() {
		google, err = auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			CallbackURL:  cfg.Google.CallbackURL,
		})
		if err != nil {
			return handlers.Dependencies{}, backgroundWorkers{}, fmt.Errorf("configure google sign-in: %w", err)
		}
	}

	manager := auth.NewManager(accounts, sessions, tokens, profiles, sender, google,
		auth.ManagerConfig{BaseURL: cfg.BaseURL}, logger)

	var assets handlers.AssetStorage
	if cfg.ObjectStore.Bucket != "" {
		s3, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, backgroundWorkers{}, fmt.Errorf("configure object storage: %w", err)
		}
		assets = s3
	} else {
		// Local development without a bucket keeps assets in process.
		logger.Warn("no object store bucket configured, assets are held in memory")
		assets = storage.NewMemoryStorage()
	}

	ingestor := uploads.NewIngestor(assets, videos, uploadJobs, uploads.IngestorConfig{
		QueueSize: cfg.Uploads.QueueSize,
		Workers:   cfg.Uploads.Workers,
	}, logger)
	sweeper := uploads.NewSweeper(uploadJobs, cfg.Uploads.JobTTL, logger)

	deps := handlers.Dependencies{
		Auth:       manager,
		Profiles:   profiles,
		Countries:  countries,
		Social:     social,
		Videos:     videos,
		Tags:       tags.NewCachingLister(tagRepo, tagCacheTTL),
		UploadJobs: uploadJobs,
		Uploads:    ingestor,
		Storage:    assets,
		Signer:     uploads.NewTransloaditSigner(cfg.Transloadit),
	}

	return deps, backgroundWorkers{ingestor: ingestor, sweeper: sweeper}, nil
}
