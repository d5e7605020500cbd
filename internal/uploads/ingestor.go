// Package uploads runs the asynchronous side of video publishing: a worker
// pool that moves buffered uploads into object storage and records the
// outcome against the polling token handed to the client.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/handihand/backend/internal/logging"
	"github.com/handihand/backend/internal/models"
)

// VideoRecorder persists the video row and its tag links once the asset is
// safely stored.
type VideoRecorder interface {
	Create(ctx context.Context, video models.Video, tagWords []string) error
}

// JobTracker records upload job state transitions.
type JobTracker interface {
	SetStatus(ctx context.Context, token, status, detail string) error
}

// AssetStorage stores an asset under a key and returns its public location.
type AssetStorage interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// IngestorConfig controls the concurrency characteristics of the ingestor.
type IngestorConfig struct {
	QueueSize int
	Workers   int
}

// VideoJob is one accepted upload awaiting ingestion. The video bytes sit in
// a temp file the handler wrote; the worker owns and removes it.
type VideoJob struct {
	Token         string
	Video         models.Video
	Tags          []string
	FilePath      string
	Thumbnail     []byte
	ThumbnailType string
}

// Ingestor asynchronously uploads accepted videos to object storage and
// finalizes their database records.
type Ingestor struct {
	storage  AssetStorage
	recorder VideoRecorder
	tracker  JobTracker
	logger   *slog.Logger

	jobs   chan VideoJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var errIngestorClosed = errors.New("upload ingestor closed")

// NewIngestor constructs the background worker pool.
func NewIngestor(storage AssetStorage, recorder VideoRecorder, tracker JobTracker, cfg IngestorConfig, logger *slog.Logger) *Ingestor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	ing := &Ingestor{
		storage:  storage,
		recorder: recorder,
		tracker:  tracker,
		logger:   logger,
		jobs:     make(chan VideoJob, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	ing.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go ing.worker()
	}

	return ing
}

// Enqueue schedules ingestion of an accepted upload.
func (i *Ingestor) Enqueue(ctx context.Context, job VideoJob) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-i.ctx.Done():
		return errIngestorClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-i.ctx.Done():
		return errIngestorClosed
	case i.jobs <- job:
		return nil
	}
}

// Shutdown stops intake and waits for the worker pool to drain every job
// already accepted. The context bounds how long the caller waits, not the
// drain itself: on expiry the workers keep finishing in the background so no
// accepted job is left stuck in the processing state.
func (i *Ingestor) Shutdown(ctx context.Context) error {
	i.once.Do(i.cancel)

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (i *Ingestor) worker() {
	defer i.wg.Done()

	for {
		select {
		case job := <-i.jobs:
			i.handleJob(job)
		case <-i.ctx.Done():
			i.drain()
			return
		}
	}
}

// drain empties whatever is still buffered after the stop signal. Every one
// of these jobs was acknowledged to a client that is polling its token.
func (i *Ingestor) drain() {
	for {
		select {
		case job := <-i.jobs:
			i.handleJob(job)
		default:
			return
		}
	}
}

func (i *Ingestor) handleJob(job VideoJob) {
	defer func() {
		if job.FilePath != "" {
			if err := os.Remove(job.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
				i.logger.Warn("remove upload temp file", "path", job.FilePath, "error", err)
			}
		}
	}()

	if i.storage == nil || i.recorder == nil || i.tracker == nil {
		i.logger.Error("upload ingestor missing dependencies",
			"hasStorage", i.storage != nil, "hasRecorder", i.recorder != nil, "hasTracker", i.tracker != nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctx = logging.WithLogger(ctx, i.logger.With("uploadToken", job.Token, "videoId", job.Video.ID))
	ctx, span := logging.StartSpan(ctx, "video_ingest")
	defer span.End()

	if err := i.ingest(ctx, &job); err != nil {
		i.logger.Error("video ingestion failed", "uploadToken", job.Token, "videoId", job.Video.ID, "error", err)
		i.recordFailure(job.Token, err)
		return
	}

	i.recordSuccess(job.Token)
}

func (i *Ingestor) ingest(ctx context.Context, job *VideoJob) error {
	file, err := os.Open(job.FilePath)
	if err != nil {
		return fmt.Errorf("open buffered upload: %w", err)
	}
	defer file.Close()

	videoKey := path.Join("videos", job.Video.ID, job.Video.Name)
	location, err := i.storage.Save(ctx, videoKey, job.Video.ContentType, file)
	if err != nil {
		return fmt.Errorf("store video asset: %w", err)
	}
	job.Video.UploadURL = location

	if len(job.Thumbnail) > 0 {
		thumbKey := path.Join("videos", job.Video.ID, "thumbnail.jpg")
		thumbLocation, err := i.storage.Save(ctx, thumbKey, job.ThumbnailType, bytes.NewReader(job.Thumbnail))
		if err != nil {
			return fmt.Errorf("store thumbnail asset: %w", err)
		}
		job.Video.ThumbnailURL = thumbLocation
	}

	if err := i.recorder.Create(ctx, job.Video, job.Tags); err != nil {
		return fmt.Errorf("record video: %w", err)
	}

	return nil
}

func (i *Ingestor) recordFailure(token string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := i.tracker.SetStatus(ctx, token, models.UploadStatusFailed, cause.Error()); err != nil {
		i.logger.Error("record upload failure", "uploadToken", token, "error", err)
	}
}

func (i *Ingestor) recordSuccess(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := i.tracker.SetStatus(ctx, token, models.UploadStatusOK, ""); err != nil {
		i.logger.Error("record upload success", "uploadToken", token, "error", err)
	}
}
