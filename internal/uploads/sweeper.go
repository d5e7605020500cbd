package uploads

import (
	"context"
	"log/slog"
	"time"
)

// JobSweepStore is the slice of the upload job store the sweeper needs:
// failing abandoned jobs and evicting terminal records past their TTL.
type JobSweepStore interface {
	FailStaleProcessingBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically reclaims upload job records. Finished jobs are evicted
// once their results have had a TTL's worth of time to be polled; jobs still
// marked processing that long after their last update were abandoned by a
// worker that never finished (crash, or a shutdown drain that ran out of
// time) and are failed so pollers stop waiting on them.
type Sweeper struct {
	store    JobSweepStore
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper builds a sweeper reclaiming jobs untouched for more than ttl.
func NewSweeper(store JobSweepStore, ttl time.Duration, logger *slog.Logger) *Sweeper {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: ttl / 4,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the background eviction loop.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.ttl)

	failed, err := s.store.FailStaleProcessingBefore(sweepCtx, cutoff)
	if err != nil {
		s.logger.Error("fail stale upload jobs", "error", err)
	} else if failed > 0 {
		s.logger.Warn("failed stale upload jobs", "failed", failed)
	}

	removed, err := s.store.DeleteFinishedBefore(sweepCtx, cutoff)
	if err != nil {
		s.logger.Error("sweep finished upload jobs", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Debug("swept finished upload jobs", "removed", removed)
	}
}
