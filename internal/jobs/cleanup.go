package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/ussd-gateway-go/internal/config"
)

type staleSessions interface {
	DeactivateStale(ctx context.Context, idleSince time.Time) (int64, error)
}

type expiredBlocks interface {
	DeactivateExpired(ctx context.Context) (int64, error)
}

type oldAttempts interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob periodically ends idle sessions, lifts expired blocks and
// purges failed attempts no block rule can still count.
type CleanupJob struct {
	sessionRepo    staleSessions
	blockRepo      expiredBlocks
	attemptRepo    oldAttempts
	sessionTimeout time.Duration
	interval       time.Duration
	now            func() time.Time
	done           chan struct{}
}

func NewCleanupJob(
	sessionRepo staleSessions,
	blockRepo expiredBlocks,
	attemptRepo oldAttempts,
	sessionTimeout time.Duration,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		sessionRepo:    sessionRepo,
		blockRepo:      blockRepo,
		attemptRepo:    attemptRepo,
		sessionTimeout: sessionTimeout,
		interval:       interval,
		now:            time.Now,
		done:           make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := j.now()
	j.runCleanup(ctx, "stale sessions", func(ctx context.Context) (int64, error) {
		return j.sessionRepo.DeactivateStale(ctx, now.Add(-j.sessionTimeout))
	})
	j.runCleanup(ctx, "expired blocks", j.blockRepo.DeactivateExpired)
	j.runCleanup(ctx, "failed attempts", func(ctx context.Context) (int64, error) {
		return j.attemptRepo.DeleteOlderThan(ctx, now.Add(-config.FailedAttemptRetention))
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
