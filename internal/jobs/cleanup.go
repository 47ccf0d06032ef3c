package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greeterhq/chat-server-go/internal/config"
	"github.com/greeterhq/chat-server-go/internal/repository"
)

// Sweeper drops idle in-memory sessions. Satisfied by session.Registry.
type Sweeper interface {
	SweepIdle(maxAge time.Duration) int
}

// CleanupJob periodically removes stale sessions, orphaned connection
// rows and idle in-memory state.
type CleanupJob struct {
	sessionRepo    repository.SessionRepository
	connectionRepo repository.ConnectionRepository
	sweeper        Sweeper
	interval       time.Duration
	done           chan struct{}
}

func NewCleanupJob(
	sessionRepo repository.SessionRepository,
	connectionRepo repository.ConnectionRepository,
	sweeper Sweeper,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		sessionRepo:    sessionRepo,
		connectionRepo: connectionRepo,
		sweeper:        sweeper,
		interval:       interval,
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

	cutoff := time.Now().Add(-config.StaleSessionAge)

	j.runCleanup(ctx, "stale sessions", func(ctx context.Context) (int64, error) {
		return j.sessionRepo.DeleteStale(ctx, cutoff)
	})
	j.runCleanup(ctx, "orphaned connections", func(ctx context.Context) (int64, error) {
		return j.connectionRepo.DeleteStale(ctx, cutoff)
	})

	if j.sweeper != nil {
		if swept := j.sweeper.SweepIdle(config.StaleSessionAge); swept > 0 {
			log.Info().Int("count", swept).Msg("swept idle in-memory sessions")
		}
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
