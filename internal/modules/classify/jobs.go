package classify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob removes expired classification entries from the persistent
// store. It should be scheduled to run daily.
type CleanupJob struct {
	store *Store
	log   zerolog.Logger
}

// NewCleanupJob creates a new classification cleanup job.
func NewCleanupJob(store *Store, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		store: store,
		log:   log.With().Str("job", "classification_cleanup").Logger(),
	}
}

// Run deletes every entry whose TTL has expired.
func (j *CleanupJob) Run() error {
	deleted, err := j.store.DeleteExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired classifications")
		return err
	}

	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Cleaned up expired classification entries")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "classification_cleanup"
}

// RefreshJob proactively re-resolves persisted classifications before they
// expire, so steady-state traffic never pays the authoritative round-trip.
type RefreshJob struct {
	resolver *Resolver
	maxAge   time.Duration
	timeout  time.Duration
	log      zerolog.Logger
}

// NewRefreshJob creates a job that refreshes entries older than maxAge.
// The whole sweep runs under a single timeout.
func NewRefreshJob(resolver *Resolver, maxAge, timeout time.Duration, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		resolver: resolver,
		maxAge:   maxAge,
		timeout:  timeout,
		log:      log.With().Str("job", "classification_refresh").Logger(),
	}
}

// Run refreshes stale entries. Per-ticker failures are logged and skipped
// inside the resolver; only sweep-level failures bubble up.
func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	refreshed, err := j.resolver.RefreshStale(ctx, j.maxAge)
	if err != nil {
		j.log.Error().Err(err).Int("refreshed", refreshed).Msg("Stale classification refresh aborted")
		return err
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *RefreshJob) Name() string {
	return "classification_refresh"
}
