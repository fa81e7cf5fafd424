package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/database"
)

// MaintenanceJob performs nightly database upkeep: an integrity check and a
// WAL checkpoint so the log file cannot bloat between backups.
type MaintenanceJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewMaintenanceJob creates the nightly maintenance job.
func NewMaintenanceJob(db *database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:  db,
		log: log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Run implements scheduler.Job.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}

	// Checkpoint failure is not fatal; the next run retries.
	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	j.log.Info().
		Int64("size_bytes", j.db.SizeBytes()).
		Msg("Database maintenance completed")

	return nil
}

// Name implements scheduler.Job.
func (j *MaintenanceJob) Name() string { return "database_maintenance" }
