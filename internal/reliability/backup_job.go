package reliability

import (
	"context"
	"time"
)

// BackupJob runs the nightly backup and rotation cycle.
type BackupJob struct {
	service       *BackupService
	retentionDays int
}

// NewBackupJob creates a scheduled backup job.
func NewBackupJob(service *BackupService, retentionDays int) *BackupJob {
	return &BackupJob{service: service, retentionDays: retentionDays}
}

// Run creates and uploads a backup, then rotates old ones. Rotation
// failures do not fail the job; the fresh backup already landed.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.service.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *BackupJob) Name() string {
	return "database_backup"
}
