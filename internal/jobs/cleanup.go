package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"formlane/internal/config"
	"formlane/internal/responses"
	"formlane/internal/uploads"
)

// orphanGracePeriod is how long an upload row may sit without a response
// before the sweeper treats it as abandoned. Long enough that an in-flight
// submission never loses its files.
const orphanGracePeriod = 24 * time.Hour

// CleanupJob removes leftovers that accumulate during normal operation:
// upload rows whose submission never completed its write, and partial
// responses that were abandoned long ago.
type CleanupJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cfg       *config.Config
	store     uploads.BlobStore
}

func NewCleanupJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config, store uploads.BlobStore) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
		store:     store,
	}
}

func (j *CleanupJob) Run() error {
	if err := j.purgeOrphanedUploads(); err != nil {
		return err
	}
	return j.purgeStaleIncompleteResponses()
}

// purgeOrphanedUploads deletes stored files and their bookkeeping rows when
// no response ever claimed them. Blob deletion failures are logged and the
// rows kept, so the next sweep retries.
func (j *CleanupJob) purgeOrphanedUploads() error {
	db := j.dbManager.GetConnection()
	cutoff := time.Now().Add(-orphanGracePeriod)

	var orphans []uploads.FileUpload
	if err := db.Where("response_id IS NULL AND created_at < ?", cutoff).
		Limit(1000).Find(&orphans).Error; err != nil {
		j.logger.Error("Failed to list orphaned uploads", slog.Any("error", err))
		return err
	}
	if len(orphans) == 0 {
		return nil
	}

	publicIDs := make([]string, len(orphans))
	for i, o := range orphans {
		publicIDs[i] = o.PublicID
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := j.store.DeleteMany(ctx, publicIDs); err != nil {
		j.logger.Error("Failed to delete orphaned blobs, keeping rows for retry",
			slog.Int("count", len(publicIDs)), slog.Any("error", err))
		return nil
	}

	if err := db.Where("public_id IN ?", publicIDs).
		Delete(&uploads.FileUpload{}).Error; err != nil {
		j.logger.Error("Failed to delete orphaned upload rows", slog.Any("error", err))
		return err
	}

	j.logger.Info("Cleaned up orphaned uploads", slog.Int("count", len(publicIDs)))
	return nil
}

// purgeStaleIncompleteResponses drops partial responses that saw no new
// batch for the retention window. Completed responses are never touched.
func (j *CleanupJob) purgeStaleIncompleteResponses() error {
	retentionDays := j.cfg.IncompleteRetentionDays
	if retentionDays <= 0 {
		return nil
	}

	db := j.dbManager.GetConnection()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	// Batched deletes keep lock windows short on SQLite.
	batchSize := 1000
	totalDeleted := int64(0)
	for {
		result := db.Where("is_complete = 0 AND submitted_at < ?", cutoff).
			Limit(batchSize).
			Delete(&responses.Response{})
		if result.Error != nil {
			j.logger.Error("Failed to delete stale incomplete responses",
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return result.Error
		}

		totalDeleted += result.RowsAffected
		if result.RowsAffected < int64(batchSize) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if totalDeleted > 0 {
		j.logger.Info("Cleaned up stale incomplete responses",
			slog.Int64("deleted_count", totalDeleted),
			slog.Int("retention_days", retentionDays))
	}
	return nil
}
