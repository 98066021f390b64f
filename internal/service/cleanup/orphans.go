package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"loom/internal/domain/models"
	"loom/internal/metrics"
)

// OrphanSweepOptions controls one run of the orphaned blob sweep.
// SweepID resumes an existing progress record; empty starts a new sweep.
type OrphanSweepOptions struct {
	ForReal            bool
	ShouldScheduleNext bool
	Cursor             string
	SweepID            string
}

// DeleteOrphanedBlobs pages the entire blob store and deletes every blob
// no live row references. Progress (cursor, counts, done flag) is
// persisted per page, so a cancelled or crashed sweep resumes where it
// stopped instead of re-scanning from zero.
func (s *Service) DeleteOrphanedBlobs(ctx context.Context, opts OrphanSweepOptions) error {
	metrics.SweepPages.WithLabelValues("orphaned_blobs").Inc()

	if opts.SweepID == "" {
		progress := &models.SweepProgress{
			ID:        uuid.New().String(),
			Name:      "delete-orphaned-blobs",
			ForReal:   opts.ForReal,
			CreatedAt: time.Now(),
		}
		if err := s.sweeps.Insert(ctx, progress); err != nil {
			return err
		}
		opts.SweepID = progress.ID
	}

	ids, next, done, err := s.blobs.List(ctx, opts.Cursor, s.cfg.StorageStateBatchSize)
	if err != nil {
		return err
	}

	deleted := 0
	for _, id := range ids {
		referenced, err := s.refs.BlobReferenced(ctx, id)
		if err != nil {
			s.logger.Error("failed to check blob references", "blob_id", id, "error", err)
			metrics.SweepErrors.WithLabelValues("orphaned_blobs").Inc()
			continue
		}
		if referenced {
			continue
		}
		if !opts.ForReal {
			s.logger.Info("would delete orphaned blob", "blob_id", id)
			deleted++
			continue
		}
		if err := s.blobs.Delete(ctx, id); err != nil {
			s.logger.Error("failed to delete orphaned blob", "blob_id", id, "error", err)
			metrics.SweepErrors.WithLabelValues("orphaned_blobs").Inc()
			continue
		}
		metrics.SweepBlobsDeleted.WithLabelValues("orphaned_blobs").Inc()
		deleted++
	}

	progress, err := s.sweeps.Get(ctx, opts.SweepID)
	if err != nil {
		return fmt.Errorf("sweep progress vanished mid-run: %w", err)
	}
	progress.Cursor = &next
	progress.Processed += len(ids)
	progress.NumDeleted += deleted
	progress.IsDone = done
	if done {
		now := time.Now()
		progress.LatestEnd = &now
	}
	if err := s.sweeps.Update(ctx, progress); err != nil {
		return err
	}

	if opts.ShouldScheduleNext && !done {
		nextOpts := opts
		nextOpts.Cursor = next
		return s.scheduler.RunAfter(ctx, s.cfg.CleanupPageDelay, "orphaned-blobs-sweep", func(ctx context.Context) error {
			return s.DeleteOrphanedBlobs(ctx, nextOpts)
		})
	}
	return nil
}
