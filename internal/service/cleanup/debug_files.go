package cleanup

import (
	"context"
	"fmt"
	"time"

	"loom/internal/metrics"
)

// DebugFilesOptions controls one run of the inactive-chat debug sweep
type DebugFilesOptions struct {
	ForReal            bool
	ShouldScheduleNext bool
	DaysInactive       int
	Cursor             string
}

// DeleteDebugFilesForInactiveChats sweeps one page of the debug request
// log, deleting entries (and their prompt blobs) whose owning chat has
// been inactive for the configured window. The log is time-ordered, so
// the sweep stops outright at the first entry inside the window instead
// of scanning the whole table every run.
func (s *Service) DeleteDebugFilesForInactiveChats(ctx context.Context, opts DebugFilesOptions) error {
	metrics.SweepPages.WithLabelValues("debug_files").Inc()

	threshold := time.Now().AddDate(0, 0, -opts.DaysInactive)
	page, next, done, err := s.debugLog.PageByCreatedAt(ctx, threshold, opts.Cursor, s.cfg.DebugFileBatchSize)
	if err != nil {
		return err
	}

	for i := range page {
		entry := &page[i]

		latest, err := s.checkpoints.LatestByChat(ctx, entry.ChatID)
		if err != nil {
			return err
		}
		if latest == nil {
			return fmt.Errorf("chat %s has no storage state", entry.ChatID)
		}
		// A recent checkpoint means the chat is still active; keep its
		// debug trail.
		if !latest.CreatedAt.Before(threshold) {
			continue
		}

		if !opts.ForReal {
			s.logger.Info("would delete debug file",
				"chat_id", entry.ChatID,
				"last_active", latest.CreatedAt)
			continue
		}

		if err := s.blobs.Delete(ctx, entry.PromptStorageID); err != nil {
			s.logger.Error("failed to delete debug prompt blob",
				"blob_id", entry.PromptStorageID, "error", err)
			metrics.SweepErrors.WithLabelValues("debug_files").Inc()
			continue
		}
		if err := s.debugLog.Delete(ctx, entry.ID); err != nil {
			return err
		}
		metrics.SweepRowsDeleted.WithLabelValues("debug_files").Inc()
		metrics.SweepBlobsDeleted.WithLabelValues("debug_files").Inc()
		s.logger.Info("deleted debug file",
			"chat_id", entry.ChatID,
			"last_active", latest.CreatedAt)
	}

	if opts.ShouldScheduleNext && !done {
		nextOpts := opts
		nextOpts.Cursor = next
		return s.scheduler.RunAfter(ctx, s.cfg.CleanupPageDelay, "debug-files-sweep", func(ctx context.Context) error {
			return s.DeleteDebugFilesForInactiveChats(ctx, nextOpts)
		})
	}
	return nil
}
