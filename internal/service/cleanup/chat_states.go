package cleanup

import (
	"context"

	"loom/internal/metrics"
)

// ChatStatesOptions controls one run of the branch-tip compaction sweep
type ChatStatesOptions struct {
	ForReal            bool
	ShouldScheduleNext bool
	Cursor             string
}

type rankKey struct {
	subchatIndex    int
	lastMessageRank int
}

// DeleteAllOldChatStates pages through every chat and fans out a
// per-chat compaction job for each.
func (s *Service) DeleteAllOldChatStates(ctx context.Context, opts ChatStatesOptions) error {
	metrics.SweepPages.WithLabelValues("chat_states").Inc()

	page, next, done, err := s.chats.Page(ctx, opts.Cursor, s.cfg.ChatCleanupBatchSize)
	if err != nil {
		return err
	}

	for i := range page {
		chatID := page[i].ID
		if err := s.scheduler.RunAfter(ctx, 0, "chat-states-compaction", func(ctx context.Context) error {
			return s.DeleteOldChatStates(ctx, chatID, opts.ForReal, opts.ShouldScheduleNext, "")
		}); err != nil {
			return err
		}
	}

	if opts.ShouldScheduleNext && !done {
		nextOpts := opts
		nextOpts.Cursor = next
		return s.scheduler.RunAfter(ctx, s.cfg.CleanupPageDelay, "chat-states-sweep", func(ctx context.Context) error {
			return s.DeleteAllOldChatStates(ctx, nextOpts)
		})
	}
	return nil
}

// DeleteOldChatStates pages one chat's checkpoints, counting rows per
// (subchat, rank), and schedules a rank compaction wherever more than one
// row shares a rank. The page's final rank is force-counted as a
// duplicate because it may continue on the next page. Most ranks have
// exactly one row (user messages, bootstraps), so counting first avoids
// scheduling a job per rank that would do nothing.
func (s *Service) DeleteOldChatStates(ctx context.Context, chatID string, forReal, shouldScheduleNext bool, cursor string) error {
	page, next, done, err := s.checkpoints.PageByChat(ctx, chatID, cursor, s.cfg.StorageStateBatchSize)
	if err != nil {
		return err
	}

	counts := make(map[rankKey]int)
	for i := range page {
		key := rankKey{page[i].SubchatIndex, page[i].LastMessageRank}
		counts[key]++
	}
	if len(page) > 0 {
		last := page[len(page)-1]
		counts[rankKey{last.SubchatIndex, last.LastMessageRank}] = 2

		for key, count := range counts {
			if count <= 1 {
				continue
			}
			k := key
			if err := s.scheduler.RunAfter(ctx, 0, "rank-compaction", func(ctx context.Context) error {
				return s.DeleteOldStatesForRank(ctx, chatID, k.subchatIndex, k.lastMessageRank, forReal)
			}); err != nil {
				return err
			}
		}
	}

	if shouldScheduleNext && !done {
		return s.scheduler.RunAfter(ctx, s.cfg.CleanupPageDelay, "chat-states-compaction", func(ctx context.Context) error {
			return s.DeleteOldChatStates(ctx, chatID, forReal, shouldScheduleNext, next)
		})
	}
	return nil
}

// DeleteOldStatesForRank deletes every checkpoint except the last one
// sharing a (subchat, rank): only the final part of a streamed message is
// worth keeping. A no-op once one row remains.
func (s *Service) DeleteOldStatesForRank(ctx context.Context, chatID string, subchatIndex, lastMessageRank int, forReal bool) error {
	rows, err := s.checkpoints.ListForRank(ctx, chatID, subchatIndex, lastMessageRank)
	if err != nil {
		return err
	}
	if len(rows) <= 1 {
		return nil
	}

	for i := range rows[:len(rows)-1] {
		row := &rows[i]
		if row.StorageID == nil {
			continue
		}
		if !forReal {
			s.logger.Info("would delete superseded checkpoint",
				"chat_id", chatID,
				"checkpoint_id", row.ID,
				"rank", lastMessageRank)
			continue
		}
		if err := s.refs.DeleteCheckpoint(ctx, row); err != nil {
			s.logger.Error("failed to delete superseded checkpoint",
				"checkpoint_id", row.ID, "error", err)
			metrics.SweepErrors.WithLabelValues("chat_states").Inc()
			continue
		}
		metrics.SweepRowsDeleted.WithLabelValues("chat_states").Inc()
	}
	return nil
}
