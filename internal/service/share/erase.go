package share

import (
	"context"

	"loom/internal/config"
	"loom/internal/domain"
	"loom/internal/domain/repositories"
)

// EraseResult reports what EraseMessageHistory did, or would do under a
// dry run
type EraseResult struct {
	LastMessageRank    int     `json:"last_message_rank"`
	ReplacedSnapshotID *string `json:"replaced_snapshot_id,omitempty"`
	NewSnapshotID      string  `json:"new_snapshot_id"`
	DryRun             bool    `json:"dry_run"`
}

// EraseMessageHistory redacts the early conversation of a publicly shared
// chat. It finds the earliest checkpoint (within a bounded window from
// the start of the chat) that carries a workspace snapshot, replaces that
// snapshot with the most recent one, and rewinds the chat's pointer to
// that rank. Visitors then see the final workspace without the message
// history that produced it.
func (s *Service) EraseMessageHistory(ctx context.Context, code string, dryRun bool) (*EraseResult, error) {
	social, err := s.shares.GetSocialByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	chat, err := s.chats.GetByID(ctx, social.ChatID)
	if err != nil {
		return nil, err
	}

	mostRecent, err := s.checkpoints.LatestByChat(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	if mostRecent == nil {
		return nil, &domain.NotFoundError{Message: "no storage state found for chat"}
	}
	if mostRecent.SnapshotID == nil {
		return nil, &domain.NotFoundError{Message: "no filesystem snapshot found for chat"}
	}
	newSnapshot := *mostRecent.SnapshotID

	earliest, err := s.checkpoints.EarliestByChat(ctx, chat.ID, config.EraseHistoryScanLimit)
	if err != nil {
		return nil, err
	}
	var earliestRank *int
	for i := range earliest {
		if earliest[i].SnapshotID != nil {
			earliestRank = &earliest[i].LastMessageRank
			break
		}
	}
	if earliestRank == nil {
		return nil, &domain.NotFoundError{Message: "no snapshot-carrying checkpoint found in the scanned window"}
	}

	// The rank may have streamed in several parts; patch the final one,
	// since that is the row a rewind lands on.
	sameRank, err := s.checkpoints.ListForRank(ctx, chat.ID, chat.LastSubchatIndex, *earliestRank)
	if err != nil {
		return nil, err
	}
	if len(sameRank) == 0 {
		return nil, &domain.NotFoundError{Message: "no checkpoint found at the earliest snapshot rank"}
	}
	target := sameRank[len(sameRank)-1]

	result := &EraseResult{
		LastMessageRank:    *earliestRank,
		ReplacedSnapshotID: target.SnapshotID,
		NewSnapshotID:      newSnapshot,
		DryRun:             dryRun,
	}

	if dryRun {
		s.logger.Info("erase history dry run",
			"share_code", code,
			"rank", *earliestRank,
			"new_snapshot", newSnapshot)
		return result, nil
	}

	if err := s.checkpoints.Patch(ctx, target.ID, repositories.CheckpointPatch{
		SnapshotID: &newSnapshot,
	}); err != nil {
		return nil, err
	}

	chat.LastMessageRank = earliestRank
	if err := s.chats.Update(ctx, chat); err != nil {
		return nil, err
	}

	s.logger.Info("erased message history",
		"share_code", code,
		"chat_id", chat.ID,
		"rank", *earliestRank)
	return result, nil
}
