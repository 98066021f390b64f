package chatstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"loom/internal/domain"
	"loom/internal/domain/models"
)

// SubchatInfo summarizes one branch of a chat
type SubchatInfo struct {
	SubchatIndex int       `json:"subchat_index"`
	Description  *string   `json:"description,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListSubchats returns the tip summary of every branch, oldest branch
// first. Branches whose rows were fully collected are skipped.
func (s *Service) ListSubchats(ctx context.Context, creatorID, id string) ([]SubchatInfo, error) {
	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		return nil, err
	}

	var infos []SubchatInfo
	for i := 0; i <= chat.LastSubchatIndex; i++ {
		tip, err := s.checkpoints.LatestForSubchat(ctx, chat.ID, i, nil)
		if err != nil {
			return nil, err
		}
		if tip == nil {
			continue
		}
		infos = append(infos, SubchatInfo{
			SubchatIndex: tip.SubchatIndex,
			Description:  tip.Description,
			UpdatedAt:    tip.CreatedAt,
		})
	}
	return infos, nil
}

// CreateSubchat starts a new branch: a bootstrap checkpoint carrying
// forward the previous tip's workspace snapshot (same files, no
// messages), the chat's branch pointer advanced, and an async cleanup of
// the old branch's intermediate rows. The old tip survives so the user
// can rewind back into that branch later.
func (s *Service) CreateSubchat(ctx context.Context, creatorID, id string) (int, error) {
	var newIndex int
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		chat, err := s.getOwnedChat(ctx, creatorID, id)
		if err != nil {
			return err
		}

		tip, err := s.checkpoints.LatestForSubchat(ctx, chat.ID, chat.LastSubchatIndex, nil)
		if err != nil {
			return err
		}

		newIndex = chat.LastSubchatIndex + 1
		if newIndex > s.cfg.MaxSubchats {
			return &domain.TooManySubchatsError{
				Message: "you have reached the maximum number of subchats; continue the conversation in the current subchat",
			}
		}

		bootstrap := &models.Checkpoint{
			ID:              uuid.New().String(),
			ChatID:          chat.ID,
			SubchatIndex:    newIndex,
			LastMessageRank: -1,
			PartIndex:       -1,
			CreatedAt:       time.Now(),
		}
		if tip != nil {
			bootstrap.SnapshotID = tip.SnapshotID
		}
		if err := s.checkpoints.Insert(ctx, bootstrap); err != nil {
			return err
		}

		var keepID string
		if tip != nil {
			keepID = tip.ID
		}
		if err := s.scheduleSubchatCleanup(ctx, chat.ID, newIndex-1, keepID, ""); err != nil {
			return err
		}

		chat.LastSubchatIndex = newIndex
		return s.chats.Update(ctx, chat)
	})
	return newIndex, err
}

func (s *Service) scheduleSubchatCleanup(ctx context.Context, chatID string, subchatIndex int, keepID, cursor string) error {
	return s.scheduler.RunAfter(ctx, 0, "subchat-cleanup", func(ctx context.Context) error {
		return s.cleanupOldSubchat(ctx, chatID, subchatIndex, keepID, cursor)
	})
}

// cleanupOldSubchat deletes one page of the old branch's rows, keeping
// the row the user would rewind back to, and re-enqueues itself until the
// branch is swept.
func (s *Service) cleanupOldSubchat(ctx context.Context, chatID string, subchatIndex int, keepID, cursor string) error {
	page, next, done, err := s.checkpoints.PageByChat(ctx, chatID, cursor, s.cfg.SubchatCleanupBatchSize)
	if err != nil {
		return err
	}

	for i := range page {
		cp := &page[i]
		if cp.SubchatIndex != subchatIndex || cp.ID == keepID {
			continue
		}
		if err := s.refs.DeleteCheckpoint(ctx, cp); err != nil {
			s.logger.Error("failed to delete old subchat checkpoint",
				"chat_id", chatID,
				"checkpoint_id", cp.ID,
				"error", err)
		}
	}

	if !done {
		return s.scheduleSubchatCleanup(ctx, chatID, subchatIndex, keepID, next)
	}
	return nil
}
