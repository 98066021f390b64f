package chatstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"loom/internal/domain/models"
)

// LogPromptForDebug records the blob holding the exact prompt sent
// upstream for one request, so a misbehaving conversation can be
// inspected later. Entries are swept once the chat goes inactive.
func (s *Service) LogPromptForDebug(ctx context.Context, creatorID, id, promptStorageID string) error {
	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		return err
	}

	return s.debugLog.Insert(ctx, &models.DebugRequestLog{
		ID:              uuid.New().String(),
		ChatID:          chat.ID,
		PromptStorageID: promptStorageID,
		CreatedAt:       time.Now(),
	})
}

// LatestPromptBlob returns the blob id of the most recent debug-logged
// prompt for a chat, or "" when none was recorded
func (s *Service) LatestPromptBlob(ctx context.Context, creatorID, id string) (string, error) {
	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		return "", err
	}

	entry, err := s.debugLog.LatestForChat(ctx, chat.ID)
	if err != nil || entry == nil {
		return "", err
	}
	return entry.PromptStorageID, nil
}
