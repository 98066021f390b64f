// Package share implements sharing and forking: immutable value-copy
// captures of a chat's branch tip, public social shares, cloning a share
// into a fresh chat, and the privacy redaction that erases early message
// history from a public share while keeping the final workspace state.
package share

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"loom/internal/config"
	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// Service implements the share manager
type Service struct {
	chats       repositories.ChatRepository
	checkpoints repositories.CheckpointRepository
	shares      repositories.ShareRepository
	txManager   repositories.TransactionManager
	cfg         *config.Config
	logger      *slog.Logger
}

// NewService creates a new share service
func NewService(
	chats repositories.ChatRepository,
	checkpoints repositories.CheckpointRepository,
	shares repositories.ShareRepository,
	txManager repositories.TransactionManager,
	cfg *config.Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		chats:       chats,
		checkpoints: checkpoints,
		shares:      shares,
		txManager:   txManager,
		cfg:         cfg,
		logger:      logger,
	}
}

// getOwnedChat resolves a client-supplied id against the creator's chats
func (s *Service) getOwnedChat(ctx context.Context, creatorID, id string) (*models.Chat, error) {
	chat, err := s.chats.GetByInitialID(ctx, creatorID, id)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		chat, err = s.chats.GetByURLID(ctx, creatorID, id)
		if err != nil {
			return nil, err
		}
	}
	if chat == nil {
		return nil, domain.ErrChatNotFound
	}
	return chat, nil
}

// shareableTip finds the newest branch tip that actually carries message
// history, walking branch indexes downward. A freshly created subchat has
// only its bootstrap row, so the latest branch may be empty while an
// earlier one holds the content worth sharing.
func (s *Service) shareableTip(ctx context.Context, chat *models.Chat) (*models.Checkpoint, error) {
	for i := chat.LastSubchatIndex; i >= 0; i-- {
		maxRank := chat.LastMessageRank
		if i != chat.LastSubchatIndex {
			maxRank = nil
		}
		tip, err := s.checkpoints.LatestForSubchat(ctx, chat.ID, i, maxRank)
		if err != nil {
			return nil, err
		}
		if tip != nil && tip.StorageID != nil {
			return tip, nil
		}
	}
	return nil, &domain.NotFoundError{Message: "chat history not found"}
}

// Create captures the chat's current content as an immutable share and
// returns its code. The capture copies the blob ids by value: the share
// stays valid however the chat evolves afterwards.
func (s *Service) Create(ctx context.Context, creatorID, id string) (string, error) {
	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		return "", err
	}

	tip, err := s.shareableTip(ctx, chat)
	if err != nil {
		return "", err
	}

	// Chats that predate per-checkpoint snapshots carry theirs at the
	// chat level.
	snapshotID := tip.SnapshotID
	if snapshotID == nil {
		snapshotID = chat.SnapshotID
	}

	share := &models.Share{
		ID:               uuid.New().String(),
		ChatID:           chat.ID,
		Code:             uuid.New().String(),
		Description:      chat.Description,
		ChatHistoryID:    tip.StorageID,
		SnapshotID:       snapshotID,
		LastMessageRank:  tip.LastMessageRank,
		PartIndex:        tip.PartIndex,
		LastSubchatIndex: tip.SubchatIndex,
		CreatedAt:        time.Now(),
	}
	if err := s.shares.Insert(ctx, share); err != nil {
		return "", err
	}
	return share.Code, nil
}

// Description is the public view of a share
type Description struct {
	Description *string `json:"description,omitempty"`
}

// Describe returns the public metadata of a share. No access check: share
// codes are unguessable capability tokens.
func (s *Service) Describe(ctx context.Context, code string) (*Description, error) {
	share, err := s.shares.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &Description{Description: share.Description}, nil
}

// Clone forks a share into a brand-new chat owned by the caller. The new
// chat's checkpoint log is seeded with the captured ids for every branch
// index up to the share's, so the fork sees the same multi-branch shape
// the original had at share time.
func (s *Service) Clone(ctx context.Context, creatorID, code, newChatID string) (string, error) {
	share, err := s.shares.GetByCode(ctx, code)
	if err != nil {
		return "", err
	}
	if share.ChatHistoryID == nil {
		return "", fmt.Errorf("share %s has no chat history: %w", code, domain.ErrNotFound)
	}

	existing, err := s.chats.GetByInitialID(ctx, creatorID, newChatID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", &domain.InvalidStateError{Message: "chat already exists"}
	}

	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		chat := &models.Chat{
			ID:               uuid.New().String(),
			CreatorID:        creatorID,
			InitialID:        newChatID,
			Description:      share.Description,
			SnapshotID:       share.SnapshotID,
			LastSubchatIndex: share.LastSubchatIndex,
			CreatedAt:        time.Now(),
		}
		if err := s.chats.Insert(ctx, chat); err != nil {
			return err
		}

		for i := 0; i <= share.LastSubchatIndex; i++ {
			cp := &models.Checkpoint{
				ID:              uuid.New().String(),
				ChatID:          chat.ID,
				SubchatIndex:    i,
				LastMessageRank: share.LastMessageRank,
				PartIndex:       share.PartIndex,
				StorageID:       share.ChatHistoryID,
				SnapshotID:      share.SnapshotID,
				CreatedAt:       time.Now(),
			}
			if err := s.checkpoints.Insert(ctx, cp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return newChatID, nil
}

// CreateSocial publishes a chat as a social share with an optional
// thumbnail blob, returning the public code
func (s *Service) CreateSocial(ctx context.Context, creatorID, id string, thumbnailID *string) (string, error) {
	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		return "", err
	}

	share := &models.SocialShare{
		ID:          uuid.New().String(),
		ChatID:      chat.ID,
		Code:        uuid.New().String(),
		ThumbnailID: thumbnailID,
		CreatedAt:   time.Now(),
	}
	if err := s.shares.InsertSocial(ctx, share); err != nil {
		return "", err
	}
	return share.Code, nil
}
