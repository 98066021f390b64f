// Package chatstore implements the conversation state store: the chat
// lifecycle, the versioned checkpoint log with its append/patch rules,
// rewind and branching, and the reference-checked blob bookkeeping that
// keeps the store leak-free.
package chatstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"loom/internal/config"
	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// Service coordinates chats, checkpoints and blobs. All operations are
// creator-scoped: a chat id that exists but belongs to someone else is
// indistinguishable from an absent one.
type Service struct {
	chats       repositories.ChatRepository
	checkpoints repositories.CheckpointRepository
	debugLog    repositories.DebugLogRepository
	blobs       repositories.BlobStore
	refs        *ReferenceTracker
	txManager   repositories.TransactionManager
	scheduler   repositories.Scheduler
	cfg         *config.Config
	logger      *slog.Logger
}

// NewService creates a new chat store service
func NewService(
	chats repositories.ChatRepository,
	checkpoints repositories.CheckpointRepository,
	debugLog repositories.DebugLogRepository,
	blobs repositories.BlobStore,
	refs *ReferenceTracker,
	txManager repositories.TransactionManager,
	scheduler repositories.Scheduler,
	cfg *config.Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		chats:       chats,
		checkpoints: checkpoints,
		debugLog:    debugLog,
		blobs:       blobs,
		refs:        refs,
		txManager:   txManager,
		scheduler:   scheduler,
		cfg:         cfg,
		logger:      logger,
	}
}

// ChatView is the client-facing projection of a chat
type ChatView struct {
	InitialID    string    `json:"initial_id"`
	URLID        *string   `json:"url_id,omitempty"`
	Description  *string   `json:"description,omitempty"`
	SnapshotID   *string   `json:"snapshot_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	SubchatIndex int       `json:"subchat_index"`
}

// StorageInfo is the client-facing projection of a branch tip
type StorageInfo struct {
	StorageID       *string `json:"storage_id"`
	LastMessageRank int     `json:"last_message_rank"`
	PartIndex       int     `json:"part_index"`
	SnapshotID      *string `json:"snapshot_id,omitempty"`
	SubchatIndex    int     `json:"subchat_index"`
}

func chatView(chat *models.Chat) *ChatView {
	return &ChatView{
		InitialID:    chat.InitialID,
		URLID:        chat.URLID,
		Description:  chat.Description,
		SnapshotID:   chat.SnapshotID,
		Timestamp:    chat.CreatedAt,
		SubchatIndex: chat.LastSubchatIndex,
	}
}

// getOwnedChat resolves a client-supplied id against the creator's chats,
// trying the stable initial id first and the url alias second. Returns
// ErrChatNotFound for absent chats and for other creators' chats alike.
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

// InitializeChat creates a chat plus its bootstrap checkpoint. Calling it
// again with the same id is a no-op, so clients can retry blindly.
func (s *Service) InitializeChat(ctx context.Context, creatorID, id string) error {
	existing, err := s.chats.GetByInitialID(ctx, creatorID, id)
	if err != nil {
		return err
	}
	if existing == nil {
		existing, err = s.chats.GetByURLID(ctx, creatorID, id)
		if err != nil {
			return err
		}
	}
	if existing != nil {
		return nil
	}

	return s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		chat := &models.Chat{
			ID:        uuid.New().String(),
			CreatorID: creatorID,
			InitialID: id,
			CreatedAt: time.Now(),
		}
		if err := s.chats.Insert(ctx, chat); err != nil {
			return err
		}

		// The bootstrap row means "no messages yet"; every branch tip
		// lookup relies on it existing.
		return s.checkpoints.Insert(ctx, &models.Checkpoint{
			ID:              uuid.New().String(),
			ChatID:          chat.ID,
			SubchatIndex:    0,
			LastMessageRank: -1,
			PartIndex:       -1,
			CreatedAt:       time.Now(),
		})
	})
}

// Get returns the client-facing view of a chat
func (s *Service) Get(ctx context.Context, creatorID, id string) (*ChatView, error) {
	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		return nil, err
	}
	return chatView(chat), nil
}

// List returns all of a creator's non-deleted chats
func (s *Service) List(ctx context.Context, creatorID string) ([]ChatView, error) {
	chats, err := s.chats.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	views := make([]ChatView, 0, len(chats))
	for i := range chats {
		views = append(views, *chatView(&chats[i]))
	}
	return views, nil
}

// SetDescription sets the chat's description
func (s *Service) SetDescription(ctx context.Context, creatorID, id, description string) error {
	if err := validation.Validate(description,
		validation.Required,
		validation.Length(1, config.MaxDescriptionLength),
	); err != nil {
		return fmt.Errorf("%w: description: %v", domain.ErrValidation, err)
	}

	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		return err
	}

	chat.Description = &description
	return s.chats.Update(ctx, chat)
}

// SetURLID assigns a url alias derived from the hint, suffixing with -2,
// -3, ... until an unused alias is found within this creator's chats.
// Returns the resolved alias; a chat that already has one keeps it. The
// description is applied only when the chat has none yet.
func (s *Service) SetURLID(ctx context.Context, creatorID, id, urlHint, description string) (urlID, initialID string, err error) {
	if err := validation.Validate(urlHint,
		validation.Required,
		validation.Length(1, config.MaxURLIDLength),
	); err != nil {
		return "", "", fmt.Errorf("%w: url hint: %v", domain.ErrValidation, err)
	}

	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		return "", "", err
	}

	if chat.URLID != nil {
		return *chat.URLID, chat.InitialID, nil
	}

	allocated, err := s.allocateURLID(ctx, creatorID, urlHint)
	if err != nil {
		return "", "", err
	}

	chat.URLID = &allocated
	if chat.Description == nil && description != "" {
		chat.Description = &description
	}
	if err := s.chats.Update(ctx, chat); err != nil {
		return "", "", err
	}
	return allocated, chat.InitialID, nil
}

func (s *Service) allocateURLID(ctx context.Context, creatorID, urlHint string) (string, error) {
	existing, err := s.chats.GetByURLID(ctx, creatorID, urlHint)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return urlHint, nil
	}

	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", urlHint, i)
		existing, err := s.chats.GetByURLID(ctx, creatorID, candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
	}
}

// Remove soft-deletes a chat. The rows and blobs stay behind for shares
// and for the background sweeps; removing an absent chat is a no-op.
func (s *Service) Remove(ctx context.Context, creatorID, id string) error {
	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	chat.IsDeleted = true
	return s.chats.Update(ctx, chat)
}

// SaveSnapshot sets the chat-level fallback snapshot blob
func (s *Service) SaveSnapshot(ctx context.Context, creatorID, id, storageID string) error {
	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		return err
	}

	chat.SnapshotID = &storageID
	return s.chats.Update(ctx, chat)
}

// SnapshotURL resolves the serve URL of the chat's current workspace
// snapshot: the current branch tip's snapshot when present, otherwise the
// chat-level fallback kept for chats that predate per-checkpoint
// snapshots. Returns "" when the chat has no snapshot at all.
func (s *Service) SnapshotURL(ctx context.Context, creatorID, id string) (string, error) {
	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		return "", err
	}

	tip, err := s.checkpoints.LatestForSubchat(ctx, chat.ID, chat.LastSubchatIndex, chat.LastMessageRank)
	if err != nil {
		return "", err
	}
	if tip != nil && tip.SnapshotID != nil {
		return s.blobs.URL(ctx, *tip.SnapshotID)
	}

	if chat.SnapshotID == nil {
		return "", nil
	}
	url, err := s.blobs.URL(ctx, *chat.SnapshotID)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", fmt.Errorf("snapshot blob %s missing from store", *chat.SnapshotID)
	}
	return url, nil
}

// StorageState returns the tip of the given branch, or nil when the
// branch has no checkpoints
func (s *Service) StorageState(ctx context.Context, creatorID, id string, subchatIndex int) (*StorageInfo, error) {
	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		return nil, err
	}

	tip, err := s.checkpoints.LatestForSubchat(ctx, chat.ID, subchatIndex, chat.LastMessageRank)
	if err != nil || tip == nil {
		return nil, err
	}
	return &StorageInfo{
		StorageID:       tip.StorageID,
		LastMessageRank: tip.LastMessageRank,
		PartIndex:       tip.PartIndex,
		SnapshotID:      tip.SnapshotID,
		SubchatIndex:    tip.SubchatIndex,
	}, nil
}

// EarliestRewindableRank returns the rank of the earliest checkpoint in
// the branch that carries a workspace snapshot, scanning a bounded window
// from the start of the branch. Returns nil for chats that predate
// snapshot recording.
func (s *Service) EarliestRewindableRank(ctx context.Context, creatorID, id string, subchatIndex *int) (*int, error) {
	chat, err := s.getOwnedChat(ctx, creatorID, id)
	if err != nil {
		return nil, err
	}

	// Only the latest subchat is guaranteed to have per-message rows,
	// so it is the default scan target.
	subchat := chat.LastSubchatIndex
	if subchatIndex != nil {
		subchat = *subchatIndex
	}

	tip, err := s.checkpoints.LatestForSubchat(ctx, chat.ID, subchat, chat.LastMessageRank)
	if err != nil || tip == nil {
		return nil, err
	}

	earliest, err := s.checkpoints.EarliestForSubchat(ctx, chat.ID, subchat, tip.LastMessageRank, config.EarliestSnapshotScanLimit)
	if err != nil {
		return nil, err
	}
	for i := range earliest {
		if earliest[i].SnapshotID != nil {
			rank := earliest[i].LastMessageRank
			return &rank, nil
		}
	}
	return nil, nil
}
