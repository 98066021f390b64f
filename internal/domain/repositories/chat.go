package repositories

import (
	"context"

	"loom/internal/domain/models"
)

// ChatRepository is the data access interface for conversation roots.
// Chats are soft-deleted only; the creator-scoped lookups exclude deleted
// rows, the id-only lookup does not (background jobs still need them).
type ChatRepository interface {
	// Insert creates a new chat row
	Insert(ctx context.Context, chat *models.Chat) error

	// GetByID retrieves a chat by internal id, including deleted ones.
	// Returns domain.ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*models.Chat, error)

	// GetByInitialID retrieves a non-deleted chat by (creator, initial id).
	// Returns (nil, nil) if absent: callers fall through to the url-id
	// lookup before deciding the chat does not exist.
	GetByInitialID(ctx context.Context, creatorID, initialID string) (*models.Chat, error)

	// GetByURLID retrieves a non-deleted chat by (creator, url alias).
	// Returns (nil, nil) if absent.
	GetByURLID(ctx context.Context, creatorID, urlID string) (*models.Chat, error)

	// ListByCreator retrieves all non-deleted chats for a creator
	ListByCreator(ctx context.Context, creatorID string) ([]models.Chat, error)

	// Update writes all mutable fields (description, url id, snapshot id,
	// branch pointer, rewind ceiling, soft-delete flag). A nil
	// LastMessageRank clears the rewind ceiling.
	Update(ctx context.Context, chat *models.Chat) error

	// FirstBySnapshotID returns any chat whose fallback snapshot is the
	// given blob, or (nil, nil). Reference-tracker point lookup.
	FirstBySnapshotID(ctx context.Context, snapshotID string) (*models.Chat, error)

	// Page iterates every chat (deleted included) for background sweeps.
	// An empty cursor starts from the beginning.
	Page(ctx context.Context, cursor string, limit int) (chats []models.Chat, next string, done bool, err error)
}
