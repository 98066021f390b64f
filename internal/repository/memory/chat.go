package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// ChatRepository is an in-memory ChatRepository
type ChatRepository struct {
	mu    sync.RWMutex
	chats map[string]models.Chat
}

// NewChatRepository creates an empty in-memory chat store
func NewChatRepository() *ChatRepository {
	return &ChatRepository{chats: make(map[string]models.Chat)}
}

// Insert creates a new chat row
func (r *ChatRepository) Insert(ctx context.Context, chat *models.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chats[chat.ID]; ok {
		return fmt.Errorf("chat %s already exists: %w", chat.ID, domain.ErrInvalidState)
	}
	r.chats[chat.ID] = *chat
	return nil
}

// GetByID retrieves a chat by internal id, including soft-deleted ones
func (r *ChatRepository) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chat, ok := r.chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", id, domain.ErrNotFound)
	}
	return &chat, nil
}

// GetByInitialID retrieves a non-deleted chat by (creator, initial id)
func (r *ChatRepository) GetByInitialID(ctx context.Context, creatorID, initialID string) (*models.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, chat := range r.chats {
		if chat.CreatorID == creatorID && chat.InitialID == initialID && !chat.IsDeleted {
			c := chat
			return &c, nil
		}
	}
	return nil, nil
}

// GetByURLID retrieves a non-deleted chat by (creator, url alias)
func (r *ChatRepository) GetByURLID(ctx context.Context, creatorID, urlID string) (*models.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, chat := range r.chats {
		if chat.CreatorID == creatorID && !chat.IsDeleted && chat.URLID != nil && *chat.URLID == urlID {
			c := chat
			return &c, nil
		}
	}
	return nil, nil
}

// ListByCreator retrieves all non-deleted chats for a creator
func (r *ChatRepository) ListByCreator(ctx context.Context, creatorID string) ([]models.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var chats []models.Chat
	for _, chat := range r.chats {
		if chat.CreatorID == creatorID && !chat.IsDeleted {
			chats = append(chats, chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		if chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].ID < chats[j].ID
		}
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

// Update writes all mutable fields of a chat
func (r *ChatRepository) Update(ctx context.Context, chat *models.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chats[chat.ID]; !ok {
		return fmt.Errorf("chat %s: %w", chat.ID, domain.ErrNotFound)
	}
	r.chats[chat.ID] = *chat
	return nil
}

// FirstBySnapshotID returns any chat whose fallback snapshot is the given blob
func (r *ChatRepository) FirstBySnapshotID(ctx context.Context, snapshotID string) (*models.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, chat := range r.chats {
		if chat.SnapshotID != nil && *chat.SnapshotID == snapshotID {
			c := chat
			return &c, nil
		}
	}
	return nil, nil
}

// Page iterates every chat, deleted included, in id order
func (r *ChatRepository) Page(ctx context.Context, cursor string, limit int) ([]models.Chat, string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.chats))
	for id := range r.chats {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var chats []models.Chat
	for _, id := range ids {
		if len(chats) == limit {
			break
		}
		chats = append(chats, r.chats[id])
	}

	if len(chats) < limit {
		return chats, "", true, nil
	}
	return chats, chats[len(chats)-1].ID, false, nil
}

var _ repositories.ChatRepository = (*ChatRepository)(nil)
