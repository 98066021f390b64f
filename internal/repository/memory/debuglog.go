package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// DebugLogRepository is an in-memory DebugLogRepository
type DebugLogRepository struct {
	mu      sync.RWMutex
	entries map[string]models.DebugRequestLog
}

// NewDebugLogRepository creates an empty in-memory debug log store
func NewDebugLogRepository() *DebugLogRepository {
	return &DebugLogRepository{entries: make(map[string]models.DebugRequestLog)}
}

// Insert appends a log entry
func (r *DebugLogRepository) Insert(ctx context.Context, entry *models.DebugRequestLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.ID] = *entry
	return nil
}

// Delete removes one entry
func (r *DebugLogRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, id)
	return nil
}

// LatestForChat returns the newest entry for a chat
func (r *DebugLogRepository) LatestForChat(ctx context.Context, chatID string) (*models.DebugRequestLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.DebugRequestLog
	for _, e := range r.entries {
		if e.ChatID != chatID {
			continue
		}
		entry := e
		if latest == nil ||
			entry.CreatedAt.After(latest.CreatedAt) ||
			(entry.CreatedAt.Equal(latest.CreatedAt) && entry.ID > latest.ID) {
			latest = &entry
		}
	}
	return latest, nil
}

// FirstByStorageID returns any entry holding the given prompt blob
func (r *DebugLogRepository) FirstByStorageID(ctx context.Context, storageID string) (*models.DebugRequestLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.PromptStorageID == storageID {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

// PageByCreatedAt iterates entries older than before, in id order
func (r *DebugLogRepository) PageByCreatedAt(ctx context.Context, before time.Time, cursor string, limit int) ([]models.DebugRequestLog, string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []models.DebugRequestLog
	for _, e := range r.entries {
		if e.CreatedAt.Before(before) && e.ID > cursor {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	if len(entries) > limit {
		entries = entries[:limit]
	}

	if len(entries) < limit {
		return entries, "", true, nil
	}
	return entries, entries[len(entries)-1].ID, false, nil
}

var _ repositories.DebugLogRepository = (*DebugLogRepository)(nil)
