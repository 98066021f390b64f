package repositories

import (
	"context"
	"time"

	"loom/internal/domain/models"
)

// DebugLogRepository is the data access interface for the per-request
// prompt debug log.
type DebugLogRepository interface {
	// Insert appends a log entry
	Insert(ctx context.Context, entry *models.DebugRequestLog) error

	// Delete removes one entry
	Delete(ctx context.Context, id string) error

	// LatestForChat returns the newest entry for a chat, or (nil, nil)
	LatestForChat(ctx context.Context, chatID string) (*models.DebugRequestLog, error)

	// FirstByStorageID returns any entry holding the given prompt blob,
	// or (nil, nil). Reference-tracker point lookup.
	FirstByStorageID(ctx context.Context, storageID string) (*models.DebugRequestLog, error)

	// PageByCreatedAt iterates entries oldest first for the inactivity
	// sweep. Entries created at or after before are never returned, so
	// the sweep can stop at the first page that comes back short.
	PageByCreatedAt(ctx context.Context, before time.Time, cursor string, limit int) (entries []models.DebugRequestLog, next string, done bool, err error)
}
