package repositories

import (
	"context"

	"loom/internal/domain/models"
)

// ShareRepository is the data access interface for shares and social
// shares. Shares are immutable once written; only deletion of the owning
// share removes the row.
type ShareRepository interface {
	// Insert creates a new share
	Insert(ctx context.Context, share *models.Share) error

	// GetByCode retrieves a share by its code.
	// Returns domain.ErrNotFound if absent.
	GetByCode(ctx context.Context, code string) (*models.Share, error)

	// Delete removes a share row
	Delete(ctx context.Context, id string) error

	// FirstByHistoryID returns any share capturing the given history blob,
	// or (nil, nil). Reference-tracker point lookup.
	FirstByHistoryID(ctx context.Context, storageID string) (*models.Share, error)

	// FirstBySnapshotID returns any share capturing the given snapshot
	// blob, or (nil, nil). Reference-tracker point lookup.
	FirstBySnapshotID(ctx context.Context, snapshotID string) (*models.Share, error)

	// InsertSocial creates a new social share
	InsertSocial(ctx context.Context, share *models.SocialShare) error

	// GetSocialByCode retrieves a social share by its public code.
	// Returns domain.ErrNotFound if absent.
	GetSocialByCode(ctx context.Context, code string) (*models.SocialShare, error)

	// FirstSocialByThumbnailID returns any social share holding the given
	// thumbnail blob, or (nil, nil). Reference-tracker point lookup.
	FirstSocialByThumbnailID(ctx context.Context, thumbnailID string) (*models.SocialShare, error)

	// Page iterates every share for the reference audit. An empty cursor
	// starts from the beginning.
	Page(ctx context.Context, cursor string, limit int) (shares []models.Share, next string, done bool, err error)

	// PageSocial iterates every social share for the reference audit
	PageSocial(ctx context.Context, cursor string, limit int) (shares []models.SocialShare, next string, done bool, err error)
}
