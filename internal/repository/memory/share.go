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

// ShareRepository is an in-memory ShareRepository
type ShareRepository struct {
	mu      sync.RWMutex
	shares  map[string]models.Share
	socials map[string]models.SocialShare
}

// NewShareRepository creates an empty in-memory share store
func NewShareRepository() *ShareRepository {
	return &ShareRepository{
		shares:  make(map[string]models.Share),
		socials: make(map[string]models.SocialShare),
	}
}

// Insert creates a new share
func (r *ShareRepository) Insert(ctx context.Context, share *models.Share) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.shares {
		if s.Code == share.Code {
			return fmt.Errorf("share code %s already taken: %w", share.Code, domain.ErrInvalidState)
		}
	}
	r.shares[share.ID] = *share
	return nil
}

// GetByCode retrieves a share by its code
func (r *ShareRepository) GetByCode(ctx context.Context, code string) (*models.Share, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.shares {
		if s.Code == code {
			share := s
			return &share, nil
		}
	}
	return nil, fmt.Errorf("share %s: %w", code, domain.ErrNotFound)
}

// Delete removes a share row
func (r *ShareRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.shares, id)
	return nil
}

// FirstByHistoryID returns any share capturing the given history blob
func (r *ShareRepository) FirstByHistoryID(ctx context.Context, storageID string) (*models.Share, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.shares {
		if s.ChatHistoryID != nil && *s.ChatHistoryID == storageID {
			share := s
			return &share, nil
		}
	}
	return nil, nil
}

// FirstBySnapshotID returns any share capturing the given snapshot blob
func (r *ShareRepository) FirstBySnapshotID(ctx context.Context, snapshotID string) (*models.Share, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.shares {
		if s.SnapshotID != nil && *s.SnapshotID == snapshotID {
			share := s
			return &share, nil
		}
	}
	return nil, nil
}

// InsertSocial creates a new social share
func (r *ShareRepository) InsertSocial(ctx context.Context, share *models.SocialShare) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.socials {
		if s.Code == share.Code {
			return fmt.Errorf("social share code %s already taken: %w", share.Code, domain.ErrInvalidState)
		}
	}
	r.socials[share.ID] = *share
	return nil
}

// GetSocialByCode retrieves a social share by its public code
func (r *ShareRepository) GetSocialByCode(ctx context.Context, code string) (*models.SocialShare, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.socials {
		if s.Code == code {
			share := s
			return &share, nil
		}
	}
	return nil, fmt.Errorf("social share %s: %w", code, domain.ErrNotFound)
}

// FirstSocialByThumbnailID returns any social share holding the given thumbnail blob
func (r *ShareRepository) FirstSocialByThumbnailID(ctx context.Context, thumbnailID string) (*models.SocialShare, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.socials {
		if s.ThumbnailID != nil && *s.ThumbnailID == thumbnailID {
			share := s
			return &share, nil
		}
	}
	return nil, nil
}

// Page iterates every share in id order
func (r *ShareRepository) Page(ctx context.Context, cursor string, limit int) ([]models.Share, string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var shares []models.Share
	for _, s := range r.shares {
		if s.ID > cursor {
			shares = append(shares, s)
		}
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].ID < shares[j].ID })
	if len(shares) > limit {
		shares = shares[:limit]
	}

	if len(shares) < limit {
		return shares, "", true, nil
	}
	return shares, shares[len(shares)-1].ID, false, nil
}

// PageSocial iterates every social share in id order
func (r *ShareRepository) PageSocial(ctx context.Context, cursor string, limit int) ([]models.SocialShare, string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var shares []models.SocialShare
	for _, s := range r.socials {
		if s.ID > cursor {
			shares = append(shares, s)
		}
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].ID < shares[j].ID })
	if len(shares) > limit {
		shares = shares[:limit]
	}

	if len(shares) < limit {
		return shares, "", true, nil
	}
	return shares, shares[len(shares)-1].ID, false, nil
}

var _ repositories.ShareRepository = (*ShareRepository)(nil)
