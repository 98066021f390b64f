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

// CheckpointRepository is an in-memory CheckpointRepository
type CheckpointRepository struct {
	mu  sync.RWMutex
	cps map[string]models.Checkpoint
}

// NewCheckpointRepository creates an empty in-memory checkpoint store
func NewCheckpointRepository() *CheckpointRepository {
	return &CheckpointRepository{cps: make(map[string]models.Checkpoint)}
}

// tipLess orders checkpoints by (rank, part, created_at, id), the
// canonical within-branch ordering.
func tipLess(a, b models.Checkpoint) bool {
	if a.LastMessageRank != b.LastMessageRank {
		return a.LastMessageRank < b.LastMessageRank
	}
	if a.PartIndex != b.PartIndex {
		return a.PartIndex < b.PartIndex
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r *CheckpointRepository) branch(chatID string, subchatIndex int) []models.Checkpoint {
	var cps []models.Checkpoint
	for _, cp := range r.cps {
		if cp.ChatID == chatID && cp.SubchatIndex == subchatIndex {
			cps = append(cps, cp)
		}
	}
	sort.Slice(cps, func(i, j int) bool { return tipLess(cps[i], cps[j]) })
	return cps
}

// Insert creates a new checkpoint row
func (r *CheckpointRepository) Insert(ctx context.Context, cp *models.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cps[cp.ID]; ok {
		return fmt.Errorf("checkpoint %s already exists: %w", cp.ID, domain.ErrInvalidState)
	}
	r.cps[cp.ID] = *cp
	return nil
}

// Patch updates the non-nil fields of one row in place
func (r *CheckpointRepository) Patch(ctx context.Context, id string, patch repositories.CheckpointPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp, ok := r.cps[id]
	if !ok {
		return fmt.Errorf("checkpoint %s: %w", id, domain.ErrNotFound)
	}
	if patch.StorageID != nil {
		cp.StorageID = patch.StorageID
	}
	if patch.SnapshotID != nil {
		cp.SnapshotID = patch.SnapshotID
	}
	if patch.PartIndex != nil {
		cp.PartIndex = *patch.PartIndex
	}
	if patch.Description != nil {
		cp.Description = patch.Description
	}
	r.cps[id] = cp
	return nil
}

// Delete removes one row
func (r *CheckpointRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.cps, id)
	return nil
}

// LatestForSubchat resolves the branch tip, bounded above by maxRank when set
func (r *CheckpointRepository) LatestForSubchat(ctx context.Context, chatID string, subchatIndex int, maxRank *int) (*models.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tip *models.Checkpoint
	for _, cp := range r.branch(chatID, subchatIndex) {
		if maxRank != nil && cp.LastMessageRank > *maxRank {
			continue
		}
		c := cp
		tip = &c
	}
	return tip, nil
}

// EarliestForSubchat returns up to limit rows of the branch ascending, bounded above by maxRank
func (r *CheckpointRepository) EarliestForSubchat(ctx context.Context, chatID string, subchatIndex, maxRank, limit int) ([]models.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cps []models.Checkpoint
	for _, cp := range r.branch(chatID, subchatIndex) {
		if cp.LastMessageRank > maxRank {
			continue
		}
		cps = append(cps, cp)
		if len(cps) == limit {
			break
		}
	}
	return cps, nil
}

// ListAfterRank returns the branch rows with rank strictly greater than the given one
func (r *CheckpointRepository) ListAfterRank(ctx context.Context, chatID string, subchatIndex, rank int) ([]models.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cps []models.Checkpoint
	for _, cp := range r.branch(chatID, subchatIndex) {
		if cp.LastMessageRank > rank {
			cps = append(cps, cp)
		}
	}
	return cps, nil
}

// ListSubchatsAbove returns every row belonging to a subchat above the given index
func (r *CheckpointRepository) ListSubchatsAbove(ctx context.Context, chatID string, subchatIndex int) ([]models.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cps []models.Checkpoint
	for _, cp := range r.cps {
		if cp.ChatID == chatID && cp.SubchatIndex > subchatIndex {
			cps = append(cps, cp)
		}
	}
	sort.Slice(cps, func(i, j int) bool {
		if cps[i].SubchatIndex != cps[j].SubchatIndex {
			return cps[i].SubchatIndex < cps[j].SubchatIndex
		}
		return tipLess(cps[i], cps[j])
	})
	return cps, nil
}

// ListForRank returns all rows of a branch at exactly the given rank
func (r *CheckpointRepository) ListForRank(ctx context.Context, chatID string, subchatIndex, rank int) ([]models.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cps []models.Checkpoint
	for _, cp := range r.branch(chatID, subchatIndex) {
		if cp.LastMessageRank == rank {
			cps = append(cps, cp)
		}
	}
	return cps, nil
}

// EarliestByChat returns up to limit rows across all subchats of a chat in creation order
func (r *CheckpointRepository) EarliestByChat(ctx context.Context, chatID string, limit int) ([]models.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cps []models.Checkpoint
	for _, cp := range r.cps {
		if cp.ChatID == chatID {
			cps = append(cps, cp)
		}
	}
	sort.Slice(cps, func(i, j int) bool {
		if !cps[i].CreatedAt.Equal(cps[j].CreatedAt) {
			return cps[i].CreatedAt.Before(cps[j].CreatedAt)
		}
		return cps[i].ID < cps[j].ID
	})
	if len(cps) > limit {
		cps = cps[:limit]
	}
	return cps, nil
}

// LatestByChat returns the newest row across all subchats of a chat
func (r *CheckpointRepository) LatestByChat(ctx context.Context, chatID string) (*models.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.Checkpoint
	for _, cp := range r.cps {
		if cp.ChatID != chatID {
			continue
		}
		c := cp
		if latest == nil ||
			c.CreatedAt.After(latest.CreatedAt) ||
			(c.CreatedAt.Equal(latest.CreatedAt) && c.ID > latest.ID) {
			latest = &c
		}
	}
	return latest, nil
}

// FirstByStorageID returns any row whose storage id is the given blob
func (r *CheckpointRepository) FirstByStorageID(ctx context.Context, storageID string) (*models.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cp := range r.cps {
		if cp.StorageID != nil && *cp.StorageID == storageID {
			c := cp
			return &c, nil
		}
	}
	return nil, nil
}

// FirstBySnapshotID returns any row whose snapshot id is the given blob
func (r *CheckpointRepository) FirstBySnapshotID(ctx context.Context, snapshotID string) (*models.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cp := range r.cps {
		if cp.SnapshotID != nil && *cp.SnapshotID == snapshotID {
			c := cp
			return &c, nil
		}
	}
	return nil, nil
}

// PageByChat iterates a chat's rows in id order
func (r *CheckpointRepository) PageByChat(ctx context.Context, chatID, cursor string, limit int) ([]models.Checkpoint, string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cps []models.Checkpoint
	for _, cp := range r.cps {
		if cp.ChatID == chatID && cp.ID > cursor {
			cps = append(cps, cp)
		}
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].ID < cps[j].ID })
	if len(cps) > limit {
		cps = cps[:limit]
	}

	if len(cps) < limit {
		return cps, "", true, nil
	}
	return cps, cps[len(cps)-1].ID, false, nil
}

var _ repositories.CheckpointRepository = (*CheckpointRepository)(nil)
