package memory

import (
	"context"
	"fmt"
	"sync"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// SweepRepository is an in-memory SweepRepository
type SweepRepository struct {
	mu      sync.RWMutex
	records map[string]models.SweepProgress
}

// NewSweepRepository creates an empty in-memory sweep progress store
func NewSweepRepository() *SweepRepository {
	return &SweepRepository{records: make(map[string]models.SweepProgress)}
}

// Insert creates a new progress record
func (r *SweepRepository) Insert(ctx context.Context, progress *models.SweepProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[progress.ID] = *progress
	return nil
}

// Get retrieves a progress record by id
func (r *SweepRepository) Get(ctx context.Context, id string) (*models.SweepProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("sweep progress %s: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

// Update writes the record's mutable fields
func (r *SweepRepository) Update(ctx context.Context, progress *models.SweepProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[progress.ID]; !ok {
		return fmt.Errorf("sweep progress %s: %w", progress.ID, domain.ErrNotFound)
	}
	r.records[progress.ID] = *progress
	return nil
}

var _ repositories.SweepRepository = (*SweepRepository)(nil)
