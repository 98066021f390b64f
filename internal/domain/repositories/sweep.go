package repositories

import (
	"context"

	"loom/internal/domain/models"
)

// SweepRepository persists resumable progress records for blob-store
// sweeps.
type SweepRepository interface {
	// Insert creates a new progress record
	Insert(ctx context.Context, progress *models.SweepProgress) error

	// Get retrieves a progress record by id.
	// Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*models.SweepProgress, error)

	// Update writes the record's mutable fields (cursor, counts, done
	// flag, latest end time).
	Update(ctx context.Context, progress *models.SweepProgress) error
}
