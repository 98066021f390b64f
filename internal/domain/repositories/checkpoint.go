package repositories

import (
	"context"

	"loom/internal/domain/models"
)

// CheckpointPatch is the set of fields a tip patch may change. Nil fields
// are left untouched, which is load-bearing: a same-key snapshot patch
// must never clear the storage id, and a part advance must never regress
// a non-nil snapshot to nil.
type CheckpointPatch struct {
	StorageID   *string
	SnapshotID  *string
	PartIndex   *int
	Description *string
}

// CheckpointRepository is the data access interface for the history log.
// The canonical ordering within a branch is (last_message_rank, part_index,
// created_at); "latest" and "earliest" below refer to that ordering.
type CheckpointRepository interface {
	// Insert creates a new checkpoint row
	Insert(ctx context.Context, cp *models.Checkpoint) error

	// Patch updates the given fields of one row in place
	Patch(ctx context.Context, id string, patch CheckpointPatch) error

	// Delete removes one row. Blob release is the reference tracker's
	// responsibility, not the repository's.
	Delete(ctx context.Context, id string) error

	// LatestForSubchat resolves the branch tip. A non-nil maxRank is the
	// read-time ceiling applied while the chat is rewound. Returns
	// (nil, nil) when the branch has no rows at or below the ceiling.
	LatestForSubchat(ctx context.Context, chatID string, subchatIndex int, maxRank *int) (*models.Checkpoint, error)

	// EarliestForSubchat returns up to limit rows of the branch in
	// ascending order, bounded above by maxRank.
	EarliestForSubchat(ctx context.Context, chatID string, subchatIndex, maxRank, limit int) ([]models.Checkpoint, error)

	// ListAfterRank returns the branch rows with rank strictly greater
	// than the given one (future-branch debris after a rewind).
	ListAfterRank(ctx context.Context, chatID string, subchatIndex, rank int) ([]models.Checkpoint, error)

	// ListSubchatsAbove returns every row belonging to a subchat with an
	// index strictly greater than the given one.
	ListSubchatsAbove(ctx context.Context, chatID string, subchatIndex int) ([]models.Checkpoint, error)

	// ListForRank returns all rows of a branch at exactly the given rank,
	// ascending by part. More than one row exists only transiently (write
	// races); the rank compaction job collapses them.
	ListForRank(ctx context.Context, chatID string, subchatIndex, rank int) ([]models.Checkpoint, error)

	// EarliestByChat returns up to limit rows across all subchats of a
	// chat in ascending creation order (erase-history scan window).
	EarliestByChat(ctx context.Context, chatID string, limit int) ([]models.Checkpoint, error)

	// LatestByChat returns the newest row across all subchats of a chat,
	// or (nil, nil).
	LatestByChat(ctx context.Context, chatID string) (*models.Checkpoint, error)

	// FirstByStorageID returns any row whose storage id is the given blob,
	// or (nil, nil). Reference-tracker point lookup.
	FirstByStorageID(ctx context.Context, storageID string) (*models.Checkpoint, error)

	// FirstBySnapshotID returns any row whose snapshot id is the given
	// blob, or (nil, nil). Reference-tracker point lookup.
	FirstBySnapshotID(ctx context.Context, snapshotID string) (*models.Checkpoint, error)

	// PageByChat iterates a chat's rows for the compaction sweep. An
	// empty cursor starts from the beginning.
	PageByChat(ctx context.Context, chatID, cursor string, limit int) (cps []models.Checkpoint, next string, done bool, err error)
}
