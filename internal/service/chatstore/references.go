package chatstore

import (
	"context"
	"fmt"
	"log/slog"

	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// ReferenceTracker decides when a blob may be physically deleted. A blob
// is live while any checkpoint, chat, share, social share or debug log
// row references its id; the checks are indexed point lookups in a fixed
// order so the hot paths (part-advance patches) stay cheap.
type ReferenceTracker struct {
	chats       repositories.ChatRepository
	checkpoints repositories.CheckpointRepository
	shares      repositories.ShareRepository
	debugLog    repositories.DebugLogRepository
	blobs       repositories.BlobStore
	logger      *slog.Logger
}

// NewReferenceTracker creates a reference tracker over the full reference
// set
func NewReferenceTracker(
	chats repositories.ChatRepository,
	checkpoints repositories.CheckpointRepository,
	shares repositories.ShareRepository,
	debugLog repositories.DebugLogRepository,
	blobs repositories.BlobStore,
	logger *slog.Logger,
) *ReferenceTracker {
	return &ReferenceTracker{
		chats:       chats,
		checkpoints: checkpoints,
		shares:      shares,
		debugLog:    debugLog,
		blobs:       blobs,
		logger:      logger,
	}
}

// BlobReferenced reports whether any live row references the blob id
func (t *ReferenceTracker) BlobReferenced(ctx context.Context, id string) (bool, error) {
	if cp, err := t.checkpoints.FirstByStorageID(ctx, id); err != nil {
		return false, fmt.Errorf("check checkpoint storage refs: %w", err)
	} else if cp != nil {
		return true, nil
	}

	if cp, err := t.checkpoints.FirstBySnapshotID(ctx, id); err != nil {
		return false, fmt.Errorf("check checkpoint snapshot refs: %w", err)
	} else if cp != nil {
		return true, nil
	}

	if chat, err := t.chats.FirstBySnapshotID(ctx, id); err != nil {
		return false, fmt.Errorf("check chat snapshot refs: %w", err)
	} else if chat != nil {
		return true, nil
	}

	if share, err := t.shares.FirstByHistoryID(ctx, id); err != nil {
		return false, fmt.Errorf("check share history refs: %w", err)
	} else if share != nil {
		return true, nil
	}

	if share, err := t.shares.FirstBySnapshotID(ctx, id); err != nil {
		return false, fmt.Errorf("check share snapshot refs: %w", err)
	} else if share != nil {
		return true, nil
	}

	if share, err := t.shares.FirstSocialByThumbnailID(ctx, id); err != nil {
		return false, fmt.Errorf("check social share thumbnail refs: %w", err)
	} else if share != nil {
		return true, nil
	}

	if entry, err := t.debugLog.FirstByStorageID(ctx, id); err != nil {
		return false, fmt.Errorf("check debug log refs: %w", err)
	} else if entry != nil {
		return true, nil
	}

	return false, nil
}

// DeleteBlobIfUnreferenced deletes the blob when no live row references
// it. Returns whether the blob was deleted.
func (t *ReferenceTracker) DeleteBlobIfUnreferenced(ctx context.Context, id string) (bool, error) {
	referenced, err := t.BlobReferenced(ctx, id)
	if err != nil {
		return false, err
	}
	if referenced {
		return false, nil
	}

	if err := t.blobs.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("delete blob %s: %w", id, err)
	}
	return true, nil
}

// DeleteCheckpoint deletes the row, then releases each of its blobs if
// nothing else references them. Rows pinned by a Share lose the row but
// keep the blobs: the share captured the ids by value and still counts
// as a reference.
func (t *ReferenceTracker) DeleteCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	if err := t.checkpoints.Delete(ctx, cp.ID); err != nil {
		return err
	}

	if cp.StorageID != nil {
		if _, err := t.DeleteBlobIfUnreferenced(ctx, *cp.StorageID); err != nil {
			return err
		}
	}
	if cp.SnapshotID != nil {
		if _, err := t.DeleteBlobIfUnreferenced(ctx, *cp.SnapshotID); err != nil {
			return err
		}
	}
	return nil
}
