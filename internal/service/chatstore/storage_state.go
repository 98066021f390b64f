package chatstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// UpdateStorageStateRequest carries one append/patch call from the
// orchestrator. StorageID points at the serialized message array for the
// branch up to (rank, part); SnapshotID optionally points at the
// workspace snapshot taken at the same coordinate. Both are opaque here.
type UpdateStorageStateRequest struct {
	SubchatIndex    int
	LastMessageRank int
	PartIndex       int
	StorageID       *string
	SnapshotID      *string
}

// UpdateStorageState applies one append/patch call against the branch
// tip. The caller computes (rank, part) from its own message array; this
// side only enforces ordering. The write is classified against the tip:
//
//   - behind the tip: a lagging duplicate, dropped with a warning
//   - at the tip exactly: a snapshot-only patch or a pure duplicate
//   - same rank, later part: the tip is patched in place, replaced blobs
//     are released if nothing else references them
//   - later rank: a new row is inserted; if the chat was rewound, the
//     abandoned future rows are purged first and the read ceiling cleared
//
// Returns the id of the row whose description should be generated (the
// previous tip had none), or nil.
func (s *Service) UpdateStorageState(ctx context.Context, creatorID, id string, req UpdateStorageStateRequest) (*string, error) {
	var descRowID *string
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		chat, err := s.getOwnedChat(ctx, creatorID, id)
		if err != nil {
			return err
		}

		rowID, err := s.applyStorageState(ctx, chat, req)
		if err != nil {
			return err
		}
		descRowID = rowID
		return nil
	})
	return descRowID, err
}

func (s *Service) applyStorageState(ctx context.Context, chat *models.Chat, req UpdateStorageStateRequest) (*string, error) {
	tip, err := s.checkpoints.LatestForSubchat(ctx, chat.ID, req.SubchatIndex, chat.LastMessageRank)
	if err != nil {
		return nil, err
	}
	if tip == nil {
		return nil, fmt.Errorf("no storage state for chat %s subchat %d", chat.ID, req.SubchatIndex)
	}

	// Lagging or duplicate network writes are expected under retries;
	// drop them without advancing anything.
	if tip.LastMessageRank > req.LastMessageRank {
		s.logger.Warn("stale storage state update",
			"chat_id", chat.ID,
			"stored_rank", tip.LastMessageRank,
			"update_rank", req.LastMessageRank)
		return nil, nil
	}
	if tip.LastMessageRank == req.LastMessageRank && tip.PartIndex > req.PartIndex {
		s.logger.Warn("stale storage state update",
			"chat_id", chat.ID,
			"rank", req.LastMessageRank,
			"stored_part", tip.PartIndex,
			"update_part", req.PartIndex)
		return nil, nil
	}

	if tip.At(req.LastMessageRank, req.PartIndex) {
		return nil, s.patchSameKey(ctx, chat, tip, req)
	}

	// Messages are append-only once started; losing a storage id after
	// one was recorded is a caller bug, not a retryable condition.
	if tip.StorageID != nil && req.StorageID == nil {
		return nil, fmt.Errorf("storage id regressed to nil for chat %s at rank %d", chat.ID, req.LastMessageRank)
	}

	if tip.LastMessageRank == req.LastMessageRank {
		return s.patchPartAdvance(ctx, chat, tip, req)
	}

	return s.insertRankAdvance(ctx, chat, tip, req)
}

// patchSameKey handles a write landing exactly on the tip's coordinate:
// either a duplicate of an already-stored message, or the snapshot
// arriving slightly after the message text.
func (s *Service) patchSameKey(ctx context.Context, chat *models.Chat, tip *models.Checkpoint, req UpdateStorageStateRequest) error {
	if req.StorageID != nil && req.SnapshotID == nil {
		s.logger.Warn("duplicate storage state update",
			"chat_id", chat.ID,
			"rank", req.LastMessageRank,
			"part", req.PartIndex)
		return nil
	}
	if req.SnapshotID == nil {
		return fmt.Errorf("nil snapshot id for already-saved message in chat %s at rank %d", chat.ID, req.LastMessageRank)
	}

	return s.checkpoints.Patch(ctx, tip.ID, repositories.CheckpointPatch{
		SnapshotID: req.SnapshotID,
	})
}

// patchPartAdvance handles a later part of the same message: the tip is
// patched in place rather than inserting a row per streamed part, and the
// blobs it stops referencing are released if nothing else holds them.
func (s *Service) patchPartAdvance(ctx context.Context, chat *models.Chat, tip *models.Checkpoint, req UpdateStorageStateRequest) (*string, error) {
	prevStorage := tip.StorageID
	prevSnapshot := tip.SnapshotID

	part := req.PartIndex
	if err := s.checkpoints.Patch(ctx, tip.ID, repositories.CheckpointPatch{
		StorageID:  req.StorageID,
		SnapshotID: req.SnapshotID,
		PartIndex:  &part,
	}); err != nil {
		return nil, err
	}

	if prevStorage != nil && (req.StorageID == nil || *req.StorageID != *prevStorage) {
		if _, err := s.refs.DeleteBlobIfUnreferenced(ctx, *prevStorage); err != nil {
			return nil, err
		}
	}
	if prevSnapshot != nil && req.SnapshotID != nil && *req.SnapshotID != *prevSnapshot {
		if _, err := s.refs.DeleteBlobIfUnreferenced(ctx, *prevSnapshot); err != nil {
			return nil, err
		}
	}

	if tip.Description == nil {
		rowID := tip.ID
		return &rowID, nil
	}
	return nil, nil
}

// insertRankAdvance handles a new message rank: purge any branch debris
// left behind by a rewind (the append confirms the new branch), clear the
// read ceiling, and insert the new tip. The new row inherits the previous
// tip's snapshot and description so a branch keeps its summary and
// workspace state until fresher ones arrive.
func (s *Service) insertRankAdvance(ctx context.Context, chat *models.Chat, tip *models.Checkpoint, req UpdateStorageStateRequest) (*string, error) {
	if chat.LastMessageRank != nil {
		if err := s.purgeRewoundDebris(ctx, chat, req.SubchatIndex); err != nil {
			return nil, err
		}
		chat.LastMessageRank = nil
		if err := s.chats.Update(ctx, chat); err != nil {
			return nil, err
		}
	}

	snapshotID := req.SnapshotID
	if snapshotID == nil {
		snapshotID = tip.SnapshotID
	}

	row := &models.Checkpoint{
		ID:              uuid.New().String(),
		ChatID:          chat.ID,
		SubchatIndex:    req.SubchatIndex,
		LastMessageRank: req.LastMessageRank,
		PartIndex:       req.PartIndex,
		StorageID:       req.StorageID,
		SnapshotID:      snapshotID,
		Description:     tip.Description,
		CreatedAt:       time.Now(),
	}
	if err := s.checkpoints.Insert(ctx, row); err != nil {
		return nil, err
	}

	if tip.Description == nil {
		rowID := row.ID
		return &rowID, nil
	}
	return nil, nil
}

// purgeRewoundDebris removes the checkpoints a rewind abandoned: rows of
// this subchat beyond the chat's read ceiling, and every row of subchats
// with a higher index than the one being written. Each deletion is
// reference-checked, so blobs still pinned by a share survive.
func (s *Service) purgeRewoundDebris(ctx context.Context, chat *models.Chat, subchatIndex int) error {
	debris, err := s.checkpoints.ListAfterRank(ctx, chat.ID, subchatIndex, *chat.LastMessageRank)
	if err != nil {
		return err
	}

	future, err := s.checkpoints.ListSubchatsAbove(ctx, chat.ID, subchatIndex)
	if err != nil {
		return err
	}
	debris = append(debris, future...)

	for i := range debris {
		if err := s.refs.DeleteCheckpoint(ctx, &debris[i]); err != nil {
			return err
		}
	}
	return nil
}

// Rewind moves the chat's pointer back to an earlier checkpoint. A rank
// may only be given when targeting the latest subchat; rewinding into an
// earlier subchat continues from that branch's own tip and takes no rank.
// The abandoned rows are deleted immediately (reference-checked); the
// read ceiling stays set until the next append confirms the new position.
func (s *Service) Rewind(ctx context.Context, creatorID, id string, subchatIndex *int, lastMessageRank *int) error {
	return s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		chat, err := s.getOwnedChat(ctx, creatorID, id)
		if err != nil {
			return err
		}

		subchat := 0
		if subchatIndex != nil {
			subchat = *subchatIndex
		}

		if lastMessageRank != nil && subchat != chat.LastSubchatIndex {
			return &domain.InvalidStateError{
				Message: "cannot rewind to a specific message in a subchat that is not the latest subchat",
			}
		}
		if lastMessageRank == nil && subchat == chat.LastSubchatIndex {
			return &domain.InvalidStateError{
				Message: "cannot rewind within the latest subchat without a message rank",
			}
		}

		target, err := s.checkpoints.LatestForSubchat(ctx, chat.ID, subchat, lastMessageRank)
		if err != nil {
			return err
		}
		if target == nil {
			return fmt.Errorf("no storage state at or before rank %v in chat %s subchat %d", lastMessageRank, chat.ID, subchat)
		}
		if target.StorageID == nil {
			return &domain.NoMessagesSavedError{
				Message: "cannot rewind a chat with no messages saved",
			}
		}

		if chat.LastMessageRank != nil && lastMessageRank != nil && *chat.LastMessageRank < *lastMessageRank {
			return &domain.RewindToFutureError{
				RequestedRank: *lastMessageRank,
				CurrentRank:   *chat.LastMessageRank,
			}
		}

		rank := target.LastMessageRank
		chat.LastSubchatIndex = subchat
		chat.LastMessageRank = &rank
		if err := s.chats.Update(ctx, chat); err != nil {
			return err
		}

		return s.purgeRewoundDebris(ctx, chat, subchat)
	})
}
