package chatstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

func intPtr(n int) *int { return &n }

func TestUpdateStorageStateFirstAppendFlagsDescription(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	storageID, descRowID := appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0", nil)

	// The branch had no description yet, so the caller is told which row
	// needs one generated.
	if descRowID == nil {
		t.Fatal("expected a description row id on first append")
	}
	tip := tipRow(t, env, "alice", "chat-1", 0)
	if tip == nil || tip.ID != *descRowID {
		t.Errorf("description row id %q does not match tip %+v", *descRowID, tip)
	}

	info, err := svc.StorageState(ctx, "alice", "chat-1", 0)
	if err != nil {
		t.Fatalf("StorageState: %v", err)
	}
	if info.StorageID == nil || *info.StorageID != storageID {
		t.Errorf("tip storage id = %v, want %q", info.StorageID, storageID)
	}
	if info.LastMessageRank != 0 || info.PartIndex != 0 {
		t.Errorf("tip at (%d, %d), want (0, 0)", info.LastMessageRank, info.PartIndex)
	}
}

func TestUpdateStorageStateStaleWritesAreDropped(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0", nil)
	s1, _ := appendState(t, svc, env, "alice", "chat-1", 0, 1, 2, "messages r1p2", nil)

	stale := putBlob(t, env, "late retry r0")
	tests := []struct {
		name string
		rank int
		part int
	}{
		{"rank behind tip", 0, 0},
		{"same rank, part behind tip", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			descRowID, err := svc.UpdateStorageState(ctx, "alice", "chat-1", UpdateStorageStateRequest{
				SubchatIndex:    0,
				LastMessageRank: tt.rank,
				PartIndex:       tt.part,
				StorageID:       &stale,
			})
			if err != nil {
				t.Fatalf("stale update errored: %v", err)
			}
			if descRowID != nil {
				t.Errorf("stale update returned description row id %q", *descRowID)
			}

			info, err := svc.StorageState(ctx, "alice", "chat-1", 0)
			if err != nil {
				t.Fatalf("StorageState: %v", err)
			}
			if info.LastMessageRank != 1 || info.PartIndex != 2 || *info.StorageID != s1 {
				t.Errorf("tip moved on stale write: %+v", info)
			}
		})
	}
}

func TestUpdateStorageStateDuplicateAtTipIsNoop(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	s0, _ := appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0", nil)

	retry := putBlob(t, env, "retry of r0")
	if _, err := svc.UpdateStorageState(ctx, "alice", "chat-1", UpdateStorageStateRequest{
		SubchatIndex:    0,
		LastMessageRank: 0,
		PartIndex:       0,
		StorageID:       &retry,
	}); err != nil {
		t.Fatalf("duplicate update errored: %v", err)
	}

	info, err := svc.StorageState(ctx, "alice", "chat-1", 0)
	if err != nil {
		t.Fatalf("StorageState: %v", err)
	}
	if *info.StorageID != s0 {
		t.Errorf("duplicate write replaced the tip storage id")
	}
}

func TestUpdateStorageStateSnapshotOnlyPatch(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	s0, _ := appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0", nil)

	// The snapshot upload lands after the message write, at the same
	// coordinate.
	snap := putBlob(t, env, "workspace snapshot r0")
	if _, err := svc.UpdateStorageState(ctx, "alice", "chat-1", UpdateStorageStateRequest{
		SubchatIndex:    0,
		LastMessageRank: 0,
		PartIndex:       0,
		SnapshotID:      &snap,
	}); err != nil {
		t.Fatalf("snapshot patch errored: %v", err)
	}

	info, err := svc.StorageState(ctx, "alice", "chat-1", 0)
	if err != nil {
		t.Fatalf("StorageState: %v", err)
	}
	if info.SnapshotID == nil || *info.SnapshotID != snap {
		t.Errorf("snapshot not patched in: %+v", info)
	}
	if info.StorageID == nil || *info.StorageID != s0 {
		t.Errorf("snapshot patch clobbered the storage id: %+v", info)
	}
}

func TestUpdateStorageStateBothNilAtTipErrors(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0", nil)

	if _, err := svc.UpdateStorageState(ctx, "alice", "chat-1", UpdateStorageStateRequest{
		SubchatIndex:    0,
		LastMessageRank: 0,
		PartIndex:       0,
	}); err == nil {
		t.Error("expected error for nil storage and snapshot at the tip coordinate")
	}
}

func TestUpdateStorageStateStorageRegressionErrors(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0", nil)

	snap := putBlob(t, env, "snapshot r1")
	if _, err := svc.UpdateStorageState(ctx, "alice", "chat-1", UpdateStorageStateRequest{
		SubchatIndex:    0,
		LastMessageRank: 1,
		PartIndex:       0,
		SnapshotID:      &snap,
	}); err == nil {
		t.Error("expected error for rank advance without a storage id")
	}
}

func TestUpdateStorageStatePartAdvanceReleasesReplacedBlobs(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	snap0 := putBlob(t, env, "snapshot p0")
	s0, _ := appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0p0", &snap0)

	snap1 := putBlob(t, env, "snapshot p1")
	s1, descRowID := appendState(t, svc, env, "alice", "chat-1", 0, 0, 1, "messages r0p1", &snap1)

	// The tip was patched in place rather than inserting a second row.
	info, err := svc.StorageState(ctx, "alice", "chat-1", 0)
	if err != nil {
		t.Fatalf("StorageState: %v", err)
	}
	if info.LastMessageRank != 0 || info.PartIndex != 1 {
		t.Errorf("tip at (%d, %d), want (0, 1)", info.LastMessageRank, info.PartIndex)
	}
	if *info.StorageID != s1 || *info.SnapshotID != snap1 {
		t.Errorf("tip blobs not replaced: %+v", info)
	}

	// The replaced blobs are unreferenced now, so they are gone.
	if hasBlob(t, env, s0) {
		t.Error("replaced storage blob survived the part advance")
	}
	if hasBlob(t, env, snap0) {
		t.Error("replaced snapshot blob survived the part advance")
	}
	if !hasBlob(t, env, s1) || !hasBlob(t, env, snap1) {
		t.Error("current tip blobs were deleted")
	}

	// Still the same undescribed row, so the flag fires again.
	if descRowID == nil {
		t.Error("expected a description row id on part advance of an undescribed tip")
	}
}

func TestUpdateStorageStatePartAdvanceKeepsSharedBlob(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	s0, _ := appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0p0", nil)

	// A share captured the blob id by value; it must keep the blob alive
	// even after the checkpoint stops referencing it.
	chat, err := env.chats.GetByInitialID(ctx, "alice", "chat-1")
	if err != nil || chat == nil {
		t.Fatalf("GetByInitialID: chat=%v err=%v", chat, err)
	}
	if err := env.shares.Insert(ctx, &models.Share{
		ID:            "share-1",
		ChatID:        chat.ID,
		Code:          "code-1",
		ChatHistoryID: &s0,
		CreatedAt:     time.Now(),
	}); err != nil {
		t.Fatalf("Insert share: %v", err)
	}

	appendState(t, svc, env, "alice", "chat-1", 0, 0, 1, "messages r0p1", nil)

	if !hasBlob(t, env, s0) {
		t.Error("share-pinned blob was deleted by the part advance")
	}
}

func TestUpdateStorageStateRankAdvanceInherits(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	snap := putBlob(t, env, "snapshot r0")
	s0, _ := appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0", &snap)

	// Give the tip a description so the next advance has something to
	// inherit and no longer needs one generated.
	tip := tipRow(t, env, "alice", "chat-1", 0)
	desc := "building a todo app"
	if err := env.cps.Patch(ctx, tip.ID, repositories.CheckpointPatch{Description: &desc}); err != nil {
		t.Fatalf("Patch description: %v", err)
	}

	s1, descRowID := appendState(t, svc, env, "alice", "chat-1", 0, 1, 0, "messages r1", nil)

	if descRowID != nil {
		t.Errorf("described branch flagged for description generation: %q", *descRowID)
	}

	newTip := tipRow(t, env, "alice", "chat-1", 0)
	if newTip.ID == tip.ID {
		t.Fatal("rank advance patched the tip instead of inserting a row")
	}
	if newTip.LastMessageRank != 1 || *newTip.StorageID != s1 {
		t.Errorf("unexpected new tip: %+v", newTip)
	}
	if newTip.SnapshotID == nil || *newTip.SnapshotID != snap {
		t.Errorf("snapshot not inherited: %v", newTip.SnapshotID)
	}
	if newTip.Description == nil || *newTip.Description != desc {
		t.Errorf("description not inherited: %v", newTip.Description)
	}

	// Rank advances append; the previous row and its blob stay for rewind.
	if !hasBlob(t, env, s0) {
		t.Error("previous rank's storage blob was deleted by the advance")
	}
}

func TestRewindValidation(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0", nil)

	// The latest subchat needs an explicit rank.
	err := svc.Rewind(ctx, "alice", "chat-1", intPtr(0), nil)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("rankless rewind in latest subchat: got %v, want invalid state", err)
	}

	if _, err := svc.CreateSubchat(ctx, "alice", "chat-1"); err != nil {
		t.Fatalf("CreateSubchat: %v", err)
	}

	// An earlier subchat continues from its own tip and takes no rank.
	err = svc.Rewind(ctx, "alice", "chat-1", intPtr(0), intPtr(0))
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("ranked rewind into earlier subchat: got %v, want invalid state", err)
	}
}

func TestRewindWithNoMessagesSaved(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	err := svc.Rewind(ctx, "alice", "chat-1", intPtr(0), intPtr(0))
	var noMessages *domain.NoMessagesSavedError
	if !errors.As(err, &noMessages) {
		t.Errorf("got %v, want NoMessagesSavedError", err)
	}
}

func TestRewindToFuture(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	for rank := 0; rank <= 2; rank++ {
		appendState(t, svc, env, "alice", "chat-1", 0, rank, 0, "messages", nil)
	}

	if err := svc.Rewind(ctx, "alice", "chat-1", intPtr(0), intPtr(0)); err != nil {
		t.Fatalf("Rewind to rank 0: %v", err)
	}

	err := svc.Rewind(ctx, "alice", "chat-1", intPtr(0), intPtr(2))
	var future *domain.RewindToFutureError
	if !errors.As(err, &future) {
		t.Fatalf("got %v, want RewindToFutureError", err)
	}
	if future.RequestedRank != 2 || future.CurrentRank != 0 {
		t.Errorf("got requested=%d current=%d, want 2 and 0", future.RequestedRank, future.CurrentRank)
	}
}

func TestRewindPurgesAbandonedRows(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	var storages []string
	for rank := 0; rank <= 2; rank++ {
		id, _ := appendState(t, svc, env, "alice", "chat-1", 0, rank, 0, fmt.Sprintf("messages rank %d", rank), nil)
		storages = append(storages, id)
	}

	if err := svc.Rewind(ctx, "alice", "chat-1", intPtr(0), intPtr(0)); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	// The branch reads from rank 0 and the abandoned rows are gone, blobs
	// included.
	info, err := svc.StorageState(ctx, "alice", "chat-1", 0)
	if err != nil {
		t.Fatalf("StorageState: %v", err)
	}
	if info.LastMessageRank != 0 || *info.StorageID != storages[0] {
		t.Errorf("tip after rewind: %+v", info)
	}
	if hasBlob(t, env, storages[1]) || hasBlob(t, env, storages[2]) {
		t.Error("abandoned storage blobs survived the rewind")
	}
	if !hasBlob(t, env, storages[0]) {
		t.Error("rewind target's storage blob was deleted")
	}
}

func TestRewindKeepsSharePinnedBlobs(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0", nil)
	s1, _ := appendState(t, svc, env, "alice", "chat-1", 0, 1, 0, "messages r1", nil)

	// The chat was shared at rank 1, then rewound past it. The share's
	// value copy keeps the history blob alive; only the row goes.
	chat, err := env.chats.GetByInitialID(ctx, "alice", "chat-1")
	if err != nil || chat == nil {
		t.Fatalf("GetByInitialID: chat=%v err=%v", chat, err)
	}
	if err := env.shares.Insert(ctx, &models.Share{
		ID:              "share-1",
		ChatID:          chat.ID,
		Code:            "code-1",
		ChatHistoryID:   &s1,
		LastMessageRank: 1,
		CreatedAt:       time.Now(),
	}); err != nil {
		t.Fatalf("Insert share: %v", err)
	}

	if err := svc.Rewind(ctx, "alice", "chat-1", intPtr(0), intPtr(0)); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	if tip := tipRow(t, env, "alice", "chat-1", 0); tip.LastMessageRank != 0 {
		t.Errorf("rank 1 row survived the rewind: %+v", tip)
	}
	if !hasBlob(t, env, s1) {
		t.Error("share-pinned history blob was deleted by the rewind")
	}
}

func TestAppendAfterRewindClearsCeiling(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	for rank := 0; rank <= 2; rank++ {
		appendState(t, svc, env, "alice", "chat-1", 0, rank, 0, "messages", nil)
	}
	if err := svc.Rewind(ctx, "alice", "chat-1", intPtr(0), intPtr(1)); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	chat, err := env.chats.GetByInitialID(ctx, "alice", "chat-1")
	if err != nil || chat == nil {
		t.Fatalf("GetByInitialID: chat=%v err=%v", chat, err)
	}
	if chat.LastMessageRank == nil || *chat.LastMessageRank != 1 {
		t.Fatalf("read ceiling not set after rewind: %v", chat.LastMessageRank)
	}

	// The next append confirms the new branch and lifts the ceiling.
	s2, _ := appendState(t, svc, env, "alice", "chat-1", 0, 2, 0, "messages retake r2", nil)

	chat, err = env.chats.GetByInitialID(ctx, "alice", "chat-1")
	if err != nil || chat == nil {
		t.Fatalf("GetByInitialID: chat=%v err=%v", chat, err)
	}
	if chat.LastMessageRank != nil {
		t.Errorf("read ceiling still set after append: %v", *chat.LastMessageRank)
	}

	info, err := svc.StorageState(ctx, "alice", "chat-1", 0)
	if err != nil {
		t.Fatalf("StorageState: %v", err)
	}
	if info.LastMessageRank != 2 || *info.StorageID != s2 {
		t.Errorf("tip after retake: %+v", info)
	}
}

func TestRewindIntoEarlierSubchat(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	s0, _ := appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "subchat 0 messages", nil)
	if _, err := svc.CreateSubchat(ctx, "alice", "chat-1"); err != nil {
		t.Fatalf("CreateSubchat: %v", err)
	}
	s1, _ := appendState(t, svc, env, "alice", "chat-1", 1, 0, 0, "subchat 1 messages", nil)

	if err := svc.Rewind(ctx, "alice", "chat-1", intPtr(0), nil); err != nil {
		t.Fatalf("Rewind into subchat 0: %v", err)
	}

	view, err := svc.Get(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.SubchatIndex != 0 {
		t.Errorf("chat still points at subchat %d", view.SubchatIndex)
	}

	info, err := svc.StorageState(ctx, "alice", "chat-1", 0)
	if err != nil {
		t.Fatalf("StorageState: %v", err)
	}
	if info == nil || *info.StorageID != s0 {
		t.Errorf("tip after subchat rewind: %+v", info)
	}

	// The higher subchat's rows and blobs were purged.
	if tip := tipRow(t, env, "alice", "chat-1", 1); tip != nil {
		t.Errorf("subchat 1 row survived the rewind: %+v", tip)
	}
	if hasBlob(t, env, s1) {
		t.Error("subchat 1 storage blob survived the rewind")
	}
}

func TestEarliestRewindableRank(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	// Nothing recorded yet.
	rank, err := svc.EarliestRewindableRank(ctx, "alice", "chat-1", nil)
	if err != nil {
		t.Fatalf("EarliestRewindableRank: %v", err)
	}
	if rank != nil {
		t.Errorf("expected nil rank on empty branch, got %d", *rank)
	}

	// Rank 0 predates snapshots; rank 1 carries the first one.
	appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0", nil)
	snap := putBlob(t, env, "snapshot r1")
	appendState(t, svc, env, "alice", "chat-1", 0, 1, 0, "messages r1", &snap)
	appendState(t, svc, env, "alice", "chat-1", 0, 2, 0, "messages r2", nil)

	rank, err = svc.EarliestRewindableRank(ctx, "alice", "chat-1", nil)
	if err != nil {
		t.Fatalf("EarliestRewindableRank: %v", err)
	}
	if rank == nil || *rank != 1 {
		t.Errorf("got %v, want rank 1", rank)
	}
}
