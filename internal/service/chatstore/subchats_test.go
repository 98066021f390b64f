package chatstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"loom/internal/domain"
)

func TestCreateSubchatCarriesSnapshotForward(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	snap := putBlob(t, env, "workspace snapshot")
	appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "subchat 0 messages", &snap)

	index, err := svc.CreateSubchat(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("CreateSubchat: %v", err)
	}
	if index != 1 {
		t.Errorf("got subchat index %d, want 1", index)
	}

	// The new branch starts with the old workspace but no messages.
	info, err := svc.StorageState(ctx, "alice", "chat-1", 1)
	if err != nil {
		t.Fatalf("StorageState: %v", err)
	}
	if info == nil {
		t.Fatal("new branch has no bootstrap tip")
	}
	if info.StorageID != nil || info.LastMessageRank != -1 || info.PartIndex != -1 {
		t.Errorf("bootstrap tip carries messages: %+v", info)
	}
	if info.SnapshotID == nil || *info.SnapshotID != snap {
		t.Errorf("snapshot not carried forward: %v", info.SnapshotID)
	}

	view, err := svc.Get(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.SubchatIndex != 1 {
		t.Errorf("chat points at subchat %d, want 1", view.SubchatIndex)
	}
}

func TestCreateSubchatCleansOldBranch(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	var storages []string
	for rank := 0; rank <= 2; rank++ {
		id, _ := appendState(t, svc, env, "alice", "chat-1", 0, rank, 0, fmt.Sprintf("messages rank %d", rank), nil)
		storages = append(storages, id)
	}

	if _, err := svc.CreateSubchat(ctx, "alice", "chat-1"); err != nil {
		t.Fatalf("CreateSubchat: %v", err)
	}
	if err := env.queue.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	// Only the old branch's tip remains, so the user can rewind back into
	// it; the intermediate rows and their blobs are gone.
	tip := tipRow(t, env, "alice", "chat-1", 0)
	if tip == nil || tip.LastMessageRank != 2 {
		t.Fatalf("old branch tip after cleanup: %+v", tip)
	}
	chat, err := env.chats.GetByInitialID(ctx, "alice", "chat-1")
	if err != nil || chat == nil {
		t.Fatalf("GetByInitialID: chat=%v err=%v", chat, err)
	}
	rows, err := env.cps.EarliestForSubchat(ctx, chat.ID, 0, tip.LastMessageRank, 100)
	if err != nil {
		t.Fatalf("EarliestForSubchat: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("old branch has %d rows after cleanup, want 1", len(rows))
	}

	if hasBlob(t, env, storages[0]) || hasBlob(t, env, storages[1]) {
		t.Error("intermediate storage blobs survived the branch cleanup")
	}
	if !hasBlob(t, env, storages[2]) {
		t.Error("old branch tip's storage blob was deleted")
	}
}

func TestCreateSubchatPagesThroughLargeBranches(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	// More rows than one cleanup page, so the task must re-enqueue itself.
	total := env.cfg.SubchatCleanupBatchSize*2 + 3
	for rank := 0; rank < total; rank++ {
		appendState(t, svc, env, "alice", "chat-1", 0, rank, 0, fmt.Sprintf("messages rank %d", rank), nil)
	}

	if _, err := svc.CreateSubchat(ctx, "alice", "chat-1"); err != nil {
		t.Fatalf("CreateSubchat: %v", err)
	}
	if env.queue.Pending() != 1 {
		t.Fatalf("expected 1 queued cleanup task, got %d", env.queue.Pending())
	}
	if err := env.queue.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	chat, err := env.chats.GetByInitialID(ctx, "alice", "chat-1")
	if err != nil || chat == nil {
		t.Fatalf("GetByInitialID: chat=%v err=%v", chat, err)
	}
	rows, err := env.cps.EarliestForSubchat(ctx, chat.ID, 0, total, total+10)
	if err != nil {
		t.Fatalf("EarliestForSubchat: %v", err)
	}
	if len(rows) != 1 || rows[0].LastMessageRank != total-1 {
		t.Errorf("old branch not fully swept: %d rows remain", len(rows))
	}
}

func TestCreateSubchatQuota(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	env.cfg.MaxSubchats = 2
	mustInit(t, svc, "alice", "chat-1")

	for i := 0; i < 2; i++ {
		if _, err := svc.CreateSubchat(ctx, "alice", "chat-1"); err != nil {
			t.Fatalf("CreateSubchat %d: %v", i, err)
		}
	}

	_, err := svc.CreateSubchat(ctx, "alice", "chat-1")
	var quota *domain.TooManySubchatsError
	if !errors.As(err, &quota) {
		t.Errorf("got %v, want TooManySubchatsError", err)
	}
}

func TestListSubchats(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "subchat 0 messages", nil)
	if _, err := svc.CreateSubchat(ctx, "alice", "chat-1"); err != nil {
		t.Fatalf("CreateSubchat: %v", err)
	}
	appendState(t, svc, env, "alice", "chat-1", 1, 0, 0, "subchat 1 messages", nil)

	infos, err := svc.ListSubchats(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("ListSubchats: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d subchats, want 2", len(infos))
	}
	if infos[0].SubchatIndex != 0 || infos[1].SubchatIndex != 1 {
		t.Errorf("subchats out of order: %+v", infos)
	}
}
