package chatstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"loom/internal/blob"
	"loom/internal/config"
	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/repository/memory"
	"loom/internal/scheduler"
)

type testEnv struct {
	chats  *memory.ChatRepository
	cps    *memory.CheckpointRepository
	shares *memory.ShareRepository
	debug  *memory.DebugLogRepository
	blobs  *blob.MemoryStore
	queue  *scheduler.Manual
	refs   *ReferenceTracker
	cfg    *config.Config
}

func newTestService(t *testing.T) (*Service, *testEnv) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		chats:  memory.NewChatRepository(),
		cps:    memory.NewCheckpointRepository(),
		shares: memory.NewShareRepository(),
		debug:  memory.NewDebugLogRepository(),
		blobs:  blob.NewMemoryStore(),
		queue:  scheduler.NewManual(),
		cfg: &config.Config{
			MaxSubchats:             config.DefaultMaxSubchats,
			SubchatCleanupBatchSize: 16,
		},
	}
	env.refs = NewReferenceTracker(env.chats, env.cps, env.shares, env.debug, env.blobs, logger)

	svc := NewService(
		env.chats, env.cps, env.debug, env.blobs, env.refs,
		memory.NewTransactionManager(), env.queue, env.cfg, logger,
	)
	return svc, env
}

func mustInit(t *testing.T, svc *Service, creatorID, id string) {
	t.Helper()
	if err := svc.InitializeChat(context.Background(), creatorID, id); err != nil {
		t.Fatalf("InitializeChat(%q): %v", id, err)
	}
}

func putBlob(t *testing.T, env *testEnv, content string) string {
	t.Helper()
	id, err := env.blobs.Put(context.Background(), []byte(content))
	if err != nil {
		t.Fatalf("Put blob: %v", err)
	}
	return id
}

func hasBlob(t *testing.T, env *testEnv, id string) bool {
	t.Helper()
	data, err := env.blobs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get blob %s: %v", id, err)
	}
	return data != nil
}

// appendState records one message append, putting distinct blob content
// for the storage id so reference checks are observable per rank.
func appendState(t *testing.T, svc *Service, env *testEnv, creatorID, id string, subchat, rank, part int, content string, snapshotID *string) (storageID string, descRowID *string) {
	t.Helper()

	storageID = putBlob(t, env, content)
	descRowID, err := svc.UpdateStorageState(context.Background(), creatorID, id, UpdateStorageStateRequest{
		SubchatIndex:    subchat,
		LastMessageRank: rank,
		PartIndex:       part,
		StorageID:       &storageID,
		SnapshotID:      snapshotID,
	})
	if err != nil {
		t.Fatalf("UpdateStorageState rank %d part %d: %v", rank, part, err)
	}
	return storageID, descRowID
}

// tipRow reads the raw branch tip, bypassing the chat's read ceiling.
func tipRow(t *testing.T, env *testEnv, creatorID, id string, subchat int) *models.Checkpoint {
	t.Helper()

	chat, err := env.chats.GetByInitialID(context.Background(), creatorID, id)
	if err != nil || chat == nil {
		t.Fatalf("GetByInitialID(%q): chat=%v err=%v", id, chat, err)
	}
	tip, err := env.cps.LatestForSubchat(context.Background(), chat.ID, subchat, nil)
	if err != nil {
		t.Fatalf("LatestForSubchat: %v", err)
	}
	return tip
}

func TestInitializeChatIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustInit(t, svc, "alice", "chat-1")
	mustInit(t, svc, "alice", "chat-1")

	chats, err := svc.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("expected 1 chat after double init, got %d", len(chats))
	}

	// The bootstrap checkpoint exists and carries no messages.
	info, err := svc.StorageState(ctx, "alice", "chat-1", 0)
	if err != nil {
		t.Fatalf("StorageState: %v", err)
	}
	if info == nil || info.StorageID != nil || info.LastMessageRank != -1 || info.PartIndex != -1 {
		t.Errorf("unexpected bootstrap state: %+v", info)
	}
}

func TestGetScopedToCreator(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustInit(t, svc, "alice", "chat-1")

	if _, err := svc.Get(ctx, "alice", "chat-1"); err != nil {
		t.Errorf("owner Get failed: %v", err)
	}
	if _, err := svc.Get(ctx, "bob", "chat-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found for other creator, got %v", err)
	}
	if _, err := svc.Get(ctx, "alice", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found for unknown id, got %v", err)
	}
}

func TestSetDescriptionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	if err := svc.SetDescription(ctx, "alice", "chat-1", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty description: expected validation error, got %v", err)
	}
	long := strings.Repeat("x", config.MaxDescriptionLength+1)
	if err := svc.SetDescription(ctx, "alice", "chat-1", long); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("oversized description: expected validation error, got %v", err)
	}

	if err := svc.SetDescription(ctx, "alice", "chat-1", "todo app"); err != nil {
		t.Fatalf("SetDescription: %v", err)
	}
	view, err := svc.Get(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.Description == nil || *view.Description != "todo app" {
		t.Errorf("description not stored: %+v", view)
	}
}

func TestSetURLIDAllocation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustInit(t, svc, "alice", "chat-1")
	mustInit(t, svc, "alice", "chat-2")
	mustInit(t, svc, "alice", "chat-3")

	urlID, initialID, err := svc.SetURLID(ctx, "alice", "chat-1", "todo-app", "a todo app")
	if err != nil {
		t.Fatalf("SetURLID: %v", err)
	}
	if urlID != "todo-app" || initialID != "chat-1" {
		t.Errorf("got (%q, %q), want (todo-app, chat-1)", urlID, initialID)
	}

	// Same hint from another chat gets a numeric suffix.
	urlID, _, err = svc.SetURLID(ctx, "alice", "chat-2", "todo-app", "")
	if err != nil {
		t.Fatalf("SetURLID second chat: %v", err)
	}
	if urlID != "todo-app-2" {
		t.Errorf("got %q, want todo-app-2", urlID)
	}
	urlID, _, err = svc.SetURLID(ctx, "alice", "chat-3", "todo-app", "")
	if err != nil {
		t.Fatalf("SetURLID third chat: %v", err)
	}
	if urlID != "todo-app-3" {
		t.Errorf("got %q, want todo-app-3", urlID)
	}

	// A chat that already has an alias keeps it regardless of the hint.
	urlID, _, err = svc.SetURLID(ctx, "alice", "chat-1", "different-hint", "")
	if err != nil {
		t.Fatalf("SetURLID repeat: %v", err)
	}
	if urlID != "todo-app" {
		t.Errorf("alias changed on repeat call: %q", urlID)
	}

	// The url alias resolves chats like the initial id does.
	if _, err := svc.Get(ctx, "alice", "todo-app"); err != nil {
		t.Errorf("Get by alias: %v", err)
	}
}

func TestSetURLIDKeepsExistingDescription(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	if err := svc.SetDescription(ctx, "alice", "chat-1", "original"); err != nil {
		t.Fatalf("SetDescription: %v", err)
	}
	if _, _, err := svc.SetURLID(ctx, "alice", "chat-1", "hint", "replacement"); err != nil {
		t.Fatalf("SetURLID: %v", err)
	}

	view, err := svc.Get(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.Description == nil || *view.Description != "original" {
		t.Errorf("description overwritten: %+v", view.Description)
	}
}

func TestRemoveSoftDeletes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	if err := svc.Remove(ctx, "alice", "chat-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := svc.Get(ctx, "alice", "chat-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found after remove, got %v", err)
	}

	// Removing again, or removing something absent, is a no-op.
	if err := svc.Remove(ctx, "alice", "chat-1"); err != nil {
		t.Errorf("repeat Remove: %v", err)
	}
	if err := svc.Remove(ctx, "alice", "never-existed"); err != nil {
		t.Errorf("Remove absent: %v", err)
	}
}

func TestSnapshotURLFallsBackToChatLevel(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	url, err := svc.SnapshotURL(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("SnapshotURL: %v", err)
	}
	if url != "" {
		t.Errorf("expected empty url without snapshots, got %q", url)
	}

	// Chat-level fallback, used by chats that predate per-checkpoint
	// snapshots.
	fallback := putBlob(t, env, "fallback snapshot")
	if err := svc.SaveSnapshot(ctx, "alice", "chat-1", fallback); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	url, err = svc.SnapshotURL(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("SnapshotURL with fallback: %v", err)
	}
	if url != "memory://"+fallback {
		t.Errorf("got %q, want fallback blob url", url)
	}

	// A tip snapshot wins over the fallback.
	tipSnap := putBlob(t, env, "tip snapshot")
	appendState(t, svc, env, "alice", "chat-1", 0, 0, 0, "messages r0", &tipSnap)
	url, err = svc.SnapshotURL(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("SnapshotURL with tip: %v", err)
	}
	if url != "memory://"+tipSnap {
		t.Errorf("got %q, want tip snapshot url", url)
	}
}

func TestDebugPromptRoundTrip(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	mustInit(t, svc, "alice", "chat-1")

	got, err := svc.LatestPromptBlob(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("LatestPromptBlob: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty blob id before logging, got %q", got)
	}

	first := putBlob(t, env, "prompt 1")
	second := putBlob(t, env, "prompt 2")
	if err := svc.LogPromptForDebug(ctx, "alice", "chat-1", first); err != nil {
		t.Fatalf("LogPromptForDebug: %v", err)
	}
	if err := svc.LogPromptForDebug(ctx, "alice", "chat-1", second); err != nil {
		t.Fatalf("LogPromptForDebug: %v", err)
	}

	got, err = svc.LatestPromptBlob(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("LatestPromptBlob: %v", err)
	}
	if got != second {
		t.Errorf("got %q, want latest prompt blob %q", got, second)
	}
}
