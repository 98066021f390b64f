package share

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"loom/internal/config"
	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/repository/memory"
)

type testEnv struct {
	chats  *memory.ChatRepository
	cps    *memory.CheckpointRepository
	shares *memory.ShareRepository
}

func newTestService(t *testing.T) (*Service, *testEnv) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		chats:  memory.NewChatRepository(),
		cps:    memory.NewCheckpointRepository(),
		shares: memory.NewShareRepository(),
	}
	svc := NewService(env.chats, env.cps, env.shares, memory.NewTransactionManager(), &config.Config{}, logger)
	return svc, env
}

func strPtr(s string) *string { return &s }

func seedChat(t *testing.T, env *testEnv, chat models.Chat) *models.Chat {
	t.Helper()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	if err := env.chats.Insert(context.Background(), &chat); err != nil {
		t.Fatalf("Insert chat: %v", err)
	}
	return &chat
}

func seedCheckpoint(t *testing.T, env *testEnv, cp models.Checkpoint) {
	t.Helper()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if err := env.cps.Insert(context.Background(), &cp); err != nil {
		t.Fatalf("Insert checkpoint %s: %v", cp.ID, err)
	}
}

func TestCreateCapturesTipByValue(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	chat := seedChat(t, env, models.Chat{
		ID:          "chat-internal",
		CreatorID:   "alice",
		InitialID:   "chat-1",
		Description: strPtr("a todo app"),
	})
	seedCheckpoint(t, env, models.Checkpoint{
		ID:              "cp-1",
		ChatID:          chat.ID,
		SubchatIndex:    0,
		LastMessageRank: 2,
		PartIndex:       1,
		StorageID:       strPtr("history-blob"),
		SnapshotID:      strPtr("snapshot-blob"),
	})

	code, err := svc.Create(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	share, err := env.shares.GetByCode(ctx, code)
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if share.ChatHistoryID == nil || *share.ChatHistoryID != "history-blob" {
		t.Errorf("history id = %v, want history-blob", share.ChatHistoryID)
	}
	if share.SnapshotID == nil || *share.SnapshotID != "snapshot-blob" {
		t.Errorf("snapshot id = %v, want snapshot-blob", share.SnapshotID)
	}
	if share.LastMessageRank != 2 || share.PartIndex != 1 || share.LastSubchatIndex != 0 {
		t.Errorf("captured coordinate: %+v", share)
	}
	if share.Description == nil || *share.Description != "a todo app" {
		t.Errorf("description = %v", share.Description)
	}
}

func TestCreateSkipsEmptyTrailingSubchat(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	// The user branched and never sent a message: the latest subchat has
	// only its bootstrap row.
	chat := seedChat(t, env, models.Chat{
		ID:               "chat-internal",
		CreatorID:        "alice",
		InitialID:        "chat-1",
		LastSubchatIndex: 1,
	})
	seedCheckpoint(t, env, models.Checkpoint{
		ID:              "cp-0",
		ChatID:          chat.ID,
		SubchatIndex:    0,
		LastMessageRank: 3,
		PartIndex:       0,
		StorageID:       strPtr("subchat-0-history"),
	})
	seedCheckpoint(t, env, models.Checkpoint{
		ID:              "cp-1",
		ChatID:          chat.ID,
		SubchatIndex:    1,
		LastMessageRank: -1,
		PartIndex:       -1,
	})

	code, err := svc.Create(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	share, err := env.shares.GetByCode(ctx, code)
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if share.LastSubchatIndex != 0 || *share.ChatHistoryID != "subchat-0-history" {
		t.Errorf("share did not capture the content-bearing branch: %+v", share)
	}
}

func TestCreateWithNoHistory(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	chat := seedChat(t, env, models.Chat{ID: "chat-internal", CreatorID: "alice", InitialID: "chat-1"})
	seedCheckpoint(t, env, models.Checkpoint{
		ID:              "cp-bootstrap",
		ChatID:          chat.ID,
		LastMessageRank: -1,
		PartIndex:       -1,
	})

	if _, err := svc.Create(ctx, "alice", "chat-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want not found for a chat with no saved messages", err)
	}
}

func TestCreateRespectsRewindCeiling(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	ceiling := 0
	chat := seedChat(t, env, models.Chat{
		ID:              "chat-internal",
		CreatorID:       "alice",
		InitialID:       "chat-1",
		LastMessageRank: &ceiling,
	})
	seedCheckpoint(t, env, models.Checkpoint{
		ID:              "cp-0",
		ChatID:          chat.ID,
		LastMessageRank: 0,
		StorageID:       strPtr("history-r0"),
	})
	seedCheckpoint(t, env, models.Checkpoint{
		ID:              "cp-1",
		ChatID:          chat.ID,
		LastMessageRank: 1,
		StorageID:       strPtr("history-r1"),
	})

	code, err := svc.Create(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	share, err := env.shares.GetByCode(ctx, code)
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if share.LastMessageRank != 0 || *share.ChatHistoryID != "history-r0" {
		t.Errorf("share captured past the rewind ceiling: %+v", share)
	}
}

func TestDescribe(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	chat := seedChat(t, env, models.Chat{
		ID:          "chat-internal",
		CreatorID:   "alice",
		InitialID:   "chat-1",
		Description: strPtr("weather dashboard"),
	})
	seedCheckpoint(t, env, models.Checkpoint{
		ID:        "cp-0",
		ChatID:    chat.ID,
		StorageID: strPtr("history"),
	})

	code, err := svc.Create(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	desc, err := svc.Describe(ctx, code)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if desc.Description == nil || *desc.Description != "weather dashboard" {
		t.Errorf("got %v", desc.Description)
	}

	if _, err := svc.Describe(ctx, "no-such-code"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown code: got %v, want not found", err)
	}
}

func TestCloneForksHistory(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	if err := env.shares.Insert(ctx, &models.Share{
		ID:               "share-1",
		ChatID:           "someone-elses-chat",
		Code:             "code-1",
		Description:      strPtr("shared app"),
		ChatHistoryID:    strPtr("history-blob"),
		SnapshotID:       strPtr("snapshot-blob"),
		LastMessageRank:  4,
		PartIndex:        2,
		LastSubchatIndex: 2,
		CreatedAt:        time.Now(),
	}); err != nil {
		t.Fatalf("Insert share: %v", err)
	}

	id, err := svc.Clone(ctx, "bob", "code-1", "bobs-chat")
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if id != "bobs-chat" {
		t.Errorf("got id %q, want bobs-chat", id)
	}

	chat, err := env.chats.GetByInitialID(ctx, "bob", "bobs-chat")
	if err != nil || chat == nil {
		t.Fatalf("cloned chat missing: chat=%v err=%v", chat, err)
	}
	if chat.LastSubchatIndex != 2 {
		t.Errorf("clone has subchat index %d, want 2", chat.LastSubchatIndex)
	}
	if chat.Description == nil || *chat.Description != "shared app" {
		t.Errorf("clone description: %v", chat.Description)
	}

	// Every branch index up to the share's is seeded with the captured
	// history, so the fork reads the same content from any branch.
	for i := 0; i <= 2; i++ {
		tip, err := env.cps.LatestForSubchat(ctx, chat.ID, i, nil)
		if err != nil {
			t.Fatalf("LatestForSubchat(%d): %v", i, err)
		}
		if tip == nil || tip.StorageID == nil || *tip.StorageID != "history-blob" {
			t.Errorf("subchat %d not seeded: %+v", i, tip)
		}
		if tip != nil && (tip.LastMessageRank != 4 || tip.PartIndex != 2) {
			t.Errorf("subchat %d coordinate: (%d, %d)", i, tip.LastMessageRank, tip.PartIndex)
		}
	}

	// The target id is taken now.
	if _, err := svc.Clone(ctx, "bob", "code-1", "bobs-chat"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("repeat clone: got %v, want invalid state", err)
	}
}

func TestCloneShareWithoutHistory(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	if err := env.shares.Insert(ctx, &models.Share{
		ID:        "share-1",
		ChatID:    "chat-x",
		Code:      "code-1",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("Insert share: %v", err)
	}

	if _, err := svc.Clone(ctx, "bob", "code-1", "bobs-chat"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want not found for a history-less share", err)
	}
}

func TestCreateSocial(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	seedChat(t, env, models.Chat{ID: "chat-internal", CreatorID: "alice", InitialID: "chat-1"})

	code, err := svc.CreateSocial(ctx, "alice", "chat-1", strPtr("thumb-blob"))
	if err != nil {
		t.Fatalf("CreateSocial: %v", err)
	}

	social, err := env.shares.GetSocialByCode(ctx, code)
	if err != nil {
		t.Fatalf("GetSocialByCode: %v", err)
	}
	if social.ChatID != "chat-internal" {
		t.Errorf("social share chat id: %q", social.ChatID)
	}
	if social.ThumbnailID == nil || *social.ThumbnailID != "thumb-blob" {
		t.Errorf("thumbnail id: %v", social.ThumbnailID)
	}
}

func TestEraseMessageHistory(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	chat := seedChat(t, env, models.Chat{ID: "chat-internal", CreatorID: "alice", InitialID: "chat-1"})
	base := time.Now().Add(-time.Hour)
	seedCheckpoint(t, env, models.Checkpoint{
		ID:              "cp-0",
		ChatID:          chat.ID,
		LastMessageRank: 0,
		StorageID:       strPtr("history-r0"),
		SnapshotID:      strPtr("snapshot-early"),
		CreatedAt:       base,
	})
	seedCheckpoint(t, env, models.Checkpoint{
		ID:              "cp-1",
		ChatID:          chat.ID,
		LastMessageRank: 1,
		StorageID:       strPtr("history-r1"),
		CreatedAt:       base.Add(time.Minute),
	})
	seedCheckpoint(t, env, models.Checkpoint{
		ID:              "cp-2",
		ChatID:          chat.ID,
		LastMessageRank: 2,
		StorageID:       strPtr("history-r2"),
		SnapshotID:      strPtr("snapshot-final"),
		CreatedAt:       base.Add(2 * time.Minute),
	})
	if err := env.shares.InsertSocial(ctx, &models.SocialShare{
		ID:        "social-1",
		ChatID:    chat.ID,
		Code:      "social-code",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("InsertSocial: %v", err)
	}

	// Dry run reports the plan without touching anything.
	result, err := svc.EraseMessageHistory(ctx, "social-code", true)
	if err != nil {
		t.Fatalf("EraseMessageHistory dry run: %v", err)
	}
	if !result.DryRun || result.LastMessageRank != 0 || result.NewSnapshotID != "snapshot-final" {
		t.Errorf("dry run result: %+v", result)
	}
	if result.ReplacedSnapshotID == nil || *result.ReplacedSnapshotID != "snapshot-early" {
		t.Errorf("dry run replaced snapshot: %v", result.ReplacedSnapshotID)
	}
	unchanged, err := env.chats.GetByID(ctx, chat.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if unchanged.LastMessageRank != nil {
		t.Error("dry run moved the chat pointer")
	}

	// The real run patches the earliest snapshot row and rewinds.
	result, err = svc.EraseMessageHistory(ctx, "social-code", false)
	if err != nil {
		t.Fatalf("EraseMessageHistory: %v", err)
	}
	if result.DryRun {
		t.Error("result flagged as dry run")
	}

	updated, err := env.chats.GetByID(ctx, chat.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.LastMessageRank == nil || *updated.LastMessageRank != 0 {
		t.Errorf("chat pointer after erase: %v", updated.LastMessageRank)
	}

	tip, err := env.cps.LatestForSubchat(ctx, chat.ID, 0, updated.LastMessageRank)
	if err != nil || tip == nil {
		t.Fatalf("LatestForSubchat: tip=%v err=%v", tip, err)
	}
	if tip.SnapshotID == nil || *tip.SnapshotID != "snapshot-final" {
		t.Errorf("earliest row snapshot after erase: %v", tip.SnapshotID)
	}
}
