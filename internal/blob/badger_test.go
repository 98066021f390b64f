package blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
)

func newBadgerTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store := newBadgerTestStore(t)
	ctx := context.Background()

	id, err := store.Put(ctx, []byte("payload"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(data, []byte("payload")) {
		t.Errorf("got %q, want payload", data)
	}

	url, err := store.URL(ctx, id)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if url != "badger://"+id {
		t.Errorf("url = %q", url)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	data, err = store.Get(ctx, id)
	if err != nil || data != nil {
		t.Errorf("after delete: data=%v err=%v", data, err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Errorf("repeat Delete: %v", err)
	}
}

func TestBadgerStoreListPagination(t *testing.T) {
	store := newBadgerTestStore(t)
	ctx := context.Background()

	ids := make(map[string]bool)
	for _, content := range []string{"a", "b", "c", "d", "e"} {
		id, err := store.Put(ctx, []byte(content))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		ids[id] = false
	}

	cursor := ""
	total := 0
	for {
		page, next, done, err := store.List(ctx, cursor, 2)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, id := range page {
			if seen, ok := ids[id]; !ok || seen {
				t.Errorf("unexpected or repeated id %q", id)
			}
			ids[id] = true
			total++
		}
		if done {
			break
		}
		cursor = next
	}

	if total != len(ids) {
		t.Errorf("paged %d ids, want %d", total, len(ids))
	}
}
