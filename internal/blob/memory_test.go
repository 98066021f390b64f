package blob

import (
	"bytes"
	"context"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Put(ctx, []byte("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(data, []byte("hello")) {
		t.Errorf("got %q, want hello", data)
	}

	url, err := store.URL(ctx, id)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if url != "memory://"+id {
		t.Errorf("url = %q", url)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	data, err = store.Get(ctx, id)
	if err != nil || data != nil {
		t.Errorf("after delete: data=%v err=%v", data, err)
	}
	url, err = store.URL(ctx, id)
	if err != nil || url != "" {
		t.Errorf("url after delete: %q err=%v", url, err)
	}

	// Deleting again is a no-op.
	if err := store.Delete(ctx, id); err != nil {
		t.Errorf("repeat Delete: %v", err)
	}
}

func TestMemoryStoreContentAddressing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a, err := store.Put(ctx, []byte("same bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := store.Put(ctx, []byte("same bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if a != b {
		t.Errorf("identical content produced ids %q and %q", a, b)
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d blobs, want 1", store.Len())
	}

	c, err := store.Put(ctx, []byte("different bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if c == a {
		t.Error("distinct content produced the same id")
	}
}

func TestMemoryStoreListPagination(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var want []string
	for _, content := range []string{"one", "two", "three", "four", "five"} {
		id, err := store.Put(ctx, []byte(content))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		want = append(want, id)
	}

	var got []string
	cursor := ""
	for {
		ids, next, done, err := store.List(ctx, cursor, 2)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		got = append(got, ids...)
		if done {
			break
		}
		cursor = next
	}

	if len(got) != len(want) {
		t.Fatalf("paged %d ids, want %d", len(got), len(want))
	}
	seen := make(map[string]bool, len(got))
	for i, id := range got {
		if seen[id] {
			t.Errorf("id %q returned twice", id)
		}
		seen[id] = true
		if i > 0 && got[i-1] >= id {
			t.Errorf("ids out of order at %d: %q >= %q", i, got[i-1], id)
		}
	}
	for _, id := range want {
		if !seen[id] {
			t.Errorf("id %q never paged", id)
		}
	}
}
