// Package blob provides the blob store backends: an in-memory store for
// tests, an embedded BadgerDB store for single-node deployments, and a
// Google Cloud Storage store for production. Blob ids are opaque to every
// caller; only the reference tracker and the sweeps ever enumerate them.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"

	"loom/internal/domain/repositories"
)

// MemoryStore is an in-memory BlobStore for tests and local development.
// Ids are content hashes, so storing the same bytes twice yields the same
// id; the store keeps no reference counts, a delete removes the blob.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory blob store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func contentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores the blob and returns its id
func (s *MemoryStore) Put(ctx context.Context, data []byte) (string, error) {
	id := contentID(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	s.blobs[id] = buf
	return id, nil
}

// Get retrieves a blob, returning (nil, nil) when absent
func (s *MemoryStore) Get(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[id]
	if !ok {
		return nil, nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Delete removes a blob. Deleting an absent blob is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, id)
	return nil
}

// URL returns a serve URL for the blob, or "" when absent
func (s *MemoryStore) URL(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.blobs[id]; !ok {
		return "", nil
	}
	return "memory://" + id, nil
}

// List pages blob ids in lexicographic order
func (s *MemoryStore) List(ctx context.Context, cursor string, limit int) ([]string, string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id := range s.blobs {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	if len(ids) < limit {
		return ids, "", true, nil
	}
	return ids, ids[len(ids)-1], false, nil
}

// Len reports the number of stored blobs. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

var _ repositories.BlobStore = (*MemoryStore)(nil)
