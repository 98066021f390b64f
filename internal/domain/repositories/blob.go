package repositories

import "context"

// BlobStore is the boundary with opaque content storage. Implementations
// do no versioning of their own: a blob exists until deleted, and the
// reference tracker decides when that is safe.
//
// Delete is idempotent on a missing id. Get returns (nil, nil) and URL
// returns ("", nil) for unknown ids, so callers can distinguish "absent"
// from transport failures.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	URL(ctx context.Context, id string) (string, error)

	// List pages through every blob id in the store for the orphan sweep.
	// An empty cursor starts from the beginning; done is true on the final
	// page. The iteration order is stable across calls for ids that are
	// not created or deleted mid-sweep.
	List(ctx context.Context, cursor string, limit int) (ids []string, next string, done bool, err error)
}
