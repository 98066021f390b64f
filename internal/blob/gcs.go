package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"loom/internal/domain/repositories"
)

// GCSStore is a BlobStore backed by a Google Cloud Storage bucket. Ids
// are random UUIDs rather than content hashes: GCS object deletion is not
// atomic with our reference checks, and random ids mean a re-upload after
// a sweep never races a concurrent delete of the same object name.
type GCSStore struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

// NewGCSStore creates a GCS-backed blob store. credentialsFile may be
// empty, in which case application default credentials are used.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string, logger *slog.Logger) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return &GCSStore{client: client, bucket: bucket, logger: logger}, nil
}

// Close closes the underlying client
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Put stores the blob and returns its id
func (s *GCSStore) Put(ctx context.Context, data []byte) (string, error) {
	id := uuid.New().String()

	w := s.client.Bucket(s.bucket).Object(id).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("write blob %s: %w", id, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close blob writer %s: %w", id, err)
	}

	return id, nil
}

// Get retrieves a blob, returning (nil, nil) when absent
func (s *GCSStore) Get(ctx context.Context, id string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(id).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", id, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return data, nil
}

// Delete removes a blob. Deleting an absent blob is a no-op.
func (s *GCSStore) Delete(ctx context.Context, id string) error {
	err := s.client.Bucket(s.bucket).Object(id).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	return nil
}

// URL returns a short-lived signed URL for the blob, or "" when absent
func (s *GCSStore) URL(ctx context.Context, id string) (string, error) {
	_, err := s.client.Bucket(s.bucket).Object(id).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat blob %s: %w", id, err)
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(id, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(time.Hour),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("sign blob url %s: %w", id, err)
	}
	return url, nil
}

// List pages blob ids using the bucket iterator's page tokens
func (s *GCSStore) List(ctx context.Context, cursor string, limit int) ([]string, string, bool, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, nil)
	pager := iterator.NewPager(it, limit, cursor)

	var attrs []*storage.ObjectAttrs
	next, err := pager.NextPage(&attrs)
	if err != nil {
		return nil, "", false, fmt.Errorf("list blobs: %w", err)
	}

	ids := make([]string, 0, len(attrs))
	for _, a := range attrs {
		ids = append(ids, a.Name)
	}

	return ids, next, next == "", nil
}

var _ repositories.BlobStore = (*GCSStore)(nil)

