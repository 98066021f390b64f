package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"loom/internal/domain/repositories"
)

// BadgerStore is a BlobStore backed by an embedded BadgerDB. It serves
// single-node deployments where object storage is not available; ids are
// content hashes like the in-memory store's.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerStore opens a BadgerDB-backed blob store at the given path.
// An empty path opens an in-memory database, which is what the tests use.
func NewBadgerStore(path string, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &BadgerStore{db: db, logger: logger}, nil
}

// Close closes the underlying database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Put stores the blob and returns its id
func (s *BadgerStore) Put(ctx context.Context, data []byte) (string, error) {
	id := contentID(data)

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(id), data)
	})
	if err != nil {
		return "", fmt.Errorf("put blob: %w", err)
	}
	return id, nil
}

// Get retrieves a blob, returning (nil, nil) when absent
func (s *BadgerStore) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return data, nil
}

// Delete removes a blob. Deleting an absent blob is a no-op.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// URL returns a serve URL for the blob, or "" when absent. Badger blobs
// are served through the API process, so the URL is an internal scheme
// the snapshot handler resolves itself.
func (s *BadgerStore) URL(ctx context.Context, id string) (string, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat blob: %w", err)
	}
	return "badger://" + id, nil
}

// List pages blob ids in key order
func (s *BadgerStore) List(ctx context.Context, cursor string, limit int) ([]string, string, bool, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(cursor)); it.Valid() && len(ids) < limit; it.Next() {
			key := string(it.Item().Key())
			if key == cursor {
				continue
			}
			ids = append(ids, key)
		}
		return nil
	})
	if err != nil {
		return nil, "", false, fmt.Errorf("list blobs: %w", err)
	}

	if len(ids) < limit {
		return ids, "", true, nil
	}
	return ids, ids[len(ids)-1], false, nil
}

var _ repositories.BlobStore = (*BadgerStore)(nil)
