package storage

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore provides persistent key-ordered storage using BadgerDB.
//
// Features:
//   - Persistent storage to disk with automatic crash recovery
//   - Ascending range scans over the LSM key space
//   - Thread-safe concurrent access
//   - Optional in-memory mode for testing
//
// Example:
//
//	store, err := storage.NewBadgerStore("/path/to/data")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
type BadgerStore struct {
	db       *badger.DB
	mu       sync.RWMutex // protects closed
	closed   bool
	inMemory bool
}

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// DataDir is the directory for database files.
	DataDir string
	// InMemory runs the store entirely in RAM (testing).
	InMemory bool
	// SyncWrites forces fsync after each write. Slower but safest.
	SyncWrites bool
}

// NewBadgerStore opens a persistent store at dataDir with default options.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerStoreWithOptions opens a BadgerStore with custom configuration.
//
// Example (in-memory store for tests):
//
//	store, err := storage.NewBadgerStoreWithOptions(storage.BadgerOptions{
//		InMemory: true,
//	})
//	defer store.Close()
func NewBadgerStoreWithOptions(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	// Quiet by default; badger's own logger is noisy at INFO.
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", opts.DataDir, err)
	}

	return &BadgerStore{db: db, inMemory: opts.InMemory}, nil
}

// IsInMemory returns true if the store is running in memory-only mode.
func (b *BadgerStore) IsInMemory() bool {
	return b.inMemory
}

func (b *BadgerStore) ensureOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// Get retrieves the value for key.
func (b *BadgerStore) Get(key []byte) ([]byte, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set upserts a key/value pair.
func (b *BadgerStore) Set(key, value []byte) error {
	if len(key) == 0 {
		return ErrInvalidID
	}
	if err := b.ensureOpen(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes a key. Missing keys are ignored.
func (b *BadgerStore) Delete(key []byte) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Scan visits keys in [start, end] inclusive, ascending.
func (b *BadgerStore) Scan(start, end []byte, limit int, fn func(key, value []byte) bool) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		if limit > 0 && limit < opts.PrefetchSize {
			opts.PrefetchSize = limit
		}

		it := txn.NewIterator(opts)
		defer it.Close()

		visited := 0
		for it.Seek(start); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(end) > 0 && bytes.Compare(key, end) > 0 {
				break
			}
			if limit > 0 && visited >= limit {
				break
			}
			visited++

			stop := false
			err := item.Value(func(val []byte) error {
				if !fn(key, val) {
					stop = true
				}
				return nil
			})
			if err != nil {
				return err
			}
			if stop {
				break
			}
		}
		return nil
	})
}

// Close flushes and closes the underlying database.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// Verify BadgerStore implements Store interface
var _ Store = (*BadgerStore)(nil)
