// Package storage provides storage engine implementations for Yggdrasil.
//
// The spatial index, the federation layer, and the link/interaction stores
// are all built on one narrow contract: a key-ordered byte store supporting
// point lookup, ascending range scan, upsert, and delete. Two engines
// implement it:
//
//   - MemoryStore: thread-safe in-memory store for unit tests and small
//     datasets that fit in RAM.
//   - BadgerStore: persistent disk-based store using BadgerDB.
//
// On top of the raw byte store, typed stores (NodeStore, LinkStore,
// InteractionStore, ProjectStore) handle key construction and JSON
// encoding for the core entities.
//
// Key Structure (single-byte prefixes, 0x00 separators):
//   - Nodes:         0x01 + nodeID                        -> JSON(Node)
//   - Project index: 0x02 + projectID + 0x00 + nodeID     -> empty
//   - Spatial index: 0x03 + projectID + 0x00 + hexKey + 0x00 + nodeID -> empty
//   - Spatial rev:   0x04 + projectID + 0x00 + nodeID     -> hexKey
//   - Links:         0x05 + linkID                        -> JSON(Link)
//   - Outgoing idx:  0x06 + sourceID + 0x00 + linkID      -> empty
//   - Link project:  0x07 + projectID + 0x00 + linkID     -> empty
//   - Interactions:  0x08 + invertedUnixNano + 0x00 + id  -> JSON(Interaction)
//   - Projects:      0x09 + projectID                     -> JSON(Project)
//   - Quant params:  0x0A + federationID                  -> JSON(Params)
//
// Interaction keys embed an inverted timestamp so an ascending scan yields
// newest-first ordering without a sort.
package storage

import (
	"encoding/binary"
	"errors"
	"time"
)

// Errors returned by storage engines.
var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrNotFound      = errors.New("entity not found")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidData   = errors.New("invalid data")
	ErrStorageClosed = errors.New("storage is closed")
)

// Key prefixes for storage organization.
// Using single-byte prefixes for efficiency.
const (
	prefixNode        = byte(0x01)
	prefixNodeProject = byte(0x02)
	prefixSpatial     = byte(0x03)
	prefixSpatialNode = byte(0x04)
	prefixLink        = byte(0x05)
	prefixLinkSource  = byte(0x06)
	prefixLinkProject = byte(0x07)
	prefixInteraction = byte(0x08)
	prefixProject     = byte(0x09)
	prefixParams      = byte(0x0A)
)

// keySep separates variable-length key components.
const keySep = byte(0x00)

// Store is the key-ordered byte store contract everything else builds on.
//
// Implementations must keep keys in ascending lexicographic byte order and
// guarantee single-key atomicity; no multi-key transactional guarantees are
// required or assumed by callers.
type Store interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)

	// Set upserts a key/value pair.
	Set(key, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key []byte) error

	// Scan visits keys in [start, end] (inclusive) in ascending order,
	// calling fn for each pair until fn returns false, limit pairs have
	// been visited (limit <= 0 means unlimited), or the range is
	// exhausted. The callback must not retain key or value slices.
	Scan(start, end []byte, limit int, fn func(key, value []byte) bool) error

	// Close releases engine resources. Operations after Close return
	// ErrStorageClosed.
	Close() error
}

// buildKey concatenates a prefix byte and components separated by keySep.
func buildKey(prefix byte, components ...string) []byte {
	n := 1
	for _, c := range components {
		n += len(c) + 1
	}
	key := make([]byte, 0, n)
	key = append(key, prefix)
	for i, c := range components {
		if i > 0 {
			key = append(key, keySep)
		}
		key = append(key, c...)
	}
	return key
}

// prefixRange returns an inclusive [start, end] range covering every key
// that begins with the given prefix bytes. Suffixes are IDs and hex keys,
// so eight bytes of 0xFF padding upper-bounds them.
func prefixRange(prefix []byte) (start, end []byte) {
	start = prefix
	end = make([]byte, len(prefix), len(prefix)+8)
	copy(end, prefix)
	for i := 0; i < 8; i++ {
		end = append(end, 0xFF)
	}
	return start, end
}

// invertedTimestamp encodes t so that ascending byte order is newest-first.
func invertedTimestamp(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, ^uint64(t.UnixNano()))
	return buf
}
