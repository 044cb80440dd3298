package storage

import (
	"errors"
	"fmt"
)

// SpatialStore persists the per-project spatial index entries.
//
// Each entry maps (projectID, hexKey, nodeID) to nothing; the hex spatial
// key sorts lexicographically exactly as the underlying 128-bit unsigned
// key sorts numerically, so an ascending store scan over
// [low, high] is a numeric range scan over the key space.
//
// A reverse entry (projectID, nodeID) -> hexKey supports removal and
// re-keying without knowing the current key.
type SpatialStore struct {
	store Store
}

// NewSpatialStore creates a SpatialStore over the given byte store.
func NewSpatialStore(store Store) *SpatialStore {
	return &SpatialStore{store: store}
}

func spatialKey(projectID, hexKey string, nodeID NodeID) []byte {
	return buildKey(prefixSpatial, projectID, hexKey, string(nodeID))
}

func spatialNodeKey(projectID string, nodeID NodeID) []byte {
	return buildKey(prefixSpatialNode, projectID, string(nodeID))
}

// Insert adds or replaces a node's spatial index entry.
func (s *SpatialStore) Insert(projectID, hexKey string, nodeID NodeID) error {
	if projectID == "" || nodeID == "" {
		return ErrInvalidID
	}
	if hexKey == "" {
		return fmt.Errorf("%w: empty spatial key for node %s", ErrInvalidData, nodeID)
	}

	// Replace any previous entry for the node.
	if err := s.Remove(projectID, nodeID); err != nil {
		return err
	}

	if err := s.store.Set(spatialKey(projectID, hexKey, nodeID), nil); err != nil {
		return err
	}
	return s.store.Set(spatialNodeKey(projectID, nodeID), []byte(hexKey))
}

// Remove drops a node's spatial index entry. Unknown nodes are ignored.
func (s *SpatialStore) Remove(projectID string, nodeID NodeID) error {
	old, err := s.store.Get(spatialNodeKey(projectID, nodeID))
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.Delete(spatialKey(projectID, string(old), nodeID)); err != nil {
		return err
	}
	return s.store.Delete(spatialNodeKey(projectID, nodeID))
}

// KeyFor returns the stored hex key for a node, or ErrNotFound.
func (s *SpatialStore) KeyFor(projectID string, nodeID NodeID) (string, error) {
	v, err := s.store.Get(spatialNodeKey(projectID, nodeID))
	if errors.Is(err, ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// ScanRange returns up to limit node IDs whose hex keys fall within
// [lowHex, highHex] inclusive, in ascending key order.
// lowHex and highHex must be equal-width hex strings.
func (s *SpatialStore) ScanRange(projectID, lowHex, highHex string, limit int) ([]NodeID, error) {
	if len(lowHex) != len(highHex) {
		return nil, fmt.Errorf("%w: range bounds have different widths", ErrInvalidData)
	}

	start := buildKey(prefixSpatial, projectID, lowHex, "")
	// High bound is inclusive of every node ID suffix under highHex.
	_, end := prefixRange(buildKey(prefixSpatial, projectID, highHex, ""))

	prefixLen := len(buildKey(prefixSpatial, projectID, ""))
	keyWidth := len(lowHex)

	var out []NodeID
	err := s.store.Scan(start, end, limit, func(key, _ []byte) bool {
		rest := key[prefixLen:]
		if len(rest) < keyWidth+1 {
			return true // malformed entry, skip
		}
		out = append(out, NodeID(rest[keyWidth+1:]))
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ScanAll visits every (nodeID, hexKey) pair in a project's index.
// Used for re-keying after a quantization recompute.
func (s *SpatialStore) ScanAll(projectID string, fn func(nodeID NodeID, hexKey string) bool) error {
	start, end := prefixRange(buildKey(prefixSpatialNode, projectID, ""))
	return s.store.Scan(start, end, 0, func(key, value []byte) bool {
		return fn(NodeID(key[len(start):]), string(value))
	})
}

// DropProject removes every spatial entry for a project.
func (s *SpatialStore) DropProject(projectID string) error {
	var doomed [][]byte
	collect := func(key, _ []byte) bool {
		k := make([]byte, len(key))
		copy(k, key)
		doomed = append(doomed, k)
		return true
	}

	start, end := prefixRange(buildKey(prefixSpatial, projectID, ""))
	if err := s.store.Scan(start, end, 0, collect); err != nil {
		return err
	}
	start, end = prefixRange(buildKey(prefixSpatialNode, projectID, ""))
	if err := s.store.Scan(start, end, 0, collect); err != nil {
		return err
	}

	for _, key := range doomed {
		if err := s.store.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of indexed nodes in a project.
func (s *SpatialStore) Count(projectID string) (int64, error) {
	start, end := prefixRange(buildKey(prefixSpatialNode, projectID, ""))
	var count int64
	err := s.store.Scan(start, end, 0, func(_, _ []byte) bool {
		count++
		return true
	})
	return count, err
}
