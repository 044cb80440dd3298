package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultNodeCacheSize bounds the hot-node cache. Repeated re-rank passes
// hit the same nodes, so even a small cache removes most point lookups.
const DefaultNodeCacheSize = 4096

// NodeStore persists nodes and maintains the per-project membership index.
//
// Reads go through an LRU cache of decoded nodes; cached nodes are copied
// on the way out so callers cannot mutate cache entries.
type NodeStore struct {
	store Store
	cache *lru.Cache[NodeID, *Node]

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// NewNodeStore creates a NodeStore over the given byte store.
// cacheSize <= 0 uses DefaultNodeCacheSize.
func NewNodeStore(store Store, cacheSize int) *NodeStore {
	if cacheSize <= 0 {
		cacheSize = DefaultNodeCacheSize
	}
	cache, _ := lru.New[NodeID, *Node](cacheSize)
	return &NodeStore{store: store, cache: cache}
}

func nodeKey(id NodeID) []byte {
	return buildKey(prefixNode, string(id))
}

func nodeProjectKey(projectID string, id NodeID) []byte {
	return buildKey(prefixNodeProject, projectID, string(id))
}

// Put upserts a node and its project-membership index entry.
func (s *NodeStore) Put(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}
	if node.ProjectID == "" {
		return fmt.Errorf("%w: node %s has no project", ErrInvalidData, node.ID)
	}

	// A node moving between projects must drop its old index entry.
	if old, err := s.Get(node.ID); err == nil && old.ProjectID != node.ProjectID {
		if err := s.store.Delete(nodeProjectKey(old.ProjectID, node.ID)); err != nil {
			return err
		}
	}

	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encoding node %s: %w", node.ID, err)
	}
	if err := s.store.Set(nodeKey(node.ID), data); err != nil {
		return err
	}
	if err := s.store.Set(nodeProjectKey(node.ProjectID, node.ID), nil); err != nil {
		return err
	}

	s.cache.Add(node.ID, copyNode(node))
	return nil
}

// Get retrieves a node by ID.
func (s *NodeStore) Get(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	if cached, ok := s.cache.Get(id); ok {
		s.cacheHits.Add(1)
		return copyNode(cached), nil
	}
	s.cacheMisses.Add(1)

	data, err := s.store.Get(nodeKey(id))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var node Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("decoding node %s: %w", id, err)
	}

	s.cache.Add(id, copyNode(&node))
	return &node, nil
}

// Delete removes a node and its project index entry.
func (s *NodeStore) Delete(id NodeID) error {
	node, err := s.Get(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.Delete(nodeProjectKey(node.ProjectID, id)); err != nil {
		return err
	}
	if err := s.store.Delete(nodeKey(id)); err != nil {
		return err
	}
	s.cache.Remove(id)
	return nil
}

// ScanProject visits every node in a project until fn returns false.
// Order is by node ID, ascending.
func (s *NodeStore) ScanProject(projectID string, fn func(*Node) bool) error {
	start, end := prefixRange(buildKey(prefixNodeProject, projectID, ""))
	var scanErr error
	err := s.store.Scan(start, end, 0, func(key, _ []byte) bool {
		id := NodeID(key[len(start):])
		node, err := s.Get(id)
		if errors.Is(err, ErrNotFound) {
			return true // index entry without node, skip
		}
		if err != nil {
			scanErr = err
			return false
		}
		return fn(node)
	})
	if err != nil {
		return err
	}
	return scanErr
}

// CountProject returns the number of nodes registered to a project.
func (s *NodeStore) CountProject(projectID string) (int64, error) {
	start, end := prefixRange(buildKey(prefixNodeProject, projectID, ""))
	var count int64
	err := s.store.Scan(start, end, 0, func(_, _ []byte) bool {
		count++
		return true
	})
	return count, err
}

// CacheStats returns hit/miss counters for the hot-node cache.
func (s *NodeStore) CacheStats() (hits, misses int64) {
	return s.cacheHits.Load(), s.cacheMisses.Load()
}

// copyNode returns a deep copy so cache entries stay immutable.
func copyNode(n *Node) *Node {
	out := *n
	if n.Embedding != nil {
		out.Embedding = make([]float32, len(n.Embedding))
		copy(out.Embedding, n.Embedding)
	}
	if n.ChildIDs != nil {
		out.ChildIDs = make([]NodeID, len(n.ChildIDs))
		copy(out.ChildIDs, n.ChildIDs)
	}
	return &out
}
