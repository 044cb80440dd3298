package spatial

import (
	"sync"

	"github.com/orneryd/yggdrasil/pkg/storage"
)

// DefaultRadii is the widening radius schedule for prefilter scans.
//
// With the default 8x16 geometry, a radius of 2^(128-8k) roughly admits
// keys agreeing with the query on the top k quantized bits of every
// dimension. The schedule starts tight (top 4 bits per dim) and widens to
// very loose (top 1 bit per dim).
func DefaultRadii() []Key128 {
	return []Key128{
		RadiusBits(96),
		RadiusBits(112),
		RadiusBits(120),
	}
}

// Index is one project's spatial index.
//
// Reads (RangeScan) take a shared lock; mutations (Insert, Remove,
// Rebuild) take the exclusive lock, so a scan never observes a partially
// updated key set. Each project owns its own Index, so cross-project
// searches share no mutable state.
type Index struct {
	projectID string
	store     *storage.SpatialStore
	mu        sync.RWMutex
}

// NewIndex creates the index for one project over the shared spatial store.
func NewIndex(projectID string, store *storage.SpatialStore) *Index {
	return &Index{projectID: projectID, store: store}
}

// ProjectID returns the project this index belongs to.
func (ix *Index) ProjectID() string {
	return ix.projectID
}

// Insert adds or replaces a node's key.
func (ix *Index) Insert(nodeID storage.NodeID, key Key128) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.store.Insert(ix.projectID, key.Hex(), nodeID)
}

// Remove drops a node from the index. Unknown nodes are ignored.
func (ix *Index) Remove(nodeID storage.NodeID) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.store.Remove(ix.projectID, nodeID)
}

// RangeScan returns up to limit node IDs with keys in
// [center-radius, center+radius], saturating at the key space edges.
func (ix *Index) RangeScan(center, radius Key128, limit int) ([]storage.NodeID, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	low := center.SubSat(radius)
	high := center.AddSat(radius)
	return ix.store.ScanRange(ix.projectID, low.Hex(), high.Hex(), limit)
}

// Count returns the number of indexed nodes.
func (ix *Index) Count() (int64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.store.Count(ix.projectID)
}

// Rebuild atomically replaces the index contents.
//
// The exclusive lock is held for the whole rebuild: params recomputation
// is stop-the-world for the affected project, and no range scan may run
// against an index whose keys are being re-derived.
func (ix *Index) Rebuild(fill func(insert func(nodeID storage.NodeID, key Key128) error) error) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.store.DropProject(ix.projectID); err != nil {
		return err
	}
	return fill(func(nodeID storage.NodeID, key Key128) error {
		return ix.store.Insert(ix.projectID, key.Hex(), nodeID)
	})
}

// Drop removes every entry for the project.
func (ix *Index) Drop() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.store.DropProject(ix.projectID)
}
