package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/orneryd/yggdrasil/pkg/quant"
	"github.com/orneryd/yggdrasil/pkg/spatial"
	"github.com/orneryd/yggdrasil/pkg/storage"
)

// Config holds FederationManager configuration.
type Config struct {
	// FederationID names the shared params blob in storage.
	FederationID string

	// ReducedDims and Bits define the key geometry (default 8x16).
	ReducedDims int
	Bits        int

	// MinSampleSize is the minimum number of embeddings needed before
	// params are computed at all. Below this, projects run on the
	// linear-scan fallback.
	MinSampleSize int

	// StaleFraction is the out-of-bounds fraction of recently seen
	// embeddings above which ParamsStale reports true. Recomputation is
	// never automatic — it invalidates every stored key — so staleness
	// is only reported, and callers decide when to pay for a recompute.
	StaleFraction float64

	// SampleWindow caps the recent-embedding window used for the
	// staleness check.
	SampleWindow int
}

// DefaultConfig returns the standard federation configuration.
func DefaultConfig() Config {
	return Config{
		FederationID:  "default",
		ReducedDims:   spatial.DefaultReducedDims,
		Bits:          spatial.DefaultBits,
		MinSampleSize: 8,
		StaleFraction: 0.2,
		SampleWindow:  256,
	}
}

// Manager owns one spatial.Index per project plus the shared quantization
// params all of them are keyed under.
//
// Thread-safe. Per-index mutation/scan serialization lives inside
// spatial.Index; the manager's own lock protects the index map, the
// params value, and the staleness sample window.
type Manager struct {
	mu     sync.RWMutex
	config Config

	nodes       *storage.NodeStore
	spatialKeys *storage.SpatialStore
	paramsStore *storage.ParamsStore

	params  *quant.Params    // nil until computed
	encoder *spatial.Encoder // nil while params is nil

	indexes  map[string]*spatial.Index
	degraded map[string]error

	// Ring buffer of recently indexed embeddings for the staleness check.
	recent [][]float32
	next   int
}

// NewManager creates a federation manager, loading persisted params for
// the federation if any exist.
func NewManager(nodes *storage.NodeStore, spatialKeys *storage.SpatialStore,
	paramsStore *storage.ParamsStore, config Config) (*Manager, error) {

	def := DefaultConfig()
	if config.FederationID == "" {
		config.FederationID = def.FederationID
	}
	if config.ReducedDims <= 0 {
		config.ReducedDims = def.ReducedDims
	}
	if config.Bits <= 0 {
		config.Bits = def.Bits
	}
	if config.MinSampleSize <= 0 {
		config.MinSampleSize = def.MinSampleSize
	}
	if config.StaleFraction <= 0 {
		config.StaleFraction = def.StaleFraction
	}
	if config.SampleWindow <= 0 {
		config.SampleWindow = def.SampleWindow
	}

	m := &Manager{
		config:      config,
		nodes:       nodes,
		spatialKeys: spatialKeys,
		paramsStore: paramsStore,
		indexes:     make(map[string]*spatial.Index),
		degraded:    make(map[string]error),
	}

	if data, err := paramsStore.Get(config.FederationID); err == nil {
		var params quant.Params
		if err := json.Unmarshal(data, &params); err != nil {
			return nil, fmt.Errorf("decoding persisted params: %w", err)
		}
		encoder, err := spatial.NewEncoder(&params, config.Bits)
		if err != nil {
			return nil, err
		}
		m.params = &params
		m.encoder = encoder
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	return m, nil
}

// Encoder returns the current encoder, or nil when no params exist yet.
// Callers treat nil as "use the linear-scan fallback".
func (m *Manager) Encoder() *spatial.Encoder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.encoder
}

// ParamsVersion returns the current params version, or -1 when none exist.
func (m *Manager) ParamsVersion() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.params == nil {
		return -1
	}
	return m.params.Version
}

// Index returns the spatial index for a project, creating it on first use.
func (m *Manager) Index(projectID string) *spatial.Index {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexLocked(projectID)
}

func (m *Manager) indexLocked(projectID string) *spatial.Index {
	ix, ok := m.indexes[projectID]
	if !ok {
		ix = spatial.NewIndex(projectID, m.spatialKeys)
		m.indexes[projectID] = ix
	}
	return ix
}

// AddProjectIndex builds or merges the index for a project from the given
// nodes. Shared params are computed on first build (once enough embeddings
// exist) and otherwise left untouched; pass recompute=true to force a full
// federation-wide recompute, which re-keys every project.
func (m *Manager) AddProjectIndex(ctx context.Context, projectID string, nodes []*storage.Node, recompute bool) error {
	if recompute {
		if err := m.seedRecent(nodes); err != nil {
			return err
		}
		if err := m.RecomputeParams(ctx); err != nil && !errors.Is(err, ErrNoEmbeddings) {
			return err
		}
	} else if m.Encoder() == nil {
		// First build: derive params from this project's embeddings if
		// the sample is big enough.
		if err := m.tryInitParams(ctx, nodes); err != nil {
			return err
		}
	}

	return m.UpdateProjectNodes(ctx, projectID, nodes)
}

// UpdateProjectNodes incrementally indexes (or re-indexes) nodes without a
// full rebuild. Nodes without embeddings are stored but skipped by the
// spatial index; nodes with embeddings get their spatial key re-derived.
func (m *Manager) UpdateProjectNodes(ctx context.Context, projectID string, nodes []*storage.Node) error {
	ix := m.Index(projectID)
	enc := m.Encoder()

	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if node.ProjectID == "" {
			node.ProjectID = projectID
		}

		if !node.HasEmbedding() || enc == nil {
			node.SpatialKey = ""
			if err := m.nodes.Put(node); err != nil {
				return err
			}
			if node.HasEmbedding() {
				m.recordRecent(node.Embedding)
			}
			continue
		}

		key, err := enc.Encode(node.Embedding)
		if err != nil {
			return fmt.Errorf("encoding node %s: %w", node.ID, err)
		}
		node.SpatialKey = key.Hex()
		if err := m.nodes.Put(node); err != nil {
			return err
		}
		if err := ix.Insert(node.ID, key); err != nil {
			return err
		}
		m.recordRecent(node.Embedding)
	}

	m.clearDegraded(projectID)
	return nil
}

// RemoveNode drops one node from a project's index. The node record
// itself is left alone; it just stops being spatially searchable.
func (m *Manager) RemoveNode(projectID string, nodeID storage.NodeID) error {
	return m.Index(projectID).Remove(nodeID)
}

// RemoveProjectIndex tears down a project's spatial index.
func (m *Manager) RemoveProjectIndex(projectID string) error {
	m.mu.Lock()
	ix := m.indexLocked(projectID)
	delete(m.indexes, projectID)
	delete(m.degraded, projectID)
	m.mu.Unlock()

	return ix.Drop()
}

// RecomputeParams recomputes shared quantization params from every indexed
// embedding across the federation and re-keys all project indexes.
//
// This is stop-the-world for the federation: each index's exclusive lock
// is held while its keys are re-derived, so no scan observes keys from two
// params versions at once. All previously stored keys are invalidated.
func (m *Manager) RecomputeParams(ctx context.Context) error {
	sample, byProject, err := m.collectEmbeddings()
	if err != nil {
		return err
	}
	if len(sample) < m.config.MinSampleSize {
		return fmt.Errorf("%w: have %d, need %d", ErrNoEmbeddings, len(sample), m.config.MinSampleSize)
	}

	params, err := quant.Compute(sample, m.config.ReducedDims)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.params != nil {
		params.Version = m.params.Version + 1
	}
	encoder, err := spatial.NewEncoder(params, m.config.Bits)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.params = params
	m.encoder = encoder
	m.recent = nil
	m.next = 0
	m.mu.Unlock()

	if err := m.persistParams(params); err != nil {
		return err
	}

	// Re-key every project under the new params.
	if err := m.rekeyProjects(ctx, encoder, byProject); err != nil {
		return err
	}

	log.Printf("federation: recomputed params version %d over %d embeddings", params.Version, len(sample))
	return nil
}

// rekeyProjects rebuilds each project's index, re-deriving every embedded
// node's spatial key under the given encoder.
func (m *Manager) rekeyProjects(ctx context.Context, encoder *spatial.Encoder, byProject map[string][]storage.NodeID) error {
	for projectID, nodeIDs := range byProject {
		if err := ctx.Err(); err != nil {
			return err
		}
		ix := m.Index(projectID)
		err := ix.Rebuild(func(insert func(storage.NodeID, spatial.Key128) error) error {
			for _, id := range nodeIDs {
				node, err := m.nodes.Get(id)
				if err != nil {
					return err
				}
				if !node.HasEmbedding() {
					continue
				}
				key, err := encoder.Encode(node.Embedding)
				if err != nil {
					return err
				}
				node.SpatialKey = key.Hex()
				if err := m.nodes.Put(node); err != nil {
					return err
				}
				if err := insert(node.ID, key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("re-keying project %s: %w", projectID, err)
		}
	}
	return nil
}

// ParamsStale reports whether the recent-embedding window has drifted far
// enough outside the current bounds that a recompute is worth its cost.
func (m *Manager) ParamsStale() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.params == nil || len(m.recent) == 0 {
		return false
	}
	return m.params.OutOfBoundsFraction(m.recent) > m.config.StaleFraction
}

// MarkDegraded records that a project's index could not be read. Degraded
// projects are skipped by cross-project search instead of failing it.
func (m *Manager) MarkDegraded(projectID string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degraded[projectID] = cause
	log.Printf("federation: project %s degraded: %v", projectID, cause)
}

// IsDegraded reports whether a project is currently marked degraded.
func (m *Manager) IsDegraded(projectID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.degraded[projectID]
	return ok
}

// Degraded returns a snapshot of degraded projects and their causes.
func (m *Manager) Degraded() map[string]error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]error, len(m.degraded))
	for k, v := range m.degraded {
		out[k] = v
	}
	return out
}

func (m *Manager) clearDegraded(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.degraded, projectID)
}

func (m *Manager) tryInitParams(ctx context.Context, nodes []*storage.Node) error {
	var sample [][]float32
	for _, node := range nodes {
		if node.HasEmbedding() {
			sample = append(sample, node.Embedding)
		}
	}
	if len(sample) < m.config.MinSampleSize {
		return nil // stay on linear-scan fallback
	}

	params, err := quant.Compute(sample, m.config.ReducedDims)
	if err != nil {
		return err
	}
	encoder, err := spatial.NewEncoder(params, m.config.Bits)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.params = params
	m.encoder = encoder
	m.mu.Unlock()

	if err := m.persistParams(params); err != nil {
		return err
	}

	// Other projects may have indexed embedded nodes before params existed;
	// those nodes carry no spatial key and the linear-scan fallback stops
	// firing the moment the encoder is set. Key every known project now so
	// nothing already indexed drops out of search.
	_, byProject, err := m.collectEmbeddings()
	if err != nil {
		return err
	}
	return m.rekeyProjects(ctx, encoder, byProject)
}

func (m *Manager) persistParams(params *quant.Params) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return m.paramsStore.Put(m.config.FederationID, data)
}

// collectEmbeddings gathers every indexed embedding plus node IDs grouped
// by project, for recompute and re-keying.
func (m *Manager) collectEmbeddings() ([][]float32, map[string][]storage.NodeID, error) {
	m.mu.RLock()
	projectIDs := make([]string, 0, len(m.indexes))
	for id := range m.indexes {
		projectIDs = append(projectIDs, id)
	}
	m.mu.RUnlock()

	var sample [][]float32
	byProject := make(map[string][]storage.NodeID, len(projectIDs))
	for _, projectID := range projectIDs {
		err := m.nodes.ScanProject(projectID, func(node *storage.Node) bool {
			byProject[projectID] = append(byProject[projectID], node.ID)
			if node.HasEmbedding() {
				sample = append(sample, node.Embedding)
			}
			return true
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return sample, byProject, nil
}

func (m *Manager) recordRecent(embedding []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.recent) < m.config.SampleWindow {
		m.recent = append(m.recent, embedding)
		return
	}
	m.recent[m.next] = embedding
	m.next = (m.next + 1) % m.config.SampleWindow
}

func (m *Manager) seedRecent(nodes []*storage.Node) error {
	for _, node := range nodes {
		if node.HasEmbedding() {
			m.recordRecent(node.Embedding)
		}
	}
	return nil
}
