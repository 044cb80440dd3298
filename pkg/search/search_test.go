package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/yggdrasil/pkg/federation"
	"github.com/orneryd/yggdrasil/pkg/storage"
)

type testEngine struct {
	nodes    *storage.NodeStore
	fed      *federation.Manager
	searcher *ProjectSearcher
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	store := storage.NewMemoryStore()
	nodes := storage.NewNodeStore(store, 0)
	fed, err := federation.NewManager(nodes, storage.NewSpatialStore(store),
		storage.NewParamsStore(store),
		federation.Config{ReducedDims: 4, Bits: 8, MinSampleSize: 2})
	require.NoError(t, err)
	return &testEngine{
		nodes:    nodes,
		fed:      fed,
		searcher: NewProjectSearcher(nodes, fed, nil, 0),
	}
}

// axis returns an 8-dim vector with weight on one axis pair, padded so the
// reduction to 4 dims keeps the vectors distinguishable.
func axis(i int) []float32 {
	v := make([]float32, 8)
	v[i*2] = 1
	v[i*2+1] = 1
	return v
}

func (e *testEngine) index(t *testing.T, project string, vectors map[string][]float32) {
	t.Helper()
	var nodes []*storage.Node
	for id, vec := range vectors {
		nodes = append(nodes, &storage.Node{
			ID:        storage.NodeID(id),
			ProjectID: project,
			Text:      "node " + id,
			Embedding: vec,
		})
	}
	require.NoError(t, e.fed.AddProjectIndex(context.Background(), project, nodes, false))
}

func TestProjectSearchRanksBySimilarity(t *testing.T) {
	e := newTestEngine(t)
	e.index(t, "p1", map[string][]float32{
		"match":   axis(0),
		"other":   axis(1),
		"another": axis(2),
	})

	results, err := e.searcher.Search(context.Background(), "p1", axis(0), 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.EqualValues(t, "match", results[0].Node.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Similarity, results[i-1].Similarity)
	}
}

func TestProjectSearchTopKBound(t *testing.T) {
	e := newTestEngine(t)
	vectors := make(map[string][]float32)
	for i := 0; i < 20; i++ {
		v := make([]float32, 8)
		for d := range v {
			v[d] = float32(i) / 20
		}
		v[0] = 1
		vectors[fmt.Sprintf("n%02d", i)] = v
	}
	e.index(t, "p1", vectors)

	results, err := e.searcher.Search(context.Background(), "p1", vectors["n00"], 5)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 5)
}

func TestProjectSearchColdStartLinearScan(t *testing.T) {
	store := storage.NewMemoryStore()
	nodes := storage.NewNodeStore(store, 0)
	fed, err := federation.NewManager(nodes, storage.NewSpatialStore(store),
		storage.NewParamsStore(store),
		federation.Config{ReducedDims: 4, Bits: 8, MinSampleSize: 100})
	require.NoError(t, err)
	searcher := NewProjectSearcher(nodes, fed, nil, 0)

	// Below the sample minimum: no params, no spatial keys.
	require.NoError(t, fed.UpdateProjectNodes(context.Background(), "p1", []*storage.Node{
		{ID: "a", ProjectID: "p1", Embedding: axis(0)},
		{ID: "b", ProjectID: "p1", Embedding: axis(1)},
	}))
	require.Nil(t, fed.Encoder())

	results, err := searcher.Search(context.Background(), "p1", axis(0), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.EqualValues(t, "a", results[0].Node.ID)
}

func TestProjectSearchFindsNodesIndexedBeforeParams(t *testing.T) {
	e := newTestEngine(t)

	// One embedded node lands while the federation is still below the
	// params sample minimum.
	require.NoError(t, e.fed.AddProjectIndex(context.Background(), "first", []*storage.Node{
		{ID: "pre", ProjectID: "first", Embedding: axis(0)},
	}, false))
	require.Nil(t, e.fed.Encoder())

	// A second project bootstraps params; the spatial path takes over for
	// everyone, so the first project's node must be spatially reachable.
	e.index(t, "second", map[string][]float32{
		"a": axis(1),
		"b": axis(2),
	})
	require.NotNil(t, e.fed.Encoder())

	results, err := e.searcher.Search(context.Background(), "first", axis(0), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.EqualValues(t, "pre", results[0].Node.ID)
}

func TestProjectSearchSkipsUnembeddedNodes(t *testing.T) {
	e := newTestEngine(t)
	e.index(t, "p1", map[string][]float32{
		"a": axis(0),
		"b": axis(1),
	})
	require.NoError(t, e.fed.UpdateProjectNodes(context.Background(), "p1", []*storage.Node{
		{ID: "bare", ProjectID: "p1"},
	}))

	results, err := e.searcher.Search(context.Background(), "p1", axis(0), 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqualValues(t, "bare", r.Node.ID)
	}
}

func TestProjectSearchValidation(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.searcher.Search(context.Background(), "p1", nil, 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = e.searcher.Search(context.Background(), "p1", axis(0), 0)
	assert.ErrorIs(t, err, ErrBadLimit)
}

func TestProjectSearchEmptyProject(t *testing.T) {
	e := newTestEngine(t)
	e.index(t, "p1", map[string][]float32{"a": axis(0), "b": axis(1)})

	results, err := e.searcher.Search(context.Background(), "empty", axis(0), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSortResultsDeterministicTieBreak(t *testing.T) {
	results := []Result{
		{Node: &storage.Node{ID: "b"}, Similarity: 0.5},
		{Node: &storage.Node{ID: "a"}, Similarity: 0.5},
		{Node: &storage.Node{ID: "c"}, Similarity: 0.9},
	}
	sortResults(results)
	assert.EqualValues(t, "c", results[0].Node.ID)
	assert.EqualValues(t, "a", results[1].Node.ID)
	assert.EqualValues(t, "b", results[2].Node.ID)
}
