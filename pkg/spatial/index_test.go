package spatial

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/yggdrasil/pkg/quant"
	"github.com/orneryd/yggdrasil/pkg/storage"
)

func newTestIndex(t *testing.T, projectID string) *Index {
	t.Helper()
	return NewIndex(projectID, storage.NewSpatialStore(storage.NewMemoryStore()))
}

func TestIndexInsertAndRangeScan(t *testing.T) {
	ix := newTestIndex(t, "p1")

	require.NoError(t, ix.Insert("low", Key128{Lo: 100}))
	require.NoError(t, ix.Insert("mid", Key128{Lo: 1000}))
	require.NoError(t, ix.Insert("high", Key128{Hi: 1}))

	ids, err := ix.RangeScan(Key128{Lo: 500}, Key128{Lo: 600}, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []storage.NodeID{"low", "mid"}, ids)

	// A tiny radius around an isolated key finds only it.
	ids, err = ix.RangeScan(Key128{Hi: 1}, Key128{Lo: 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, []storage.NodeID{"high"}, ids)
}

func TestIndexRangeScanSaturates(t *testing.T) {
	ix := newTestIndex(t, "p1")
	require.NoError(t, ix.Insert("origin", Key128{}))
	require.NoError(t, ix.Insert("top", MaxKey))

	// Radius larger than the center: the low bound saturates at zero
	// instead of wrapping around to the top of the key space.
	ids, err := ix.RangeScan(Key128{Lo: 5}, Key128{Lo: 100}, 0)
	require.NoError(t, err)
	assert.Equal(t, []storage.NodeID{"origin"}, ids)

	ids, err = ix.RangeScan(MaxKey, Key128{Lo: 100}, 0)
	require.NoError(t, err)
	assert.Equal(t, []storage.NodeID{"top"}, ids)
}

func TestIndexIdenticalKeysAlwaysCoRetrieved(t *testing.T) {
	ix := newTestIndex(t, "p1")
	k := Key128{Hi: 42, Lo: 7}
	require.NoError(t, ix.Insert("a", k))
	require.NoError(t, ix.Insert("b", k))

	for _, radius := range DefaultRadii() {
		ids, err := ix.RangeScan(k, radius, 0)
		require.NoError(t, err)
		assert.ElementsMatch(t, []storage.NodeID{"a", "b"}, ids)
	}
}

func TestIndexInsertReplacesKey(t *testing.T) {
	ix := newTestIndex(t, "p1")
	require.NoError(t, ix.Insert("n", Key128{Lo: 10}))
	require.NoError(t, ix.Insert("n", Key128{Lo: 9999}))

	ids, err := ix.RangeScan(Key128{Lo: 10}, Key128{Lo: 5}, 0)
	require.NoError(t, err)
	assert.Empty(t, ids, "old key must be gone after re-insert")

	ids, err = ix.RangeScan(Key128{Lo: 9999}, Key128{Lo: 5}, 0)
	require.NoError(t, err)
	assert.Equal(t, []storage.NodeID{"n"}, ids)
}

func TestIndexRemove(t *testing.T) {
	ix := newTestIndex(t, "p1")
	require.NoError(t, ix.Insert("n", Key128{Lo: 10}))
	require.NoError(t, ix.Remove("n"))
	require.NoError(t, ix.Remove("unknown")) // idempotent

	count, err := ix.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIndexRebuild(t *testing.T) {
	ix := newTestIndex(t, "p1")
	require.NoError(t, ix.Insert("old", Key128{Lo: 1}))

	err := ix.Rebuild(func(insert func(storage.NodeID, Key128) error) error {
		return insert("new", Key128{Lo: 2})
	})
	require.NoError(t, err)

	ids, err := ix.RangeScan(Key128{Lo: 1}, Key128{Lo: 10}, 0)
	require.NoError(t, err)
	assert.Equal(t, []storage.NodeID{"new"}, ids)
}

// Full default geometry end to end: random 512-dim vectors reduced to 8
// dims at 16 bits each. A near-identical pair must land on keys close
// enough for a moderate-radius scan to co-retrieve.
func TestIndexLocalityFullGeometryRandomVectors(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	sample := make([][]float32, 100)
	for i := range sample {
		v := make([]float32, 512)
		for d := range v {
			v[d] = rng.Float32()
		}
		sample[i] = v
	}

	params, err := quant.Compute(sample, DefaultReducedDims)
	require.NoError(t, err)
	enc, err := NewEncoder(params, DefaultBits)
	require.NoError(t, err)

	ix := newTestIndex(t, "p1")
	for i, v := range sample {
		key, err := enc.Encode(v)
		require.NoError(t, err)
		require.NoError(t, ix.Insert(storage.NodeID(fmt.Sprintf("v%03d", i)), key))
	}

	// Near-identical twin of vector 0: two coordinates in the same
	// reduction group nudged in opposite directions, so its reduced
	// representation barely moves.
	twin := make([]float32, len(sample[0]))
	copy(twin, sample[0])
	twin[3] += 1e-3
	twin[5] -= 1e-3
	twinKey, err := enc.Encode(twin)
	require.NoError(t, err)
	require.NoError(t, ix.Insert("twin", twinKey))

	ids, err := ix.RangeScan(twinKey, RadiusBits(112), 0)
	require.NoError(t, err)
	assert.Contains(t, ids, storage.NodeID("v000"))
	assert.Contains(t, ids, storage.NodeID("twin"))
}

func TestIndexProjectIsolation(t *testing.T) {
	store := storage.NewSpatialStore(storage.NewMemoryStore())
	ix1 := NewIndex("p1", store)
	ix2 := NewIndex("p2", store)

	require.NoError(t, ix1.Insert("a", Key128{Lo: 5}))
	require.NoError(t, ix2.Insert("b", Key128{Lo: 5}))

	ids, err := ix1.RangeScan(Key128{Lo: 5}, Key128{Lo: 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, []storage.NodeID{"a"}, ids)

	require.NoError(t, ix1.Drop())
	count, err := ix2.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "dropping one project must not touch another")
}
