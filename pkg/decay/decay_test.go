package decay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/yggdrasil/pkg/storage"
)

func TestWeight(t *testing.T) {
	halfLife := 72 * time.Hour
	tests := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{"fresh", 0, 1.0},
		{"one half-life", 72 * time.Hour, 0.5},
		{"two half-lives", 144 * time.Hour, 0.25},
		{"clock skew clamps", -time.Hour, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Weight(tt.elapsed, halfLife), 1e-9)
		})
	}

	assert.Equal(t, 1.0, Weight(time.Hour, 0), "no half-life means no decay")
}

func newTestScorer(t *testing.T) (*MemoryScorer, *storage.InteractionStore) {
	t.Helper()
	interactions := storage.NewInteractionStore(storage.NewMemoryStore())
	return NewMemoryScorer(interactions, MemoryConfig{}), interactions
}

func TestScoreBlendsSimilarityAndRecency(t *testing.T) {
	scorer, _ := newTestScorer(t)
	now := time.Now().UTC()

	in := &storage.Interaction{
		ID:        "i1",
		Action:    storage.ActionView,
		At:        now,
		Embedding: []float32{1, 0, 0},
	}
	scored := scorer.Score(in, []float32{1, 0, 0}, now)
	assert.InDelta(t, 1.0, scored.Similarity, 1e-6)
	assert.InDelta(t, 1.0, scored.Recency, 1e-9)
	assert.InDelta(t, 1.0, scored.Score, 1e-6) // 0.7*1 + 0.3*1
}

func TestScoreRecencyOnlyWithoutEmbedding(t *testing.T) {
	scorer, _ := newTestScorer(t)
	now := time.Now().UTC()

	in := &storage.Interaction{ID: "i1", Action: storage.ActionExport, At: now.Add(-72 * time.Hour)}
	scored := scorer.Score(in, []float32{1, 0, 0}, now)
	assert.Zero(t, scored.Similarity)
	assert.InDelta(t, 0.5, scored.Recency, 1e-9)
	assert.InDelta(t, 0.15, scored.Score, 1e-9) // 0.7*0 + 0.3*0.5
}

func TestRankPrefersRelevantRecent(t *testing.T) {
	scorer, interactions := newTestScorer(t)
	now := time.Now().UTC()

	require.NoError(t, interactions.Append(&storage.Interaction{
		ID: "relevant-recent", Action: storage.ActionView,
		At: now.Add(-time.Hour), Embedding: []float32{1, 0, 0},
	}))
	require.NoError(t, interactions.Append(&storage.Interaction{
		ID: "relevant-old", Action: storage.ActionView,
		At: now.Add(-200 * time.Hour), Embedding: []float32{1, 0, 0},
	}))
	require.NoError(t, interactions.Append(&storage.Interaction{
		ID: "irrelevant-recent", Action: storage.ActionView,
		At: now.Add(-time.Hour), Embedding: []float32{0, 1, 0},
	}))

	ranked, err := scorer.Rank(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "relevant-recent", ranked[0].Interaction.ID)
	assert.Equal(t, "relevant-old", ranked[1].Interaction.ID)
	assert.Equal(t, "irrelevant-recent", ranked[2].Interaction.ID)
}

func TestRankEmptyQueryUsesRecencyAlone(t *testing.T) {
	scorer, interactions := newTestScorer(t)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, interactions.Append(&storage.Interaction{
			ID:     fmt.Sprintf("i%d", i),
			Action: storage.ActionView,
			At:     now.Add(-time.Duration(i) * time.Hour),
		}))
	}

	ranked, err := scorer.Rank(context.Background(), nil, 2)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "i0", ranked[0].Interaction.ID)
	assert.Equal(t, "i1", ranked[1].Interaction.ID)
}

func TestRankWindowCap(t *testing.T) {
	interactions := storage.NewInteractionStore(storage.NewMemoryStore())
	scorer := NewMemoryScorer(interactions, MemoryConfig{MaxInteractions: 5})
	now := time.Now().UTC()

	for i := 0; i < 20; i++ {
		require.NoError(t, interactions.Append(&storage.Interaction{
			ID:     fmt.Sprintf("i%02d", i),
			Action: storage.ActionView,
			At:     now.Add(-time.Duration(i) * time.Minute),
		}))
	}

	ranked, err := scorer.Rank(context.Background(), nil, 100)
	require.NoError(t, err)
	assert.Len(t, ranked, 5, "scoring only ever reads the newest window")
}

func TestPurge(t *testing.T) {
	scorer, interactions := newTestScorer(t)
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		require.NoError(t, interactions.Append(&storage.Interaction{
			ID:     fmt.Sprintf("i%d", i),
			Action: storage.ActionView,
			At:     now.Add(-time.Duration(i+1) * time.Minute),
		}))
	}

	// Everything is older than now, so a zero age purges the lot.
	removed, err := scorer.Purge(0)
	require.NoError(t, err)
	assert.Equal(t, 10, removed)

	count, err := interactions.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPurgeByAge(t *testing.T) {
	scorer, interactions := newTestScorer(t)
	now := time.Now().UTC()

	require.NoError(t, interactions.Append(&storage.Interaction{
		ID: "old", Action: storage.ActionView, At: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, interactions.Append(&storage.Interaction{
		ID: "recent", Action: storage.ActionView, At: now.Add(-time.Hour),
	}))

	removed, err := scorer.Purge(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	recent, err := interactions.Recent(0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "recent", recent[0].ID)
}
