// Package decay implements exponential time decay and the decay-weighted
// interaction memory built on it.
//
// Everything that ages in this system ages the same way: a half-life
// exponential. Interaction relevance, project freshness, and the recency
// bias in link suggestion all call Weight with their own half-life.
package decay

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/orneryd/yggdrasil/pkg/storage"
	"github.com/orneryd/yggdrasil/pkg/vector"
)

// Weight returns the exponential decay multiplier for the given age:
// 2^(-elapsed/halfLife), so 1.0 at age zero and 0.5 at one half-life.
// Negative ages (clock skew) count as zero; a non-positive half-life
// means no decay at all.
func Weight(elapsed, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1.0
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return math.Exp(-math.Ln2 * elapsed.Hours() / halfLife.Hours())
}

// MemoryConfig tunes the interaction memory scorer.
type MemoryConfig struct {
	// Alpha weights semantic similarity, Beta weights recency. They should
	// sum to 1 but are used as given.
	Alpha float64
	Beta  float64

	// HalfLife is the recency decay half-life.
	HalfLife time.Duration

	// MaxInteractions caps how many recent interactions a scoring pass
	// reads. The log can hold far more; scoring only ever sees the newest
	// window.
	MaxInteractions int
}

// DefaultMemoryConfig returns the standard scoring configuration:
// 70% similarity, 30% recency, 72h half-life, 1000-interaction window.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Alpha:           0.7,
		Beta:            0.3,
		HalfLife:        72 * time.Hour,
		MaxInteractions: 1000,
	}
}

// ScoredInteraction pairs an interaction with its contextual score.
type ScoredInteraction struct {
	Interaction *storage.Interaction
	Similarity  float64 // 0 when the interaction has no embedding
	Recency     float64
	Score       float64
}

// MemoryScorer ranks recent interactions by blended similarity and recency.
type MemoryScorer struct {
	interactions *storage.InteractionStore
	config       MemoryConfig
	now          func() time.Time
}

// NewMemoryScorer creates a scorer over the interaction log. Zero-valued
// config fields fall back to DefaultMemoryConfig.
func NewMemoryScorer(interactions *storage.InteractionStore, config MemoryConfig) *MemoryScorer {
	def := DefaultMemoryConfig()
	if config.Alpha == 0 && config.Beta == 0 {
		config.Alpha, config.Beta = def.Alpha, def.Beta
	}
	if config.HalfLife <= 0 {
		config.HalfLife = def.HalfLife
	}
	if config.MaxInteractions <= 0 {
		config.MaxInteractions = def.MaxInteractions
	}
	return &MemoryScorer{interactions: interactions, config: config, now: time.Now}
}

// Score computes one interaction's contextual score against a query at a
// given moment. Interactions without an embedding score on recency alone:
// their similarity term is zero, not skipped.
func (m *MemoryScorer) Score(in *storage.Interaction, query []float32, now time.Time) ScoredInteraction {
	scored := ScoredInteraction{Interaction: in}
	scored.Recency = Weight(now.Sub(in.At), m.config.HalfLife)
	if len(query) > 0 && len(in.Embedding) > 0 {
		scored.Similarity = float64(vector.CosineSimilarity(query, in.Embedding))
	}
	scored.Score = m.config.Alpha*scored.Similarity + m.config.Beta*scored.Recency
	return scored
}

// Rank scores the newest MaxInteractions entries against the query and
// returns up to topK, highest score first (ties broken newest first).
// An empty query ranks purely by the recency term.
func (m *MemoryScorer) Rank(ctx context.Context, query []float32, topK int) ([]ScoredInteraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	recent, err := m.interactions.Recent(m.config.MaxInteractions)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	scored := make([]ScoredInteraction, 0, len(recent))
	for _, in := range recent {
		scored = append(scored, m.Score(in, query, now))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Interaction.At.After(scored[j].Interaction.At)
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Purge deletes interactions older than the given age and returns how many
// were removed. Age zero purges the whole log.
func (m *MemoryScorer) Purge(olderThan time.Duration) (int, error) {
	cutoff := m.now().UTC().Add(-olderThan)
	return m.interactions.PurgeOlderThan(cutoff)
}
