package linker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceDefaults(t *testing.T) {
	s := NewScorer(Weights{})

	// All signals maxed gives full confidence.
	assert.InDelta(t, 1.0, s.Confidence(Signals{Semantic: 1, AI: 1, Lexical: 1, Contextual: 1}), 1e-9)

	// All signals zero gives zero.
	assert.Equal(t, 0.0, s.Confidence(Signals{}))

	// Semantic alone carries its weight share.
	assert.InDelta(t, 0.5, s.Confidence(Signals{Semantic: 1}), 1e-9)
}

func TestConfidenceMissingSignalsLowerScore(t *testing.T) {
	s := NewScorer(DefaultWeights())

	full := s.Confidence(Signals{Semantic: 0.9, AI: 0.9, Lexical: 0.9, Contextual: 0.9})
	partial := s.Confidence(Signals{Semantic: 0.9})
	assert.Less(t, partial, full,
		"a missing signal counts as zero against the full denominator")
	assert.InDelta(t, 0.45, partial, 1e-9)
}

func TestConfidenceCustomWeights(t *testing.T) {
	s := NewScorer(Weights{Semantic: 1})
	assert.InDelta(t, 0.8, s.Confidence(Signals{Semantic: 0.8, AI: 1, Lexical: 1}), 1e-9)
}

func TestConfidenceClamps(t *testing.T) {
	s := NewScorer(DefaultWeights())
	assert.Equal(t, 1.0, s.Confidence(Signals{Semantic: 2, AI: 2, Lexical: 2, Contextual: 2}))
	assert.Equal(t, 0.0, s.Confidence(Signals{Semantic: -1}))
}

func TestTrigramJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "semantic index", "semantic index", 1.0},
		{"disjoint", "abcdef", "uvwxyz", 0.0},
		{"empty left", "", "abc", 0.0},
		{"both empty", "", "", 0.0},
		{"case folded", "Hello", "hello", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TrigramJaccard(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTrigramJaccardPartialOverlap(t *testing.T) {
	got := TrigramJaccard("spatial index", "spatial range")
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 1.0)
}

func TestTrigramJaccardShortStrings(t *testing.T) {
	assert.Equal(t, 1.0, TrigramJaccard("ab", "ab"))
	assert.Equal(t, 0.0, TrigramJaccard("ab", "cd"))
}
