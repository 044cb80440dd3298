// Package linker manages typed links between nodes: multi-signal
// confidence scoring, validated creation and mutation, and bounded cycle
// detection over the active link graph.
package linker

import (
	"strings"
)

// Signals are the per-pair evidence a link's confidence is computed from.
// Each signal lives in [0, 1]. A signal that could not be computed stays
// zero and still counts against the full weight denominator — absent
// evidence lowers confidence rather than inflating the signals that
// happened to be available.
type Signals struct {
	Semantic   float64 // embedding cosine similarity
	AI         float64 // generation-provider label confidence
	Lexical    float64 // character-trigram Jaccard of the texts
	Contextual float64 // recent-interaction overlap
}

// Weights control each signal's share of the final confidence.
type Weights struct {
	Semantic   float64
	AI         float64
	Lexical    float64
	Contextual float64
}

// DefaultWeights returns the standard signal weighting: semantic evidence
// dominates, provider labels matter, surface overlap and recency nudge.
func DefaultWeights() Weights {
	return Weights{
		Semantic:   0.5,
		AI:         0.3,
		Lexical:    0.1,
		Contextual: 0.1,
	}
}

// Scorer combines signals into a link confidence.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer. A zero-valued Weights uses DefaultWeights.
func NewScorer(weights Weights) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Scorer{weights: weights}
}

// Confidence returns the weighted sum of signals over the full weight
// total, clamped to [0, 1].
func (s *Scorer) Confidence(sig Signals) float64 {
	total := s.weights.Semantic + s.weights.AI + s.weights.Lexical + s.weights.Contextual
	if total <= 0 {
		return 0
	}
	sum := s.weights.Semantic*sig.Semantic +
		s.weights.AI*sig.AI +
		s.weights.Lexical*sig.Lexical +
		s.weights.Contextual*sig.Contextual
	c := sum / total
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// TrigramJaccard returns the Jaccard similarity of the character-trigram
// sets of two strings, case-folded. Strings shorter than three runes use
// the whole string as their only "trigram". Returns 0 when either input
// is empty.
func TrigramJaccard(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func trigrams(s string) map[string]struct{} {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	runes := []rune(s)
	out := make(map[string]struct{})
	if len(runes) < 3 {
		out[string(runes)] = struct{}{}
		return out
	}
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = struct{}{}
	}
	return out
}
