// Package vector provides vector math operations for Yggdrasil.
//
// This package consolidates the similarity and normalization calculations
// used throughout the codebase. Use these functions instead of implementing
// your own to ensure consistency between index build time and query time.
//
// Main Functions:
//   - CosineSimilarity: standard similarity for float32 embeddings
//   - CosineSimilarityFloat64: high-precision variant for float64 vectors
//   - Dot: SIMD-accelerated dot product
//   - Norm: SIMD-accelerated Euclidean norm
//   - Normalize: returns a unit-length copy of a vector
package vector

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// CosineSimilarity calculates cosine similarity between two float32 vectors.
// Returns a value in [-1, 1] where 1 = identical, 0 = orthogonal, -1 = opposite.
//
// Mismatched lengths, empty inputs, and zero vectors all return 0 rather
// than NaN, so callers can feed the result straight into score fusion.
//
// Example:
//
//	a := []float32{1.0, 2.0, 3.0}
//	b := []float32{4.0, 5.0, 6.0}
//	sim := vector.CosineSimilarity(a, b) // 0.9746...
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	// vek32.CosineSimilarity returns NaN for zero vectors, we want 0.
	result := float64(vek32.CosineSimilarity(a, b))
	if math.IsNaN(result) {
		return 0
	}
	return result
}

// CosineSimilarityFloat64 calculates cosine similarity between two float64
// vectors with float64 accumulation throughout.
func CosineSimilarityFloat64(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Dot calculates the dot product of two float32 vectors using SIMD
// acceleration. For normalized vectors this equals cosine similarity.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b))
}

// Norm returns the Euclidean norm (magnitude) of a vector.
func Norm(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return float64(vek32.Norm(v))
}

// Normalize returns a unit-length copy of the vector.
// The input is not modified. A zero vector normalizes to a zero vector.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := vek32.Norm(v)
	if n == 0 {
		return out
	}
	copy(out, v)
	vek32.DivNumber_Inplace(out, n)
	return out
}

// NormalizeInPlace normalizes a vector in-place (modifies the input).
// Zero vectors are left untouched.
func NormalizeInPlace(v []float32) {
	n := vek32.Norm(v)
	if n == 0 {
		return
	}
	vek32.DivNumber_Inplace(v, n)
}
