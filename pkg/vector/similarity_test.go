package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0.0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0.0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0.0},
		{"empty", nil, nil, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-5)
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestCosineSimilarityKnownValue(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.InDelta(t, 0.97463, CosineSimilarity(a, b), 1e-4)
}

func TestCosineSimilarityFloat64(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{4, 5, 6}
	assert.InDelta(t, 0.97463, CosineSimilarityFloat64(a, b), 1e-4)
	assert.Equal(t, 0.0, CosineSimilarityFloat64(nil, nil))
	assert.Equal(t, 0.0, CosineSimilarityFloat64([]float64{0, 0}, []float64{1, 1}))
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	out := Normalize(v)

	assert.InDelta(t, 1.0, Norm(out), 1e-6)
	assert.Equal(t, []float32{3, 4}, v, "input must not be modified")

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestNormalizeInPlace(t *testing.T) {
	v := []float32{3, 4}
	NormalizeInPlace(v)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	zero := []float32{0, 0}
	NormalizeInPlace(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 32.0, Dot([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-5)
	assert.Equal(t, 0.0, Dot([]float32{1}, []float32{1, 2}))
}
