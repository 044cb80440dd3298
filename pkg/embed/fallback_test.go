package embed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/yggdrasil/pkg/vector"
)

func TestFallbackEmbedDeterministic(t *testing.T) {
	f := NewFallback(64)
	ctx := context.Background()

	a, err := f.Embed(ctx, "the same text")
	require.NoError(t, err)
	b, err := f.Embed(ctx, "the same text")
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical input must embed identically")

	c, err := f.Embed(ctx, "different text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestFallbackEmbedUnitLength(t *testing.T) {
	f := NewFallback(128)
	v, err := f.Embed(context.Background(), "anything at all")
	require.NoError(t, err)
	require.Len(t, v, 128)
	assert.InDelta(t, 1.0, vector.Norm(v), 1e-5)
}

func TestFallbackEmbedDistinctTextsFarApart(t *testing.T) {
	f := NewFallback(256)
	ctx := context.Background()

	a, _ := f.Embed(ctx, "first document")
	b, _ := f.Embed(ctx, "second document")
	// Hash-derived vectors are pseudo-random: distinct inputs land near
	// orthogonal in high dimensions.
	assert.Less(t, vector.CosineSimilarity(a, b), 0.5)
}

func TestFallbackDefaults(t *testing.T) {
	f := NewFallback(0)
	assert.Equal(t, DefaultFallbackDims, f.Dimensions())
}

func TestFallbackEmptyInput(t *testing.T) {
	f := NewFallback(16)
	_, err := f.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = f.Generate(context.Background(), "", GenerateOptions{})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestFallbackGenerateDeterministic(t *testing.T) {
	f := NewFallback(16)
	ctx := context.Background()

	a, err := f.Generate(ctx, "prompt", GenerateOptions{})
	require.NoError(t, err)
	b, err := f.Generate(ctx, "prompt", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "fallback:"))
}
