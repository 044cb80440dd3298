package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyProvider fails until succeedAfter calls have been made.
type flakyProvider struct {
	calls        int
	succeedAfter int
	vec          []float32
	text         string
	delay        time.Duration
}

func (f *flakyProvider) Embed(ctx context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.calls <= f.succeedAfter {
		return nil, ErrProviderUnavailable
	}
	return f.vec, nil
}

func (f *flakyProvider) Dimensions() int { return len(f.vec) }

func (f *flakyProvider) Generate(ctx context.Context, _ string, _ GenerateOptions) (string, error) {
	f.calls++
	if f.calls <= f.succeedAfter {
		return "", ErrProviderUnavailable
	}
	return f.text, nil
}

func TestWithFallbackUsesLiveWhenHealthy(t *testing.T) {
	live := &flakyProvider{vec: []float32{1, 2, 3}}
	w := NewWithFallback(live, NewFallback(3), time.Second)

	v, err := w.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, v)
}

func TestWithFallbackDegradesOnFailure(t *testing.T) {
	live := &flakyProvider{succeedAfter: 100, vec: []float32{1, 2, 3}}
	fallback := NewFallback(8)
	w := NewWithFallback(live, fallback, time.Second)

	v, err := w.Embed(context.Background(), "text")
	require.NoError(t, err, "the wrapper never surfaces a provider error")
	require.Len(t, v, 8)

	want, _ := fallback.Embed(context.Background(), "text")
	assert.Equal(t, want, v, "the degraded value is the deterministic fallback embedding")
}

func TestWithFallbackDegradesOnTimeout(t *testing.T) {
	live := &flakyProvider{vec: []float32{1}, delay: 500 * time.Millisecond}
	w := NewWithFallback(live, NewFallback(4), 10*time.Millisecond)

	v, err := w.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, v, 4)
}

func TestWithFallbackNilLive(t *testing.T) {
	w := NewWithFallback(nil, NewFallback(4), time.Second)

	v, err := w.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, 4, w.Dimensions())
}

func TestWithFallbackGenerate(t *testing.T) {
	live := &flakyProvider{succeedAfter: 100}
	w := NewWithFallback(live, NewFallback(4), time.Second)

	text, err := w.Generate(context.Background(), "prompt", GenerateOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, text)
	assert.False(t, errors.Is(err, ErrProviderUnavailable))
}
