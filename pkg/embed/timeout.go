package embed

import (
	"context"
	"log"
	"time"
)

// WithFallback wraps a live provider so every call resolves to either the
// live result or the deterministic fallback value within the deadline.
//
// This is the wrapper for scoring paths (link labeling, interaction
// embeddings) where degrading to deterministic values is preferable to
// failing. Query embedding for search deliberately does NOT use it: a
// query that silently falls back would return confidently wrong results,
// so that path surfaces the provider error instead.
type WithFallback struct {
	live     Provider
	fallback Provider
	timeout  time.Duration
}

// NewWithFallback builds the wrapper. timeout <= 0 uses DefaultHTTPTimeout.
func NewWithFallback(live Provider, fallback Provider, timeout time.Duration) *WithFallback {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &WithFallback{live: live, fallback: fallback, timeout: timeout}
}

// Embed returns the live embedding, or the fallback embedding on any
// live-provider failure or timeout. Never returns a provider error.
func (w *WithFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	if w.live != nil {
		tctx, cancel := context.WithTimeout(ctx, w.timeout)
		vec, err := w.live.Embed(tctx, text)
		cancel()
		if err == nil {
			return vec, nil
		}
		log.Printf("embed: live embed failed, using fallback: %v", err)
	}
	return w.fallback.Embed(ctx, text)
}

// Dimensions returns the live provider's dimensions when configured, the
// fallback's otherwise.
func (w *WithFallback) Dimensions() int {
	if w.live != nil && w.live.Dimensions() > 0 {
		return w.live.Dimensions()
	}
	return w.fallback.Dimensions()
}

// Generate returns the live completion, or the fallback completion on any
// live-provider failure or timeout. Never returns a provider error.
func (w *WithFallback) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if w.live != nil {
		tctx, cancel := context.WithTimeout(ctx, w.timeout)
		text, err := w.live.Generate(tctx, prompt, opts)
		cancel()
		if err == nil {
			return text, nil
		}
		log.Printf("embed: live generate failed, using fallback: %v", err)
	}
	return w.fallback.Generate(ctx, prompt, opts)
}

// Verify WithFallback implements Provider
var _ Provider = (*WithFallback)(nil)
