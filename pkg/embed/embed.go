// Package embed abstracts the external embedding/generation provider.
//
// The rest of the engine talks to two narrow interfaces: Embedder (text ->
// fixed-length vector) and Generator (prompt -> text). Two implementations
// exist, selected by configuration, never by runtime type inspection:
//
//   - HTTPProvider: live adapter speaking the OpenAI-compatible REST API
//     (works against OpenAI, Ollama's /v1 endpoints, llama.cpp server).
//   - Fallback: deterministic offline adapter that derives vectors and
//     text from a BLAKE2b hash of the input. Same input, same output,
//     every run, no network.
//
// WithFallback wraps a live provider with a deadline and a fallback, so a
// call always resolves to either the live result or the deterministic
// fallback value — never an unhandled failure. Search-critical paths that
// must NOT silently degrade use the configured provider directly instead
// of the wrapper.
package embed

import (
	"context"
	"errors"
)

// Errors returned by providers.
var (
	// ErrProviderUnavailable means the provider cannot be reached at all.
	ErrProviderUnavailable = errors.New("embed: provider unavailable")
	// ErrProviderTimeout means the provider did not answer within the deadline.
	ErrProviderTimeout = errors.New("embed: provider timed out")
	// ErrEmptyInput means there was nothing to embed or generate from.
	ErrEmptyInput = errors.New("embed: empty input")
)

// Embedder produces a fixed-length embedding vector for a text fragment.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the length of vectors this embedder produces.
	Dimensions() int
}

// GenerateOptions tunes a generation call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float32
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Provider bundles both capabilities of one backend.
type Provider interface {
	Embedder
	Generator
}
