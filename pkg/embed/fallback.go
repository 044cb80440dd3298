package embed

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/orneryd/yggdrasil/pkg/vector"
	"golang.org/x/crypto/blake2b"
)

// DefaultFallbackDims is the vector length the fallback embedder produces
// when none is configured.
const DefaultFallbackDims = 512

// Fallback is the deterministic offline provider.
//
// Embed streams a BLAKE2b XOF seeded with the input text and maps the
// output into a unit vector: identical text always embeds to the identical
// vector, and distinct texts land (pseudo-randomly) far apart. That is
// exactly the contract scoring code needs when the live backend is down —
// stable, repeatable values, not semantic quality.
//
// Generate answers with a short deterministic digest of the prompt, which
// callers treat as an opaque label source.
type Fallback struct {
	dims int
}

// NewFallback creates a fallback provider producing dims-length vectors.
// dims <= 0 uses DefaultFallbackDims.
func NewFallback(dims int) *Fallback {
	if dims <= 0 {
		dims = DefaultFallbackDims
	}
	return &Fallback{dims: dims}
}

// Embed derives a deterministic unit vector from text.
func (f *Fallback) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	xof, err := blake2b.NewXOF(uint32(f.dims*4), nil)
	if err != nil {
		return nil, err
	}
	if _, err := xof.Write([]byte(text)); err != nil {
		return nil, err
	}

	buf := make([]byte, f.dims*4)
	if _, err := xof.Read(buf); err != nil {
		return nil, err
	}

	out := make([]float32, f.dims)
	for i := range out {
		u := binary.BigEndian.Uint32(buf[i*4:])
		// Map uint32 onto [-1, 1).
		out[i] = float32(u)/float32(1<<31) - 1
	}
	vector.NormalizeInPlace(out)
	return out, nil
}

// Dimensions returns the configured vector length.
func (f *Fallback) Dimensions() int {
	return f.dims
}

// Generate returns a deterministic digest string for the prompt.
func (f *Fallback) Generate(_ context.Context, prompt string, _ GenerateOptions) (string, error) {
	if prompt == "" {
		return "", ErrEmptyInput
	}
	sum := blake2b.Sum256([]byte(prompt))
	return fmt.Sprintf("fallback:%x", sum[:8]), nil
}

// Verify Fallback implements Provider
var _ Provider = (*Fallback)(nil)
