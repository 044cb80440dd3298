// Package quant computes quantization parameters for spatial key encoding.
//
// Embeddings are high-dimensional (hundreds of dimensions); spatial keys
// are built from a small number of reduced dimensions. This package owns
// both halves of that mapping:
//
//   - Reduce: deterministic dimensionality reduction from N source
//     dimensions to D reduced dimensions by averaging contiguous groups.
//   - Params: per-reduced-dimension min/max bounds computed over a sample
//     of embeddings, used to normalize values into [0, 1] before
//     quantization.
//
// Params are versioned. Every spatial key carries an implicit params
// version: keys computed under one version must never be range-scanned
// against keys computed under another. The federation layer bumps the
// version on recompute and re-keys every index before scans resume.
package quant

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by parameter computation.
var (
	ErrEmptySample   = errors.New("quant: empty embedding sample")
	ErrDimMismatch   = errors.New("quant: embedding dimension mismatch")
	ErrInvalidReduce = errors.New("quant: reduced dimensions must be in [1, source dimensions]")
)

// boundsEpsilon widens degenerate bounds where min == max, so
// normalization never divides by zero.
const boundsEpsilon = 1e-6

// DimBounds holds the observed value range of one reduced dimension.
type DimBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Params holds versioned quantization parameters for one federation.
//
// SourceDims and ReducedDims pin the reduction mapping: contiguous
// grouping is fully determined by the two counts, so storing them is
// enough to reproduce the identical mapping at query time.
type Params struct {
	Version     int         `json:"version"`
	SourceDims  int         `json:"source_dims"`
	ReducedDims int         `json:"reduced_dims"`
	Bounds      []DimBounds `json:"bounds"`
	ComputedAt  time.Time   `json:"computed_at"`
}

// Reduce maps an embedding of SourceDims values onto ReducedDims values by
// averaging contiguous groups of source dimensions.
//
// Group boundaries are i*N/D (integer arithmetic), so uneven divisions
// spread the remainder deterministically. The same mapping is applied at
// index-build time and query time; determinism here is what makes spatial
// keys comparable at all.
func Reduce(embedding []float32, reducedDims int) ([]float64, error) {
	n := len(embedding)
	if n == 0 {
		return nil, ErrEmptySample
	}
	if reducedDims < 1 || reducedDims > n {
		return nil, fmt.Errorf("%w: got %d for %d source dims", ErrInvalidReduce, reducedDims, n)
	}

	out := make([]float64, reducedDims)
	for d := 0; d < reducedDims; d++ {
		lo := d * n / reducedDims
		hi := (d + 1) * n / reducedDims
		var sum float64
		for i := lo; i < hi; i++ {
			sum += float64(embedding[i])
		}
		out[d] = sum / float64(hi-lo)
	}
	return out, nil
}

// Compute builds Params from a representative sample of embeddings.
//
// Single pass: each embedding is reduced, then per-dimension min/max are
// folded in. Degenerate dimensions (min == max, e.g. a one-embedding
// sample) get an epsilon-widened range.
//
// The returned Params have Version 0; the federation layer assigns the
// next version number when adopting them.
func Compute(sample [][]float32, reducedDims int) (*Params, error) {
	if len(sample) == 0 {
		return nil, ErrEmptySample
	}

	sourceDims := len(sample[0])
	if sourceDims == 0 {
		return nil, ErrEmptySample
	}

	bounds := make([]DimBounds, reducedDims)
	first := true
	for _, emb := range sample {
		if len(emb) != sourceDims {
			return nil, fmt.Errorf("%w: sample has %d and %d dim embeddings",
				ErrDimMismatch, sourceDims, len(emb))
		}
		reduced, err := Reduce(emb, reducedDims)
		if err != nil {
			return nil, err
		}
		for d, v := range reduced {
			if first {
				bounds[d] = DimBounds{Min: v, Max: v}
				continue
			}
			if v < bounds[d].Min {
				bounds[d].Min = v
			}
			if v > bounds[d].Max {
				bounds[d].Max = v
			}
		}
		first = false
	}

	for d := range bounds {
		if bounds[d].Max == bounds[d].Min {
			bounds[d].Max = bounds[d].Min + boundsEpsilon
		}
	}

	return &Params{
		SourceDims:  sourceDims,
		ReducedDims: reducedDims,
		Bounds:      bounds,
		ComputedAt:  time.Now().UTC(),
	}, nil
}

// Normalize maps a reduced value in dimension d into [0, 1], clamping
// values outside the observed bounds.
func (p *Params) Normalize(v float64, d int) float64 {
	b := p.Bounds[d]
	n := (v - b.Min) / (b.Max - b.Min)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// Contains reports whether every reduced value falls within the observed
// bounds. Out-of-bounds values still encode (clamped), but a growing
// out-of-bounds fraction means the params have gone stale.
func (p *Params) Contains(reduced []float64) bool {
	for d, v := range reduced {
		if d >= len(p.Bounds) {
			return false
		}
		if v < p.Bounds[d].Min || v > p.Bounds[d].Max {
			return false
		}
	}
	return true
}

// OutOfBoundsFraction returns the fraction of sample embeddings with at
// least one reduced dimension outside the current bounds. The federation
// layer uses this as its staleness signal.
func (p *Params) OutOfBoundsFraction(sample [][]float32) float64 {
	if len(sample) == 0 {
		return 0
	}
	outside := 0
	for _, emb := range sample {
		reduced, err := Reduce(emb, p.ReducedDims)
		if err != nil || !p.Contains(reduced) {
			outside++
		}
	}
	return float64(outside) / float64(len(sample))
}
