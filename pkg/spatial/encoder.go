package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/orneryd/yggdrasil/pkg/quant"
)

// Default encoding geometry: 8 reduced dimensions at 16 bits each fill the
// 128-bit key exactly.
const (
	DefaultReducedDims = 8
	DefaultBits        = 16
)

// Errors returned by the encoder.
var (
	ErrNoParams   = errors.New("spatial: encoder has no quantization params")
	ErrBadGeometry = errors.New("spatial: dims * bits must fit in 128 key bits")
)

// Encoder turns embeddings into spatial keys under one fixed set of
// quantization parameters.
//
// The encoder is immutable: a params recompute means building a new
// encoder, never mutating an existing one. That keeps the versioning
// contract trivial — every key an encoder ever produced was produced
// under the same params version.
//
// Determinism: same embedding + same params => identical key, always.
type Encoder struct {
	params *quant.Params
	bits   int
}

// NewEncoder creates an encoder for the given params and per-dimension bit
// width. bits <= 0 uses DefaultBits.
func NewEncoder(params *quant.Params, bits int) (*Encoder, error) {
	if params == nil {
		return nil, ErrNoParams
	}
	if bits <= 0 {
		bits = DefaultBits
	}
	if params.ReducedDims*bits > 128 {
		return nil, fmt.Errorf("%w: %d dims * %d bits", ErrBadGeometry, params.ReducedDims, bits)
	}
	return &Encoder{params: params, bits: bits}, nil
}

// Params returns the quantization params this encoder was built with.
func (e *Encoder) Params() *quant.Params {
	return e.params
}

// Version returns the params version keys from this encoder belong to.
func (e *Encoder) Version() int {
	return e.params.Version
}

// Encode produces the spatial key for an embedding.
//
// Pipeline: reduce to D dims, normalize each into [0,1] against the params
// bounds (clamped), quantize to a B-bit integer, then interleave bits
// MSB-first across dimensions — dimension 0's top bit becomes the key's
// top bit, so keys agreeing on the top quantized bits of every dimension
// share a key prefix.
func (e *Encoder) Encode(embedding []float32) (Key128, error) {
	reduced, err := quant.Reduce(embedding, e.params.ReducedDims)
	if err != nil {
		return Key128{}, err
	}

	maxQ := float64(uint64(1)<<uint(e.bits) - 1)
	q := make([]uint64, len(reduced))
	for d, v := range reduced {
		q[d] = uint64(math.Round(e.params.Normalize(v, d) * maxQ))
	}

	var key Key128
	for b := e.bits - 1; b >= 0; b-- {
		for d := range q {
			key = key.shl1()
			key.Lo |= (q[d] >> uint(b)) & 1
		}
	}
	return key, nil
}

// EncodeHex is Encode followed by fixed-width hex formatting.
func (e *Encoder) EncodeHex(embedding []float32) (string, error) {
	key, err := e.Encode(embedding)
	if err != nil {
		return "", err
	}
	return key.Hex(), nil
}
