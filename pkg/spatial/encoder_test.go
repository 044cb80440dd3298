package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/yggdrasil/pkg/quant"
)

func unitParams(dims int) *quant.Params {
	bounds := make([]quant.DimBounds, dims)
	for d := range bounds {
		bounds[d] = quant.DimBounds{Min: 0, Max: 1}
	}
	return &quant.Params{
		SourceDims:  dims,
		ReducedDims: dims,
		Bounds:      bounds,
	}
}

func TestNewEncoderValidation(t *testing.T) {
	_, err := NewEncoder(nil, 16)
	assert.ErrorIs(t, err, ErrNoParams)

	_, err = NewEncoder(unitParams(9), 16)
	assert.ErrorIs(t, err, ErrBadGeometry)

	enc, err := NewEncoder(unitParams(8), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBits, enc.bits)
}

func TestEncodeDeterministic(t *testing.T) {
	enc, err := NewEncoder(unitParams(4), 8)
	require.NoError(t, err)

	v := []float32{0.1, 0.5, 0.9, 0.3}
	k1, err := enc.Encode(v)
	require.NoError(t, err)
	k2, err := enc.Encode(v)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestEncodeExtremes(t *testing.T) {
	enc, err := NewEncoder(unitParams(4), 8)
	require.NoError(t, err)

	lo, err := enc.Encode([]float32{0, 0, 0, 0})
	require.NoError(t, err)
	assert.True(t, lo.IsZero())

	hi, err := enc.Encode([]float32{1, 1, 1, 1})
	require.NoError(t, err)
	// 4 dims x 8 bits all set fills the low 32 key bits exactly.
	assert.Equal(t, Key128{Lo: 0xFFFFFFFF}, hi)
}

// The MSB-first interleave must put dimension 0's top bit at the top of
// the used key bits, so agreeing on coarse position means sharing a key
// prefix.
func TestEncodeInterleaveOrder(t *testing.T) {
	enc, err := NewEncoder(unitParams(2), 4)
	require.NoError(t, err)

	// dim0 = 1.0 (1111), dim1 = 0.0 (0000): interleaved 10101010.
	k, err := enc.Encode([]float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, Key128{Lo: 0xAA}, k)

	// dim0 = 0.0, dim1 = 1.0: interleaved 01010101.
	k, err = enc.Encode([]float32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, Key128{Lo: 0x55}, k)
}

func TestEncodeNearbyPointsShareHighBits(t *testing.T) {
	enc, err := NewEncoder(unitParams(4), 8)
	require.NoError(t, err)

	a, err := enc.Encode([]float32{0.50, 0.50, 0.50, 0.50})
	require.NoError(t, err)
	b, err := enc.Encode([]float32{0.51, 0.50, 0.50, 0.51})
	require.NoError(t, err)
	far, err := enc.Encode([]float32{0.95, 0.05, 0.95, 0.05})
	require.NoError(t, err)

	near := a.SubSat(b)
	if b.Cmp(a) > 0 {
		near = b.SubSat(a)
	}
	dist := a.SubSat(far)
	if far.Cmp(a) > 0 {
		dist = far.SubSat(a)
	}
	assert.Equal(t, -1, near.Cmp(dist), "nearby points must have closer keys than distant ones")
}

func TestEncodeHexWidth(t *testing.T) {
	enc, err := NewEncoder(unitParams(8), 16)
	require.NoError(t, err)

	hex, err := enc.EncodeHex([]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8})
	require.NoError(t, err)
	assert.Len(t, hex, KeyHexWidth)
}
