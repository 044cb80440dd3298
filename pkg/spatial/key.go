// Package spatial implements the spatial key encoding and the range-scan
// index built on top of it.
//
// An embedding is reduced to a few dimensions, each dimension quantized to
// a fixed bit width, and the bits interleaved into a single sortable
// 128-bit key (Z-order / Morton encoding). Keys do not preserve distance
// ordering exactly, but points close in the reduced space are usually
// close in key space, which is what makes range-based prefiltering work.
package spatial

import (
	"fmt"
	"math/bits"
	"strconv"
)

// KeyHexWidth is the fixed width of a hex-encoded key. Fixed width is what
// makes lexicographic order on the hex string match numeric order on the
// key, which the storage layer's range scans depend on.
const KeyHexWidth = 32

// Key128 is a 128-bit unsigned integer spatial key.
//
// Arithmetic is saturating: subtracting below zero clamps to zero, adding
// beyond the maximum clamps to the maximum. Range-scan bounds therefore
// never wrap around the key space.
type Key128 struct {
	Hi uint64
	Lo uint64
}

// MaxKey is the largest possible key.
var MaxKey = Key128{Hi: ^uint64(0), Lo: ^uint64(0)}

// AddSat returns k + other, saturating at MaxKey.
func (k Key128) AddSat(other Key128) Key128 {
	lo, carry := bits.Add64(k.Lo, other.Lo, 0)
	hi, overflow := bits.Add64(k.Hi, other.Hi, carry)
	if overflow != 0 {
		return MaxKey
	}
	return Key128{Hi: hi, Lo: lo}
}

// SubSat returns k - other, saturating at zero.
func (k Key128) SubSat(other Key128) Key128 {
	lo, borrow := bits.Sub64(k.Lo, other.Lo, 0)
	hi, underflow := bits.Sub64(k.Hi, other.Hi, borrow)
	if underflow != 0 {
		return Key128{}
	}
	return Key128{Hi: hi, Lo: lo}
}

// Cmp returns -1, 0, or 1 as k is less than, equal to, or greater than other.
func (k Key128) Cmp(other Key128) int {
	switch {
	case k.Hi < other.Hi:
		return -1
	case k.Hi > other.Hi:
		return 1
	case k.Lo < other.Lo:
		return -1
	case k.Lo > other.Lo:
		return 1
	}
	return 0
}

// IsZero reports whether the key is all zero bits.
func (k Key128) IsZero() bool {
	return k.Hi == 0 && k.Lo == 0
}

// shl1 returns k shifted left one bit, dropping the top bit.
func (k Key128) shl1() Key128 {
	return Key128{
		Hi: k.Hi<<1 | k.Lo>>63,
		Lo: k.Lo << 1,
	}
}

// Hex returns the fixed-width lowercase hex encoding of the key.
func (k Key128) Hex() string {
	return fmt.Sprintf("%016x%016x", k.Hi, k.Lo)
}

// String implements fmt.Stringer.
func (k Key128) String() string {
	return k.Hex()
}

// ParseHex decodes a fixed-width hex key produced by Hex.
func ParseHex(s string) (Key128, error) {
	if len(s) != KeyHexWidth {
		return Key128{}, fmt.Errorf("spatial: key hex must be %d chars, got %d", KeyHexWidth, len(s))
	}
	hi, err := strconv.ParseUint(s[:16], 16, 64)
	if err != nil {
		return Key128{}, fmt.Errorf("spatial: bad key hex %q: %w", s, err)
	}
	lo, err := strconv.ParseUint(s[16:], 16, 64)
	if err != nil {
		return Key128{}, fmt.Errorf("spatial: bad key hex %q: %w", s, err)
	}
	return Key128{Hi: hi, Lo: lo}, nil
}

// RadiusBits returns a key with value 2^n, for building scan radii.
// n must be < 128.
func RadiusBits(n uint) Key128 {
	if n >= 128 {
		return MaxKey
	}
	if n >= 64 {
		return Key128{Hi: 1 << (n - 64)}
	}
	return Key128{Lo: 1 << n}
}
