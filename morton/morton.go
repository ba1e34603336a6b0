// Package morton implements Z-order (Morton) encoding of fixed-width unsigned coordinates and the
// hierarchical regions that prefixes of those codes identify.
//
// A code interleaves the bits of each coordinate component round-robin, least significant bit first:
// bit i of component j lands at bit i*D+j of the code. A region at level L is the set of codes that
// share the top L*D bits of the D*B bit code, which is an axis aligned cube with side 2^(B-L).
package morton

import (
	"fmt"
	"math/bits"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// MaxCodeBits is the width of a Code. Dimensions times bits per coordinate may not exceed it.
const MaxCodeBits = 64

// Coordinate is the capability required of a coordinate component: a fixed-width unsigned integer
// whose bits can be extracted and which is totally ordered.
type Coordinate interface {
	constraints.Unsigned
}

// Code is an interleaved Morton key.
type Code uint64

// Level is a depth in the region hierarchy. Level 0 is the whole domain.
type Level int

// Encoder converts between coordinates and codes for a fixed dimensionality and bit width.
type Encoder struct {
	dims     int
	bits     int
	maxCoord uint64
}

// NewEncoder returns an encoder for dims components of bits bits each.
func NewEncoder(dims, bits int) (*Encoder, error) {
	if dims <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "dimensions must be positive, got %d", dims)
	}
	if bits <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "bits per coordinate must be positive, got %d", bits)
	}
	if dims*bits > MaxCodeBits {
		return nil, errors.Wrapf(ErrInvalidConfiguration,
			"%d dimensions of %d bits do not fit in a %d bit code", dims, bits, MaxCodeBits)
	}
	return &Encoder{dims: dims, bits: bits, maxCoord: lowMask(bits)}, nil
}

// Dims returns the number of coordinate components.
func (e *Encoder) Dims() int {
	return e.dims
}

// Bits returns the number of bits per coordinate component.
func (e *Encoder) Bits() int {
	return e.bits
}

// MaxLevel returns the deepest level, at which a region is a single cell.
func (e *Encoder) MaxLevel() Level {
	return Level(e.bits)
}

// MaxCoordinate returns the largest representable component value.
func (e *Encoder) MaxCoordinate() uint64 {
	return e.maxCoord
}

// EncodeUint64 interleaves coords into a code.
func (e *Encoder) EncodeUint64(coords []uint64) (Code, error) {
	if len(coords) != e.dims {
		return 0, errors.Wrapf(ErrDimensionMismatch, "expected %d components, got %d", e.dims, len(coords))
	}
	for i, c := range coords {
		if c > e.maxCoord {
			return 0, errors.Wrapf(ErrOutOfRange, "component %d is %d, max is %d (%d bits)", i, c, e.maxCoord, e.bits)
		}
	}
	switch e.dims {
	case 1:
		return Code(coords[0]), nil
	case 2:
		return Code(spread2(coords[0]) | spread2(coords[1])<<1), nil
	case 3:
		return Code(spread3(coords[0]) | spread3(coords[1])<<1 | spread3(coords[2])<<2), nil
	default:
		return e.interleave(coords), nil
	}
}

// DecodeUint64 is the inverse of EncodeUint64.
func (e *Encoder) DecodeUint64(code Code) []uint64 {
	out := make([]uint64, e.dims)
	e.DecodeInto(code, out)
	return out
}

// DecodeInto decodes code into dst, which must have length Dims.
func (e *Encoder) DecodeInto(code Code, dst []uint64) {
	v := uint64(code)
	switch e.dims {
	case 1:
		dst[0] = v
	case 2:
		dst[0] = compact2(v)
		dst[1] = compact2(v >> 1)
	case 3:
		dst[0] = compact3(v)
		dst[1] = compact3(v >> 1)
		dst[2] = compact3(v >> 2)
	default:
		deinterleave(v, e.dims, e.bits, dst)
	}
}

// CommonPrefixLevel returns the deepest level at which a and b fall in the same region. Identical
// codes share every level, so MaxLevel is returned for them.
func (e *Encoder) CommonPrefixLevel(a, b Code) Level {
	diff := uint64(a ^ b)
	if diff == 0 {
		return e.MaxLevel()
	}
	top := MaxCodeBits - 1 - bits.LeadingZeros64(diff)
	return Level((e.dims*e.bits - 1 - top) / e.dims)
}

// Root returns the level 0 region covering the whole domain.
func (e *Encoder) Root() Region {
	return Region{dims: uint8(e.dims), bits: uint8(e.bits)}
}

// RegionOf returns the region at level that contains code.
func (e *Encoder) RegionOf(code Code, level Level) Region {
	if level < 0 || level > e.MaxLevel() {
		panic(fmt.Sprintf("morton: level %d outside [0, %d]", level, e.bits))
	}
	shift := uint((e.bits - int(level)) * e.dims)
	return Region{Prefix: code >> shift, Level: level, dims: uint8(e.dims), bits: uint8(e.bits)}
}

// ChildIndexAt returns the D bit section of code that selects the child of its level region.
func (e *Encoder) ChildIndexAt(code Code, level Level) uint64 {
	shift := uint((e.bits - int(level) - 1) * e.dims)
	return (uint64(code) >> shift) & lowMask(e.dims)
}

// Encode interleaves coords into a code.
func Encode[C Coordinate](e *Encoder, coords []C) (Code, error) {
	if len(coords) != e.dims {
		return 0, errors.Wrapf(ErrDimensionMismatch, "expected %d components, got %d", e.dims, len(coords))
	}
	var buf [8]uint64
	wide := buf[:0]
	for _, c := range coords {
		wide = append(wide, uint64(c))
	}
	return e.EncodeUint64(wide)
}

// Decode is the inverse of Encode. The encoder's bit width must fit in C.
func Decode[C Coordinate](e *Encoder, code Code) []C {
	wide := make([]uint64, e.dims)
	e.DecodeInto(code, wide)
	out := make([]C, e.dims)
	for i, c := range wide {
		out[i] = C(c)
	}
	return out
}

// Widen converts coords to the uint64 domain regions and metrics work in.
func Widen[C Coordinate](coords []C) []uint64 {
	out := make([]uint64, len(coords))
	for i, c := range coords {
		out[i] = uint64(c)
	}
	return out
}

func (e *Encoder) interleave(coords []uint64) Code {
	var code uint64
	for i := 0; i < e.bits; i++ {
		for j, c := range coords {
			code |= ((c >> uint(i)) & 1) << uint(i*e.dims+j)
		}
	}
	return Code(code)
}

// deinterleave gathers the first bits bits of each of dims components out of v.
func deinterleave(v uint64, dims, bits int, dst []uint64) {
	for j := range dst[:dims] {
		dst[j] = 0
	}
	for i := 0; i < bits; i++ {
		for j := 0; j < dims; j++ {
			dst[j] |= ((v >> uint(i*dims+j)) & 1) << uint(i)
		}
	}
}

// lowMask returns a mask of the n low bits. n may be 64.
func lowMask(n int) uint64 {
	return (uint64(1) << uint(n)) - 1
}

func spread2(x uint64) uint64 {
	x &= 0x00000000ffffffff
	x = (x | x<<16) & 0x0000ffff0000ffff
	x = (x | x<<8) & 0x00ff00ff00ff00ff
	x = (x | x<<4) & 0x0f0f0f0f0f0f0f0f
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return x
}

func compact2(x uint64) uint64 {
	x &= 0x5555555555555555
	x = (x | x>>1) & 0x3333333333333333
	x = (x | x>>2) & 0x0f0f0f0f0f0f0f0f
	x = (x | x>>4) & 0x00ff00ff00ff00ff
	x = (x | x>>8) & 0x0000ffff0000ffff
	x = (x | x>>16) & 0x00000000ffffffff
	return x
}

func spread3(x uint64) uint64 {
	x &= 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}

func compact3(x uint64) uint64 {
	x &= 0x1249249249249249
	x = (x | x>>2) & 0x10c30c30c30c30c3
	x = (x | x>>4) & 0x100f00f00f00f00f
	x = (x | x>>8) & 0x1f0000ff0000ff
	x = (x | x>>16) & 0x1f00000000ffff
	x = (x | x>>32) & 0x1fffff
	return x
}
