package morton

import (
	"fmt"
	"math"
)

// Region is an axis aligned cube identified by the top Level*D bits of the codes it contains.
// Regions are values; the zero Region is not valid and should be obtained from Encoder.Root.
type Region struct {
	Prefix Code
	Level  Level

	dims uint8
	bits uint8
}

// Dims returns the dimensionality of the region.
func (r Region) Dims() int {
	return int(r.dims)
}

// IsCell reports whether the region is at the deepest level and cannot be subdivided.
func (r Region) IsCell() bool {
	return int(r.Level) == int(r.bits)
}

// shift is the number of code bits below the region's prefix.
func (r Region) shift() uint {
	return uint((int(r.bits) - int(r.Level)) * int(r.dims))
}

// Contains reports whether code's prefix at the region's level equals the region's prefix.
func (r Region) Contains(code Code) bool {
	return code>>r.shift() == r.Prefix
}

// Child returns the sub-region selected by the D bit index i.
func (r Region) Child(i uint64) Region {
	if r.IsCell() {
		panic(fmt.Sprintf("morton: cannot subdivide cell region %v", r))
	}
	if i > lowMask(int(r.dims)) {
		panic(fmt.Sprintf("morton: child index %d out of range for %d dimensions", i, r.dims))
	}
	return Region{
		Prefix: r.Prefix<<r.dims | Code(i),
		Level:  r.Level + 1,
		dims:   r.dims,
		bits:   r.bits,
	}
}

// Children partitions the region into its 2^D sub-regions in ascending child index order.
func (r Region) Children() []Region {
	n := uint64(1) << r.dims
	out := make([]Region, 0, n)
	for i := uint64(0); i < n; i++ {
		out = append(out, r.Child(i))
	}
	return out
}

// ChildIndex returns the index of the region within its parent.
func (r Region) ChildIndex() uint64 {
	if r.Level == 0 {
		return 0
	}
	return uint64(r.Prefix) & lowMask(int(r.dims))
}

// Parent returns the enclosing region one level up. The root has no parent.
func (r Region) Parent() (Region, bool) {
	if r.Level == 0 {
		return r, false
	}
	return Region{Prefix: r.Prefix >> r.dims, Level: r.Level - 1, dims: r.dims, bits: r.bits}, true
}

// Next returns the sibling with the following child index. The root and the last child of a parent have
// no next sibling.
func (r Region) Next() (Region, bool) {
	if r.Level == 0 || r.ChildIndex() == lowMask(int(r.dims)) {
		return r, false
	}
	return Region{Prefix: r.Prefix + 1, Level: r.Level, dims: r.dims, bits: r.bits}, true
}

// Bounds returns the inclusive lower and upper corners of the region's cube.
func (r Region) Bounds() (lo, hi []uint64) {
	lo = make([]uint64, r.dims)
	hi = make([]uint64, r.dims)
	r.BoundsInto(lo, hi)
	return lo, hi
}

// BoundsInto writes the region's inclusive corners into lo and hi, which must have length Dims.
func (r Region) BoundsInto(lo, hi []uint64) {
	deinterleave(uint64(r.Prefix), int(r.dims), int(r.Level), lo)
	free := uint(int(r.bits) - int(r.Level))
	mask := lowMask(int(free))
	for j := range lo {
		lo[j] <<= free
		hi[j] = lo[j] | mask
	}
}

// Side returns the length of the region's edge in coordinate units.
func (r Region) Side() float64 {
	return math.Ldexp(1, int(r.bits)-int(r.Level))
}

// Center returns the midpoint of the region's cube. For a single cell this is the cell's lower
// corner plus one half.
func (r Region) Center() []float64 {
	lo, _ := r.Bounds()
	half := r.Side() / 2
	out := make([]float64, len(lo))
	for j, v := range lo {
		out[j] = float64(v) + half
	}
	return out
}

// MinRank returns the metric rank from p to the nearest point of the region. It is zero when p is
// inside the region and never exceeds the rank to any point the region contains.
func (r Region) MinRank(p []uint64, m Metric) float64 {
	lo, hi := r.Bounds()
	return BoxMinRank(p, lo, hi, m)
}

// OverlapsSphere reports whether any point of the region may lie within radius of center.
func (r Region) OverlapsSphere(center []uint64, radius float64, m Metric) bool {
	if radius < 0 {
		return false
	}
	return r.MinRank(center, m) <= m.RankOf(radius)
}

// OverlapsBox reports whether the region intersects the inclusive box [min, max].
func (r Region) OverlapsBox(min, max []uint64) bool {
	lo, hi := r.Bounds()
	return BoxesOverlap(lo, hi, min, max)
}

// WithinBox reports whether the region lies entirely inside the inclusive box [min, max].
func (r Region) WithinBox(min, max []uint64) bool {
	lo, hi := r.Bounds()
	return BoxWithin(lo, hi, min, max)
}

func (r Region) String() string {
	return fmt.Sprintf("region(prefix=%#x level=%d)", uint64(r.Prefix), r.Level)
}

// BoxMinRank returns the metric rank from p to the nearest point of the inclusive box [lo, hi],
// clamping p onto the box one axis at a time.
func BoxMinRank(p, lo, hi []uint64, m Metric) float64 {
	var buf [8]float64
	deltas := buf[:0]
	for j, v := range p {
		var d float64
		switch {
		case v < lo[j]:
			d = float64(lo[j] - v)
		case v > hi[j]:
			d = float64(v - hi[j])
		}
		deltas = append(deltas, d)
	}
	return m.Rank(deltas)
}

// BoxesOverlap reports whether inclusive boxes [alo, ahi] and [blo, bhi] intersect.
func BoxesOverlap(alo, ahi, blo, bhi []uint64) bool {
	for j := range alo {
		if ahi[j] < blo[j] || alo[j] > bhi[j] {
			return false
		}
	}
	return true
}

// BoxWithin reports whether inclusive box [alo, ahi] lies inside [blo, bhi].
func BoxWithin(alo, ahi, blo, bhi []uint64) bool {
	for j := range alo {
		if alo[j] < blo[j] || ahi[j] > bhi[j] {
			return false
		}
	}
	return true
}
