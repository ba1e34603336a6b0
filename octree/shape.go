package octree

import (
	"math"
	"strconv"
	"strings"

	"go.viam.com/spatialindex/morton"
)

// Relation describes how a query shape relates to a node's region.
type Relation uint8

// A shape is either disjoint from a region, partially overlaps it, or covers all of it.
const (
	Disjoint = Relation(iota)
	Intersects
	Covers
)

// Shape is a query volume. Points are in the uint64 domain of morton.Widen.
type Shape interface {
	// Dims returns the dimensionality of the shape.
	Dims() int
	// Contains reports whether p lies inside the shape.
	Contains(p []uint64, m morton.Metric) bool
	// Relate classifies the inclusive box [lo, hi] against the shape. It may report Intersects for
	// a box it actually covers, but never Disjoint or Covers wrongly.
	Relate(lo, hi []uint64, m morton.Metric) Relation
	// Fingerprint identifies the shape exactly, for use as a cache key.
	Fingerprint() string
}

// Box is an axis aligned box with inclusive corners.
type Box struct {
	Min, Max []uint64
}

// NewBox returns the inclusive box from min to max.
func NewBox[C morton.Coordinate](min, max []C) Box {
	return Box{Min: morton.Widen(min), Max: morton.Widen(max)}
}

// Dims returns the dimensionality of the box.
func (b Box) Dims() int {
	if len(b.Min) != len(b.Max) {
		return -1
	}
	return len(b.Min)
}

// Contains reports whether p lies inside the box.
func (b Box) Contains(p []uint64, _ morton.Metric) bool {
	return morton.BoxWithin(p, p, b.Min, b.Max)
}

// Relate classifies [lo, hi] against the box.
func (b Box) Relate(lo, hi []uint64, _ morton.Metric) Relation {
	switch {
	case !morton.BoxesOverlap(lo, hi, b.Min, b.Max):
		return Disjoint
	case morton.BoxWithin(lo, hi, b.Min, b.Max):
		return Covers
	default:
		return Intersects
	}
}

// Fingerprint identifies the box.
func (b Box) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString("box:")
	writeCoords(&sb, b.Min)
	sb.WriteByte('|')
	writeCoords(&sb, b.Max)
	return sb.String()
}

// Sphere is the set of points within Radius of Center under the index's metric, boundary included.
type Sphere struct {
	Center []uint64
	Radius float64
}

// NewSphere returns the sphere of radius around center.
func NewSphere[C morton.Coordinate](center []C, radius float64) Sphere {
	return Sphere{Center: morton.Widen(center), Radius: radius}
}

// Dims returns the dimensionality of the sphere.
func (s Sphere) Dims() int {
	return len(s.Center)
}

// Contains reports whether p lies within the sphere.
func (s Sphere) Contains(p []uint64, m morton.Metric) bool {
	if s.Radius < 0 || math.IsNaN(s.Radius) {
		return false
	}
	return morton.Rank(p, s.Center, m) <= m.RankOf(s.Radius)
}

// Relate classifies [lo, hi] against the sphere by the nearest and farthest points of the box.
func (s Sphere) Relate(lo, hi []uint64, m morton.Metric) Relation {
	if s.Radius < 0 || math.IsNaN(s.Radius) {
		return Disjoint
	}
	limit := m.RankOf(s.Radius)
	if morton.BoxMinRank(s.Center, lo, hi, m) > limit {
		return Disjoint
	}
	if boxMaxRank(s.Center, lo, hi, m) <= limit {
		return Covers
	}
	return Intersects
}

// Fingerprint identifies the sphere. The radius is keyed by its exact bits.
func (s Sphere) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString("sphere:")
	writeCoords(&sb, s.Center)
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatUint(math.Float64bits(s.Radius), 16))
	return sb.String()
}

// boxMaxRank returns the rank from p to the farthest corner of [lo, hi].
func boxMaxRank(p, lo, hi []uint64, m morton.Metric) float64 {
	var buf [8]float64
	deltas := buf[:0]
	for j, v := range p {
		a, b := absDiff(v, lo[j]), absDiff(v, hi[j])
		if b > a {
			a = b
		}
		deltas = append(deltas, float64(a))
	}
	return m.Rank(deltas)
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func writeCoords(sb *strings.Builder, coords []uint64) {
	for i, c := range coords {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(c, 10))
	}
}
