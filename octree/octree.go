// Package octree implements a Morton-ordered octree over fixed-width unsigned coordinates of any
// dimensionality, with range and k-nearest-neighbor queries backed by a generation checked result cache.
//
// Each node owns the region of space given by a prefix of the Morton code of the points beneath it.
// Leaves hold up to a configured fan-out of entries and are split into their 2^D sub-regions when they
// overflow; sub-regions are only materialized once a point falls into them and are dropped again when
// their last point is removed.
//
// An Index is meant for a single writer. Queries only read the tree and may run concurrently with each
// other, but not with Insert or Remove.
package octree

import (
	"github.com/edaniels/golog"

	"go.viam.com/spatialindex/morton"
	"go.viam.com/spatialindex/regioncache"
)

// Each node in the octree is either an internal node which links to child nodes, an empty leaf with no
// entries (only ever the root), or a filled leaf holding one or more entries.
const (
	InternalNode = NodeType(iota)
	LeafNodeEmpty
	LeafNodeFilled
)

// NodeType represents the possible types of nodes in an octree.
type NodeType uint8

func (t NodeType) String() string {
	switch t {
	case InternalNode:
		return "InternalNode"
	case LeafNodeEmpty:
		return "LeafNodeEmpty"
	case LeafNodeFilled:
		return "LeafNodeFilled"
	}
	return "Unknown"
}

// Item is a point and the payload it was inserted with.
type Item[C morton.Coordinate, T comparable] struct {
	Coords  []C
	Payload T
}

// Neighbor is an item returned by KNN together with its distance from the query point.
type Neighbor[C morton.Coordinate, T comparable] struct {
	Coords   []C
	Payload  T
	Distance float64
}

// Index is a Morton-ordered octree mapping points to payloads. Payloads are compared with == when
// removing, so two entries at the same coordinates are told apart by their payloads.
type Index[C morton.Coordinate, T comparable] struct {
	logger golog.Logger
	cfg    Config
	enc    *morton.Encoder
	metric morton.Metric
	cache  *regioncache.Cache[cachedResult[C, T]]

	root       *basicNode[C, T]
	generation uint64
	nextSeq    uint64
}

// entry is a stored point. seq records insertion order and breaks distance ties.
type entry[C morton.Coordinate, T comparable] struct {
	coords  []C
	wide    []uint64
	code    morton.Code
	payload T
	seq     uint64
}

// basicNode is one region of the tree. Internal nodes keep their children sorted by child index, which
// is the canonical traversal order; leaves keep their entries in insertion order.
type basicNode[C morton.Coordinate, T comparable] struct {
	nodeType NodeType
	region   morton.Region
	lo, hi   []uint64
	children []*basicNode[C, T]
	entries  []*entry[C, T]
	size     int
}
