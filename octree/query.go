package octree

import (
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/spatialindex/morton"
)

// cachedResult is what the region cache holds for one query: the items of a range query or the
// neighbors of a k-NN query.
type cachedResult[C morton.Coordinate, T comparable] struct {
	items     []Item[C, T]
	neighbors []Neighbor[C, T]
}

// RangeQuery returns a lazy sequence of the entries inside shape, depth first in Morton order. Entries
// are produced as the tree is walked, so stopping early skips the rest of the walk. Each yielded
// coordinate slice is a copy the caller may keep or modify.
//
// A previous result for the same shape is replayed from the cache if nothing has been inserted or
// removed since. A walk that runs to completion and finds no more than the configured maximum of
// items is cached.
func (idx *Index[C, T]) RangeQuery(shape Shape) (iter.Seq2[[]C, T], error) {
	if shape.Dims() != idx.enc.Dims() {
		return nil, errors.Wrapf(morton.ErrDimensionMismatch, "query shape has %d dimensions, index has %d",
			shape.Dims(), idx.enc.Dims())
	}
	key := "range:" + shape.Fingerprint()

	return func(yield func([]C, T) bool) {
		generation := idx.generation
		if cached, ok := idx.cache.Get(key, generation); ok {
			idx.logger.Debugw("range cache hit", "key", key, "items", len(cached.items))
			for _, it := range cached.items {
				if !yield(slices.Clone(it.Coords), it.Payload) {
					return
				}
			}
			return
		}

		collecting := idx.cache.Enabled()
		var items []Item[C, T]
		complete := idx.root.walk(shape, idx.metric, func(e *entry[C, T]) bool {
			if collecting {
				if len(items) >= idx.cfg.MaxCachedResults {
					collecting = false
					items = nil
				} else {
					items = append(items, Item[C, T]{Coords: e.coords, Payload: e.payload})
				}
			}
			return yield(slices.Clone(e.coords), e.payload)
		})
		if complete && collecting && idx.generation == generation {
			idx.cache.Put(key, cachedResult[C, T]{items: items}, generation)
		}
	}, nil
}

// Range runs RangeQuery and collects the result.
func (idx *Index[C, T]) Range(shape Shape) ([]Item[C, T], error) {
	seq, err := idx.RangeQuery(shape)
	if err != nil {
		return nil, err
	}
	var out []Item[C, T]
	for coords, payload := range seq {
		out = append(out, Item[C, T]{Coords: coords, Payload: payload})
	}
	return out, nil
}

// All returns every entry in Morton order.
func (idx *Index[C, T]) All() iter.Seq2[[]C, T] {
	return func(yield func([]C, T) bool) {
		idx.root.each(func(e *entry[C, T]) bool {
			return yield(slices.Clone(e.coords), e.payload)
		})
	}
}

// walk visits the entries of the subtree that lie inside shape, skipping regions the shape does not
// touch and skipping per-entry tests for regions it covers. It returns false if fn stopped the walk.
func (n *basicNode[C, T]) walk(shape Shape, m morton.Metric, fn func(e *entry[C, T]) bool) bool {
	switch shape.Relate(n.lo, n.hi, m) {
	case Disjoint:
		return true
	case Covers:
		return n.each(fn)
	case Intersects:
	}

	if n.nodeType == InternalNode {
		for _, c := range n.children {
			if !c.walk(shape, m, fn) {
				return false
			}
		}
		return true
	}
	for _, e := range n.entries {
		if shape.Contains(e.wide, m) && !fn(e) {
			return false
		}
	}
	return true
}

func knnFingerprint(query []uint64, k int) string {
	var sb strings.Builder
	sb.WriteString("knn:")
	sb.WriteString(strconv.Itoa(k))
	sb.WriteByte('|')
	writeCoords(&sb, query)
	return sb.String()
}
