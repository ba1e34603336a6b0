package octree

import (
	"container/heap"
	"slices"
	"sort"

	"github.com/pkg/errors"

	"go.viam.com/spatialindex/morton"
)

// KNN returns up to k entries closest to query, nearest first. Entries at equal distance come in the
// order they were inserted. k of zero or less yields an empty result.
func (idx *Index[C, T]) KNN(query []C, k int) ([]Neighbor[C, T], error) {
	if len(query) != idx.enc.Dims() {
		return nil, errors.Wrapf(morton.ErrDimensionMismatch, "query has %d components, index has %d",
			len(query), idx.enc.Dims())
	}
	if k <= 0 {
		return []Neighbor[C, T]{}, nil
	}

	wide := morton.Widen(query)
	key := knnFingerprint(wide, k)
	generation := idx.generation
	if cached, ok := idx.cache.Get(key, generation); ok {
		idx.logger.Debugw("knn cache hit", "key", key)
		return cloneNeighbors(cached.neighbors), nil
	}

	s := &knnSearch[C, T]{query: wide, k: k, metric: idx.metric}
	s.visit(idx.root)
	out := s.results()
	idx.cache.Put(key, cachedResult[C, T]{neighbors: out}, generation)
	return cloneNeighbors(out), nil
}

func cloneNeighbors[C morton.Coordinate, T comparable](neighbors []Neighbor[C, T]) []Neighbor[C, T] {
	out := slices.Clone(neighbors)
	for i := range out {
		out[i].Coords = slices.Clone(out[i].Coords)
	}
	return out
}

type candidate[C morton.Coordinate, T comparable] struct {
	e    *entry[C, T]
	rank float64
}

// before orders candidates by rank, then by insertion.
func (a candidate[C, T]) before(b candidate[C, T]) bool {
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.e.seq < b.e.seq
}

// candidateHeap keeps the worst of the best k candidates on top.
type candidateHeap[C morton.Coordinate, T comparable] []candidate[C, T]

func (h candidateHeap[C, T]) Len() int           { return len(h) }
func (h candidateHeap[C, T]) Less(i, j int) bool { return h[j].before(h[i]) }
func (h candidateHeap[C, T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap[C, T]) Push(x any) {
	*h = append(*h, x.(candidate[C, T]))
}

func (h *candidateHeap[C, T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// knnSearch is a branch and bound descent. Children are visited nearest region first and a region is
// skipped once its nearest possible point ranks beyond the current k-th best. Auxiliary memory is the
// k candidates plus one sorted child list per level of the current path.
type knnSearch[C morton.Coordinate, T comparable] struct {
	query  []uint64
	k      int
	metric morton.Metric
	best   candidateHeap[C, T]
}

type childBound[C morton.Coordinate, T comparable] struct {
	node *basicNode[C, T]
	rank float64
}

func (s *knnSearch[C, T]) full() bool {
	return len(s.best) == s.k
}

// prune reports whether a region whose nearest point has rank cannot improve the result.
func (s *knnSearch[C, T]) prune(rank float64) bool {
	return s.full() && rank > s.best[0].rank
}

func (s *knnSearch[C, T]) visit(n *basicNode[C, T]) {
	switch n.nodeType {
	case InternalNode:
		order := make([]childBound[C, T], 0, len(n.children))
		for _, c := range n.children {
			order = append(order, childBound[C, T]{node: c, rank: morton.BoxMinRank(s.query, c.lo, c.hi, s.metric)})
		}
		sort.SliceStable(order, func(i, j int) bool { return order[i].rank < order[j].rank })
		for _, cb := range order {
			if s.prune(cb.rank) {
				return
			}
			s.visit(cb.node)
		}

	case LeafNodeFilled:
		for _, e := range n.entries {
			c := candidate[C, T]{e: e, rank: morton.Rank(s.query, e.wide, s.metric)}
			if !s.full() {
				heap.Push(&s.best, c)
			} else if c.before(s.best[0]) {
				s.best[0] = c
				heap.Fix(&s.best, 0)
			}
		}
	case LeafNodeEmpty:
	}
}

func (s *knnSearch[C, T]) results() []Neighbor[C, T] {
	sorted := []candidate[C, T](s.best)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].before(sorted[j]) })
	out := make([]Neighbor[C, T], len(sorted))
	for i, c := range sorted {
		out[i] = Neighbor[C, T]{Coords: c.e.coords, Payload: c.e.payload, Distance: s.metric.Distance(c.rank)}
	}
	return out
}
