package octree

import "go.viam.com/spatialindex/regioncache"

// Stats describes the shape of an index and its cache.
type Stats struct {
	Len        int
	Generation uint64
	// Depth is the deepest level holding a node; an index with only a root has depth 0.
	Depth  int
	Nodes  int
	Leaves int
	Cache  regioncache.Stats
}

// Stats walks the tree and reports its shape along with the cache counters.
func (idx *Index[C, T]) Stats() Stats {
	s := Stats{
		Len:        idx.Len(),
		Generation: idx.generation,
		Cache:      idx.cache.Stats(),
	}
	var count func(n *basicNode[C, T])
	count = func(n *basicNode[C, T]) {
		s.Nodes++
		if int(n.region.Level) > s.Depth {
			s.Depth = int(n.region.Level)
		}
		if n.nodeType != InternalNode {
			s.Leaves++
			return
		}
		for _, c := range n.children {
			count(c)
		}
	}
	count(idx.root)
	return s
}
