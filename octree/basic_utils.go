package octree

import (
	"fmt"
	"slices"
	"sort"

	"go.viam.com/spatialindex/morton"
)

// newLeafNodeEmpty creates an empty leaf covering region.
func newLeafNodeEmpty[C morton.Coordinate, T comparable](region morton.Region) *basicNode[C, T] {
	lo, hi := region.Bounds()
	return &basicNode[C, T]{
		nodeType: LeafNodeEmpty,
		region:   region,
		lo:       lo,
		hi:       hi,
	}
}

// insert places e in the subtree, creating the child region it falls in if needed and splitting any
// leaf that grows past the fan-out.
func (n *basicNode[C, T]) insert(idx *Index[C, T], e *entry[C, T]) {
	if !n.checkPointPlacement(e.wide) {
		panic(fmt.Sprintf("octree: point %v descended into %v outside its bounds", e.wide, n.region))
	}
	n.size++
	switch n.nodeType {
	case InternalNode:
		child, _ := n.child(idx.enc.ChildIndexAt(e.code, n.region.Level), true)
		child.insert(idx, e)

	case LeafNodeEmpty, LeafNodeFilled:
		n.nodeType = LeafNodeFilled
		n.entries = append(n.entries, e)
		// a cell cannot be subdivided, so it holds every duplicate of its point
		if len(n.entries) > idx.cfg.Fanout && !n.region.IsCell() {
			n.splitIntoChildren(idx)
		}
	}
}

// splitIntoChildren turns a filled leaf into an internal node and redistributes its entries by their
// next-level region. Children are created only for the regions that receive entries.
func (n *basicNode[C, T]) splitIntoChildren(idx *Index[C, T]) {
	if n.nodeType != LeafNodeFilled {
		panic(fmt.Sprintf("octree: attempted to split %v at %v", n.nodeType, n.region))
	}
	entries := n.entries
	n.nodeType = InternalNode
	n.entries = nil
	n.size = 0
	for _, e := range entries {
		n.insert(idx, e)
	}
	if n.size != len(entries) {
		panic(fmt.Sprintf("octree: split of %v kept %d of %d entries", n.region, n.size, len(entries)))
	}
	idx.logger.Debugw("split leaf", "level", n.region.Level, "entries", len(entries), "children", len(n.children))
}

// remove deletes the first entry at code carrying payload, pruning any child it leaves empty. The root
// is never pruned; it reverts to an empty leaf instead.
func (n *basicNode[C, T]) remove(idx *Index[C, T], code morton.Code, payload T) bool {
	switch n.nodeType {
	case InternalNode:
		child, pos := n.child(idx.enc.ChildIndexAt(code, n.region.Level), false)
		if child == nil || !child.remove(idx, code, payload) {
			return false
		}
		n.size--
		if child.size == 0 {
			n.children = slices.Delete(n.children, pos, pos+1)
			idx.logger.Debugw("collapsed empty region", "level", child.region.Level, "prefix", uint64(child.region.Prefix))
		}
		if len(n.children) == 0 {
			n.nodeType = LeafNodeEmpty
			n.children = nil
		}
		return true

	case LeafNodeFilled:
		for i, e := range n.entries {
			if e.code == code && e.payload == payload {
				n.entries = slices.Delete(n.entries, i, i+1)
				n.size--
				if len(n.entries) == 0 {
					n.nodeType = LeafNodeEmpty
					n.entries = nil
				}
				return true
			}
		}
	case LeafNodeEmpty:
	}
	return false
}

// child finds the child with the given index and its position among the children. When create is set a
// missing child is added as an empty leaf at the position that keeps the children sorted.
func (n *basicNode[C, T]) child(index uint64, create bool) (*basicNode[C, T], int) {
	pos := sort.Search(len(n.children), func(i int) bool {
		return n.children[i].region.ChildIndex() >= index
	})
	if pos < len(n.children) && n.children[pos].region.ChildIndex() == index {
		return n.children[pos], pos
	}
	if !create {
		return nil, pos
	}
	c := newLeafNodeEmpty[C, T](n.region.Child(index))
	n.children = slices.Insert(n.children, pos, c)
	return c, pos
}

// each calls fn for every entry in the subtree in canonical order until fn returns false.
func (n *basicNode[C, T]) each(fn func(e *entry[C, T]) bool) bool {
	if n.nodeType == InternalNode {
		for _, c := range n.children {
			if !c.each(fn) {
				return false
			}
		}
		return true
	}
	for _, e := range n.entries {
		if !fn(e) {
			return false
		}
	}
	return true
}

// checkPointPlacement reports whether the point lies inside the node's region.
func (n *basicNode[C, T]) checkPointPlacement(wide []uint64) bool {
	return morton.BoxWithin(wide, wide, n.lo, n.hi)
}
