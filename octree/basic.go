package octree

import (
	"slices"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"go.viam.com/spatialindex/morton"
	"go.viam.com/spatialindex/regioncache"
)

// New creates an empty index shaped by cfg.
func New[C morton.Coordinate, T comparable](cfg Config, logger golog.Logger) (*Index[C, T], error) {
	if err := cfg.Validate("octree"); err != nil {
		return nil, err
	}
	enc, err := morton.NewEncoder(cfg.Dimensions, cfg.BitsPerCoordinate)
	if err != nil {
		return nil, err
	}
	if cfg.MaxCachedResults == 0 {
		cfg.MaxCachedResults = DefaultMaxCachedResults
	}

	idx := &Index[C, T]{
		logger: logger,
		cfg:    cfg,
		enc:    enc,
		metric: cfg.resolveMetric(),
		cache:  regioncache.New[cachedResult[C, T]](cfg.CacheCapacity),
		root:   newLeafNodeEmpty[C, T](enc.Root()),
	}
	logger.Debugw("created octree index",
		"dimensions", cfg.Dimensions,
		"bits_per_coordinate", cfg.BitsPerCoordinate,
		"fanout", cfg.Fanout,
		"cache_capacity", cfg.CacheCapacity)
	return idx, nil
}

// Create is shorthand for New with a Euclidean metric.
func Create[C morton.Coordinate, T comparable](
	dims, bitsPerCoordinate, fanout, cacheCapacity int,
	logger golog.Logger,
) (*Index[C, T], error) {
	return New[C, T](Config{
		Dimensions:        dims,
		BitsPerCoordinate: bitsPerCoordinate,
		Fanout:            fanout,
		CacheCapacity:     cacheCapacity,
	}, logger)
}

// Len returns the number of entries in the index.
func (idx *Index[C, T]) Len() int {
	return idx.root.size
}

// IsEmpty reports whether the index holds no entries.
func (idx *Index[C, T]) IsEmpty() bool {
	return idx.root.size == 0
}

// Generation returns a counter that increases on every successful Insert or Remove.
func (idx *Index[C, T]) Generation() uint64 {
	return idx.generation
}

// Dims returns the number of coordinate components.
func (idx *Index[C, T]) Dims() int {
	return idx.enc.Dims()
}

// Encoder returns the Morton encoder the index keys its nodes with.
func (idx *Index[C, T]) Encoder() *morton.Encoder {
	return idx.enc
}

// Metric returns the distance the index ranks neighbors by.
func (idx *Index[C, T]) Metric() morton.Metric {
	return idx.metric
}

// Insert adds payload at coords. Duplicate points are kept as distinct entries. If coords cannot be
// encoded the index is left untouched and an error wrapping morton.ErrOutOfRange or
// morton.ErrDimensionMismatch is returned.
func (idx *Index[C, T]) Insert(coords []C, payload T) error {
	code, err := morton.Encode(idx.enc, coords)
	if err != nil {
		return errors.Wrap(err, "error inserting point")
	}
	e := &entry[C, T]{
		coords:  slices.Clone(coords),
		wide:    morton.Widen(coords),
		code:    code,
		payload: payload,
		seq:     idx.nextSeq,
	}
	idx.nextSeq++
	idx.root.insert(idx, e)
	idx.generation++
	return nil
}

// Remove deletes one entry with the given coordinates and payload, reporting whether one was found.
// Removing a point that was never inserted is not an error. Coordinates that cannot be encoded are
// reported alongside false.
func (idx *Index[C, T]) Remove(coords []C, payload T) (bool, error) {
	code, err := morton.Encode(idx.enc, coords)
	if err != nil {
		return false, errors.Wrap(err, "error removing point")
	}
	if !idx.root.remove(idx, code, payload) {
		return false, nil
	}
	idx.generation++
	return true, nil
}

// At returns the payloads stored at exactly coords, in insertion order.
func (idx *Index[C, T]) At(coords []C) ([]T, error) {
	code, err := morton.Encode(idx.enc, coords)
	if err != nil {
		return nil, err
	}
	n := idx.root
	for n.nodeType == InternalNode {
		child, _ := n.child(idx.enc.ChildIndexAt(code, n.region.Level), false)
		if child == nil {
			return nil, nil
		}
		n = child
	}
	var out []T
	for _, e := range n.entries {
		if e.code == code {
			out = append(out, e.payload)
		}
	}
	return out, nil
}

// Clear removes every entry.
func (idx *Index[C, T]) Clear() {
	if idx.root.size == 0 {
		return
	}
	idx.root = newLeafNodeEmpty[C, T](idx.enc.Root())
	idx.generation++
}
