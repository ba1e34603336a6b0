package pointcloud

import (
	"math"
	"sort"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/spatialindex/octree"
)

// IndexedPointCloud is a PointCloud whose points are indexed by the grid cell a Quantizer puts them
// in. Several points may share a cell; exact positions are kept and compared on lookup.
type IndexedPointCloud struct {
	q     *Quantizer
	index *octree.Index[uint32, *PointAndData]
	meta  MetaData
}

// NewIndexedPointCloud returns an empty cloud over the cube of q. fanout and cacheCapacity are
// passed on to the octree.
func NewIndexedPointCloud(q *Quantizer, fanout, cacheCapacity int, logger golog.Logger) (*IndexedPointCloud, error) {
	index, err := octree.Create[uint32, *PointAndData](3, q.Encoder().Bits(), fanout, cacheCapacity, logger)
	if err != nil {
		return nil, err
	}
	return &IndexedPointCloud{q: q, index: index, meta: NewMetaData()}, nil
}

// Quantizer returns the quantizer the cloud is indexed with.
func (cloud *IndexedPointCloud) Quantizer() *Quantizer {
	return cloud.q
}

// Stats reports the shape of the underlying octree.
func (cloud *IndexedPointCloud) Stats() octree.Stats {
	return cloud.index.Stats()
}

// Size returns the number of points in the cloud.
func (cloud *IndexedPointCloud) Size() int {
	return cloud.index.Len()
}

// MetaData returns the meta data of every point set so far. Bounds are not shrunk by Unset.
func (cloud *IndexedPointCloud) MetaData() MetaData {
	return cloud.meta
}

// find returns the cell of p and the stored point at exactly p, if any.
func (cloud *IndexedPointCloud) find(p r3.Vector) ([]uint32, *PointAndData, error) {
	cell, err := cloud.q.Quantize(p)
	if err != nil {
		return nil, nil, err
	}
	payloads, err := cloud.index.At(cell)
	if err != nil {
		return nil, nil, err
	}
	for _, pd := range payloads {
		if pd.P == p {
			return cell, pd, nil
		}
	}
	return cell, nil, nil
}

// At returns the data of the point at exactly (x, y, z).
func (cloud *IndexedPointCloud) At(x, y, z float64) (Data, bool) {
	_, pd, err := cloud.find(NewVector(x, y, z))
	if err != nil || pd == nil {
		return nil, false
	}
	return pd.D, true
}

// Set places the given point in the cloud. Points outside the quantizer's cube are rejected with an
// error wrapping morton.ErrOutOfRange.
func (cloud *IndexedPointCloud) Set(p r3.Vector, d Data) error {
	cell, pd, err := cloud.find(p)
	if err != nil {
		return errors.Wrap(err, "error setting point")
	}
	if pd != nil {
		pd.D = d
	} else if err := cloud.index.Insert(cell, &PointAndData{P: p, D: d}); err != nil {
		return err
	}
	cloud.meta.Merge(p, d)
	return nil
}

// Unset removes the point at exactly (x, y, z).
func (cloud *IndexedPointCloud) Unset(x, y, z float64) bool {
	cell, pd, err := cloud.find(NewVector(x, y, z))
	if err != nil || pd == nil {
		return false
	}
	found, err := cloud.index.Remove(cell, pd)
	return err == nil && found
}

// Iterate visits the points in Morton order. Batches are contiguous runs of that order, so each batch
// covers a compact part of space.
func (cloud *IndexedPointCloud) Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool) {
	lower, upper := 0, cloud.Size()
	if numBatches > 0 {
		batchSize := (upper + numBatches - 1) / numBatches
		lower = myBatch * batchSize
		upper = min(lower+batchSize, upper)
	}
	i := 0
	for _, pd := range cloud.index.All() {
		if i >= upper {
			return
		}
		if i >= lower && !fn(pd.P, pd.D) {
			return
		}
		i++
	}
}

// Nearest returns the k points closest to p, nearest first. p may lie outside the cube.
func (cloud *IndexedPointCloud) Nearest(p r3.Vector, k int) ([]PointAndDistance, error) {
	if k <= 0 || cloud.Size() == 0 {
		return nil, nil
	}
	// the k nearest cells give k points, and the farthest of them bounds the true k nearest
	candidates, err := cloud.index.KNN(cloud.q.clamp(p), k)
	if err != nil {
		return nil, err
	}
	radius := lo.Max(lo.Map(candidates, func(n octree.Neighbor[uint32, *PointAndData], _ int) float64 {
		return n.Payload.P.Distance(p)
	}))
	found, err := cloud.WithinRadius(p, radius)
	if err != nil {
		return nil, err
	}
	if len(found) > k {
		found = found[:k]
	}
	return found, nil
}

// WithinRadius returns the points within radius of p, boundary included, nearest first.
func (cloud *IndexedPointCloud) WithinRadius(p r3.Vector, radius float64) ([]PointAndDistance, error) {
	if radius < 0 || math.IsNaN(radius) {
		return nil, nil
	}
	// a point and the query each sit less than one cell from their cell's corner on every axis
	gridRadius := radius/cloud.q.CellSize() + math.Sqrt(3)
	items, err := cloud.index.Range(octree.NewSphere(cloud.q.clamp(p), gridRadius))
	if err != nil {
		return nil, err
	}
	out := lo.FilterMap(items, func(it octree.Item[uint32, *PointAndData], _ int) (PointAndDistance, bool) {
		d := it.Payload.P.Distance(p)
		return PointAndDistance{PointAndData: *it.Payload, Distance: d}, d <= radius
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// InBox returns the points inside the box from minPt to maxPt, boundary included, in Morton order.
func (cloud *IndexedPointCloud) InBox(minPt, maxPt r3.Vector) ([]PointAndData, error) {
	if minPt.X > maxPt.X || minPt.Y > maxPt.Y || minPt.Z > maxPt.Z {
		return nil, nil
	}
	items, err := cloud.index.Range(octree.NewBox(cloud.q.clamp(minPt), cloud.q.clamp(maxPt)))
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(items, func(it octree.Item[uint32, *PointAndData], _ int) (PointAndData, bool) {
		v := it.Payload.P
		inside := v.X >= minPt.X && v.X <= maxPt.X &&
			v.Y >= minPt.Y && v.Y <= maxPt.Y &&
			v.Z >= minPt.Z && v.Z <= maxPt.Z
		return *it.Payload, inside
	}), nil
}
