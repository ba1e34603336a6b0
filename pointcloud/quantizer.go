package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/spatialindex/morton"
)

// DefaultBits is the per-axis resolution that fills a 64 bit Morton code with three axes.
const DefaultBits = morton.MaxCodeBits / 3

// A Quantizer maps points inside an axis aligned cube onto a grid of 2^bits cells per side.
// The cube is half open: it includes its origin and excludes its far faces.
type Quantizer struct {
	enc    *morton.Encoder
	origin r3.Vector
	side   float64
	scale  float64
	cells  float64
}

// NewQuantizer returns a quantizer for the cube with the given origin (its minimum corner) and side
// length, divided into 2^bits cells per axis.
func NewQuantizer(origin r3.Vector, side float64, bits int) (*Quantizer, error) {
	if !(side > 0) || math.IsInf(side, 0) {
		return nil, errors.Wrapf(morton.ErrInvalidConfiguration, "invalid side length (%.2f) for quantizer", side)
	}
	enc, err := morton.NewEncoder(3, bits)
	if err != nil {
		return nil, err
	}
	cells := math.Ldexp(1, bits)
	return &Quantizer{
		enc:    enc,
		origin: origin,
		side:   side,
		scale:  side / cells,
		cells:  cells,
	}, nil
}

// NewQuantizerForMetaData returns a quantizer whose cube holds every point described by meta. The
// side is padded by a couple of cells so points on the maximum bounds stay inside the half open cube.
func NewQuantizerForMetaData(meta MetaData, bits int) (*Quantizer, error) {
	if meta.Empty() {
		return NewQuantizer(r3.Vector{}, 1, bits)
	}
	side := meta.Extent()
	if side == 0 {
		side = 1
	}
	side *= 1 + math.Ldexp(1, -bits+1)
	return NewQuantizer(r3.Vector{X: meta.MinX, Y: meta.MinY, Z: meta.MinZ}, side, bits)
}

// Encoder returns the Morton encoder of the grid.
func (q *Quantizer) Encoder() *morton.Encoder {
	return q.enc
}

// Origin returns the minimum corner of the cube.
func (q *Quantizer) Origin() r3.Vector {
	return q.origin
}

// Side returns the side length of the cube.
func (q *Quantizer) Side() float64 {
	return q.side
}

// CellSize returns the side length of one grid cell.
func (q *Quantizer) CellSize() float64 {
	return q.scale
}

// Contains reports whether p lies inside the cube.
func (q *Quantizer) Contains(p r3.Vector) bool {
	_, err := q.Quantize(p)
	return err == nil
}

// Quantize returns the grid cell holding p. Points outside the cube are reported with
// morton.ErrOutOfRange.
func (q *Quantizer) Quantize(p r3.Vector) ([]uint32, error) {
	cell := make([]uint32, 3)
	for j, v := range [3]float64{p.X - q.origin.X, p.Y - q.origin.Y, p.Z - q.origin.Z} {
		f := math.Floor(v / q.scale)
		if !(f >= 0 && f < q.cells) {
			return nil, errors.Wrapf(morton.ErrOutOfRange, "point %v is outside the cube at %v with side %v",
				p, q.origin, q.side)
		}
		cell[j] = uint32(f)
	}
	return cell, nil
}

// clamp returns the grid cell nearest to p, which is the cell holding p when p is inside the cube.
func (q *Quantizer) clamp(p r3.Vector) []uint32 {
	cell := make([]uint32, 3)
	for j, v := range [3]float64{p.X - q.origin.X, p.Y - q.origin.Y, p.Z - q.origin.Z} {
		f := math.Floor(v / q.scale)
		switch {
		case !(f >= 0):
			cell[j] = 0
		case f >= q.cells:
			cell[j] = uint32(q.cells - 1)
		default:
			cell[j] = uint32(f)
		}
	}
	return cell
}

// Dequantize returns the center of a grid cell.
func (q *Quantizer) Dequantize(cell []uint32) (r3.Vector, error) {
	code, err := morton.Encode(q.enc, cell)
	if err != nil {
		return r3.Vector{}, err
	}
	c := q.enc.RegionOf(code, q.enc.MaxLevel()).Center()
	return r3.Vector{
		X: q.origin.X + c[0]*q.scale,
		Y: q.origin.Y + c[1]*q.scale,
		Z: q.origin.Z + c[2]*q.scale,
	}, nil
}
