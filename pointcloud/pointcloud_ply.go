package pointcloud

import (
	"image/color"
	"io"
	"math"

	"github.com/chenzhekl/goply"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

const plyVertexElement = "vertex"

// ReadPLY reads the vertices of an ascii PLY file into an IndexedPointCloud. Like ReadPCD, positions
// are read in meters and stored in millimeters. Vertices carrying red, green and blue properties are
// colored. All other elements, such as faces, are ignored.
func ReadPLY(in io.Reader, opts ReadOptions, logger golog.Logger) (*IndexedPointCloud, error) {
	opts = opts.withDefaults()
	ply, err := parsePLY(in)
	if err != nil {
		return nil, err
	}
	vertices := ply.Elements(plyVertexElement)
	if vertices == nil {
		return nil, errors.New("ply file has no vertex element")
	}

	points := make([]PointAndData, 0, len(vertices))
	for i, vertex := range vertices {
		pd, err := plyVertexToPoint(vertex)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid vertex %d", i)
		}
		points = append(points, pd)
	}
	return newCloudFromPoints(points, opts, "ply", logger)
}

// parsePLY turns the panics goply raises on malformed input into errors.
func parsePLY(in io.Reader) (ply *goply.Ply, err error) {
	defer func() {
		if r := recover(); r != nil {
			ply = nil
			err = errors.Errorf("invalid ply file: %v", r)
		}
	}()
	return goply.New(in), nil
}

func plyVertexToPoint(vertex goply.PlyElement) (PointAndData, error) {
	var pos [3]float64
	for i, name := range []string{"x", "y", "z"} {
		v, ok := plyNumber(vertex.Property(name))
		if !ok {
			return PointAndData{}, errors.Errorf("missing numeric %q property", name)
		}
		pos[i] = 1000. * v
	}
	p := r3.Vector{X: pos[0], Y: pos[1], Z: pos[2]}

	r, hasR := vertex.Property("red").(uint8)
	g, hasG := vertex.Property("green").(uint8)
	b, hasB := vertex.Property("blue").(uint8)
	if hasR && hasG && hasB {
		return PointAndData{P: p, D: NewColoredData(color.NRGBA{r, g, b, 255})}, nil
	}
	return PointAndData{P: p, D: NewBasicData()}, nil
}

func plyNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return readFloat(math.Float32bits(n)), true
	case float64:
		return n, true
	case int8:
		return float64(n), true
	case uint8:
		return float64(n), true
	case int16:
		return float64(n), true
	case uint16:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}
