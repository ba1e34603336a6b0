package pointcloud

import (
	"image/color"

	"github.com/golang/geo/r3"
)

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Data is what a point carries besides its position: an optional color and an optional integer value.
// MetaData tracks which of the two a cloud holds.
type Data interface {
	HasColor() bool
	// RGB255 returns the color components, all zero for an uncolored point.
	RGB255() (r, g, b uint8)
	HasValue() bool
	Value() int
}

// pointData is immutable; replacing a point's data means setting it again.
type pointData struct {
	rgb      [3]uint8
	value    int
	hasColor bool
	hasValue bool
}

// NewBasicData returns data for a point with only a position.
func NewBasicData() Data {
	return pointData{}
}

// NewColoredData returns data for a colored point. Alpha is dropped.
func NewColoredData(c color.NRGBA) Data {
	return pointData{rgb: [3]uint8{c.R, c.G, c.B}, hasColor: true}
}

// NewValueData returns data for a point labeled with v.
func NewValueData(v int) Data {
	return pointData{value: v, hasValue: true}
}

func (d pointData) HasColor() bool {
	return d.hasColor
}

func (d pointData) RGB255() (r, g, b uint8) {
	return d.rgb[0], d.rgb[1], d.rgb[2]
}

func (d pointData) HasValue() bool {
	return d.hasValue
}

func (d pointData) Value() int {
	return d.value
}

// PointAndData is a tiny struct to facilitate returning nearest neighbors.
type PointAndData struct {
	P r3.Vector
	D Data
}

// PointAndDistance is a point found by a neighbor query along with its distance from the query.
type PointAndDistance struct {
	PointAndData
	Distance float64
}
