package l4perception

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is a vehicle-relative 2D position in metres. +X is forward and +Y
// is to the left, so bearings (atan2(Y, X)) run counterclockwise.
type Point = r2.Vec

// ScanPoint is a raw range-sensor return before the vertical axis is dropped.
type ScanPoint struct {
	X, Y, Z float64
}

// Blob is a contiguous run of scan points believed to belong to one
// physical object. Point order follows the scan order.
type Blob []Point

// Distance returns the Euclidean distance of p from the vehicle origin.
func Distance(p Point) float64 {
	return r2.Norm(p)
}

// Bearing returns the angle of p around the vehicle, atan2(y, x), in (-π, π].
func Bearing(p Point) float64 {
	return math.Atan2(p.Y, p.X)
}

// First returns the first scanned point of the blob.
func (b Blob) First() Point { return b[0] }

// Last returns the last scanned point of the blob.
func (b Blob) Last() Point { return b[len(b)-1] }

// Middle returns the point at index len/2, used as the blob's representative centre.
func (b Blob) Middle() Point { return b[len(b)/2] }

// Centroid returns the arithmetic mean of the blob's points.
// The zero Point is returned for an empty blob.
func (b Blob) Centroid() Point {
	if len(b) == 0 {
		return Point{}
	}
	var sum Point
	for _, p := range b {
		sum = r2.Add(sum, p)
	}
	return r2.Scale(1/float64(len(b)), sum)
}
