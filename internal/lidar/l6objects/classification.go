package l6objects

import (
	"context"
	"errors"
	"math"

	"github.com/banshee-data/autodrive/internal/lidar/l4perception"
	"github.com/banshee-data/autodrive/internal/lidar/l5tracks"
)

// ErrServiceUnavailable wraps transport failures of the external services.
var ErrServiceUnavailable = errors.New("l6objects: service unavailable")

// NoDetection is the class id reported when nothing was detected.
const NoDetection = -1

// Region is the region of interest handed to the classifier: an
// occupant's centre and its offset from the camera axis.
type Region struct {
	Center   l4perception.Point
	Bearing  float64 // Horizontal offset from the camera axis, radians
	Distance float64
}

// RegionOf returns the classifier region for an occupant.
func RegionOf(o l5tracks.Occupant) Region {
	return Region{
		Center:   o.Center,
		Bearing:  math.Atan2(o.Center.Y, o.Center.X),
		Distance: o.Distance,
	}
}

// BoundingBox is a detection box in normalized image coordinates.
type BoundingBox struct {
	YMin, XMin, YMax, XMax float64
}

// HorizontalOffset returns the box centre's horizontal offset from the
// camera axis in radians, for a camera with a π/2 horizontal field of view.
func (b BoundingBox) HorizontalOffset() float64 {
	xCenter := (b.XMax-b.XMin)/2 + b.XMin
	return (xCenter - 0.5) * math.Pi / 2
}

// Detection is one classifier result.
type Detection struct {
	ClassID int
	Box     BoundingBox
	Score   float64
}

// Classifier labels a region of interest. Implementations must honour
// ctx cancellation.
type Classifier interface {
	Classify(ctx context.Context, r Region) (Detection, error)
}

// ObjectClassFromID maps the detector's label ids (COCO ordering) to
// occupant classes. Unlisted ids map to ClassUnknown.
func ObjectClassFromID(id int) l5tracks.ObjectClass {
	switch id {
	case 0:
		return l5tracks.ClassPedestrian
	case 1, 3:
		return l5tracks.ClassCyclist
	case 2, 5, 7:
		return l5tracks.ClassCar
	case 9, 11:
		return l5tracks.ClassSign
	default:
		return l5tracks.ClassUnknown
	}
}

// InCameraView reports whether p is ahead of the vehicle, within maxDist
// and within halfAngle of the camera axis.
func InCameraView(p l4perception.Point, maxDist, halfAngle float64) bool {
	if p.X <= 0 {
		return false
	}
	if l4perception.Distance(p) > maxDist {
		return false
	}
	return math.Abs(math.Atan(p.Y/p.X)) <= halfAngle
}
