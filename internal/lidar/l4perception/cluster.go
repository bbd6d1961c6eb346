package l4perception

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r2"
)

// Flatten drops the vertical axis of a scan and removes exact duplicate
// returns, keeping the first occurrence so scan order is preserved.
func Flatten(scan []ScanPoint) []Point {
	if len(scan) == 0 {
		return nil
	}
	seen := make(map[Point]struct{}, len(scan))
	out := make([]Point, 0, len(scan))
	for _, sp := range scan {
		p := Point{X: sp.X, Y: sp.Y}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// ContiguousClusterer groups points by walking them in scan order: a point
// joins the open group when it lies within DistanceThreshold of the group's
// last point, otherwise the group is closed and a new one starts.
type ContiguousClusterer struct {
	mu     sync.RWMutex
	params ClusteringParams
}

// NewContiguousClusterer creates a clusterer with the given parameters.
func NewContiguousClusterer(params ClusteringParams) *ContiguousClusterer {
	return &ContiguousClusterer{params: params}
}

// Cluster implements ClustererInterface.
func (c *ContiguousClusterer) Cluster(points []Point) []Blob {
	params := c.GetParams()
	if len(points) == 0 {
		return []Blob{}
	}

	blobs := []Blob{}
	group := Blob{points[0]}
	for _, p := range points[1:] {
		if r2.Norm(r2.Sub(p, group.Last())) <= params.DistanceThreshold {
			group = append(group, p)
			continue
		}
		if len(group) >= params.MinPoints {
			blobs = append(blobs, group)
		}
		group = Blob{p}
	}
	if len(group) >= params.MinPoints {
		blobs = append(blobs, group)
	}
	return blobs
}

// GetParams implements ClustererInterface.
func (c *ContiguousClusterer) GetParams() ClusteringParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// SetParams implements ClustererInterface.
func (c *ContiguousClusterer) SetParams(params ClusteringParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = params
}
