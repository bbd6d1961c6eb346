package l4perception

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testParams() ClusteringParams {
	return ClusteringParams{DistanceThreshold: 3, MinPoints: 2}
}

func TestCluster_EmptyInput(t *testing.T) {
	c := NewContiguousClusterer(testParams())
	blobs := c.Cluster(nil)
	if blobs == nil || len(blobs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", blobs)
	}
}

func TestCluster_Groups(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		want   []Blob
	}{
		{
			name:   "single contiguous run",
			points: []Point{{X: 5, Y: 0}, {X: 5, Y: 0.5}, {X: 5, Y: 1}},
			want:   []Blob{{{X: 5, Y: 0}, {X: 5, Y: 0.5}, {X: 5, Y: 1}}},
		},
		{
			name: "gap splits groups",
			points: []Point{
				{X: 10, Y: 0}, {X: 10, Y: 1},
				{X: 20, Y: 0}, {X: 20, Y: 2},
			},
			want: []Blob{
				{{X: 10, Y: 0}, {X: 10, Y: 1}},
				{{X: 20, Y: 0}, {X: 20, Y: 2}},
			},
		},
		{
			name: "singletons are dropped",
			points: []Point{
				{X: 1, Y: 1},
				{X: 10, Y: 10}, {X: 10, Y: 11},
				{X: 30, Y: 30},
			},
			want: []Blob{{{X: 10, Y: 10}, {X: 10, Y: 11}}},
		},
		{
			name:   "threshold is inclusive",
			points: []Point{{X: 0, Y: 0}, {X: 3, Y: 0}},
			want:   []Blob{{{X: 0, Y: 0}, {X: 3, Y: 0}}},
		},
		{
			name:   "distance measured to last point not first",
			points: []Point{{X: 0, Y: 0}, {X: 2.5, Y: 0}, {X: 5, Y: 0}, {X: 7.5, Y: 0}},
			want:   []Blob{{{X: 0, Y: 0}, {X: 2.5, Y: 0}, {X: 5, Y: 0}, {X: 7.5, Y: 0}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewContiguousClusterer(testParams()).Cluster(tt.points)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Cluster() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCluster_Idempotent(t *testing.T) {
	c := NewContiguousClusterer(testParams())
	scan := []Point{
		{X: 4, Y: -2}, {X: 4, Y: -1}, {X: 4, Y: 0},
		{X: 12, Y: 5}, {X: 12.5, Y: 6},
		{X: -8, Y: 3},
		{X: -20, Y: 0}, {X: -20, Y: 1}, {X: -19, Y: 2},
	}
	blobs := c.Cluster(scan)
	if len(blobs) != 3 {
		t.Fatalf("expected 3 blobs, got %d", len(blobs))
	}
	for i, b := range blobs {
		again := c.Cluster(b)
		if len(again) != 1 {
			t.Fatalf("blob %d re-clustered into %d groups", i, len(again))
		}
		if diff := cmp.Diff(b, again[0]); diff != "" {
			t.Errorf("blob %d changed on re-cluster (-want +got):\n%s", i, diff)
		}
	}
}

func TestSetParams(t *testing.T) {
	c := NewContiguousClusterer(testParams())
	points := []Point{{X: 0, Y: 0}, {X: 4, Y: 0}}
	if got := c.Cluster(points); len(got) != 0 {
		t.Fatalf("expected no blobs at threshold 3, got %d", len(got))
	}
	c.SetParams(ClusteringParams{DistanceThreshold: 5, MinPoints: 2})
	if got := c.Cluster(points); len(got) != 1 {
		t.Fatalf("expected 1 blob at threshold 5, got %d", len(got))
	}
	if c.GetParams().DistanceThreshold != 5 {
		t.Errorf("GetParams() did not reflect SetParams")
	}
}

func TestFlatten(t *testing.T) {
	scan := []ScanPoint{
		{X: 1, Y: 2, Z: -1},
		{X: 3, Y: 4, Z: 0.5},
		{X: 1, Y: 2, Z: 7}, // duplicate once z is dropped
		{X: 5, Y: 6, Z: 0},
	}
	want := []Point{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}}
	if diff := cmp.Diff(want, Flatten(scan)); diff != "" {
		t.Errorf("Flatten() mismatch (-want +got):\n%s", diff)
	}
	if Flatten(nil) != nil {
		t.Error("Flatten(nil) should be nil")
	}
}

func TestBlobGeometry(t *testing.T) {
	b := Blob{{X: 5, Y: 0}, {X: 5, Y: 0.5}, {X: 5, Y: 1}}
	if b.Middle() != (Point{X: 5, Y: 0.5}) {
		t.Errorf("Middle() = %v", b.Middle())
	}
	if b.First() != (Point{X: 5, Y: 0}) || b.Last() != (Point{X: 5, Y: 1}) {
		t.Errorf("First/Last = %v/%v", b.First(), b.Last())
	}
	c := b.Centroid()
	if math.Abs(c.X-5) > 1e-9 || math.Abs(c.Y-0.5) > 1e-9 {
		t.Errorf("Centroid() = %v", c)
	}
	if (Blob{}).Centroid() != (Point{}) {
		t.Error("Centroid of empty blob should be zero")
	}
	if d := Distance(Point{X: 3, Y: 4}); d != 5 {
		t.Errorf("Distance = %f, want 5", d)
	}
	if a := Bearing(Point{X: 0, Y: 2}); math.Abs(a-math.Pi/2) > 1e-12 {
		t.Errorf("Bearing = %f, want π/2", a)
	}
}
