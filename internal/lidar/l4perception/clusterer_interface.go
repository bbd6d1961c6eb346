package l4perception

import (
	"github.com/banshee-data/autodrive/internal/config"
)

// ClustererInterface abstracts the clustering implementation.
// This interface enables swapping clustering algorithms and testing with
// different clustering strategies without modifying the tick pipeline.
type ClustererInterface interface {
	// Cluster groups scan-ordered points into blobs.
	// Point order inside each blob is preserved.
	Cluster(points []Point) []Blob

	// GetParams returns the current clustering parameters.
	GetParams() ClusteringParams

	// SetParams updates the clustering parameters.
	// This allows runtime tuning of clustering behaviour.
	SetParams(params ClusteringParams)
}

// ClusteringParams holds clustering algorithm parameters.
type ClusteringParams struct {
	DistanceThreshold float64 // Max gap in metres between consecutive points of one blob
	MinPoints         int     // Minimum points for a blob to be kept
}

// DefaultClusteringParams returns the canonical clustering parameters.
func DefaultClusteringParams() ClusteringParams {
	return ClusteringParamsFromTuning(config.EmptyTuningConfig())
}

// ClusteringParamsFromTuning builds ClusteringParams from a loaded TuningConfig.
func ClusteringParamsFromTuning(cfg *config.TuningConfig) ClusteringParams {
	return ClusteringParams{
		DistanceThreshold: cfg.GetClusterDistanceThreshold(),
		MinPoints:         cfg.GetClusterMinPoints(),
	}
}
