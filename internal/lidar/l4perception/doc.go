// Package l4perception owns Layer 4 (Perception) of the hazard core.
//
// Responsibilities: flattening raw range-sensor returns into the 2D
// vehicle frame and grouping them into contiguous blobs.
// Key types: Point, ScanPoint, Blob, ContiguousClusterer.
//
// Dependency rule: L4 never depends on L5+ (tracks, objects, drivers).
// No SQL/database code is allowed in this package.
package l4perception
