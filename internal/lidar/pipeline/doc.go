// Package pipeline runs the control cycle.
//
// Each tick acquires a scan and the vehicle speed, clusters the scan into
// blobs (L4), fuses them into the angular occupancy grid and expires stale
// occupants (L5), optionally rescores and classifies occupants through the
// object services (L6), steps the drivers in priority order and flushes the
// batched actuation command.
//
// This package is the composition root: it imports the layer packages,
// the arbiter, the drivers and the recorder, and none of those import
// pipeline.
package pipeline
