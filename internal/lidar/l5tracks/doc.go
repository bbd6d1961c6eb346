// Package l5tracks owns Layer 5 (Tracks) of the hazard core.
//
// Responsibilities: the angular occupancy grid around the vehicle and the
// lifecycle of its tracked occupants (creation, fusion, lazy decay,
// expiry), plus the pluggable weighing strategies that score occupants
// for danger.
// Key types: AngularOccupancy, Occupant, WeighingStrategy.
//
// Dependency rule: L5 may depend on L4, but never on L6 or the drivers.
// No SQL/database code is allowed in this package.
package l5tracks
