// Package l6objects owns Layer 6 (Objects) of the hazard core.
//
// Responsibilities: the optional external services that enrich tracked
// occupants. A camera classifier labels occupants inside the camera's
// view and a weight model overrides the heuristic danger weight. Both are
// reached over gRPC and both are best effort: on timeout or failure the
// occupant keeps its Unknown class or heuristic weight.
// Key types: Classifier, WeightModel, Categorizer, Rescorer.
//
// Dependency rule: L6 may depend on L4 and L5, never on the drivers.
// No SQL/database code is allowed in this package.
package l6objects
