// Package drivers holds the control strategies that compete for the
// actuation channels: the CollisionWatchdog state machine and the Cruise
// base driver.
//
// Frame conventions: bin angles run counterclockwise from straight ahead,
// so bins in (0, π) lie to the left of the vehicle and bins in (π, 2π) to
// the right. Positive steering turns right.
//
// Dependency rule: drivers read the occupancy grid through OccupancyView
// and write actuation only through controllers granted by the arbiter.
package drivers
