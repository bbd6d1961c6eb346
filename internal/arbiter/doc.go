// Package arbiter serializes access to the two actuation channels
// (steering, speed) across competing drivers.
//
// Each channel is an independent priority-preemptive Arbiter. A request
// is granted immediately, preempts the current holder, or is queued; a
// preempted holder may be remembered and restored when the preemptor gives
// up control. Grant and revoke callbacks are the only way a driver learns
// that it gained or lost a channel, and they always run after the arbiter's
// lock is released so that a callback may call back into the arbiter.
package arbiter
