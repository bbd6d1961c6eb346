// Package actuation holds the batched vehicle command and the two channel
// controllers (speed, steering) through which drivers write it.
//
// Controllers are handed out by the arbiter on grant; a driver writes only
// through the controller it currently holds. The batch is flushed to the
// Sink once per control cycle.
package actuation
