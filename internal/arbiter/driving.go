package arbiter

import (
	"context"

	"github.com/banshee-data/autodrive/internal/actuation"
)

// Channel names.
const (
	ChannelSteering = "steering"
	ChannelSpeed    = "speed"
)

// Driver is a control strategy competing for the actuation channels.
// Grant callbacks hand over the controller for the channel; a driver must
// stop writing through it once the matching revoke arrives.
type Driver interface {
	DriverID() string
	OnSteeringGranted(c *actuation.SteeringController)
	OnSteeringRevoked(willReturn bool)
	OnSpeedGranted(c *actuation.SpeedController)
	OnSpeedRevoked(willReturn bool)
}

// DrivingArbiter pairs the steering and speed arbiters with the batch
// their controllers write into. It is shared by every driver.
type DrivingArbiter struct {
	steering *Arbiter
	speed    *Arbiter
	batch    *actuation.Batch
}

// NewDrivingArbiter returns idle arbiters writing into batch. A nil batch
// allocates a new one.
func NewDrivingArbiter(batch *actuation.Batch) *DrivingArbiter {
	if batch == nil {
		batch = actuation.NewBatch()
	}
	return &DrivingArbiter{
		steering: New(ChannelSteering),
		speed:    New(ChannelSpeed),
		batch:    batch,
	}
}

// Steering returns the steering channel arbiter.
func (d *DrivingArbiter) Steering() *Arbiter { return d.steering }

// Speed returns the speed channel arbiter.
func (d *DrivingArbiter) Speed() *Arbiter { return d.speed }

// Batch returns the command batch.
func (d *DrivingArbiter) Batch() *actuation.Batch { return d.batch }

// RequestSteering asks for the steering channel on behalf of drv.
func (d *DrivingArbiter) RequestSteering(drv Driver, p Priority, wantsReturn bool) bool {
	return d.steering.RequestControl(d.steeringRequester(drv), p, wantsReturn)
}

// RequestSpeed asks for the speed channel on behalf of drv.
func (d *DrivingArbiter) RequestSpeed(drv Driver, p Priority, wantsReturn bool) bool {
	return d.speed.RequestControl(d.speedRequester(drv), p, wantsReturn)
}

// GiveUpSteering releases the steering channel if drv holds it.
func (d *DrivingArbiter) GiveUpSteering(drv Driver) {
	d.steering.GiveUpControl(drv.DriverID())
}

// GiveUpSpeed releases the speed channel if drv holds it.
func (d *DrivingArbiter) GiveUpSpeed(drv Driver) {
	d.speed.GiveUpControl(drv.DriverID())
}

// Withdraw removes drv's pending requests on both channels.
func (d *DrivingArbiter) Withdraw(drv Driver) {
	d.steering.Withdraw(drv.DriverID())
	d.speed.Withdraw(drv.DriverID())
}

// Flush sends the batched command to sink.
func (d *DrivingArbiter) Flush(ctx context.Context, sink actuation.Sink) error {
	return d.batch.Flush(ctx, sink)
}

func (d *DrivingArbiter) steeringRequester(drv Driver) Requester {
	return Requester{
		ID:        drv.DriverID(),
		OnGranted: func() { drv.OnSteeringGranted(d.batch.Steering()) },
		OnRevoked: drv.OnSteeringRevoked,
	}
}

func (d *DrivingArbiter) speedRequester(drv Driver) Requester {
	return Requester{
		ID:        drv.DriverID(),
		OnGranted: func() { drv.OnSpeedGranted(d.batch.Speed()) },
		OnRevoked: drv.OnSpeedRevoked,
	}
}
