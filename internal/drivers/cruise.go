package drivers

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/autodrive/internal/actuation"
	"github.com/banshee-data/autodrive/internal/arbiter"
	"github.com/banshee-data/autodrive/internal/lidar/l4perception"
)

// CruiseID is the arbiter identity of the cruise driver.
const CruiseID = "cruise"

// cruiseThrottleRamp is the gap, in metres above StopDistance, over which
// throttle is faded out when a blob is ahead.
const cruiseThrottleRamp = 5.0

// Cruise is the base driver. It holds both channels at Low priority
// without return so that any preempting driver has a holder to hand the
// channel back to, keeps the vehicle near the cruise speed, slows for
// blobs in the forward corridor and centres the steering.
type Cruise struct {
	cfg     CruiseConfig
	arbiter *arbiter.DrivingArbiter

	mu       sync.Mutex
	speed    *actuation.SpeedController
	steering *actuation.SteeringController
}

// NewCruise creates a cruise driver. Call Engage to take the channels.
func NewCruise(cfg CruiseConfig, da *arbiter.DrivingArbiter) (*Cruise, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cruise config: %w", err)
	}
	if da == nil {
		return nil, fmt.Errorf("cruise requires an arbiter")
	}
	return &Cruise{cfg: cfg, arbiter: da}, nil
}

// Engage requests both channels at Low priority. It reports whether both
// were granted immediately.
func (c *Cruise) Engage() bool {
	speed := c.arbiter.RequestSpeed(c, arbiter.Low, false)
	steering := c.arbiter.RequestSteering(c, arbiter.Low, false)
	return speed && steering
}

// DriverID implements arbiter.Driver.
func (c *Cruise) DriverID() string { return CruiseID }

// OnSteeringGranted implements arbiter.Driver.
func (c *Cruise) OnSteeringGranted(ctrl *actuation.SteeringController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steering = ctrl
}

// OnSteeringRevoked implements arbiter.Driver.
func (c *Cruise) OnSteeringRevoked(bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steering = nil
}

// OnSpeedGranted implements arbiter.Driver.
func (c *Cruise) OnSpeedGranted(ctrl *actuation.SpeedController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = ctrl
}

// OnSpeedRevoked implements arbiter.Driver.
func (c *Cruise) OnSpeedRevoked(bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = nil
}

// Holds reports which channels the cruise driver currently holds.
func (c *Cruise) Holds() (speed, steering bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed != nil, c.steering != nil
}

// Step writes the cruise command for this tick through whichever channels
// are held.
//
// With nothing ahead, throttle is full below the cruise speed and released
// above it. With blobs ahead the nearest centroid, reduced by the
// stopping allowance (speed/2)², sets the gap: brake grows as the gap
// falls below StopDistance and throttle fades out over the preceding
// cruiseThrottleRamp metres.
func (c *Cruise) Step(ctx context.Context, currentSpeed float64, blobs []l4perception.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	speed, steering := c.speed, c.steering
	c.mu.Unlock()

	if steering != nil {
		steering.SetSteering(0)
	}
	if speed == nil {
		return nil
	}

	maxThrottle := actuation.MaxThrottle
	if currentSpeed > c.cfg.Speed {
		maxThrottle = 0
	}

	nearest, ok := c.nearestAhead(blobs)
	if !ok {
		speed.Set(maxThrottle, 0)
		return nil
	}

	gap := nearest - (currentSpeed/2)*(currentSpeed/2)
	throttle := math.Min(math.Max(gap-(c.cfg.StopDistance-cruiseThrottleRamp), 0), maxThrottle)
	brake := math.Max(0, c.cfg.StopDistance-gap)
	speed.Set(throttle, brake)
	tracef("cruise gap %.2fm throttle %.2f brake %.2f", gap, throttle, brake)
	return nil
}

// nearestAhead returns the smallest forward distance among blob centroids
// inside the forward corridor.
func (c *Cruise) nearestAhead(blobs []l4perception.Blob) (float64, bool) {
	nearest, found := math.Inf(1), false
	for _, b := range blobs {
		if len(b) == 0 {
			continue
		}
		p := b.Centroid()
		if p.X >= 0 && math.Abs(p.Y) <= c.cfg.SideRegion && p.X < nearest {
			nearest, found = p.X, true
		}
	}
	return nearest, found
}
