package actuation

import (
	"context"
	"fmt"
	"sync"
)

// Batch accumulates controller writes between flushes. Values persist
// across cycles until overwritten. Batch is safe for concurrent use.
type Batch struct {
	mu  sync.Mutex
	cmd Command

	speed    *SpeedController
	steering *SteeringController
}

// NewBatch returns an empty batch with its two controllers.
func NewBatch() *Batch {
	b := &Batch{}
	b.speed = &SpeedController{batch: b}
	b.steering = &SteeringController{batch: b}
	return b
}

// Speed returns the controller for throttle and brake.
func (b *Batch) Speed() *SpeedController { return b.speed }

// Steering returns the controller for the steering angle.
func (b *Batch) Steering() *SteeringController { return b.steering }

// Command returns the current clamped command.
func (b *Batch) Command() Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cmd.Clamped()
}

// Flush sends the current command to sink.
func (b *Batch) Flush(ctx context.Context, sink Sink) error {
	if sink == nil {
		return nil
	}
	cmd := b.Command()
	if err := sink.Apply(ctx, cmd); err != nil {
		return fmt.Errorf("apply %v: %w", cmd, err)
	}
	return nil
}

// Reset zeroes the command.
func (b *Batch) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cmd = Command{}
}

func (b *Batch) update(fn func(*Command)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.cmd)
}

// SpeedController writes throttle and brake into a batch.
type SpeedController struct {
	batch *Batch
}

// SetThrottle sets the throttle, clamped to [0, 1] on flush.
func (c *SpeedController) SetThrottle(v float64) {
	c.batch.update(func(cmd *Command) { cmd.Throttle = v })
}

// SetBrake sets the brake, clamped to [0, 100] on flush.
func (c *SpeedController) SetBrake(v float64) {
	c.batch.update(func(cmd *Command) { cmd.Brake = v })
}

// Set writes throttle and brake together.
func (c *SpeedController) Set(throttle, brake float64) {
	c.batch.update(func(cmd *Command) {
		cmd.Throttle = throttle
		cmd.Brake = brake
	})
}

// Throttle returns the clamped throttle.
func (c *SpeedController) Throttle() float64 { return c.batch.Command().Throttle }

// Brake returns the clamped brake.
func (c *SpeedController) Brake() float64 { return c.batch.Command().Brake }

// SteeringController writes the steering angle into a batch.
type SteeringController struct {
	batch *Batch
}

// SetSteering sets the steering angle in radians.
func (c *SteeringController) SetSteering(rad float64) {
	c.batch.update(func(cmd *Command) { cmd.Steering = rad })
}

// Steering returns the current steering angle.
func (c *SteeringController) Steering() float64 { return c.batch.Command().Steering }
