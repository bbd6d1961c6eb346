package actuation

import (
	"context"
	"fmt"
	"math"
)

// Actuator limits.
const (
	MaxThrottle = 1.0
	MaxBrake    = 100.0
)

// Command is one batched actuation command.
type Command struct {
	Throttle float64 `json:"throttle"` // [0, 1]
	Brake    float64 `json:"brake"`    // [0, 100]
	Steering float64 `json:"steering"` // radians, positive to the right
}

// Clamped returns c with throttle and brake limited to their ranges and
// non-finite values zeroed.
func (c Command) Clamped() Command {
	return Command{
		Throttle: clamp(c.Throttle, 0, MaxThrottle),
		Brake:    clamp(c.Brake, 0, MaxBrake),
		Steering: finite(c.Steering),
	}
}

func (c Command) String() string {
	return fmt.Sprintf("throttle=%.2f brake=%.1f steering=%.3f", c.Throttle, c.Brake, c.Steering)
}

// Sink accepts the batched command once per control cycle.
type Sink interface {
	Apply(ctx context.Context, cmd Command) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, cmd Command) error

// Apply calls f(ctx, cmd).
func (f SinkFunc) Apply(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, finite(v)))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
