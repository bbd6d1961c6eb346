package drivers

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/autodrive/internal/actuation"
	"github.com/banshee-data/autodrive/internal/arbiter"
	"github.com/banshee-data/autodrive/internal/lidar/l5tracks"
	"github.com/banshee-data/autodrive/internal/monitoring"
)

// WatchdogID is the arbiter identity of the collision watchdog.
const WatchdogID = "collision-watchdog"

// Strategy is the collision watchdog's current avoidance behaviour.
type Strategy int32

const (
	StrategyNone Strategy = iota
	StrategyBraking
	StrategySwerveLeft
	StrategySwerveRight
)

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyBraking:
		return "braking"
	case StrategySwerveLeft:
		return "swerve-left"
	case StrategySwerveRight:
		return "swerve-right"
	default:
		return fmt.Sprintf("strategy(%d)", int32(s))
	}
}

// direction returns -1 for a left swerve and +1 for a right swerve.
func (s Strategy) direction() int {
	switch s {
	case StrategySwerveLeft:
		return -1
	case StrategySwerveRight:
		return 1
	default:
		return 0
	}
}

// OccupancyView is the read-only grid access the watchdog needs.
// *l5tracks.AngularOccupancy satisfies it.
type OccupancyView interface {
	BinCount() int
	Bin(i int) (l5tracks.Occupant, bool)
}

// CollisionWatchdog reads the occupancy grid each tick, picks an avoidance
// strategy and requests or releases channels from the DrivingArbiter.
//
// Step and Reset are serialized. Grant and revoke callbacks may arrive
// from other goroutines at any time. A final revocation of either channel
// drops the strategy back to none; a revocation that will be returned
// keeps it, so the recovery logic still runs and releases the channel
// once it is handed back.
type CollisionWatchdog struct {
	cfg     WatchdogConfig
	arbiter *arbiter.DrivingArbiter
	grid    OccupancyView

	strategy atomic.Int32

	stepMu      sync.Mutex
	safeCount   int
	swerveCount int

	ctrlMu   sync.Mutex
	speed    *actuation.SpeedController
	steering *actuation.SteeringController
}

// NewCollisionWatchdog creates an idle watchdog.
func NewCollisionWatchdog(cfg WatchdogConfig, da *arbiter.DrivingArbiter, grid OccupancyView) (*CollisionWatchdog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid watchdog config: %w", err)
	}
	if da == nil || grid == nil {
		return nil, fmt.Errorf("collision watchdog requires an arbiter and a grid")
	}
	return &CollisionWatchdog{cfg: cfg, arbiter: da, grid: grid}, nil
}

// DriverID implements arbiter.Driver.
func (w *CollisionWatchdog) DriverID() string { return WatchdogID }

// OnSteeringGranted implements arbiter.Driver.
func (w *CollisionWatchdog) OnSteeringGranted(c *actuation.SteeringController) {
	w.ctrlMu.Lock()
	defer w.ctrlMu.Unlock()
	w.steering = c
}

// OnSteeringRevoked implements arbiter.Driver.
func (w *CollisionWatchdog) OnSteeringRevoked(willReturn bool) {
	w.ctrlMu.Lock()
	w.steering = nil
	w.ctrlMu.Unlock()
	if !willReturn {
		w.setStrategy(StrategyNone)
	}
}

// OnSpeedGranted implements arbiter.Driver.
func (w *CollisionWatchdog) OnSpeedGranted(c *actuation.SpeedController) {
	w.ctrlMu.Lock()
	defer w.ctrlMu.Unlock()
	w.speed = c
}

// OnSpeedRevoked implements arbiter.Driver.
func (w *CollisionWatchdog) OnSpeedRevoked(willReturn bool) {
	w.ctrlMu.Lock()
	w.speed = nil
	w.ctrlMu.Unlock()
	if !willReturn {
		w.setStrategy(StrategyNone)
	}
}

// Strategy returns the current avoidance strategy.
func (w *CollisionWatchdog) Strategy() Strategy {
	return Strategy(w.strategy.Load())
}

// Counters returns the safe-continue and swerve counters.
func (w *CollisionWatchdog) Counters() (safeContinue, swerve int) {
	w.stepMu.Lock()
	defer w.stepMu.Unlock()
	return w.safeCount, w.swerveCount
}

// Step runs one control cycle at the given vehicle speed.
//
// An active braking strategy runs its behaviour and returns. An active
// swerve runs its behaviour and, if the strategy survived it, falls
// through to the hazard scan. The scan picks the first bin whose occupant
// weighs at least ActivationWeight: inside the front cone and ahead of the
// vehicle it brakes, otherwise it swerves away from the occupant's side.
func (w *CollisionWatchdog) Step(ctx context.Context, speed float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.stepMu.Lock()
	defer w.stepMu.Unlock()

	switch s := w.Strategy(); s {
	case StrategyBraking:
		w.brake()
		return nil
	case StrategySwerveLeft, StrategySwerveRight:
		w.swerve(speed, s.direction())
		if w.Strategy() != s {
			return nil
		}
	}

	w.scan()
	return nil
}

// Reset releases both channels, withdraws pending requests and clears all
// state.
func (w *CollisionWatchdog) Reset() {
	w.stepMu.Lock()
	defer w.stepMu.Unlock()
	w.releaseLocked()
}

// scan tests the front cone on the signed bin angle, so bins just right
// of straight ahead (291-299 of 300) brake like those just left of it
// rather than triggering a left swerve. This keeps the activation cone
// symmetric with the ±FrontAngle window brake uses to clear.
func (w *CollisionWatchdog) scan() {
	n := w.grid.BinCount()
	current := w.Strategy()
	for i := range n {
		occ, ok := w.grid.Bin(i)
		if !ok || occ.Weight < w.cfg.ActivationWeight {
			continue
		}

		angle := float64(i) * 2 * math.Pi / float64(n)
		signed := angle
		if signed > math.Pi {
			signed -= 2 * math.Pi
		}

		switch {
		case math.Abs(signed) < w.cfg.FrontAngle && occ.Center.X > 0:
			diagf("braking for %s at %.2fm weight %.1f (bin %d)", occ.ID, occ.Distance, occ.Weight, i)
			if current != StrategyNone && current != StrategyBraking {
				w.arbiter.GiveUpSteering(w)
				w.arbiter.Withdraw(w)
			}
			w.enter(StrategyBraking)
			w.arbiter.RequestSpeed(w, arbiter.High, true)
			return

		case angle < math.Pi && current != StrategySwerveRight:
			diagf("swerving right from %s at %.2fm weight %.1f (bin %d)", occ.ID, occ.Distance, occ.Weight, i)
			w.enter(StrategySwerveRight)
			w.arbiter.RequestSteering(w, arbiter.High, true)
			w.arbiter.RequestSpeed(w, arbiter.Medium, true)
			return

		case angle > math.Pi && current != StrategySwerveLeft:
			diagf("swerving left from %s at %.2fm weight %.1f (bin %d)", occ.ID, occ.Distance, occ.Weight, i)
			w.enter(StrategySwerveLeft)
			w.arbiter.RequestSteering(w, arbiter.High, true)
			w.arbiter.RequestSpeed(w, arbiter.Medium, true)
			return
		}
	}
}

// brake holds full brake and releases the speed channel once the front
// cone has been clear for BrakeClearTicks consecutive ticks. The cone is
// clear when every occupant in it is farther than BrakeClearDistance and
// lighter than ActivationWeight.
func (w *CollisionWatchdog) brake() {
	speed, _ := w.controllers()
	if speed != nil {
		speed.Set(0, fullBrake)
	} else {
		opsf("braking without the speed channel")
	}

	n := w.grid.BinCount()
	half := int(math.Round(w.cfg.FrontAngle / (2 * math.Pi) * float64(n)))
	safe := true
	for i := -half; i <= half; i++ {
		occ, ok := w.grid.Bin(i)
		if !ok {
			continue
		}
		if occ.Distance <= w.cfg.BrakeClearDistance || occ.Weight >= w.cfg.ActivationWeight {
			safe = false
			break
		}
	}

	if !safe {
		w.safeCount = 0
		return
	}
	w.safeCount++
	if w.safeCount >= w.cfg.BrakeClearTicks {
		diagf("front clear for %d ticks, releasing speed", w.safeCount)
		w.releaseLocked()
	}
}

// swerve steers away from the side being scanned. dir is -1 (left) or +1
// (right); bins are scanned from straight ahead outward as i = k*dir.
// swerveCount accumulates in the direction of the swerve and the swerve
// has recovered once it crosses back to zero, i.e. dir*swerveCount <= 0.
func (w *CollisionWatchdog) swerve(currentSpeed float64, dir int) {
	speed, steering := w.controllers()
	if speed != nil {
		if currentSpeed > w.cfg.SwerveBrakeSpeed {
			speed.Set(0, swerveBrake)
		} else {
			speed.Set(swerveThrottle, 0)
		}
	}
	steer := func(rad float64) {
		if steering != nil {
			steering.SetSteering(rad)
		}
	}
	if steering == nil {
		opsf("swerving without the steering channel")
	}

	d := float64(dir)
	n := w.grid.BinCount()
	clear := true
	for k := range n / 2 {
		occ, ok := w.grid.Bin(k * dir)
		if !ok {
			continue
		}
		if occ.Distance <= w.cfg.SwerveCloseDistance {
			steer(d * swerveHardSteer)
			w.swerveCount += 2 * dir
			clear = false
			break
		}
		if occ.Distance <= w.cfg.SwerveNearDistance {
			steer(d * swerveSteer)
			w.swerveCount += dir
			clear = false
			break
		}
		steer(d * swerveGentleStep)
	}

	if !clear {
		w.safeCount = 0
		tracef("swerve %+d blocked, swerve count %d", dir, w.swerveCount)
		return
	}

	w.safeCount++
	if w.safeCount < w.cfg.SwerveClearTicks {
		return
	}
	w.swerveCount -= dir
	steer(-d * swerveSteer)
	tracef("straightening from swerve %+d, swerve count %d", dir, w.swerveCount)
	if dir*w.swerveCount <= 0 {
		diagf("swerve %+d recovered, releasing steering and speed", dir)
		w.releaseLocked()
	}
}

// enter switches strategy and clears the counters.
func (w *CollisionWatchdog) enter(s Strategy) {
	w.safeCount = 0
	w.swerveCount = 0
	w.setStrategy(s)
}

func (w *CollisionWatchdog) releaseLocked() {
	w.safeCount = 0
	w.swerveCount = 0
	w.arbiter.GiveUpSteering(w)
	w.arbiter.GiveUpSpeed(w)
	w.arbiter.Withdraw(w)
	w.setStrategy(StrategyNone)
}

func (w *CollisionWatchdog) setStrategy(s Strategy) {
	w.strategy.Store(int32(s))
	monitoring.WatchdogStrategy.Set(float64(s))
}

func (w *CollisionWatchdog) controllers() (*actuation.SpeedController, *actuation.SteeringController) {
	w.ctrlMu.Lock()
	defer w.ctrlMu.Unlock()
	return w.speed, w.steering
}
