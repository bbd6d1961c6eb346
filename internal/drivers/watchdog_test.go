package drivers

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/autodrive/internal/arbiter"
	"github.com/banshee-data/autodrive/internal/lidar/l4perception"
	"github.com/banshee-data/autodrive/internal/lidar/l5tracks"
	"github.com/banshee-data/autodrive/internal/timeutil"
)

// fakeGrid is a 300-bin OccupancyView backed by a map.
type fakeGrid map[int]l5tracks.Occupant

func (g fakeGrid) BinCount() int { return 300 }

func (g fakeGrid) Bin(i int) (l5tracks.Occupant, bool) {
	o, ok := g[((i%300)+300)%300]
	return o, ok
}

// put places an occupant at distance d on the bearing of bin i.
func (g fakeGrid) put(i int, d, weight float64) {
	a := float64(i) / 300 * 2 * math.Pi
	g[i] = l5tracks.Occupant{
		ID:          uuid.New(),
		Center:      l4perception.Point{X: d * math.Cos(a), Y: d * math.Sin(a)},
		CenterAngle: a,
		Distance:    d,
		Weight:      weight,
	}
}

type harness struct {
	da       *arbiter.DrivingArbiter
	grid     fakeGrid
	cruise   *Cruise
	watchdog *CollisionWatchdog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{da: arbiter.NewDrivingArbiter(nil), grid: fakeGrid{}}
	var err error
	h.cruise, err = NewCruise(DefaultCruiseConfig(), h.da)
	require.NoError(t, err)
	require.True(t, h.cruise.Engage())
	h.watchdog, err = NewCollisionWatchdog(DefaultWatchdogConfig(), h.da, h.grid)
	require.NoError(t, err)
	return h
}

func (h *harness) step(t *testing.T, speed float64) {
	t.Helper()
	require.NoError(t, h.watchdog.Step(context.Background(), speed))
}

func (h *harness) holders(t *testing.T) (steering, speed string) {
	t.Helper()
	steering, _, _ = h.da.Steering().Holder()
	speed, _, _ = h.da.Speed().Holder()
	return steering, speed
}

func TestWatchdog_BrakesForFrontOccupant(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	grid, err := l5tracks.NewAngularOccupancy(l5tracks.DefaultOccupancyConfig(), nil, clock)
	require.NoError(t, err)
	_, err = grid.Fuse(l4perception.Blob{{X: 5, Y: 0}, {X: 5, Y: 0.5}, {X: 5, Y: 1}})
	require.NoError(t, err)

	da := arbiter.NewDrivingArbiter(nil)
	cruise, err := NewCruise(DefaultCruiseConfig(), da)
	require.NoError(t, err)
	cruise.Engage()
	w, err := NewCollisionWatchdog(DefaultWatchdogConfig(), da, grid)
	require.NoError(t, err)

	require.NoError(t, w.Step(context.Background(), 10))
	assert.Equal(t, StrategyBraking, w.Strategy())

	id, p, ok := da.Speed().Holder()
	require.True(t, ok)
	assert.Equal(t, WatchdogID, id)
	assert.Equal(t, arbiter.High, p)
	steer, _, _ := da.Steering().Holder()
	assert.Equal(t, CruiseID, steer, "braking leaves steering alone")

	require.NoError(t, w.Step(context.Background(), 10))
	cmd := da.Batch().Command()
	assert.Equal(t, 0.0, cmd.Throttle)
	assert.Equal(t, 100.0, cmd.Brake)
}

func TestWatchdog_IgnoresLightOccupants(t *testing.T) {
	h := newHarness(t)
	h.grid.put(0, 5, 9.99)
	h.grid.put(80, 5, 1)

	h.step(t, 10)
	assert.Equal(t, StrategyNone, h.watchdog.Strategy())
	steer, speed := h.holders(t)
	assert.Equal(t, CruiseID, steer)
	assert.Equal(t, CruiseID, speed)
}

func TestWatchdog_FrontConeRequiresPositiveX(t *testing.T) {
	h := newHarness(t)
	// Bin 299 is just right of straight ahead: signed angle inside the cone.
	h.grid.put(299, 5, 100)
	h.step(t, 10)
	assert.Equal(t, StrategyBraking, h.watchdog.Strategy())

	h = newHarness(t)
	h.grid.put(0, 5, 100)
	occ := h.grid[0]
	occ.Center.X = -1
	h.grid[0] = occ
	h.step(t, 10)
	assert.Equal(t, StrategySwerveRight, h.watchdog.Strategy(), "behind the front axle falls through to swerve")
}

func TestWatchdog_FrontConeIsSymmetric(t *testing.T) {
	for _, tc := range []struct {
		bin  int
		want Strategy
	}{
		{9, StrategyBraking},
		{291, StrategyBraking},
		{10, StrategySwerveRight},
		{290, StrategySwerveLeft},
	} {
		t.Run(fmt.Sprint(tc.bin), func(t *testing.T) {
			h := newHarness(t)
			h.grid.put(tc.bin, 5, 100)
			h.step(t, 10)
			assert.Equal(t, tc.want, h.watchdog.Strategy())
		})
	}
}

func TestWatchdog_BrakingRecovery(t *testing.T) {
	h := newHarness(t)
	h.grid.put(0, 5, 100)
	h.step(t, 10)
	require.Equal(t, StrategyBraking, h.watchdog.Strategy())

	// Still blocked: counter stays at zero.
	h.step(t, 10)
	safe, _ := h.watchdog.Counters()
	assert.Equal(t, 0, safe)

	delete(h.grid, 0)
	for i := 1; i < 25; i++ {
		h.step(t, 0)
		safe, _ = h.watchdog.Counters()
		require.Equal(t, i, safe)
	}

	// A light but close occupant in the cone is still unsafe.
	h.grid.put(3, 10, 1)
	h.step(t, 0)
	safe, _ = h.watchdog.Counters()
	assert.Equal(t, 0, safe)

	// A far, light occupant is fine.
	h.grid.put(3, 31, 1)
	for i := 1; i < 25; i++ {
		h.step(t, 0)
	}
	assert.Equal(t, StrategyBraking, h.watchdog.Strategy())
	_, speed := h.holders(t)
	assert.Equal(t, WatchdogID, speed)

	h.step(t, 0)
	assert.Equal(t, StrategyNone, h.watchdog.Strategy())
	_, speed = h.holders(t)
	assert.Equal(t, CruiseID, speed)
	safe, _ = h.watchdog.Counters()
	assert.Equal(t, 0, safe)
}

func TestWatchdog_SwerveRightLifecycle(t *testing.T) {
	h := newHarness(t)
	h.grid.put(50, 25, 50) // left side

	h.step(t, 10)
	require.Equal(t, StrategySwerveRight, h.watchdog.Strategy())
	steer, speed := h.holders(t)
	assert.Equal(t, WatchdogID, steer)
	assert.Equal(t, WatchdogID, speed)
	_, p, _ := h.da.Speed().Holder()
	assert.Equal(t, arbiter.Medium, p)

	// Near occupant: moderate steer, brake above the swerve speed.
	h.step(t, 10)
	cmd := h.da.Batch().Command()
	assert.InDelta(t, math.Pi/8, cmd.Steering, 1e-12)
	assert.Equal(t, 3.0, cmd.Brake)
	assert.Equal(t, 0.0, cmd.Throttle)
	_, swerve := h.watchdog.Counters()
	assert.Equal(t, 1, swerve)

	// Close occupant: hard steer, accelerate at low speed.
	h.grid.put(50, 15, 50)
	h.step(t, 5)
	cmd = h.da.Batch().Command()
	assert.InDelta(t, math.Pi/4, cmd.Steering, 1e-12)
	assert.Equal(t, 1.0, cmd.Throttle)
	assert.Equal(t, 0.0, cmd.Brake)
	_, swerve = h.watchdog.Counters()
	assert.Equal(t, 3, swerve)
	assert.Equal(t, StrategySwerveRight, h.watchdog.Strategy())

	// Clear: four ticks of waiting, then straighten one step per tick.
	delete(h.grid, 50)
	for i := 1; i <= 4; i++ {
		h.step(t, 5)
		safe, swerve := h.watchdog.Counters()
		require.Equal(t, i, safe)
		require.Equal(t, 3, swerve)
	}
	for want := 2; want >= 1; want-- {
		h.step(t, 5)
		_, swerve = h.watchdog.Counters()
		require.Equal(t, want, swerve)
		assert.InDelta(t, -math.Pi/8, h.da.Batch().Command().Steering, 1e-12)
	}
	h.step(t, 5)
	assert.Equal(t, StrategyNone, h.watchdog.Strategy())
	steer, speed = h.holders(t)
	assert.Equal(t, CruiseID, steer)
	assert.Equal(t, CruiseID, speed)
	safe, swerve := h.watchdog.Counters()
	assert.Equal(t, 0, safe)
	assert.Equal(t, 0, swerve)
}

func TestWatchdog_SwerveLeftScansRightHalf(t *testing.T) {
	h := newHarness(t)
	h.grid.put(250, 25, 50) // right side

	h.step(t, 5)
	require.Equal(t, StrategySwerveLeft, h.watchdog.Strategy())

	h.step(t, 5)
	assert.InDelta(t, -math.Pi/8, h.da.Batch().Command().Steering, 1e-12)
	_, swerve := h.watchdog.Counters()
	assert.Equal(t, -1, swerve)
}

func TestWatchdog_GentleCorrectionKeepsScanning(t *testing.T) {
	h := newHarness(t)
	h.grid.put(50, 25, 50)
	h.step(t, 5)
	require.Equal(t, StrategySwerveRight, h.watchdog.Strategy())

	h.grid.put(50, 40, 1)
	h.step(t, 5)
	assert.InDelta(t, math.Pi/32, h.da.Batch().Command().Steering, 1e-12)
	safe, _ := h.watchdog.Counters()
	assert.Equal(t, 1, safe, "far occupants leave the half clear")

	h.grid.put(100, 20, 1)
	h.step(t, 5)
	assert.InDelta(t, math.Pi/4, h.da.Batch().Command().Steering, 1e-12)
	safe, _ = h.watchdog.Counters()
	assert.Equal(t, 0, safe)
}

func TestWatchdog_DirectionChange(t *testing.T) {
	h := newHarness(t)
	h.grid.put(50, 25, 50)
	h.step(t, 5)
	require.Equal(t, StrategySwerveRight, h.watchdog.Strategy())

	h.grid.put(250, 25, 50)
	h.step(t, 5)
	assert.Equal(t, StrategySwerveLeft, h.watchdog.Strategy())
	steer, _ := h.holders(t)
	assert.Equal(t, WatchdogID, steer)
}

func TestWatchdog_BrakingFromSwerveReleasesSteering(t *testing.T) {
	h := newHarness(t)
	h.grid.put(50, 25, 50)
	h.step(t, 5)
	require.Equal(t, StrategySwerveRight, h.watchdog.Strategy())

	delete(h.grid, 50)
	h.grid.put(0, 6, 100)
	h.step(t, 5)
	assert.Equal(t, StrategyBraking, h.watchdog.Strategy())
	steer, speed := h.holders(t)
	assert.Equal(t, CruiseID, steer)
	assert.Equal(t, WatchdogID, speed)
	_, p, _ := h.da.Speed().Holder()
	assert.Equal(t, arbiter.High, p)
}

func TestWatchdog_ReturnedChannelIsReleasedOnRecovery(t *testing.T) {
	h := newHarness(t)
	h.grid.put(0, 5, 100)
	h.step(t, 10)
	require.Equal(t, StrategyBraking, h.watchdog.Strategy())

	manual := &Cruise{cfg: DefaultCruiseConfig(), arbiter: h.da}
	override := &namedDriver{Cruise: manual, id: "manual"}
	require.True(t, h.da.RequestSpeed(override, arbiter.Crucial, true))
	assert.Equal(t, StrategyBraking, h.watchdog.Strategy(), "a returnable revocation keeps the strategy")

	h.da.GiveUpSpeed(override)
	_, speed := h.holders(t)
	assert.Equal(t, WatchdogID, speed, "preempted holder is restored")

	delete(h.grid, 0)
	for range DefaultWatchdogConfig().BrakeClearTicks {
		h.step(t, 10)
		require.NoError(t, h.cruise.Step(context.Background(), 10, nil))
	}
	assert.Equal(t, StrategyNone, h.watchdog.Strategy())
	_, speed = h.holders(t)
	assert.Equal(t, CruiseID, speed)

	require.NoError(t, h.cruise.Step(context.Background(), 10, nil))
	assert.Zero(t, h.da.Batch().Command().Brake)
}

func TestWatchdog_FinalRevocationResetsStrategy(t *testing.T) {
	h := newHarness(t)
	h.grid.put(0, 5, 100)
	h.step(t, 10)
	require.Equal(t, StrategyBraking, h.watchdog.Strategy())

	override := &namedDriver{Cruise: &Cruise{cfg: DefaultCruiseConfig(), arbiter: h.da}, id: "manual"}
	require.True(t, h.da.RequestSpeed(override, arbiter.Crucial, false))
	assert.Equal(t, StrategyNone, h.watchdog.Strategy())
	_, speed := h.holders(t)
	assert.Equal(t, "manual", speed)
}

func TestWatchdog_Reset(t *testing.T) {
	h := newHarness(t)
	h.grid.put(50, 25, 50)
	h.step(t, 5)
	require.Equal(t, StrategySwerveRight, h.watchdog.Strategy())

	h.watchdog.Reset()
	assert.Equal(t, StrategyNone, h.watchdog.Strategy())
	steer, speed := h.holders(t)
	assert.Equal(t, CruiseID, steer)
	assert.Equal(t, CruiseID, speed)

	// Reset when holding nothing is harmless.
	h.watchdog.Reset()
}

func TestWatchdog_ContextCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.watchdog.Step(ctx, 0), context.Canceled)
}

func TestNewCollisionWatchdog_Validation(t *testing.T) {
	cfg := DefaultWatchdogConfig()
	cfg.SwerveCloseDistance = 50
	_, err := NewCollisionWatchdog(cfg, arbiter.NewDrivingArbiter(nil), fakeGrid{})
	assert.ErrorContains(t, err, "SwerveCloseDistance")

	_, err = NewCollisionWatchdog(DefaultWatchdogConfig(), nil, fakeGrid{})
	assert.Error(t, err)
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "braking", StrategyBraking.String())
	assert.Equal(t, "swerve-left", StrategySwerveLeft.String())
	assert.Equal(t, "strategy(9)", Strategy(9).String())
}

// namedDriver reuses Cruise's callbacks under another identity.
type namedDriver struct {
	*Cruise
	id string
}

func (d *namedDriver) DriverID() string { return d.id }
