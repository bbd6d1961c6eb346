package l6objects

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/autodrive/internal/lidar/l4perception"
	"github.com/banshee-data/autodrive/internal/lidar/l5tracks"
	"github.com/banshee-data/autodrive/internal/timeutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type classifierFunc func(ctx context.Context, r Region) (Detection, error)

func (f classifierFunc) Classify(ctx context.Context, r Region) (Detection, error) { return f(ctx, r) }

type weightModelFunc func(ctx context.Context, f l5tracks.Features) (float64, error)

func (f weightModelFunc) Score(ctx context.Context, feat l5tracks.Features) (float64, error) {
	return f(ctx, feat)
}

// blobAround returns a three-point blob centred on (x, y).
func blobAround(x, y float64) l4perception.Blob {
	return l4perception.Blob{{X: x, Y: y - 0.3}, {X: x, Y: y}, {X: x, Y: y + 0.3}}
}

type testScene struct {
	grid                *l5tracks.AngularOccupancy
	clock               *timeutil.MockClock
	ahead, left, behind uuid.UUID
}

func newTestScene(t *testing.T) *testScene {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	grid, err := l5tracks.NewAngularOccupancy(l5tracks.DefaultOccupancyConfig(), nil, clock)
	require.NoError(t, err)

	s := &testScene{grid: grid, clock: clock}
	for _, c := range []struct {
		id   *uuid.UUID
		x, y float64
	}{
		{&s.ahead, 10, 0},
		{&s.left, 10, 8},
		{&s.behind, -10, 0},
	} {
		res, err := grid.Fuse(blobAround(c.x, c.y))
		require.NoError(t, err)
		require.Equal(t, l5tracks.FuseCreated, res.Action)
		*c.id = res.ID
	}
	return s
}

func (s *testScene) class(t *testing.T, id uuid.UUID) l5tracks.ObjectClass {
	t.Helper()
	o, ok := s.grid.Get(id)
	require.True(t, ok)
	return o.Class
}

func unlimited() ServiceConfig {
	cfg := DefaultServiceConfig()
	cfg.ClassifierRate = 0
	return cfg
}

func TestCategorizer_LabelsOccupantsInView(t *testing.T) {
	s := newTestScene(t)

	var calls atomic.Int32
	c := NewCategorizer(classifierFunc(func(ctx context.Context, r Region) (Detection, error) {
		calls.Add(1)
		assert.Greater(t, r.Center.X, 0.0)
		if r.Center.Y > 1 {
			return Detection{ClassID: 0, Score: 0.9}, nil
		}
		return Detection{ClassID: 2, Score: 0.8}, nil
	}), s.grid, unlimited())

	n, err := c.Categorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(2), calls.Load())

	assert.Equal(t, l5tracks.ClassCar, s.class(t, s.ahead))
	assert.Equal(t, l5tracks.ClassPedestrian, s.class(t, s.left))
	assert.Equal(t, l5tracks.ClassUnknown, s.class(t, s.behind))

	n, err = c.Categorize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int32(2), calls.Load(), "classified occupants are not resent")
}

func TestCategorizer_FailuresAreIgnored(t *testing.T) {
	s := newTestScene(t)

	c := NewCategorizer(classifierFunc(func(ctx context.Context, r Region) (Detection, error) {
		if r.Center.Y > 1 {
			return Detection{}, ErrServiceUnavailable
		}
		return Detection{ClassID: NoDetection}, nil
	}), s.grid, unlimited())

	n, err := c.Categorize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, l5tracks.ClassUnknown, s.class(t, s.ahead))
	assert.Equal(t, l5tracks.ClassUnknown, s.class(t, s.left))
}

func TestCategorizer_RateLimited(t *testing.T) {
	s := newTestScene(t)

	cfg := DefaultServiceConfig()
	cfg.ClassifierRate = 0.001
	var calls atomic.Int32
	c := NewCategorizer(classifierFunc(func(ctx context.Context, r Region) (Detection, error) {
		calls.Add(1)
		return Detection{ClassID: 2}, nil
	}), s.grid, cfg)

	n, err := c.Categorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCategorizer_Timeout(t *testing.T) {
	s := newTestScene(t)

	cfg := unlimited()
	cfg.ClassifierTimeout = 10 * time.Millisecond
	c := NewCategorizer(classifierFunc(func(ctx context.Context, r Region) (Detection, error) {
		<-ctx.Done()
		return Detection{}, ctx.Err()
	}), s.grid, cfg)

	n, err := c.Categorize(context.Background())
	require.NoError(t, err, "a per-call deadline is not a caller cancellation")
	assert.Zero(t, n)
}

func TestCategorizer_Cancelled(t *testing.T) {
	s := newTestScene(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCategorizer(classifierFunc(func(ctx context.Context, r Region) (Detection, error) {
		t.Fatal("classifier called after cancellation")
		return Detection{}, nil
	}), s.grid, unlimited())

	_, err := c.Categorize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRescorer_ReplacesWeights(t *testing.T) {
	s := newTestScene(t)

	r := NewRescorer(weightModelFunc(func(ctx context.Context, f l5tracks.Features) (float64, error) {
		if f.X < 0 {
			return 0, errors.New("model rejected input")
		}
		return f.Distance * 2, nil
	}), s.grid, s.clock, DefaultServiceConfig())

	before, ok := s.grid.Get(s.behind)
	require.True(t, ok)

	n, err := r.Rescore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ahead, _ := s.grid.Get(s.ahead)
	assert.InDelta(t, ahead.Distance*2, ahead.Weight, 1e-9)
	left, _ := s.grid.Get(s.left)
	assert.InDelta(t, left.Distance*2, left.Weight, 1e-9)
	behind, _ := s.grid.Get(s.behind)
	assert.Equal(t, before.Weight, behind.Weight, "failed scores keep the heuristic weight")
}

func TestRescorer_BoundedConcurrency(t *testing.T) {
	s := newTestScene(t)

	cfg := DefaultServiceConfig()
	cfg.WeightModelWorkers = 1
	var mu sync.Mutex
	active, peak := 0, 0
	r := NewRescorer(weightModelFunc(func(ctx context.Context, f l5tracks.Features) (float64, error) {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return 1, nil
	}), s.grid, s.clock, cfg)

	n, err := r.Rescore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, peak)
}

func TestRescorer_Cancelled(t *testing.T) {
	s := newTestScene(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRescorer(weightModelFunc(func(ctx context.Context, f l5tracks.Features) (float64, error) {
		return 0, ctx.Err()
	}), s.grid, s.clock, DefaultServiceConfig())

	_, err := r.Rescore(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
