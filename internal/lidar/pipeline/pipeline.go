package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/autodrive/internal/actuation"
	"github.com/banshee-data/autodrive/internal/arbiter"
	"github.com/banshee-data/autodrive/internal/db"
	"github.com/banshee-data/autodrive/internal/drivers"
	"github.com/banshee-data/autodrive/internal/lidar/l4perception"
	"github.com/banshee-data/autodrive/internal/lidar/l5tracks"
	"github.com/banshee-data/autodrive/internal/lidar/l6objects"
	"github.com/banshee-data/autodrive/internal/monitoring"
	"github.com/banshee-data/autodrive/internal/timeutil"
)

// Source yields one range scan per tick, in scan order. A source that has
// run out of scans returns an error wrapping io.EOF.
type Source interface {
	NextScan(ctx context.Context) ([]l4perception.ScanPoint, error)
}

// Vehicle reports the vehicle's forward speed in m/s.
type Vehicle interface {
	Speed(ctx context.Context) (float64, error)
}

// BlobDriver is a driver stepped with the tick's blobs, such as the cruise
// driver or a lane follower.
type BlobDriver interface {
	Step(ctx context.Context, speed float64, blobs []l4perception.Blob) error
}

// Recorder persists one summary per tick. *db.DB satisfies it.
type Recorder interface {
	RecordTick(ctx context.Context, r db.TickRecord) error
}

// Config holds the collaborators of the tick driver. Source, Vehicle,
// Grid and Arbiter are required; every other field is optional.
type Config struct {
	Source  Source
	Vehicle Vehicle
	Sink    actuation.Sink // nil discards commands

	Clusterer l4perception.ClustererInterface // nil selects the default contiguous clusterer
	Grid      *l5tracks.AngularOccupancy
	Arbiter   *arbiter.DrivingArbiter

	Watchdog     *drivers.CollisionWatchdog
	Cruise       BlobDriver
	LaneFollower BlobDriver

	Categorizer *l6objects.Categorizer
	Rescorer    *l6objects.Rescorer

	Recorder Recorder
	Clock    timeutil.Clock // nil selects the real clock
}

// Driver runs control cycles. Ticks are serialized.
type Driver struct {
	cfg Config

	mu  sync.Mutex
	seq int64
}

// NewDriver validates cfg and creates a tick driver.
func NewDriver(cfg Config) (*Driver, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("pipeline: Source is required")
	case cfg.Vehicle == nil:
		return nil, errors.New("pipeline: Vehicle is required")
	case cfg.Grid == nil:
		return nil, errors.New("pipeline: Grid is required")
	case cfg.Arbiter == nil:
		return nil, errors.New("pipeline: Arbiter is required")
	}
	if cfg.Clusterer == nil {
		cfg.Clusterer = l4perception.NewContiguousClusterer(l4perception.DefaultClusteringParams())
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Driver{cfg: cfg}, nil
}

// Ticks returns the number of ticks completed.
func (d *Driver) Ticks() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}

// Tick runs one control cycle.
//
// Fusion and expiry complete before any driver runs, so every driver sees
// the same grid. The watchdog steps first and the blob drivers after it,
// so a driver preempted during this tick never overwrites the command of
// the driver that preempted it. Categorization runs alongside the driver
// chain. The batched command is flushed once at the end.
//
// Classifier and weight model failures never fail a tick. Recorder
// failures are logged.
func (d *Driver) Tick(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := d.cfg.Clock.Now()
	defer func() {
		monitoring.TickDuration.Observe(d.cfg.Clock.Since(start).Seconds())
	}()

	scan, err := d.cfg.Source.NextScan(ctx)
	if err != nil {
		return fmt.Errorf("acquire scan: %w", err)
	}
	speed, err := d.cfg.Vehicle.Speed(ctx)
	if err != nil {
		return fmt.Errorf("read speed: %w", err)
	}

	points := l4perception.Flatten(scan)
	blobs := d.cfg.Clusterer.Cluster(points)
	results := d.cfg.Grid.FuseAll(blobs)
	expired := d.cfg.Grid.Expire()

	if d.cfg.Rescorer != nil {
		if _, err := d.cfg.Rescorer.Rescore(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.stepDrivers(gctx, speed, blobs)
	})
	if d.cfg.Categorizer != nil {
		g.Go(func() error {
			n, err := d.cfg.Categorizer.Categorize(gctx)
			if n > 0 {
				diagf("classified %d occupants", n)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := d.cfg.Arbiter.Flush(ctx, d.cfg.Sink); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	d.seq++
	rec := db.TickRecord{
		Seq:       d.seq,
		At:        start,
		Speed:     speed,
		Points:    len(points),
		Blobs:     len(blobs),
		Occupants: d.cfg.Grid.Len(),
		Expired:   expired,
		Fusions:   countFusions(results),
		Strategy:  d.strategy().String(),
		Duration:  d.cfg.Clock.Since(start),
	}
	cmd := d.cfg.Arbiter.Batch().Command()
	rec.Throttle, rec.Brake, rec.Steering = cmd.Throttle, cmd.Brake, cmd.Steering

	tracef("tick %d: %d points, %d blobs, %d occupants, %s, %v",
		rec.Seq, rec.Points, rec.Blobs, rec.Occupants, rec.Strategy, cmd)

	if d.cfg.Recorder != nil {
		if err := d.cfg.Recorder.RecordTick(ctx, rec); err != nil {
			opsf("record tick %d: %v", rec.Seq, err)
		}
	}
	return nil
}

func (d *Driver) stepDrivers(ctx context.Context, speed float64, blobs []l4perception.Blob) error {
	if d.cfg.Watchdog != nil {
		if err := d.cfg.Watchdog.Step(ctx, speed); err != nil {
			return fmt.Errorf("watchdog: %w", err)
		}
	}
	if d.cfg.LaneFollower != nil {
		if err := d.cfg.LaneFollower.Step(ctx, speed, blobs); err != nil {
			return fmt.Errorf("lane follower: %w", err)
		}
	}
	if d.cfg.Cruise != nil {
		if err := d.cfg.Cruise.Step(ctx, speed, blobs); err != nil {
			return fmt.Errorf("cruise: %w", err)
		}
	}
	return nil
}

func (d *Driver) strategy() drivers.Strategy {
	if d.cfg.Watchdog == nil {
		return drivers.StrategyNone
	}
	return d.cfg.Watchdog.Strategy()
}

func countFusions(results []l5tracks.FuseResult) db.FusionCounts {
	var c db.FusionCounts
	for _, r := range results {
		switch r.Action {
		case l5tracks.FuseCreated:
			c.Created++
		case l5tracks.FuseUpdated:
			c.Updated++
		case l5tracks.FuseSuperseded:
			c.Superseded++
		case l5tracks.FuseSkipped:
			c.Skipped++
		}
	}
	return c
}

// Run ticks every interval until ctx is cancelled, the source runs out of
// scans or a tick fails. Cancellation and an exhausted source return nil;
// a failed tick returns its error.
func (d *Driver) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("pipeline: tick interval must be positive, got %v", interval)
	}
	ticker := d.cfg.Clock.NewTicker(interval)
	defer ticker.Stop()

	diagf("running every %v", interval)
	for {
		select {
		case <-ctx.Done():
			diagf("stopped after %d ticks: %v", d.Ticks(), ctx.Err())
			return nil
		case <-ticker.C():
			err := d.Tick(ctx)
			switch {
			case err == nil:
			case errors.Is(err, io.EOF):
				diagf("source exhausted after %d ticks", d.Ticks())
				return nil
			case ctx.Err() != nil:
				diagf("stopped after %d ticks: %v", d.Ticks(), ctx.Err())
				return nil
			default:
				opsf("tick %d failed: %v", d.Ticks()+1, err)
				return err
			}
		}
	}
}
