package l6objects

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/banshee-data/autodrive/internal/config"
	"github.com/banshee-data/autodrive/internal/lidar/l5tracks"
	"github.com/banshee-data/autodrive/internal/monitoring"
	"github.com/banshee-data/autodrive/internal/timeutil"
)

// Grid is the occupancy grid access the service tasks need.
// *l5tracks.AngularOccupancy satisfies it.
type Grid interface {
	Occupants() iter.Seq2[uuid.UUID, l5tracks.Occupant]
	Classify(id uuid.UUID, c l5tracks.ObjectClass) bool
	SetWeight(id uuid.UUID, w float64) bool
}

// ServiceConfig holds the limits applied to the external services.
type ServiceConfig struct {
	ClassifierTimeout   time.Duration // Per-call deadline for the classifier
	ClassifierRate      float64       // Classifier calls per second
	WeightModelTimeout  time.Duration // Per-call deadline for the weight model
	CameraViewDistance  float64       // Occupants beyond this are not classified (30)
	CameraViewHalfAngle float64       // Half field of view of the camera (π/4)
	WeightModelWorkers  int           // Concurrent weight model calls per tick
}

// DefaultServiceConfig returns the canonical service limits.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfigFromTuning(config.EmptyTuningConfig())
}

// ServiceConfigFromTuning builds a ServiceConfig from a loaded TuningConfig.
func ServiceConfigFromTuning(cfg *config.TuningConfig) ServiceConfig {
	return ServiceConfig{
		ClassifierTimeout:   cfg.GetClassifierTimeout(),
		ClassifierRate:      cfg.GetClassifierRate(),
		WeightModelTimeout:  cfg.GetWeightModelTimeout(),
		CameraViewDistance:  cfg.GetCameraViewDistance(),
		CameraViewHalfAngle: cfg.GetCameraViewHalfAngle(),
		WeightModelWorkers:  cfg.GetWeightModelWorkers(),
	}
}

// Categorizer labels unclassified occupants in the camera's view.
type Categorizer struct {
	classifier Classifier
	grid       Grid
	cfg        ServiceConfig
	limiter    *rate.Limiter
}

// NewCategorizer creates a categorizer. Classifier calls are limited to
// cfg.ClassifierRate per second with a burst of one.
func NewCategorizer(c Classifier, grid Grid, cfg ServiceConfig) *Categorizer {
	limit := rate.Limit(cfg.ClassifierRate)
	if cfg.ClassifierRate <= 0 {
		limit = rate.Inf
	}
	return &Categorizer{
		classifier: c,
		grid:       grid,
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Categorize classifies the occupants currently in view and returns how
// many were labelled. Classifier failures leave the occupant untouched;
// the rate limiter ends the pass early rather than waiting. Only a
// cancelled ctx is returned as an error.
func (c *Categorizer) Categorize(ctx context.Context) (int, error) {
	labelled := 0
	for id, occ := range c.grid.Occupants() {
		if err := ctx.Err(); err != nil {
			return labelled, err
		}
		if occ.Class != l5tracks.ClassUnknown {
			continue
		}
		if !InCameraView(occ.Center, c.cfg.CameraViewDistance, c.cfg.CameraViewHalfAngle) {
			continue
		}
		if !c.limiter.Allow() {
			break
		}

		det, err := c.classify(ctx, occ)
		if err != nil {
			if ctx.Err() != nil {
				return labelled, ctx.Err()
			}
			monitoring.Logf("[l6objects] classify %s: %v", id, err)
			continue
		}
		class := ObjectClassFromID(det.ClassID)
		if class == l5tracks.ClassUnknown {
			continue
		}
		if c.grid.Classify(id, class) {
			labelled++
		}
	}
	return labelled, nil
}

func (c *Categorizer) classify(ctx context.Context, occ l5tracks.Occupant) (Detection, error) {
	if c.cfg.ClassifierTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ClassifierTimeout)
		defer cancel()
	}
	return c.classifier.Classify(ctx, RegionOf(occ))
}

// WeightModel scores an occupant's feature tuple.
type WeightModel interface {
	Score(ctx context.Context, f l5tracks.Features) (float64, error)
}

// Rescorer overrides heuristic weights with an external weight model.
type Rescorer struct {
	model WeightModel
	grid  Grid
	clock timeutil.Clock
	cfg   ServiceConfig
}

// NewRescorer creates a rescorer. A nil clock selects the real clock.
func NewRescorer(m WeightModel, grid Grid, clock timeutil.Clock, cfg ServiceConfig) *Rescorer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Rescorer{model: m, grid: grid, clock: clock, cfg: cfg}
}

// Rescore scores a snapshot of the grid's occupants concurrently and
// writes each successful score back. Occupants whose score fails keep
// their current weight. It returns how many weights were replaced; only a
// cancelled ctx is returned as an error.
func (r *Rescorer) Rescore(ctx context.Context) (int, error) {
	now := r.clock.Now()

	g, gctx := errgroup.WithContext(ctx)
	workers := r.cfg.WeightModelWorkers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	var replaced, failed atomic.Int64
	for id, occ := range r.grid.Occupants() {
		f := occ.Features(now)
		g.Go(func() error {
			w, err := r.score(gctx, f)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed.Add(1)
				return nil
			}
			if r.grid.SetWeight(id, w) {
				replaced.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(replaced.Load()), fmt.Errorf("rescore: %w", err)
	}
	if n := failed.Load(); n > 0 {
		monitoring.Logf("[l6objects] weight model failed for %d occupants, heuristic weights kept", n)
	}
	return int(replaced.Load()), nil
}

func (r *Rescorer) score(ctx context.Context, f l5tracks.Features) (float64, error) {
	if r.cfg.WeightModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.WeightModelTimeout)
		defer cancel()
	}
	return r.model.Score(ctx, f)
}
