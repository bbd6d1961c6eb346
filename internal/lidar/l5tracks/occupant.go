package l5tracks

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/autodrive/internal/lidar/l4perception"
)

// ErrDegenerateGeometry is returned when an occupant would be centred on
// the vehicle origin (or on a non-finite point), where distance and
// bearing are undefined.
var ErrDegenerateGeometry = errors.New("l5tracks: degenerate geometry")

// minWeightRateInterval is the smallest elapsed time over which a weight
// rate of change is computed.
const minWeightRateInterval = time.Millisecond

// Occupant is the fused state of one tracked object.
//
// An Occupant is not safe for concurrent use on its own; the owning
// AngularOccupancy serializes access. Values returned by the grid are
// copies.
type Occupant struct {
	ID          uuid.UUID
	Center      l4perception.Point
	CenterAngle float64
	Distance    float64
	Class       ObjectClass

	RelativeVelocity l4perception.Point
	RelativeSpeed    float64 // Closing speed, positive when approaching

	Weight     float64
	WeightRate float64

	LastUpdate time.Time // Time of the last fusion match (decay origin)

	survival  float64 // Survival probability as of LastUpdate
	weighedAt time.Time
	speedAt   time.Time
	speedFrom l4perception.Point
	speedDist float64
	cfg       OccupantConfig
	strategy  WeighingStrategy
	dead      bool
}

// OccupantOption configures optional construction parameters.
type OccupantOption func(*Occupant)

// WithBearing overrides the centre angle derived from the centre point.
func WithBearing(angle float64) OccupantOption {
	return func(o *Occupant) { o.CenterAngle = angle }
}

// WithClass sets the initial classification.
func WithClass(c ObjectClass) OccupantOption {
	return func(o *Occupant) { o.Class = c }
}

// WithSurvivalSeed sets the initial survival probability (default 1).
func WithSurvivalSeed(p float64) OccupantOption {
	return func(o *Occupant) { o.survival = clamp01(p) }
}

// NewOccupant creates an occupant centred at center, observed at now.
// A nil strategy selects the default heuristic.
func NewOccupant(center l4perception.Point, now time.Time, cfg OccupantConfig, strategy WeighingStrategy, opts ...OccupantOption) (*Occupant, error) {
	d := l4perception.Distance(center)
	if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return nil, ErrDegenerateGeometry
	}
	if strategy == nil {
		strategy = DefaultHeuristicWeigher()
	}
	o := &Occupant{
		ID:          uuid.New(),
		Center:      center,
		CenterAngle: l4perception.Bearing(center),
		Distance:    d,
		LastUpdate:  now,
		survival:    1,
		weighedAt:   now,
		speedAt:     now,
		speedFrom:   center,
		speedDist:   d,
		cfg:         cfg,
		strategy:    strategy,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.Weight = o.strategy.Weigh(o.Features(now))
	return o, nil
}

// SurvivalProbability returns the survival probability at now. Decay is
// applied once per full DecayPeriod elapsed since LastUpdate as
// p = p*DecayFactor - DecayBias, clamped at zero. A killed occupant
// always reports zero.
func (o *Occupant) SurvivalProbability(now time.Time) float64 {
	if o.dead {
		return 0
	}
	p := o.survival
	if o.cfg.DecayPeriod <= 0 {
		return p
	}
	elapsed := now.Sub(o.LastUpdate)
	if elapsed < o.cfg.DecayPeriod {
		return p
	}
	for n := int64(elapsed / o.cfg.DecayPeriod); n > 0; n-- {
		p = p*o.cfg.DecayFactor - o.cfg.DecayBias
		if p <= 0 {
			return 0
		}
	}
	return p
}

// Features returns the weighing inputs for the occupant at now.
func (o *Occupant) Features(now time.Time) Features {
	return Features{
		Angle:    o.CenterAngle,
		X:        o.Center.X,
		Y:        o.Center.Y,
		Distance: o.Distance,
		VX:       o.RelativeVelocity.X,
		VY:       o.RelativeVelocity.Y,
		Speed:    o.RelativeSpeed,
		Survival: o.SurvivalProbability(now),
	}
}

// UpdateWith folds a fresh observation into the occupant in place.
// Relative speed and velocity are resampled only once SpeedResolution has
// passed since the previous sample. A classification other than
// ClassUnknown replaces the current one.
func (o *Occupant) UpdateWith(other *Occupant, now time.Time) {
	if o.dead || other == nil {
		return
	}

	if dt := now.Sub(o.speedAt); dt >= o.cfg.SpeedResolution && dt > 0 {
		secs := dt.Seconds()
		o.RelativeSpeed = (o.speedDist - other.Distance) / secs
		o.RelativeVelocity = r2.Scale(1/secs, r2.Sub(other.Center, o.speedFrom))
		o.speedAt = now
		o.speedFrom = other.Center
		o.speedDist = other.Distance
	}

	if other.Class != ClassUnknown {
		o.Class = other.Class
	}

	o.Center = other.Center
	o.Distance = other.Distance
	o.CenterAngle = other.CenterAngle

	p := o.SurvivalProbability(now)
	o.survival = math.Min(1, p+(1-p)*o.cfg.SurvivalReinforcement)
	o.LastUpdate = now

	o.reweigh(o.strategy.Weigh(o.Features(now)), now)
}

// SetWeight overrides the weight computed by the strategy.
func (o *Occupant) SetWeight(w float64, now time.Time) {
	if o.dead {
		return
	}
	o.reweigh(w, now)
}

func (o *Occupant) reweigh(w float64, now time.Time) {
	if dt := now.Sub(o.weighedAt); dt >= minWeightRateInterval {
		o.WeightRate = (w - o.Weight) / dt.Seconds()
	}
	o.Weight = w
	o.weighedAt = now
}

// Kill marks the occupant dead. It returns false if the occupant was
// already dead.
func (o *Occupant) Kill() bool {
	if o.dead {
		return false
	}
	o.dead = true
	return true
}

// Alive reports whether Kill has not yet been called.
func (o *Occupant) Alive() bool {
	return !o.dead
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
