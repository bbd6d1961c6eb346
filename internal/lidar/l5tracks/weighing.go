package l5tracks

import (
	"math"

	"github.com/banshee-data/autodrive/internal/config"
)

// Features is the per-occupant input of a weighing strategy. The first
// seven fields form the tuple consumed by externally trained scorers.
type Features struct {
	Angle    float64 // Bearing of the centre point, radians
	X, Y     float64 // Centre point, metres
	Distance float64
	VX, VY   float64 // Relative velocity, m/s
	Speed    float64 // Relative (closing) speed, m/s

	Survival float64 // Survival probability at scoring time
}

// Vector returns the seven-element feature tuple in scorer order:
// (angle, x, y, distance, vx, vy, speed).
func (f Features) Vector() [7]float64 {
	return [7]float64{f.Angle, f.X, f.Y, f.Distance, f.VX, f.VY, f.Speed}
}

// WeighingStrategy scores how strictly an occupant should be avoided.
// Implementations must be safe for concurrent use and must not block.
type WeighingStrategy interface {
	Weigh(f Features) float64
}

// HeuristicWeigher is the canonical piecewise danger heuristic keyed on the
// occupant's bearing relative to the vehicle's forward axis.
type HeuristicWeigher struct {
	FrontConeAngle     float64 // Half-angle of the front cone (π/8)
	FrontConeNumerator float64 // Proximity numerator inside the cone (50)
	SideSpeedGain      float64 // Speed gain outside the cone (5)
}

// DefaultHeuristicWeigher returns the heuristic with canonical constants.
func DefaultHeuristicWeigher() HeuristicWeigher {
	return HeuristicWeigherFromTuning(config.EmptyTuningConfig())
}

// HeuristicWeigherFromTuning builds a HeuristicWeigher from a loaded TuningConfig.
func HeuristicWeigherFromTuning(cfg *config.TuningConfig) HeuristicWeigher {
	return HeuristicWeigher{
		FrontConeAngle:     cfg.GetFrontConeAngle(),
		FrontConeNumerator: cfg.GetFrontConeNumerator(),
		SideSpeedGain:      cfg.GetSideSpeedGain(),
	}
}

// Weigh implements WeighingStrategy.
//
//	front cone: (speed + numerator/distance)² × survival
//	elsewhere:  (speed × gain / distance) × survival
func (h HeuristicWeigher) Weigh(f Features) float64 {
	if f.Distance <= 0 {
		return 0
	}
	if math.Abs(f.Angle) < h.FrontConeAngle {
		v := f.Speed + h.FrontConeNumerator/f.Distance
		return v * v * f.Survival
	}
	return (f.Speed * h.SideSpeedGain / f.Distance) * f.Survival
}

// ScoredWeigher delegates to an externally supplied scoring function, such
// as an offline-tuned network loaded in process. A nil Score falls back to
// Fallback, and a nil Fallback to the default heuristic.
type ScoredWeigher struct {
	Score    func(Features) float64
	Fallback WeighingStrategy
}

// Weigh implements WeighingStrategy.
func (s ScoredWeigher) Weigh(f Features) float64 {
	if s.Score != nil {
		if w := s.Score(f); !math.IsNaN(w) && !math.IsInf(w, 0) {
			return w
		}
	}
	if s.Fallback != nil {
		return s.Fallback.Weigh(f)
	}
	return DefaultHeuristicWeigher().Weigh(f)
}
