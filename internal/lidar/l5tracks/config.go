package l5tracks

import (
	"fmt"
	"time"

	"github.com/banshee-data/autodrive/internal/config"
)

// OccupantConfig holds the survival and kinematics parameters shared by all
// occupants of a grid.
type OccupantConfig struct {
	DecayFactor           float64       // Multiplier applied per decay period (0.75)
	DecayBias             float64       // Subtracted per decay period (0.05)
	DecayPeriod           time.Duration // Fixed decay period (500ms)
	SurvivalReinforcement float64       // Fraction of the gap to 1.0 recovered on a match (0.5)
	SpeedResolution       time.Duration // Minimum time between relative speed samples (500ms)
}

// OccupancyConfig holds configuration for the angular occupancy grid.
type OccupancyConfig struct {
	Discretization        int     // Number of angular bins around the vehicle (300)
	SearchRange           int     // Bins searched either side of a blob's mid bearing (2)
	SupersedeDistance     float64 // Range jump (metres) above which a closer blob replaces an occupant (15)
	ExpirationProbability float64 // Occupants at or below this survival probability are purged (0.4)

	Occupant OccupantConfig
}

// DefaultOccupancyConfig returns the canonical grid configuration.
func DefaultOccupancyConfig() OccupancyConfig {
	return OccupancyConfigFromTuning(config.EmptyTuningConfig())
}

// OccupancyConfigFromTuning builds an OccupancyConfig from a loaded TuningConfig.
func OccupancyConfigFromTuning(cfg *config.TuningConfig) OccupancyConfig {
	return OccupancyConfig{
		Discretization:        cfg.GetDiscretization(),
		SearchRange:           cfg.GetSearchRange(),
		SupersedeDistance:     cfg.GetSupersedeDistance(),
		ExpirationProbability: cfg.GetExpirationProbability(),
		Occupant: OccupantConfig{
			DecayFactor:           cfg.GetDecayFactor(),
			DecayBias:             cfg.GetDecayBias(),
			DecayPeriod:           cfg.GetDecayPeriod(),
			SurvivalReinforcement: cfg.GetSurvivalReinforcement(),
			SpeedResolution:       cfg.GetSpeedResolution(),
		},
	}
}

// Validate checks if the configuration is valid.
func (c OccupancyConfig) Validate() error {
	if c.Discretization < 8 {
		return fmt.Errorf("Discretization must be at least 8, got %d", c.Discretization)
	}
	if c.SearchRange < 0 || c.SearchRange >= c.Discretization/2 {
		return fmt.Errorf("SearchRange must be in [0, %d), got %d", c.Discretization/2, c.SearchRange)
	}
	if c.SupersedeDistance < 0 {
		return fmt.Errorf("SupersedeDistance must be non-negative, got %f", c.SupersedeDistance)
	}
	if c.ExpirationProbability < 0 || c.ExpirationProbability >= 1 {
		return fmt.Errorf("ExpirationProbability must be in [0, 1), got %f", c.ExpirationProbability)
	}
	return c.Occupant.Validate()
}

// Validate checks if the occupant configuration is valid.
func (c OccupantConfig) Validate() error {
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		return fmt.Errorf("DecayFactor must be in (0, 1], got %f", c.DecayFactor)
	}
	if c.DecayBias < 0 {
		return fmt.Errorf("DecayBias must be non-negative, got %f", c.DecayBias)
	}
	if c.DecayPeriod <= 0 {
		return fmt.Errorf("DecayPeriod must be positive, got %v", c.DecayPeriod)
	}
	if c.SurvivalReinforcement < 0 || c.SurvivalReinforcement > 1 {
		return fmt.Errorf("SurvivalReinforcement must be in [0, 1], got %f", c.SurvivalReinforcement)
	}
	if c.SpeedResolution <= 0 {
		return fmt.Errorf("SpeedResolution must be positive, got %v", c.SpeedResolution)
	}
	return nil
}
