package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the hazard core.
// Every field is optional: the Get* accessors fall back to the canonical
// defaults so partial files are safe. Angles are radians, distances metres.
type TuningConfig struct {
	// Clustering params
	ClusterDistanceThreshold *float64 `json:"cluster_distance_threshold,omitempty"`
	ClusterMinPoints         *int     `json:"cluster_min_points,omitempty"`

	// Occupancy grid params
	Discretization        *int     `json:"discretization,omitempty"`
	SearchRange           *int     `json:"search_range,omitempty"`
	SupersedeDistance     *float64 `json:"supersede_distance,omitempty"`
	ExpirationProbability *float64 `json:"expiration_probability,omitempty"`

	// Occupant params
	DecayFactor           *float64 `json:"decay_factor,omitempty"`
	DecayBias             *float64 `json:"decay_bias,omitempty"`
	DecayPeriod           *string  `json:"decay_period,omitempty"` // duration string like "500ms"
	SurvivalReinforcement *float64 `json:"survival_reinforcement,omitempty"`
	SpeedResolution       *string  `json:"speed_resolution,omitempty"` // duration string like "500ms"

	// Heuristic weighing params
	FrontConeAngle     *float64 `json:"front_cone_angle,omitempty"`
	FrontConeNumerator *float64 `json:"front_cone_numerator,omitempty"`
	SideSpeedGain      *float64 `json:"side_speed_gain,omitempty"`

	// Collision watchdog params
	ActivationWeight    *float64 `json:"activation_weight,omitempty"`
	FrontAngle          *float64 `json:"front_angle,omitempty"`
	BrakeClearDistance  *float64 `json:"brake_clear_distance,omitempty"`
	BrakeClearTicks     *int     `json:"brake_clear_ticks,omitempty"`
	SwerveClearTicks    *int     `json:"swerve_clear_ticks,omitempty"`
	SwerveNearDistance  *float64 `json:"swerve_near_distance,omitempty"`
	SwerveCloseDistance *float64 `json:"swerve_close_distance,omitempty"`
	SwerveBrakeSpeed    *float64 `json:"swerve_brake_speed,omitempty"`

	// Cruise driver params
	CruiseSpeed        *float64 `json:"cruise_speed,omitempty"`
	CruiseStopDistance *float64 `json:"cruise_stop_distance,omitempty"`
	CruiseSideRegion   *float64 `json:"cruise_side_region,omitempty"`

	// Pipeline params
	TickInterval *string `json:"tick_interval,omitempty"` // duration string like "50ms"

	// Service params (optional collaborators)
	ClassifierTimeout   *string  `json:"classifier_timeout,omitempty"`
	ClassifierRate      *float64 `json:"classifier_rate,omitempty"` // requests per second
	WeightModelTimeout  *string  `json:"weight_model_timeout,omitempty"`
	WeightModelWorkers  *int     `json:"weight_model_workers,omitempty"`
	CameraViewDistance  *float64 `json:"camera_view_distance,omitempty"`
	CameraViewHalfAngle *float64 `json:"camera_view_half_angle,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// with the canonical default value.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		ClusterDistanceThreshold: ptrFloat64(empty.GetClusterDistanceThreshold()),
		ClusterMinPoints:         ptrInt(empty.GetClusterMinPoints()),
		Discretization:           ptrInt(empty.GetDiscretization()),
		SearchRange:              ptrInt(empty.GetSearchRange()),
		SupersedeDistance:        ptrFloat64(empty.GetSupersedeDistance()),
		ExpirationProbability:    ptrFloat64(empty.GetExpirationProbability()),
		DecayFactor:              ptrFloat64(empty.GetDecayFactor()),
		DecayBias:                ptrFloat64(empty.GetDecayBias()),
		DecayPeriod:              ptrString(empty.GetDecayPeriod().String()),
		SurvivalReinforcement:    ptrFloat64(empty.GetSurvivalReinforcement()),
		SpeedResolution:          ptrString(empty.GetSpeedResolution().String()),
		FrontConeAngle:           ptrFloat64(empty.GetFrontConeAngle()),
		FrontConeNumerator:       ptrFloat64(empty.GetFrontConeNumerator()),
		SideSpeedGain:            ptrFloat64(empty.GetSideSpeedGain()),
		ActivationWeight:         ptrFloat64(empty.GetActivationWeight()),
		FrontAngle:               ptrFloat64(empty.GetFrontAngle()),
		BrakeClearDistance:       ptrFloat64(empty.GetBrakeClearDistance()),
		BrakeClearTicks:          ptrInt(empty.GetBrakeClearTicks()),
		SwerveClearTicks:         ptrInt(empty.GetSwerveClearTicks()),
		SwerveNearDistance:       ptrFloat64(empty.GetSwerveNearDistance()),
		SwerveCloseDistance:      ptrFloat64(empty.GetSwerveCloseDistance()),
		SwerveBrakeSpeed:         ptrFloat64(empty.GetSwerveBrakeSpeed()),
		CruiseSpeed:              ptrFloat64(empty.GetCruiseSpeed()),
		CruiseStopDistance:       ptrFloat64(empty.GetCruiseStopDistance()),
		CruiseSideRegion:         ptrFloat64(empty.GetCruiseSideRegion()),
		TickInterval:             ptrString(empty.GetTickInterval().String()),
		ClassifierTimeout:        ptrString(empty.GetClassifierTimeout().String()),
		ClassifierRate:           ptrFloat64(empty.GetClassifierRate()),
		WeightModelTimeout:       ptrString(empty.GetWeightModelTimeout().String()),
		WeightModelWorkers:       ptrInt(empty.GetWeightModelWorkers()),
		CameraViewDistance:       ptrFloat64(empty.GetCameraViewDistance()),
		CameraViewHalfAngle:      ptrFloat64(empty.GetCameraViewHalfAngle()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/lidar/l5tracks/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ClusterDistanceThreshold != nil && *c.ClusterDistanceThreshold <= 0 {
		return fmt.Errorf("cluster_distance_threshold must be positive, got %f", *c.ClusterDistanceThreshold)
	}
	if c.ClusterMinPoints != nil && *c.ClusterMinPoints < 1 {
		return fmt.Errorf("cluster_min_points must be at least 1, got %d", *c.ClusterMinPoints)
	}
	if c.Discretization != nil && *c.Discretization < 8 {
		return fmt.Errorf("discretization must be at least 8, got %d", *c.Discretization)
	}
	if c.SearchRange != nil && *c.SearchRange < 0 {
		return fmt.Errorf("search_range must be non-negative, got %d", *c.SearchRange)
	}
	if c.ExpirationProbability != nil {
		if *c.ExpirationProbability < 0 || *c.ExpirationProbability >= 1 {
			return fmt.Errorf("expiration_probability must be in [0, 1), got %f", *c.ExpirationProbability)
		}
	}
	if c.DecayFactor != nil {
		if *c.DecayFactor <= 0 || *c.DecayFactor > 1 {
			return fmt.Errorf("decay_factor must be in (0, 1], got %f", *c.DecayFactor)
		}
	}
	if c.DecayBias != nil && *c.DecayBias < 0 {
		return fmt.Errorf("decay_bias must be non-negative, got %f", *c.DecayBias)
	}
	if c.SurvivalReinforcement != nil {
		if *c.SurvivalReinforcement < 0 || *c.SurvivalReinforcement > 1 {
			return fmt.Errorf("survival_reinforcement must be in [0, 1], got %f", *c.SurvivalReinforcement)
		}
	}
	if c.BrakeClearTicks != nil && *c.BrakeClearTicks < 1 {
		return fmt.Errorf("brake_clear_ticks must be at least 1, got %d", *c.BrakeClearTicks)
	}
	if c.SwerveClearTicks != nil && *c.SwerveClearTicks < 1 {
		return fmt.Errorf("swerve_clear_ticks must be at least 1, got %d", *c.SwerveClearTicks)
	}
	if c.WeightModelWorkers != nil && *c.WeightModelWorkers < 1 {
		return fmt.Errorf("weight_model_workers must be at least 1, got %d", *c.WeightModelWorkers)
	}
	if c.ClassifierRate != nil && *c.ClassifierRate < 0 {
		return fmt.Errorf("classifier_rate must be non-negative, got %f", *c.ClassifierRate)
	}

	durations := map[string]*string{
		"decay_period":         c.DecayPeriod,
		"speed_resolution":     c.SpeedResolution,
		"tick_interval":        c.TickInterval,
		"classifier_timeout":   c.ClassifierTimeout,
		"weight_model_timeout": c.WeightModelTimeout,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// GetClusterDistanceThreshold returns the cluster_distance_threshold value or the default.
func (c *TuningConfig) GetClusterDistanceThreshold() float64 {
	return floatOr(c.ClusterDistanceThreshold, 3)
}

// GetClusterMinPoints returns the cluster_min_points value or the default.
func (c *TuningConfig) GetClusterMinPoints() int { return intOr(c.ClusterMinPoints, 2) }

// GetDiscretization returns the number of angular bins or the default.
func (c *TuningConfig) GetDiscretization() int { return intOr(c.Discretization, 300) }

// GetSearchRange returns the search_range value or the default.
func (c *TuningConfig) GetSearchRange() int { return intOr(c.SearchRange, 2) }

// GetSupersedeDistance returns the supersede_distance value or the default.
func (c *TuningConfig) GetSupersedeDistance() float64 { return floatOr(c.SupersedeDistance, 15) }

// GetExpirationProbability returns the expiration_probability value or the default.
func (c *TuningConfig) GetExpirationProbability() float64 {
	return floatOr(c.ExpirationProbability, 0.4)
}

// GetDecayFactor returns the decay_factor value or the default.
func (c *TuningConfig) GetDecayFactor() float64 { return floatOr(c.DecayFactor, 0.75) }

// GetDecayBias returns the decay_bias value or the default.
func (c *TuningConfig) GetDecayBias() float64 { return floatOr(c.DecayBias, 0.05) }

// GetDecayPeriod parses and returns the DecayPeriod as a time.Duration.
func (c *TuningConfig) GetDecayPeriod() time.Duration {
	return durationOr(c.DecayPeriod, 500*time.Millisecond)
}

// GetSurvivalReinforcement returns the survival_reinforcement value or the default.
func (c *TuningConfig) GetSurvivalReinforcement() float64 {
	return floatOr(c.SurvivalReinforcement, 0.5)
}

// GetSpeedResolution parses and returns the SpeedResolution as a time.Duration.
func (c *TuningConfig) GetSpeedResolution() time.Duration {
	return durationOr(c.SpeedResolution, 500*time.Millisecond)
}

// GetFrontConeAngle returns the front_cone_angle value or the default (π/8).
func (c *TuningConfig) GetFrontConeAngle() float64 { return floatOr(c.FrontConeAngle, math.Pi/8) }

// GetFrontConeNumerator returns the front_cone_numerator value or the default.
func (c *TuningConfig) GetFrontConeNumerator() float64 {
	return floatOr(c.FrontConeNumerator, 50)
}

// GetSideSpeedGain returns the side_speed_gain value or the default.
func (c *TuningConfig) GetSideSpeedGain() float64 { return floatOr(c.SideSpeedGain, 5) }

// GetActivationWeight returns the activation_weight value or the default.
func (c *TuningConfig) GetActivationWeight() float64 { return floatOr(c.ActivationWeight, 10) }

// GetFrontAngle returns the front_angle value or the default (π/16).
func (c *TuningConfig) GetFrontAngle() float64 { return floatOr(c.FrontAngle, math.Pi/16) }

// GetBrakeClearDistance returns the brake_clear_distance value or the default.
func (c *TuningConfig) GetBrakeClearDistance() float64 { return floatOr(c.BrakeClearDistance, 30) }

// GetBrakeClearTicks returns the brake_clear_ticks value or the default.
func (c *TuningConfig) GetBrakeClearTicks() int { return intOr(c.BrakeClearTicks, 25) }

// GetSwerveClearTicks returns the swerve_clear_ticks value or the default.
func (c *TuningConfig) GetSwerveClearTicks() int { return intOr(c.SwerveClearTicks, 5) }

// GetSwerveNearDistance returns the swerve_near_distance value or the default.
func (c *TuningConfig) GetSwerveNearDistance() float64 { return floatOr(c.SwerveNearDistance, 30) }

// GetSwerveCloseDistance returns the swerve_close_distance value or the default.
func (c *TuningConfig) GetSwerveCloseDistance() float64 {
	return floatOr(c.SwerveCloseDistance, 20)
}

// GetSwerveBrakeSpeed returns the swerve_brake_speed value or the default.
func (c *TuningConfig) GetSwerveBrakeSpeed() float64 { return floatOr(c.SwerveBrakeSpeed, 8) }

// GetCruiseSpeed returns the cruise_speed value or the default.
func (c *TuningConfig) GetCruiseSpeed() float64 { return floatOr(c.CruiseSpeed, 15) }

// GetCruiseStopDistance returns the cruise_stop_distance value or the default.
func (c *TuningConfig) GetCruiseStopDistance() float64 {
	return floatOr(c.CruiseStopDistance, 15)
}

// GetCruiseSideRegion returns the cruise_side_region value or the default.
func (c *TuningConfig) GetCruiseSideRegion() float64 { return floatOr(c.CruiseSideRegion, 3) }

// GetTickInterval parses and returns the TickInterval as a time.Duration.
func (c *TuningConfig) GetTickInterval() time.Duration {
	return durationOr(c.TickInterval, 50*time.Millisecond)
}

// GetClassifierTimeout parses and returns the ClassifierTimeout as a time.Duration.
func (c *TuningConfig) GetClassifierTimeout() time.Duration {
	return durationOr(c.ClassifierTimeout, 100*time.Millisecond)
}

// GetClassifierRate returns the classifier_rate value or the default.
func (c *TuningConfig) GetClassifierRate() float64 { return floatOr(c.ClassifierRate, 10) }

// GetWeightModelTimeout parses and returns the WeightModelTimeout as a time.Duration.
func (c *TuningConfig) GetWeightModelTimeout() time.Duration {
	return durationOr(c.WeightModelTimeout, 20*time.Millisecond)
}

// GetWeightModelWorkers returns the weight_model_workers value or the default.
func (c *TuningConfig) GetWeightModelWorkers() int { return intOr(c.WeightModelWorkers, 4) }

// GetCameraViewDistance returns the camera_view_distance value or the default.
func (c *TuningConfig) GetCameraViewDistance() float64 {
	return floatOr(c.CameraViewDistance, 30)
}

// GetCameraViewHalfAngle returns the camera_view_half_angle value or the default (π/4).
func (c *TuningConfig) GetCameraViewHalfAngle() float64 {
	return floatOr(c.CameraViewHalfAngle, math.Pi/4)
}
