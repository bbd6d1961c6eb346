package drivers

import (
	"fmt"
	"math"

	"github.com/banshee-data/autodrive/internal/config"
)

// Fixed actuation outputs of the collision behaviours.
const (
	fullBrake        = 100.0
	swerveBrake      = 3.0
	swerveThrottle   = 1.0
	swerveSteer      = math.Pi / 8
	swerveHardSteer  = math.Pi / 4
	swerveGentleStep = math.Pi / 32
)

// WatchdogConfig holds the collision watchdog thresholds.
type WatchdogConfig struct {
	ActivationWeight    float64 // Occupant weight that triggers avoidance (10)
	FrontAngle          float64 // Half-angle of the braking cone (π/16)
	BrakeClearDistance  float64 // Occupants beyond this no longer block braking recovery (30)
	BrakeClearTicks     int     // Consecutive clear ticks before braking releases speed (25)
	SwerveClearTicks    int     // Consecutive clear ticks before a swerve starts straightening (5)
	SwerveNearDistance  float64 // Occupants within this keep the swerve steering (30)
	SwerveCloseDistance float64 // Occupants within this steer hard (20)
	SwerveBrakeSpeed    float64 // Above this speed a swerve brakes instead of accelerating (8)
}

// DefaultWatchdogConfig returns the canonical watchdog thresholds.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfigFromTuning(config.EmptyTuningConfig())
}

// WatchdogConfigFromTuning builds a WatchdogConfig from a loaded TuningConfig.
func WatchdogConfigFromTuning(cfg *config.TuningConfig) WatchdogConfig {
	return WatchdogConfig{
		ActivationWeight:    cfg.GetActivationWeight(),
		FrontAngle:          cfg.GetFrontAngle(),
		BrakeClearDistance:  cfg.GetBrakeClearDistance(),
		BrakeClearTicks:     cfg.GetBrakeClearTicks(),
		SwerveClearTicks:    cfg.GetSwerveClearTicks(),
		SwerveNearDistance:  cfg.GetSwerveNearDistance(),
		SwerveCloseDistance: cfg.GetSwerveCloseDistance(),
		SwerveBrakeSpeed:    cfg.GetSwerveBrakeSpeed(),
	}
}

// Validate checks if the configuration is valid.
func (c WatchdogConfig) Validate() error {
	if c.FrontAngle <= 0 || c.FrontAngle >= math.Pi {
		return fmt.Errorf("FrontAngle must be in (0, π), got %f", c.FrontAngle)
	}
	if c.BrakeClearTicks < 1 || c.SwerveClearTicks < 1 {
		return fmt.Errorf("clear ticks must be positive, got brake=%d swerve=%d", c.BrakeClearTicks, c.SwerveClearTicks)
	}
	if c.SwerveCloseDistance > c.SwerveNearDistance {
		return fmt.Errorf("SwerveCloseDistance (%f) must not exceed SwerveNearDistance (%f)", c.SwerveCloseDistance, c.SwerveNearDistance)
	}
	return nil
}

// CruiseConfig holds the base driver's cruise parameters.
type CruiseConfig struct {
	Speed        float64 // Target cruise speed, m/s (15)
	StopDistance float64 // Braking starts when the stopping-adjusted gap falls below this (15)
	SideRegion   float64 // Half-width of the forward corridor watched for blobs (3)
}

// DefaultCruiseConfig returns the canonical cruise parameters.
func DefaultCruiseConfig() CruiseConfig {
	return CruiseConfigFromTuning(config.EmptyTuningConfig())
}

// CruiseConfigFromTuning builds a CruiseConfig from a loaded TuningConfig.
func CruiseConfigFromTuning(cfg *config.TuningConfig) CruiseConfig {
	return CruiseConfig{
		Speed:        cfg.GetCruiseSpeed(),
		StopDistance: cfg.GetCruiseStopDistance(),
		SideRegion:   cfg.GetCruiseSideRegion(),
	}
}

// Validate checks if the configuration is valid.
func (c CruiseConfig) Validate() error {
	if c.Speed < 0 || c.StopDistance < 0 || c.SideRegion < 0 {
		return fmt.Errorf("cruise parameters must be non-negative, got %+v", c)
	}
	return nil
}
