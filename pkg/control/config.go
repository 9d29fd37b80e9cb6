// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/Thermoquad/helirig/pkg/pid"
	"gopkg.in/yaml.v3"
)

// Default configuration constants
const (
	DefaultPeriod     = 375 * time.Millisecond // loop cadence of the bench rig
	DefaultElapsed    = 5.0                    // nominal PID time step
	DefaultStaleTicks = 4                      // ticks without a sample before holding output
)

// ErrInvalidConfig is returned by Validate and New for unusable settings.
var ErrInvalidConfig = errors.New("invalid control configuration")

// Config holds the control loop configuration
type Config struct {
	Period        time.Duration
	Elapsed       float64
	StaleTicks    int
	YawGains      pid.Gains
	AltitudeGains pid.Gains
	IntegralLimit float64
	// HoldFlying keeps the rig in Flying while the switch stays on.
	HoldFlying bool
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Period:        DefaultPeriod,
		Elapsed:       DefaultElapsed,
		StaleTicks:    DefaultStaleTicks,
		YawGains:      pid.DefaultYawGains,
		AltitudeGains: pid.DefaultAltitudeGains,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("%w: period must be positive, got %v", ErrInvalidConfig, c.Period)
	}
	if !(c.Elapsed > 0) || math.IsInf(c.Elapsed, 0) {
		return fmt.Errorf("%w: elapsed must be positive and finite, got %v", ErrInvalidConfig, c.Elapsed)
	}
	if c.StaleTicks < 0 {
		return fmt.Errorf("%w: stale ticks must not be negative, got %d", ErrInvalidConfig, c.StaleTicks)
	}
	if c.IntegralLimit < 0 || math.IsNaN(c.IntegralLimit) {
		return fmt.Errorf("%w: integral limit must not be negative, got %v", ErrInvalidConfig, c.IntegralLimit)
	}
	for name, g := range map[string]pid.Gains{"yaw": c.YawGains, "altitude": c.AltitudeGains} {
		if !finite(g.Kp) || !finite(g.Ki) || !finite(g.Kd) {
			return fmt.Errorf("%w: %s gains must be finite", ErrInvalidConfig, name)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// GainsFile is the on-disk tuning format.
//
//	yaw:      {kp: 1.0, ki: 0.0009, kd: 2.0}
//	altitude: {kp: 0.6, ki: 0.0093, kd: 0.5}
//	integral_limit: 0
type GainsFile struct {
	Yaw           *pid.Gains `yaml:"yaw"`
	Altitude      *pid.Gains `yaml:"altitude"`
	IntegralLimit *float64   `yaml:"integral_limit"`
}

// ApplyGains overlays a YAML gains document onto c. Loops missing from the
// document keep their current gains.
func (c *Config) ApplyGains(data []byte) error {
	var f GainsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse gains: %w", err)
	}
	if f.Yaw != nil {
		c.YawGains = *f.Yaw
	}
	if f.Altitude != nil {
		c.AltitudeGains = *f.Altitude
	}
	if f.IntegralLimit != nil {
		c.IntegralLimit = *f.IntegralLimit
	}
	return nil
}

// LoadGains reads a gains file from path and applies it to c.
func (c *Config) LoadGains(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read gains file %s: %w", path, err)
	}
	return c.ApplyGains(data)
}
