// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pid implements the discrete-time PID law used for the rig's yaw
// and altitude loops.
package pid

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// Output limits in duty percent
const (
	MinOutput = 5.0
	MaxOutput = 95.0
)

// Gains are the proportional, integral and derivative coefficients.
type Gains struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

// Default tuning for the rig
var (
	DefaultYawGains      = Gains{Kp: 1.0, Ki: 0.0009, Kd: 2.0}
	DefaultAltitudeGains = Gains{Kp: 0.6, Ki: 0.0093, Kd: 0.5}
)

// ErrorState is the per-loop error history.
type ErrorState struct {
	Integrated float64
	Previous   float64
	Derivative float64
}

// Controller is one PID loop.
type Controller struct {
	Gains Gains

	// IntegralLimit bounds the magnitude of the integrated error. Zero
	// leaves it unbounded.
	IntegralLimit float64

	state ErrorState
}

// NewController creates a controller with zeroed error history.
func NewController(gains Gains) *Controller {
	return &Controller{Gains: gains}
}

// Update advances the loop by one tick and returns the clamped output.
// elapsed must be positive.
func (c *Controller) Update(elapsed, setpoint, measurement float64) float64 {
	err := setpoint - measurement

	c.state.Integrated += err * elapsed
	if c.IntegralLimit > 0 {
		c.state.Integrated = clamp(c.state.Integrated, -c.IntegralLimit, c.IntegralLimit)
	}
	c.state.Derivative = (err - c.state.Previous) / elapsed

	out := c.Gains.Kp*err + c.Gains.Ki*c.state.Integrated + c.Gains.Kd*c.state.Derivative
	c.state.Previous = err

	return Clamp(out)
}

// State returns a copy of the error history.
func (c *Controller) State() ErrorState {
	return c.state
}

// Clamp limits a raw output to [MinOutput, MaxOutput]. NaN maps to
// MinOutput.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return MinOutput
	}
	return clamp(v, MinOutput, MaxOutput)
}

func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Inputs are one tick's setpoints and measurements.
type Inputs struct {
	YawSetpoint    int
	YawDegrees     float64
	HeightSetpoint int
	HeightPercent  int
}

// Output is one tick's actuator command in whole duty percent.
type Output struct {
	MainDuty uint16
	TailDuty uint16
}

func (o Output) String() string {
	return fmt.Sprintf("main=%d%% tail=%d%%", o.MainDuty, o.TailDuty)
}

// Engine pairs the yaw loop (tail rotor) with the altitude loop (main
// rotor).
type Engine struct {
	Yaw      *Controller
	Altitude *Controller
}

// NewEngine creates both loops from the given gains.
func NewEngine(yaw, altitude Gains) *Engine {
	return &Engine{
		Yaw:      NewController(yaw),
		Altitude: NewController(altitude),
	}
}

// SetIntegralLimit applies the same integral bound to both loops.
func (e *Engine) SetIntegralLimit(limit float64) {
	e.Yaw.IntegralLimit = limit
	e.Altitude.IntegralLimit = limit
}

// Step runs both loops once. Outputs are truncated toward zero.
func (e *Engine) Step(elapsed float64, in Inputs) Output {
	tail := e.Yaw.Update(elapsed, float64(in.YawSetpoint), in.YawDegrees)
	main := e.Altitude.Update(elapsed, float64(in.HeightSetpoint), float64(in.HeightPercent))

	return Output{
		MainDuty: uint16(main),
		TailDuty: uint16(tail),
	}
}
