// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package flightmode implements the rig's operating-phase state machine and
// the setpoint policy applied in each phase.
//
// Both steps are pure: they take the loop-owned State by value and return the
// next one.
package flightmode

import "fmt"

// Mode is the rig's operating phase.
type Mode int

// Mode values
const (
	Calibrating Mode = iota
	Landed
	Flying
	Landing
)

// String returns the display name of the mode
func (m Mode) String() string {
	switch m {
	case Calibrating:
		return "Calibrating"
	case Landed:
		return "Landed"
	case Flying:
		return "Flying"
	case Landing:
		return "Landing"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Setpoint limits and steps
const (
	MaxHeight        = 100
	HeightStep       = 10
	YawStep          = 15
	CalibrateHeight  = 10
	CalibrateYawStep = 1
	LandingStep      = 2
)

// Setpoints are the commanded targets.
type Setpoints struct {
	Height int // percent
	Yaw    int // degrees
}

// State is the mode machine's slice of the controller context.
type State struct {
	Mode       Mode
	SwitchOn   bool
	Calibrated bool
	Setpoints  Setpoints
	// ClearDuty is set by the Landed policy; the loop zeroes its displayed
	// duty values for the tick.
	ClearDuty bool
}

// Initial returns the power-up state.
func Initial() State {
	return State{Mode: Landed}
}

// Rules selects the transition guard chain.
type Rules struct {
	// HoldFlying keeps Flying while the switch stays on. Without it a
	// Flying tick with the switch on falls through to Landed.
	HoldFlying bool
}

// Next evaluates the transition guard chain with the stock rules.
func Next(s State, referenceFound bool) State {
	return Rules{}.Next(s, referenceFound)
}

// Next evaluates the transition guard chain. The order of the guards is the
// precedence; the first match wins.
func (r Rules) Next(s State, referenceFound bool) State {
	switch {
	case !s.SwitchOn && s.Mode == Flying:
		s.Mode = Landing
	case !referenceFound && !s.Calibrated:
		s.Mode = Calibrating
	case referenceFound && !s.Calibrated:
		s.SwitchOn = false
		s.Calibrated = true
		s.Mode = Landed
	case s.SwitchOn && s.Mode == Landed:
		s.Mode = Flying
	case r.HoldFlying && s.SwitchOn && s.Mode == Flying:
		s.Mode = Flying
	default:
		s.Mode = Landed
	}
	return s
}

// Presses holds the setpoint buttons pressed since the previous tick.
type Presses struct {
	Up, Down, Left, Right bool
}

// Apply runs the per-mode setpoint policy for s.Mode. Presses only take
// effect while Flying.
func Apply(s State, p Presses) State {
	s.ClearDuty = false

	switch s.Mode {
	case Landed:
		s.Setpoints = Setpoints{}
		s.ClearDuty = true
		s.Calibrated = true
		// Switch level is re-read on the next tick
		s.SwitchOn = false

	case Calibrating:
		s.Setpoints.Height = CalibrateHeight
		s.Setpoints.Yaw += CalibrateYawStep

	case Landing:
		if s.Setpoints.Yaw == 0 && s.Setpoints.Height != 0 {
			s.Setpoints.Height -= LandingStep
		}
		if s.Setpoints.Yaw != 0 {
			s.Setpoints.Yaw += LandingStep
		}

	case Flying:
		s.Setpoints = adjust(s.Setpoints, p)
	}

	return s
}

func adjust(sp Setpoints, p Presses) Setpoints {
	if p.Left {
		sp.Yaw -= YawStep
	}
	if p.Right {
		sp.Yaw += YawStep
	}
	if p.Up && sp.Height <= MaxHeight-HeightStep {
		sp.Height += HeightStep
	}
	if p.Down && sp.Height >= HeightStep {
		sp.Height -= HeightStep
	}
	return sp
}

// Step runs Next then Apply with the stock rules.
func Step(s State, referenceFound bool, p Presses) State {
	return Rules{}.Step(s, referenceFound, p)
}

// Step runs Next then Apply, which is what the control loop does each tick.
func (r Rules) Step(s State, referenceFound bool, p Presses) State {
	return Apply(r.Next(s, referenceFound), p)
}
