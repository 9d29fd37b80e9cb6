// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim emulates the helicopter rig and its bridge board.
//
// Plant is a simple physical model driven by the two rotor duties. Rig wraps
// a Plant and speaks rigproto over a connection exactly as the bridge board
// does, so the controller cannot tell the difference.
package sim

import (
	"math"
	"math/rand"
	"sync"

	"github.com/Thermoquad/helirig/pkg/rigproto"
	"github.com/Thermoquad/helirig/pkg/yaw"
)

// Params describes the simulated rig.
type Params struct {
	GroundLevel  float64 // ADC counts at rest
	FullSwing    float64 // ADC drop at full height
	HoverDuty    float64 // main duty where the rig starts to lift
	LiftRange    float64 // main duty above HoverDuty that reaches full height
	AltitudeTau  float64 // seconds
	YawGain      float64 // deg/s² per duty percent
	TorqueRatio  float64 // main rotor reaction torque relative to tail thrust
	YawDamping   float64 // 1/s
	ReferenceDeg float64 // heading of the reference mark
	SampleRate   float64 // ADC samples per second
	Noise        int     // peak ADC noise in counts
}

// DefaultParams returns a rig that behaves like the bench hardware.
func DefaultParams() Params {
	return Params{
		GroundLevel:  2500,
		FullSwing:    1000,
		HoverDuty:    30,
		LiftRange:    50,
		AltitudeTau:  1.5,
		YawGain:      4,
		TorqueRatio:  0.8,
		YawDamping:   2,
		ReferenceDeg: 30,
		SampleRate:   320,
		Noise:        3,
	}
}

// Levels are the two encoder channel levels after an edge.
type Levels struct {
	A, B bool
}

// Forward rotation walks this table upward.
var quadrature = [4]Levels{
	{A: false, B: false},
	{A: false, B: true},
	{A: true, B: true},
	{A: true, B: false},
}

// LevelsAt returns the channel levels at an encoder count.
func LevelsAt(count int) Levels {
	return quadrature[((count%4)+4)%4]
}

// Plant is the rig's physical state.
type Plant struct {
	mu sync.Mutex
	p  Params

	mainDuty float64
	tailDuty float64

	height  float64 // 0..1 of full travel
	heading float64 // degrees
	rate    float64 // deg/s
	count   int
	refAt   int
}

// NewPlant creates a plant at rest on the ground, heading 0.
func NewPlant(p Params) *Plant {
	return &Plant{
		p:     p,
		refAt: int(math.Floor(p.ReferenceDeg * yaw.TicksPerRevolution / 360)),
	}
}

// SetDuty sets one rotor's duty in percent.
func (pl *Plant) SetDuty(channel rigproto.Channel, percent float64) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	switch channel {
	case rigproto.ChannelMain:
		pl.mainDuty = percent
	case rigproto.ChannelTail:
		pl.tailDuty = percent
	}
}

// Duties returns the current main and tail duty.
func (pl *Plant) Duties() (main, tail float64) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.mainDuty, pl.tailDuty
}

// Height returns the height as a fraction of full travel.
func (pl *Plant) Height() float64 {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.height
}

// Heading returns the heading in degrees.
func (pl *Plant) Heading() float64 {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.heading
}

// Advance integrates the model over dt seconds and returns the encoder
// edges produced, in order, and whether the reference mark was crossed.
func (pl *Plant) Advance(dt float64) (edges []Levels, reference bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	target := clamp((pl.mainDuty-pl.p.HoverDuty)/pl.p.LiftRange, 0, 1)
	pl.height += (target - pl.height) * dt / pl.p.AltitudeTau
	pl.height = clamp(pl.height, 0, 1)

	accel := pl.p.YawGain*(pl.tailDuty-pl.p.TorqueRatio*pl.mainDuty) - pl.p.YawDamping*pl.rate
	pl.rate += accel * dt
	pl.heading += pl.rate * dt

	next := int(math.Floor(pl.heading * yaw.TicksPerRevolution / 360))
	for pl.count < next {
		pl.count++
		edges = append(edges, LevelsAt(pl.count))
		if pl.count == pl.refAt {
			reference = true
		}
	}
	for pl.count > next {
		pl.count--
		edges = append(edges, LevelsAt(pl.count))
		if pl.count == pl.refAt-1 {
			reference = true
		}
	}
	return edges, reference
}

// Sample returns one ADC reading of the height sensor.
func (pl *Plant) Sample() uint32 {
	pl.mu.Lock()
	v := pl.p.GroundLevel - pl.height*pl.p.FullSwing
	noise := pl.p.Noise
	pl.mu.Unlock()

	if noise > 0 {
		v += float64(rand.Intn(2*noise+1) - noise)
	}
	return uint32(clamp(math.Round(v), 0, rigproto.MaxADCValue))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
