// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package yaw decodes the rig's quadrature encoder into a signed tick count
// and tracks whether the yaw reference mark has been seen.
//
// Edge and Reference are called from the link reader, which plays the role of
// the edge interrupts. Every mutation and every read happens under the
// estimator's lock, so the control loop never observes a half-applied edge.
package yaw

import "sync"

// TicksPerRevolution is the number of decoded edges in one full turn.
const TicksPerRevolution = 448

// Reading is a consistent view of the estimator state.
type Reading struct {
	Ticks          int32
	ReferenceFound bool
}

// Degrees returns the heading for the reading's tick count.
func (r Reading) Degrees() float64 {
	return Degrees(r.Ticks)
}

// Estimator holds the encoder-derived heading.
type Estimator struct {
	mu             sync.Mutex
	ticks          int32
	previousB      bool
	referenceFound bool
	zeroSetpoint   bool
}

// NewEstimator creates an estimator primed with the current channel B level.
func NewEstimator(initialB bool) *Estimator {
	return &Estimator{previousB: initialB}
}

// Edge applies one encoder edge. The direction is channel A XOR the previous
// channel B level: true counts down, false counts up.
func (e *Estimator) Edge(a, b bool) {
	e.mu.Lock()
	if a != e.previousB {
		e.ticks--
	} else {
		e.ticks++
	}
	e.previousB = b
	e.mu.Unlock()
}

// Reference handles a reference-mark crossing. The first crossing zeroes the
// tick count, latches the reference flag and requests a yaw setpoint reset;
// later crossings are no-ops.
func (e *Estimator) Reference() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.referenceFound {
		return
	}
	e.ticks = 0
	e.referenceFound = true
	e.zeroSetpoint = true
}

// Read returns the current ticks and reference flag.
func (e *Estimator) Read() Reading {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Reading{Ticks: e.ticks, ReferenceFound: e.referenceFound}
}

// TakeSetpointReset reports whether a reference crossing requested the yaw
// setpoint be zeroed since the last call, and clears the request.
func (e *Estimator) TakeSetpointReset() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	pending := e.zeroSetpoint
	e.zeroSetpoint = false
	return pending
}

// Degrees converts a tick count to degrees.
func Degrees(ticks int32) float64 {
	return float64(ticks) * (360.0 / TicksPerRevolution)
}
