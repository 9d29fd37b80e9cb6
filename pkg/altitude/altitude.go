// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package altitude turns the rig's raw height sensor samples into a smoothed
// reading and a percentage relative to the resting baseline.
package altitude

// RingSize is the number of samples averaged per control tick.
const RingSize = 10

// MaxVoltageSwing is the sample delta between resting and full height.
const MaxVoltageSwing = 1000

// settleCap is where the settle counter stops; the baseline is taken on the
// tick the counter reaches it.
const settleCap = 2

// Reading is the estimator output for one control tick.
type Reading struct {
	Sum      uint32
	Mean     uint32
	Baseline uint32
	// Captured is false until the baseline has been taken.
	Captured bool
	// Fresh is the number of samples that arrived since the previous tick.
	Fresh int
}

// Percent returns the height percentage for the reading.
func (r Reading) Percent() int {
	return HeightPercent(r.Baseline, r.Mean)
}

// Estimator drains the sample ring once per tick and owns the baseline.
type Estimator struct {
	ring     *Ring
	settle   int
	baseline uint32
	captured bool
}

// NewEstimator creates an estimator over ring.
func NewEstimator(ring *Ring) *Estimator {
	return &Estimator{ring: ring}
}

// Ring returns the sample ring the producer writes into.
func (e *Estimator) Ring() *Ring {
	return e.ring
}

// Update drains the ring, computes the rounded mean and advances the
// settle/baseline logic. Call exactly once per control tick.
func (e *Estimator) Update() Reading {
	sum, fresh := e.ring.Drain()
	mean := uint32(float64(sum)/float64(e.ring.Capacity()) + 0.5)

	if e.settle < settleCap {
		e.settle++
		if e.settle == settleCap && !e.captured {
			e.baseline = mean
			e.captured = true
		}
	}

	return Reading{
		Sum:      sum,
		Mean:     mean,
		Baseline: e.baseline,
		Captured: e.captured,
		Fresh:    fresh,
	}
}

// Baseline returns the captured baseline and whether it has been taken.
func (e *Estimator) Baseline() (uint32, bool) {
	return e.baseline, e.captured
}

// HeightPercent scales the drop from baseline into percent of full swing.
// The sensor reads lower as the rig climbs. The result is truncated toward
// zero and is not clamped.
func HeightPercent(baseline, mean uint32) int {
	return int((float64(baseline) - float64(mean)) / MaxVoltageSwing * 100)
}
