// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package altitude

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_DrainSumsLastN(t *testing.T) {
	tests := []struct {
		name   string
		writes int
	}{
		{name: "exactly N", writes: RingSize},
		{name: "N plus one", writes: RingSize + 1},
		{name: "many laps", writes: 7*RingSize + 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRing(RingSize)
			for i := 1; i <= tt.writes; i++ {
				r.Write(uint32(i))
			}

			var expected uint32
			for i := tt.writes - RingSize + 1; i <= tt.writes; i++ {
				expected += uint32(i)
			}
			sum, fresh := r.Drain()
			assert.Equal(t, expected, sum)
			assert.Equal(t, RingSize, fresh)
			// Draining again without new writes sums the same window
			sum, fresh = r.Drain()
			assert.Equal(t, expected, sum)
			assert.Zero(t, fresh)
		})
	}
}

func TestRing_PartiallyFilledReadsZeros(t *testing.T) {
	r := NewRing(RingSize)
	r.Write(100)
	r.Write(200)
	sum, fresh := r.Drain()
	assert.Equal(t, uint32(300), sum)
	assert.Equal(t, 2, fresh)
}

func TestRing_Pending(t *testing.T) {
	r := NewRing(4)
	assert.Equal(t, 0, r.Pending())
	r.Write(1)
	r.Write(2)
	assert.Equal(t, 2, r.Pending())
	r.Drain()
	assert.Equal(t, 0, r.Pending())
	for i := 0; i < 9; i++ {
		r.Write(uint32(i))
	}
	assert.Equal(t, 4, r.Pending())
	assert.Equal(t, uint64(11), r.Written())
}

func TestRing_ConcurrentProducer(t *testing.T) {
	r := NewRing(RingSize)
	const writes = 20000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			r.Write(7)
		}
	}()
	for i := 0; i < 1000; i++ {
		sum, _ := r.Drain()
		assert.LessOrEqual(t, sum, uint32(7*RingSize))
		assert.Zero(t, sum%7)
	}
	wg.Wait()

	sum, _ := r.Drain()
	assert.Equal(t, uint32(7*RingSize), sum)
}

func TestRing_ConcurrentProducerFreshCount(t *testing.T) {
	r := NewRing(RingSize)
	const writes = 20000

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < writes; i++ {
			r.Write(1)
		}
	}()

	// Every write is counted fresh by exactly one drain, up to the cap
	// when the producer laps the ring between drains.
	total := 0
	laps := 0
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		_, fresh := r.Drain()
		require.LessOrEqual(t, fresh, RingSize)
		if fresh == RingSize {
			laps++
		}
		total += fresh
	}

	assert.Zero(t, r.Pending())
	if laps == 0 {
		assert.Equal(t, writes, total)
	} else {
		assert.LessOrEqual(t, total, writes)
	}
}

func TestEstimator_FreshMatchesDrainedSamples(t *testing.T) {
	r := NewRing(RingSize)
	e := NewEstimator(r)

	r.Write(10)
	r.Write(20)
	r.Write(30)
	assert.Equal(t, 3, e.Update().Fresh)
	assert.Zero(t, e.Update().Fresh)

	for i := 0; i < 3*RingSize; i++ {
		r.Write(1)
	}
	assert.Equal(t, RingSize, e.Update().Fresh)
}

func TestEstimator_BaselineCapturedOnce(t *testing.T) {
	r := NewRing(RingSize)
	e := NewEstimator(r)

	fill := func(v uint32) {
		for i := 0; i < RingSize; i++ {
			r.Write(v)
		}
	}

	fill(2500)
	first := e.Update()
	assert.False(t, first.Captured)
	assert.Equal(t, uint32(0), first.Baseline)
	assert.Equal(t, uint32(2500), first.Mean)

	fill(2480)
	second := e.Update()
	require.True(t, second.Captured)
	assert.Equal(t, uint32(2480), second.Baseline)

	fill(2000)
	third := e.Update()
	assert.Equal(t, uint32(2480), third.Baseline)
	assert.Equal(t, uint32(2000), third.Mean)
	assert.Equal(t, 48, third.Percent())

	for i := 0; i < 10; i++ {
		fill(1500)
		assert.Equal(t, uint32(2480), e.Update().Baseline)
	}
	baseline, ok := e.Baseline()
	assert.True(t, ok)
	assert.Equal(t, uint32(2480), baseline)
}

func TestEstimator_MeanRounds(t *testing.T) {
	r := NewRing(RingSize)
	e := NewEstimator(r)
	for i := 0; i < RingSize-1; i++ {
		r.Write(100)
	}
	r.Write(105) // sum 1005, mean 100.5 rounds up
	reading := e.Update()
	assert.Equal(t, uint32(1005), reading.Sum)
	assert.Equal(t, uint32(101), reading.Mean)
	assert.Equal(t, RingSize, reading.Fresh)
	assert.Equal(t, 0, e.Update().Fresh)
}

func TestHeightPercent(t *testing.T) {
	tests := []struct {
		name     string
		baseline uint32
		mean     uint32
		expected int
	}{
		{name: "resting", baseline: 2500, mean: 2500, expected: 0},
		{name: "full swing", baseline: 2500, mean: 1500, expected: 100},
		{name: "truncates toward zero", baseline: 2500, mean: 2381, expected: 11},
		{name: "below baseline is negative", baseline: 2500, mean: 2519, expected: -1},
		{name: "beyond full swing is not clamped", baseline: 2500, mean: 1000, expected: 150},
		{name: "no baseline yet", baseline: 0, mean: 2500, expected: -250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HeightPercent(tt.baseline, tt.mean))
		})
	}
}
