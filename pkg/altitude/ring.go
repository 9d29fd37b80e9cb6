// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package altitude

import "sync/atomic"

// drainAttempts bounds how often Drain retries when the producer laps the
// window it is summing.
const drainAttempts = 4

// Ring is a fixed-capacity single-producer/single-consumer sample ring.
//
// The producer counter only ever increases; slot i%capacity holds write i.
// Slots are atomics so a drain racing the producer reads whole samples.
type Ring struct {
	slots    []atomic.Uint32
	written  atomic.Uint64 // producer counter
	consumed atomic.Uint64 // producer counter value at the last drain
}

// NewRing creates a ring holding the most recent capacity samples.
// Unwritten slots read as zero.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic("altitude: ring capacity must be positive")
	}
	return &Ring{slots: make([]atomic.Uint32, capacity)}
}

// Capacity returns N.
func (r *Ring) Capacity() int {
	return len(r.slots)
}

// Write stores one sample, overwriting the oldest once the ring is full.
// Only one goroutine may write.
func (r *Ring) Write(sample uint32) {
	w := r.written.Load()
	r.slots[w%uint64(len(r.slots))].Store(sample)
	r.written.Store(w + 1)
}

// Drain sums the N most recent samples and marks everything written so far
// as consumed. fresh is the number of samples written since the previous
// drain, capped at the ring capacity. Only one goroutine may drain.
func (r *Ring) Drain() (sum uint32, fresh int) {
	n := uint64(len(r.slots))
	var end uint64
	for attempt := 0; attempt < drainAttempts; attempt++ {
		end = r.written.Load()
		sum = 0
		for i := uint64(0); i < n; i++ {
			sum += r.slots[(end+i)%n].Load()
		}
		// Consistent unless the producer overwrote a slot of this window
		if r.written.Load() == end {
			break
		}
	}
	consumed := r.consumed.Swap(end)
	fresh = len(r.slots)
	if end-consumed < n {
		fresh = int(end - consumed)
	}
	return sum, fresh
}

// Pending returns the number of samples written since the last drain,
// capped at the ring capacity.
func (r *Ring) Pending() int {
	p := r.written.Load() - r.consumed.Load()
	if p > uint64(len(r.slots)) {
		return len(r.slots)
	}
	return int(p)
}

// Written returns the total number of samples ever written.
func (r *Ring) Written() uint64 {
	return r.written.Load()
}
