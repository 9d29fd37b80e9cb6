// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rigproto

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks frame statistics and error rates.
// Safe for concurrent use: the link reader updates it while the
// dashboard and the stats printer read it.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	TotalPackets    uint64
	ValidPackets    uint64
	CRCErrors       uint64
	DecodeErrors    uint64
	RejectedPackets uint64
	OutOfRange      uint64
	MissingFields   uint64
	UnknownTypes    uint64

	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec

	lastRateTime    time.Time
	lastRatePackets uint64
	lastRateErrors  uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		lastRateTime:   now,
	}
}

// Update records the outcome of one decode attempt
func (s *Statistics) Update(decodeErr error, validationErrors []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrCRCMismatch) {
			s.CRCErrors++
		} else {
			s.DecodeErrors++
		}
		return
	}

	if len(validationErrors) == 0 {
		s.ValidPackets++
		return
	}

	s.RejectedPackets++
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyOutOfRange:
			s.OutOfRange++
		case AnomalyMissingField, AnomalyParseError:
			s.MissingFields++
		case AnomalyUnknownType:
			s.UnknownTypes++
		}
	}
}

// CalculateRates refreshes PacketRate and ErrorRate since the previous call
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(s.lastRateTime).Seconds()
	if elapsed <= 0 {
		return
	}
	errs := s.errorCount()
	s.PacketRate = float64(s.TotalPackets-s.lastRatePackets) / elapsed
	s.ErrorRate = float64(errs-s.lastRateErrors) / elapsed
	s.lastRateTime = now
	s.lastRatePackets = s.TotalPackets
	s.lastRateErrors = errs
}

func (s *Statistics) errorCount() uint64 {
	return s.CRCErrors + s.DecodeErrors + s.RejectedPackets
}

// SuccessRate returns the percentage of frames that decoded and validated
func (s *Statistics) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TotalPackets == 0 {
		return 100
	}
	return float64(s.ValidPackets) / float64(s.TotalPackets) * 100
}

// String formats a one-paragraph summary
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("Frames: %d total, %d valid | CRC errors: %d | Decode errors: %d | Rejected: %d (range %d, missing %d, unknown %d) | %.1f pkt/s, %.1f err/s | Uptime: %s",
		s.TotalPackets, s.ValidPackets, s.CRCErrors, s.DecodeErrors, s.RejectedPackets,
		s.OutOfRange, s.MissingFields, s.UnknownTypes, s.PacketRate, s.ErrorRate,
		time.Since(s.StartTime).Truncate(time.Second))
}

// Counts is a point-in-time copy of the counters.
type Counts struct {
	Total        uint64
	Valid        uint64
	CRCErrors    uint64
	DecodeErrors uint64
	Rejected     uint64
	PacketRate   float64
	ErrorRate    float64
}

// Counts returns the current counters.
func (s *Statistics) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Total:        s.TotalPackets,
		Valid:        s.ValidPackets,
		CRCErrors:    s.CRCErrors,
		DecodeErrors: s.DecodeErrors,
		Rejected:     s.RejectedPackets,
		PacketRate:   s.PacketRate,
		ErrorRate:    s.ErrorRate,
	}
}
