// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package display renders the controller's per-tick status record.
package display

import (
	"fmt"
	"io"
	"sync"
)

// Record is the status shown once per control tick.
type Record struct {
	YawSetpoint    int
	YawActual      int
	HeightSetpoint int
	HeightPercent  int
	MainDuty       int
	TailDuty       int
	Mode           string
}

// FormatLine renders the single-line form used on the rig's screen.
func FormatLine(r Record) string {
	return fmt.Sprintf("Yaw = %3d [%3d] Alt = %3d [%3d] Main = %3d pct Tail = %3d pct",
		r.YawSetpoint, r.YawActual, r.HeightSetpoint, r.HeightPercent, r.MainDuty, r.TailDuty)
}

// FormatBlock renders the multi-line form used on the serial console.
func FormatBlock(r Record) string {
	return fmt.Sprintf("------------\nYaw = %3d [%3d] deg\nAlt = %3d [%3d] pct\nMain = %3d  pct\nTail = %3d\n",
		r.YawSetpoint, r.YawActual, r.HeightSetpoint, r.HeightPercent, r.MainDuty, r.TailDuty)
}

// Sink receives display records.
type Sink interface {
	Display(r Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(r Record) error

// Display calls f(r).
func (f SinkFunc) Display(r Record) error {
	return f(r)
}

// Discard drops every record.
var Discard Sink = SinkFunc(func(Record) error { return nil })

// LineWriter writes FormatLine output followed by a newline.
type LineWriter struct {
	W io.Writer
}

func (w LineWriter) Display(r Record) error {
	_, err := fmt.Fprintln(w.W, FormatLine(r))
	return err
}

// BlockWriter writes FormatBlock output.
type BlockWriter struct {
	W io.Writer
}

func (w BlockWriter) Display(r Record) error {
	_, err := io.WriteString(w.W, FormatBlock(r))
	return err
}

// Alternator forwards each record to one of two sinks, switching sinks on
// every call. The first record goes to Primary.
type Alternator struct {
	Primary   Sink
	Secondary Sink

	mu        sync.Mutex
	secondary bool
}

// NewAlternator creates an alternator. A nil sink is treated as Discard.
func NewAlternator(primary, secondary Sink) *Alternator {
	if primary == nil {
		primary = Discard
	}
	if secondary == nil {
		secondary = Discard
	}
	return &Alternator{Primary: primary, Secondary: secondary}
}

// Display sends r to the current sink and flips to the other one.
func (a *Alternator) Display(r Record) error {
	a.mu.Lock()
	sink := a.Primary
	if a.secondary {
		sink = a.Secondary
	}
	a.secondary = !a.secondary
	a.mu.Unlock()

	if err := sink.Display(r); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	return nil
}
