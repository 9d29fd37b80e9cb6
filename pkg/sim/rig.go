// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/helirig/pkg/rigproto"
	"github.com/sirupsen/logrus"
)

// Rig emulates the bridge board in front of a Plant.
type Rig struct {
	plant  *Plant
	conn   io.ReadWriter
	logger *logrus.Logger
	start  time.Time

	writeMu sync.Mutex

	switchOn atomic.Bool

	displayMu  sync.Mutex
	display    rigproto.DisplayFrame
	hasDisplay bool
}

// NewRig creates a bridge emulator talking over conn.
func NewRig(conn io.ReadWriter, plant *Plant, logger *logrus.Logger) *Rig {
	if logger == nil {
		logger = logrus.New()
	}
	return &Rig{
		plant:  plant,
		conn:   conn,
		logger: logger,
		start:  time.Now(),
	}
}

// Plant returns the simulated plant.
func (r *Rig) Plant() *Plant {
	return r.plant
}

// Run streams sensor frames at the plant's sample rate and answers host
// commands until ctx is cancelled or the connection fails.
func (r *Rig) Run(ctx context.Context) error {
	readErr := make(chan error, 1)
	go func() {
		readErr <- r.readLoop()
	}()

	period := time.Duration(float64(time.Second) / r.plant.p.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	// Re-announce the switch once a second so a reconnecting host learns it
	announceEvery := int(r.plant.p.SampleRate)
	last := time.Now()

	if err := r.sendSwitch(); err != nil {
		return err
	}

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if err := r.Step(dt); err != nil {
				return err
			}
			if announceEvery > 0 && n%announceEvery == 0 {
				if err := r.sendSwitch(); err != nil {
					return err
				}
			}
		}
	}
}

// Step advances the plant by dt seconds and sends the resulting encoder,
// reference and ADC frames.
func (r *Rig) Step(dt float64) error {
	edges, reference := r.plant.Advance(dt)
	for _, e := range edges {
		if err := r.send(rigproto.NewEncoderEdge(e.A, e.B)); err != nil {
			return err
		}
	}
	if reference {
		if err := r.send(rigproto.NewReferenceCrossing()); err != nil {
			return err
		}
	}
	return r.send(rigproto.NewAltitudeSample(r.plant.Sample()))
}

// SetSwitch moves the mode switch and reports the new level.
func (r *Rig) SetSwitch(on bool) error {
	r.switchOn.Store(on)
	return r.sendSwitch()
}

// ToggleSwitch flips the mode switch.
func (r *Rig) ToggleSwitch() error {
	return r.SetSwitch(!r.switchOn.Load())
}

// Switch returns the mode switch level.
func (r *Rig) Switch() bool {
	return r.switchOn.Load()
}

// Press reports one debounced button press.
func (r *Rig) Press(b rigproto.Button) error {
	return r.send(rigproto.NewButtonPressed(b))
}

// Display returns the last display frame the host sent.
func (r *Rig) Display() (rigproto.DisplayFrame, bool) {
	r.displayMu.Lock()
	defer r.displayMu.Unlock()
	return r.display, r.hasDisplay
}

func (r *Rig) sendSwitch() error {
	return r.send(rigproto.NewSwitchLevel(r.switchOn.Load()))
}

func (r *Rig) send(p *rigproto.Packet) error {
	frame, err := rigproto.EncodePacket(p)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if _, err := r.conn.Write(frame); err != nil {
		return fmt.Errorf("sim write: %w", err)
	}
	return nil
}

func (r *Rig) readLoop() error {
	decoder := rigproto.NewDecoder()
	buf := make([]byte, 128)
	for {
		n, err := r.conn.Read(buf)
		for i := 0; i < n; i++ {
			packet, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				r.logger.WithError(decodeErr).Debug("Sim decode error")
				continue
			}
			if packet != nil {
				r.handle(packet)
			}
		}
		if err != nil {
			return fmt.Errorf("sim read: %w", err)
		}
	}
}

func (r *Rig) handle(p *rigproto.Packet) {
	if errs := rigproto.ValidatePacket(p); len(errs) > 0 {
		r.logger.WithField("type", rigproto.FormatMessageType(p.Type())).Warn("Sim rejected frame: " + errs[0].Message)
		r.send(rigproto.NewErrorInvalidCmd(p.Type()))
		return
	}

	m := p.PayloadMap()
	switch p.Type() {
	case rigproto.MsgDutyCommand:
		channel, _ := rigproto.GetMapUint(m, 0)
		duty, _ := rigproto.GetMapUint(m, 1)
		r.plant.SetDuty(rigproto.Channel(channel), float64(duty))

	case rigproto.MsgDisplayFrame:
		f, _ := rigproto.ParseDisplayFrame(p)
		r.displayMu.Lock()
		r.display = f
		r.hasDisplay = true
		r.displayMu.Unlock()

	case rigproto.MsgPingRequest:
		uptime := uint64(time.Since(r.start).Milliseconds())
		r.send(rigproto.NewPingResponse(uptime))

	default:
		r.send(rigproto.NewErrorInvalidCmd(p.Type()))
	}
}
