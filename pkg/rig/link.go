// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rig connects the controller to the bridge board over a rigproto
// link.
//
// The Link's reader goroutine stands in for the rig's interrupt handlers: it
// feeds encoder edges and reference crossings into the yaw estimator, raw
// samples into the altitude ring, and latches the switch level and button
// presses for the control loop. In the other direction the Link implements
// the loop's actuator and display interfaces by writing frames.
package rig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/helirig/pkg/altitude"
	"github.com/Thermoquad/helirig/pkg/display"
	"github.com/Thermoquad/helirig/pkg/flightmode"
	"github.com/Thermoquad/helirig/pkg/rigproto"
	"github.com/Thermoquad/helirig/pkg/yaw"
	"github.com/sirupsen/logrus"
)

// Link is one live connection to the rig.
type Link struct {
	conn   Conn
	logger *logrus.Logger
	yaw    *yaw.Estimator
	ring   *altitude.Ring
	stats  *rigproto.Statistics

	switchOn atomic.Bool

	pressMu sync.Mutex
	presses flightmode.Presses

	writeMu sync.Mutex
	pong    chan uint64

	startOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

// NewLink creates a link over conn. Call Start to begin reading.
func NewLink(conn Conn, yawEst *yaw.Estimator, ring *altitude.Ring, logger *logrus.Logger) *Link {
	if logger == nil {
		logger = logrus.New()
	}
	return &Link{
		conn:   conn,
		logger: logger,
		yaw:    yawEst,
		ring:   ring,
		stats:  rigproto.NewStatistics(),
		pong:   make(chan uint64, 1),
		done:   make(chan struct{}),
	}
}

// Start launches the reader goroutine. Calling it again is a no-op.
func (l *Link) Start() {
	l.startOnce.Do(func() {
		go l.readLoop()
	})
}

// Done is closed when the reader stops.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Err returns why the reader stopped, or nil while it is running.
func (l *Link) Err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

// Close closes the underlying connection, which also stops the reader.
func (l *Link) Close() error {
	return l.conn.Close()
}

// Stats returns the link's frame statistics.
func (l *Link) Stats() *rigproto.Statistics {
	return l.stats
}

func (l *Link) readLoop() {
	defer close(l.done)

	decoder := rigproto.NewDecoder()
	synchronized := false
	invalidBytesBeforeSync := 0
	buf := make([]byte, 128)

	for {
		n, err := l.conn.Read(buf)
		for i := 0; i < n; i++ {
			packet, decodeErr := decoder.DecodeByte(buf[i])
			switch {
			case decodeErr != nil:
				if !synchronized {
					invalidBytesBeforeSync++
					continue
				}
				l.stats.Update(decodeErr, nil)
				l.logger.WithError(decodeErr).Warn("Frame decode error")
			case packet != nil:
				if !synchronized {
					synchronized = true
					l.logger.WithField("skipped_bytes", invalidBytesBeforeSync).Debug("Link synchronized")
				}
				l.handle(packet)
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrConnectionClosed
			}
			l.errMu.Lock()
			l.err = fmt.Errorf("link read: %w", err)
			l.errMu.Unlock()
			l.logger.WithError(err).Debug("Link reader stopped")
			return
		}
	}
}

func (l *Link) handle(p *rigproto.Packet) {
	if errs := rigproto.ValidatePacket(p); len(errs) > 0 {
		l.stats.Update(nil, errs)
		for _, e := range errs {
			l.logger.WithFields(logrus.Fields{
				"type":    rigproto.FormatMessageType(p.Type()),
				"anomaly": e.Type,
			}).Warn("Rejected frame: " + e.Message)
		}
		return
	}
	l.stats.Update(nil, nil)

	m := p.PayloadMap()
	switch p.Type() {
	case rigproto.MsgEncoderEdge:
		a, _ := rigproto.GetMapBool(m, 0)
		b, _ := rigproto.GetMapBool(m, 1)
		l.yaw.Edge(a, b)

	case rigproto.MsgReferenceCrossing:
		l.yaw.Reference()

	case rigproto.MsgAltitudeSample:
		v, _ := rigproto.GetMapUint(m, 0)
		l.ring.Write(uint32(v))

	case rigproto.MsgSwitchLevel:
		on, _ := rigproto.GetMapBool(m, 0)
		if l.switchOn.Swap(on) != on {
			l.logger.WithField("on", on).Info("Mode switch changed")
		}

	case rigproto.MsgButtonPressed:
		v, _ := rigproto.GetMapUint(m, 0)
		l.latch(rigproto.Button(v))

	case rigproto.MsgPingResponse:
		uptime, _ := rigproto.GetMapUint(m, 0)
		select {
		case l.pong <- uptime:
		default:
		}

	case rigproto.MsgErrorInvalidCmd:
		offending, _ := rigproto.GetMapUint(m, 0)
		l.logger.WithField("type", rigproto.FormatMessageType(uint8(offending))).Warn("Bridge rejected command")

	default:
		l.logger.WithField("type", rigproto.FormatMessageType(p.Type())).Debug("Ignoring host-bound frame")
	}
}

func (l *Link) latch(b rigproto.Button) {
	l.pressMu.Lock()
	defer l.pressMu.Unlock()
	switch b {
	case rigproto.ButtonUp:
		l.presses.Up = true
	case rigproto.ButtonDown:
		l.presses.Down = true
	case rigproto.ButtonLeft:
		l.presses.Left = true
	case rigproto.ButtonRight:
		l.presses.Right = true
	}
}

// SwitchLevel returns the last reported mode switch level.
func (l *Link) SwitchLevel() bool {
	return l.switchOn.Load()
}

// TakePresses returns the buttons pressed since the previous call.
func (l *Link) TakePresses() flightmode.Presses {
	l.pressMu.Lock()
	defer l.pressMu.Unlock()
	p := l.presses
	l.presses = flightmode.Presses{}
	return p
}

// Send encodes and writes one frame.
func (l *Link) Send(p *rigproto.Packet) error {
	frame, err := rigproto.EncodePacket(p)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := l.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write %s: %w", rigproto.FormatMessageType(p.Type()), err)
	}
	return nil
}

// SetMainDuty commands the main rotor.
func (l *Link) SetMainDuty(percent uint16) error {
	return l.Send(rigproto.NewDutyCommand(rigproto.ChannelMain, percent))
}

// SetTailDuty commands the tail rotor.
func (l *Link) SetTailDuty(percent uint16) error {
	return l.Send(rigproto.NewDutyCommand(rigproto.ChannelTail, percent))
}

// Display sends the record to the bridge's screen.
func (l *Link) Display(r display.Record) error {
	return l.Send(rigproto.NewDisplayFrame(rigproto.DisplayFrame{
		YawSetpoint:    r.YawSetpoint,
		YawActual:      r.YawActual,
		HeightSetpoint: r.HeightSetpoint,
		HeightPercent:  r.HeightPercent,
		MainDuty:       r.MainDuty,
		TailDuty:       r.TailDuty,
		Mode:           r.Mode,
	}))
}

// Ping sends a PING_REQUEST and waits for the bridge's uptime.
func (l *Link) Ping(ctx context.Context) (time.Duration, error) {
	select {
	case <-l.pong:
	default:
	}

	if err := l.Send(rigproto.NewPingRequest()); err != nil {
		return 0, err
	}

	select {
	case uptime := <-l.pong:
		return time.Duration(uptime) * time.Millisecond, nil
	case <-l.done:
		return 0, l.Err()
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
