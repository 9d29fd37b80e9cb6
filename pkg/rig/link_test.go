// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rig

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Thermoquad/helirig/pkg/altitude"
	"github.com/Thermoquad/helirig/pkg/control"
	"github.com/Thermoquad/helirig/pkg/display"
	"github.com/Thermoquad/helirig/pkg/flightmode"
	"github.com/Thermoquad/helirig/pkg/rigproto"
	"github.com/Thermoquad/helirig/pkg/yaw"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ control.Actuators = (*Link)(nil)
	_ control.Switch    = (*Link)(nil)
	_ control.Buttons   = (*Link)(nil)
	_ display.Sink      = (*Link)(nil)
)

const waitFor = 2 * time.Second

type linkHarness struct {
	link   *Link
	yaw    *yaw.Estimator
	ring   *altitude.Ring
	remote net.Conn
	frames chan *rigproto.Packet
}

// newLinkHarness connects a Link to the near end of a pipe. Frames the link
// writes are decoded from the far end into frames.
func newLinkHarness(t *testing.T) *linkHarness {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	local, remote := net.Pipe()
	h := &linkHarness{
		yaw:    yaw.NewEstimator(false),
		ring:   altitude.NewRing(altitude.RingSize),
		remote: remote,
		frames: make(chan *rigproto.Packet, 32),
	}
	h.link = NewLink(local, h.yaw, h.ring, logger)
	h.link.Start()

	go func() {
		decoder := rigproto.NewDecoder()
		buf := make([]byte, 64)
		for {
			n, err := remote.Read(buf)
			for i := 0; i < n; i++ {
				if p, _ := decoder.DecodeByte(buf[i]); p != nil {
					h.frames <- p
				}
			}
			if err != nil {
				return
			}
		}
	}()

	t.Cleanup(func() {
		h.link.Close()
		remote.Close()
	})
	return h
}

func (h *linkHarness) send(t *testing.T, p *rigproto.Packet) {
	t.Helper()
	_, err := h.remote.Write(rigproto.MustEncodePacket(p))
	require.NoError(t, err)
}

func (h *linkHarness) next(t *testing.T) *rigproto.Packet {
	t.Helper()
	select {
	case p := <-h.frames:
		return p
	case <-time.After(waitFor):
		t.Fatal("no frame from link")
		return nil
	}
}

func TestLink_EncoderEdges(t *testing.T) {
	h := newLinkHarness(t)

	// B leads A: counts up
	for _, e := range [][2]bool{{false, true}, {true, true}, {true, false}, {false, false}} {
		h.send(t, rigproto.NewEncoderEdge(e[0], e[1]))
	}

	assert.Eventually(t, func() bool { return h.yaw.Read().Ticks == 4 }, waitFor, time.Millisecond)

	h.send(t, rigproto.NewReferenceCrossing())
	assert.Eventually(t, func() bool {
		r := h.yaw.Read()
		return r.ReferenceFound && r.Ticks == 0
	}, waitFor, time.Millisecond)
}

func TestLink_AltitudeSamples(t *testing.T) {
	h := newLinkHarness(t)

	for i := 0; i < 12; i++ {
		h.send(t, rigproto.NewAltitudeSample(2000+uint32(i)))
	}

	require.Eventually(t, func() bool { return h.ring.Written() == 12 }, waitFor, time.Millisecond)
	// Last ten samples: 2002..2011
	sum, _ := h.ring.Drain()
	assert.Equal(t, uint32(20065), sum)
}

func TestLink_RejectsOutOfRangeSample(t *testing.T) {
	h := newLinkHarness(t)

	h.send(t, rigproto.NewAltitudeSample(rigproto.MaxADCValue+1))
	h.send(t, rigproto.NewAltitudeSample(100))

	require.Eventually(t, func() bool { return h.link.Stats().Counts().Total == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, uint64(1), h.ring.Written())
	assert.Equal(t, uint64(1), h.link.Stats().Counts().Rejected)
}

func TestLink_SwitchAndButtons(t *testing.T) {
	h := newLinkHarness(t)

	h.send(t, rigproto.NewSwitchLevel(true))
	h.send(t, rigproto.NewButtonPressed(rigproto.ButtonUp))
	h.send(t, rigproto.NewButtonPressed(rigproto.ButtonLeft))

	require.Eventually(t, func() bool { return h.link.Stats().Counts().Valid == 3 }, waitFor, time.Millisecond)
	assert.True(t, h.link.SwitchLevel())
	assert.Equal(t, flightmode.Presses{Up: true, Left: true}, h.link.TakePresses())
	assert.Equal(t, flightmode.Presses{}, h.link.TakePresses())
}

func TestLink_DutyCommands(t *testing.T) {
	h := newLinkHarness(t)

	require.NoError(t, h.link.SetMainDuty(42))
	p := h.next(t)
	assert.Equal(t, uint8(rigproto.MsgDutyCommand), p.Type())
	channel, _ := rigproto.GetMapUint(p.PayloadMap(), 0)
	duty, _ := rigproto.GetMapUint(p.PayloadMap(), 1)
	assert.Equal(t, uint64(rigproto.ChannelMain), channel)
	assert.Equal(t, uint64(42), duty)

	require.NoError(t, h.link.SetTailDuty(17))
	p = h.next(t)
	channel, _ = rigproto.GetMapUint(p.PayloadMap(), 0)
	assert.Equal(t, uint64(rigproto.ChannelTail), channel)
}

func TestLink_Display(t *testing.T) {
	h := newLinkHarness(t)

	rec := display.Record{YawSetpoint: -15, YawActual: -12, HeightSetpoint: 50, HeightPercent: 47, MainDuty: 42, TailDuty: 38, Mode: "Flying"}
	require.NoError(t, h.link.Display(rec))

	f, ok := rigproto.ParseDisplayFrame(h.next(t))
	require.True(t, ok)
	assert.Equal(t, rigproto.DisplayFrame{YawSetpoint: -15, YawActual: -12, HeightSetpoint: 50, HeightPercent: 47, MainDuty: 42, TailDuty: 38, Mode: "Flying"}, f)
}

func TestLink_Ping(t *testing.T) {
	h := newLinkHarness(t)

	go func() {
		p := <-h.frames
		if p.Type() == rigproto.MsgPingRequest {
			h.remote.Write(rigproto.MustEncodePacket(rigproto.NewPingResponse(1500)))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	uptime, err := h.link.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, uptime)
}

func TestLink_RemoteClose(t *testing.T) {
	h := newLinkHarness(t)

	h.remote.Close()

	select {
	case <-h.link.Done():
	case <-time.After(waitFor):
		t.Fatal("reader did not stop")
	}
	assert.ErrorIs(t, h.link.Err(), ErrConnectionClosed)
}

func TestLink_ResyncAfterGarbage(t *testing.T) {
	h := newLinkHarness(t)

	_, err := h.remote.Write([]byte{0x01, 0x02, 0x7F, 0x33})
	require.NoError(t, err)
	h.send(t, rigproto.NewSwitchLevel(true))

	assert.Eventually(t, h.link.SwitchLevel, waitFor, time.Millisecond)
}
