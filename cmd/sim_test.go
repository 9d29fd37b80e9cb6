// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/helirig/pkg/altitude"
	"github.com/Thermoquad/helirig/pkg/rig"
	"github.com/Thermoquad/helirig/pkg/rigproto"
	"github.com/Thermoquad/helirig/pkg/sim"
	"github.com/Thermoquad/helirig/pkg/yaw"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func quiet() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestApplyOperatorCommand(t *testing.T) {
	op := &fakeOperator{}
	for _, c := range []string{"s", "U", "down", "l", "right"} {
		require.NoError(t, applyOperatorCommand(op, c))
	}
	assert.Equal(t, 1, op.toggles)
	assert.Equal(t, []rigproto.Button{rigproto.ButtonUp, rigproto.ButtonDown, rigproto.ButtonLeft, rigproto.ButtonRight}, op.presses)

	assert.Error(t, applyOperatorCommand(op, "hover"))
}

func TestReadOperatorCommands(t *testing.T) {
	op := &fakeOperator{}
	readOperatorCommands(strings.NewReader("s u\n\nbogus d\nswitch\n"), op, quiet())

	assert.Equal(t, 2, op.toggles)
	assert.Equal(t, []rigproto.Button{rigproto.ButtonUp, rigproto.ButtonDown}, op.presses)
}

func TestPlantParams(t *testing.T) {
	noise, rate := simNoise, simSampleRate
	t.Cleanup(func() { simNoise, simSampleRate = noise, rate })

	simNoise, simSampleRate = 0, 100
	p, err := plantParams()
	require.NoError(t, err)
	assert.Equal(t, 0, p.Noise)
	assert.Equal(t, 100.0, p.SampleRate)
	assert.Equal(t, sim.DefaultParams().GroundLevel, p.GroundLevel)

	simSampleRate = 0
	_, err = plantParams()
	assert.Error(t, err)

	simSampleRate, simNoise = 100, -1
	_, err = plantParams()
	assert.Error(t, err)
}

func newTestSimServer(t *testing.T, password string) (*simServer, string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	params := sim.DefaultParams()
	params.Noise = 0
	params.SampleRate = 100

	srv := newSimServer(ctx, params, quiet())
	srv.username = "pilot"
	srv.password = password
	srv.switchOn = true

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		cancel()
		srv.wg.Wait()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestSimServer_RejectsMissingAuth(t *testing.T) {
	_, url := newTestSimServer(t, "secret")

	_, err := rig.OpenWebSocket(context.Background(), url, rig.DialOptions{})
	assert.Error(t, err)

	_, err = rig.OpenWebSocket(context.Background(), url, rig.DialOptions{Username: "pilot", Password: "wrong"})
	assert.Error(t, err)
}

func TestSimServer_Authorized(t *testing.T) {
	srv := newSimServer(context.Background(), sim.DefaultParams(), quiet())
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, srv.authorized(req), "no password configured")

	srv.username, srv.password = "pilot", "secret"
	assert.False(t, srv.authorized(req))
	req.SetBasicAuth("pilot", "secret")
	assert.True(t, srv.authorized(req))
	req.SetBasicAuth("copilot", "secret")
	assert.False(t, srv.authorized(req))
}

func TestSimServer_NoClient(t *testing.T) {
	srv := newSimServer(context.Background(), sim.DefaultParams(), quiet())
	assert.Error(t, srv.ToggleSwitch())
	assert.Error(t, srv.Press(rigproto.ButtonUp))
}

func TestSimServer_FlyOverWebSocket(t *testing.T) {
	srv, url := newTestSimServer(t, "secret")

	conn, err := rig.OpenWebSocket(context.Background(), url, rig.DialOptions{Username: "pilot", Password: "secret"})
	require.NoError(t, err)

	ring := altitude.NewRing(altitude.RingSize)
	link := rig.NewLink(conn, yaw.NewEstimator(false), ring, quiet())
	link.Start()
	t.Cleanup(func() { link.Close() })

	require.Eventually(t, link.SwitchLevel, waitFor, time.Millisecond, "rig starts with the switch up")
	require.Eventually(t, func() bool { return ring.Written() > 0 }, waitFor, time.Millisecond)

	// Commands reach the newest rig
	require.NoError(t, srv.ToggleSwitch())
	require.Eventually(t, func() bool { return !link.SwitchLevel() }, waitFor, time.Millisecond)

	require.NoError(t, srv.Press(rigproto.ButtonLeft))
	var left bool
	require.Eventually(t, func() bool {
		left = left || link.TakePresses().Left
		return left
	}, waitFor, time.Millisecond)

	// The simulated bridge answers pings with its uptime
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, err = link.Ping(ctx)
	require.NoError(t, err)

	// Duty commands drive the simulated plant
	require.NoError(t, link.SetMainDuty(80))
	srv.mu.Lock()
	plant := srv.current.Plant()
	srv.mu.Unlock()
	require.Eventually(t, func() bool {
		main, _ := plant.Duties()
		return main == 80
	}, waitFor, time.Millisecond)
}
