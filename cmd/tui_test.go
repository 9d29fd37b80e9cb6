// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/Thermoquad/helirig/pkg/control"
	"github.com/Thermoquad/helirig/pkg/display"
	"github.com/Thermoquad/helirig/pkg/flightmode"
	"github.com/Thermoquad/helirig/pkg/pid"
	"github.com/Thermoquad/helirig/pkg/rigproto"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		ms   uint64
		want string
	}{
		{0, "0 seconds"},
		{999, "0 seconds"},
		{1000, "1 second"},
		{45000, "45 seconds"},
		{61000, "1 minute and 1 second"},
		{7200000, "2 hours"},
		{3661000, "1 hour, 1 minute, and 1 second"},
		{2*86400000 + 3*60000, "2 days and 3 minutes"},
		{90061000, "1 day, 1 hour, 1 minute, and 1 second"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, formatUptime(tc.ms))
		})
	}
}

func TestEventLog_Bounded(t *testing.T) {
	l := eventLog{max: 3}
	for i := 0; i < 5; i++ {
		l.add(fmt.Sprintf("event %d", i), i == 4)
	}

	require.Len(t, l.entries, 3)
	assert.Equal(t, "event 2", l.entries[0].message)
	assert.True(t, l.entries[2].isError)
	assert.Contains(t, l.render(10, 80), "event 4")
}

func TestEventLog_Empty(t *testing.T) {
	l := eventLog{max: 3}
	assert.Contains(t, l.render(10, 80), "no events yet")
}

func TestLogForwarder_Fire(t *testing.T) {
	f := newLogForwarder()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(f)

	logger.WithFields(logrus.Fields{"mode": "Flying", "from": "Landed"}).Info("Flight mode changed")
	logger.Error("failed to set main duty")

	first := <-f.entries
	assert.Equal(t, "Flight mode changed (from=Landed mode=Flying)", first.message)
	assert.False(t, first.isError)

	second := <-f.entries
	assert.True(t, second.isError)
}

func TestLogForwarder_DropsWhenFull(t *testing.T) {
	f := &logForwarder{entries: make(chan logEntry, 1)}
	entry := logrus.NewEntry(logrus.New())

	require.NoError(t, f.Fire(entry))
	require.NoError(t, f.Fire(entry))
	assert.Len(t, f.entries, 1)
}

type fakeOperator struct {
	toggles int
	presses []rigproto.Button
	err     error
}

func (o *fakeOperator) ToggleSwitch() error {
	o.toggles++
	return o.err
}

func (o *fakeOperator) Press(b rigproto.Button) error {
	o.presses = append(o.presses, b)
	return o.err
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func flyingSnapshot() control.Snapshot {
	return control.Snapshot{
		Tick:      12,
		Mode:      flightmode.Flying,
		SwitchOn:  true,
		Setpoints: flightmode.Setpoints{Height: 30, Yaw: 15},
		Record: display.Record{
			YawSetpoint: 15, YawActual: 12,
			HeightSetpoint: 30, HeightPercent: 27,
			MainDuty: 41, TailDuty: 22,
		},
		Output:  pid.Output{MainDuty: 41, TailDuty: 22},
		Emitted: true,
	}
}

func TestDashboard_OperatorKeys(t *testing.T) {
	op := &fakeOperator{}
	var m tea.Model = initialDashboardModel("HELIRIG - SIM", "Simulator", nil, op)

	for _, k := range []string{"s", "up", "down", "left", "right", "x"} {
		m, _ = m.Update(keyMsg(k))
	}

	assert.Equal(t, 1, op.toggles)
	assert.Equal(t, []rigproto.Button{rigproto.ButtonUp, rigproto.ButtonDown, rigproto.ButtonLeft, rigproto.ButtonRight}, op.presses)
}

func TestDashboard_OperatorErrorLogged(t *testing.T) {
	op := &fakeOperator{err: errors.New("pipe closed")}
	var m tea.Model = initialDashboardModel("HELIRIG - SIM", "Simulator", nil, op)

	m, _ = m.Update(keyMsg("s"))
	d := m.(dashboardModel)
	require.Len(t, d.log.entries, 1)
	assert.True(t, d.log.entries[0].isError)
}

func TestDashboard_NoOperatorIgnoresKeys(t *testing.T) {
	var m tea.Model = initialDashboardModel("HELIRIG - RUN", "Serial", nil, nil)
	m, cmd := m.Update(keyMsg("s"))
	assert.Nil(t, cmd)
	assert.Empty(t, m.(dashboardModel).log.entries)
}

func TestDashboard_Quit(t *testing.T) {
	var m tea.Model = initialDashboardModel("HELIRIG - RUN", "Serial", nil, nil)
	m, cmd := m.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.True(t, m.(dashboardModel).quitting)
	assert.Equal(t, "Shutting down...\n", m.View())
}

func TestDashboard_Snapshots(t *testing.T) {
	stats := rigproto.NewStatistics()
	stats.Update(nil, nil)
	var m tea.Model = initialDashboardModel("HELIRIG - RUN", "Serial: /dev/ttyUSB0", func() *rigproto.Statistics { return stats }, nil)

	assert.Contains(t, m.View(), "Waiting for the first control tick")

	landed := flyingSnapshot()
	landed.Mode = flightmode.Landed
	m, _ = m.Update(snapshotMsg(landed))
	m, _ = m.Update(snapshotMsg(flyingSnapshot()))

	d := m.(dashboardModel)
	require.Len(t, d.log.entries, 1)
	assert.Equal(t, "Landed → Flying", d.log.entries[0].message)

	view := m.View()
	assert.Contains(t, view, "Flying")
	assert.Contains(t, view, "41%")
	assert.Contains(t, view, "Total:")
}

func TestDashboard_ConnectionEvents(t *testing.T) {
	var m tea.Model = initialDashboardModel("HELIRIG - RUN", "Serial", nil, nil)

	m, _ = m.Update(connectionLostMsg{})
	assert.True(t, m.(dashboardModel).connectionLost)
	assert.Contains(t, m.View(), "RECONNECTING")

	m, _ = m.Update(reconnectedMsg{connInfo: "WebSocket: ws://rig/ws"})
	d := m.(dashboardModel)
	assert.False(t, d.connectionLost)
	assert.Equal(t, "WebSocket: ws://rig/ws", d.connInfo)
}

func TestDashboard_LogMsg(t *testing.T) {
	var m tea.Model = initialDashboardModel("HELIRIG - RUN", "Serial", nil, nil)
	m, _ = m.Update(logMsg(logEntry{timestamp: time.Now(), message: "Altitude samples stale"}))
	assert.Contains(t, m.View(), "Altitude samples stale")
}

func TestLinkStatsModel_Frames(t *testing.T) {
	var m tea.Model = initialLinkStatsModel("Serial: /dev/ttyUSB0", false)

	m, _ = m.Update(syncMsg{invalidBytes: 3})
	m, _ = m.Update(linkDataMsg{packet: decodeOne(t, rigproto.NewAltitudeSample(2100))})
	m, _ = m.Update(linkDataMsg{packet: decodeOne(t, rigproto.NewSwitchLevel(true))})
	bad := decodeOne(t, rigproto.NewAltitudeSample(5000))
	m, _ = m.Update(linkDataMsg{packet: bad, validationErrors: rigproto.ValidatePacket(bad)})
	m, _ = m.Update(linkDataMsg{decodeErr: errors.New("missing END byte")})

	s := m.(linkStatsModel)
	assert.True(t, s.synchronized)
	assert.Equal(t, uint64(2100), s.lastSample)
	assert.True(t, s.switchOn)

	c := s.stats.Counts()
	assert.Equal(t, uint64(4), c.Total)
	assert.Equal(t, uint64(2), c.Valid)
	assert.Equal(t, uint64(1), c.Rejected)
	assert.Equal(t, uint64(1), c.DecodeErrors)

	view := m.View()
	assert.Contains(t, view, "skipped 3 invalid bytes")
	assert.Contains(t, view, "2100")
}

func decodeOne(t *testing.T, p *rigproto.Packet) *rigproto.Packet {
	t.Helper()
	decoded, err := rigproto.DecodePacket(rigproto.MustEncodePacket(p))
	require.NoError(t, err)
	return decoded
}
