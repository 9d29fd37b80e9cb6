// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/helirig/pkg/control"
	"github.com/Thermoquad/helirig/pkg/flightmode"
	"github.com/Thermoquad/helirig/pkg/rigproto"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// operator works the rig's mode switch and buttons. Only the simulator
// provides one; on real hardware the pilot uses the physical controls.
type operator interface {
	ToggleSwitch() error
	Press(b rigproto.Button) error
}

type dashboardModel struct {
	title    string
	connInfo string
	stats    func() *rigproto.Statistics
	operator operator

	// Latest loop snapshot
	snap    control.Snapshot
	hasSnap bool

	mainBar progress.Model
	tailBar progress.Model
	log     eventLog

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialDashboardModel(title, connInfo string, stats func() *rigproto.Statistics, op operator) dashboardModel {
	return dashboardModel{
		title:    title,
		connInfo: connInfo,
		stats:    stats,
		operator: op,
		mainBar:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		tailBar:  progress.New(progress.WithGradient("#5A56E0", "#EE6FF8"), progress.WithWidth(30)),
		log:      eventLog{max: 100},
		width:    80,
		height:   24,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tickCmd()
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if m.stats != nil {
			m.stats().CalculateRates()
		}
		return m, tickCmd()

	case snapshotMsg:
		prev := m.snap
		m.snap = control.Snapshot(msg)
		if m.hasSnap && prev.Mode != m.snap.Mode {
			m.log.add(fmt.Sprintf("%s → %s", prev.Mode, m.snap.Mode), false)
		}
		m.hasSnap = true

	case logMsg:
		m.log.push(logEntry(msg))

	case connectionLostMsg:
		m.connectionLost = true

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
	}

	return m, nil
}

func (m dashboardModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}

	if m.operator == nil {
		return m, nil
	}

	var err error
	switch msg.String() {
	case "s", " ":
		err = m.operator.ToggleSwitch()
	case "up", "k":
		err = m.operator.Press(rigproto.ButtonUp)
	case "down", "j":
		err = m.operator.Press(rigproto.ButtonDown)
	case "left", "h":
		err = m.operator.Press(rigproto.ButtonLeft)
	case "right", "l":
		err = m.operator.Press(rigproto.ButtonRight)
	}
	if err != nil {
		m.log.add(fmt.Sprintf("Operator input failed: %v", err), true)
	}
	return m, nil
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Header
	helpText := "q=quit"
	if m.operator != nil {
		helpText = "q=quit s=switch arrows=setpoints"
	}
	s.WriteString(titleStyle.Render(m.title))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s", connStatus, helpText)))
	s.WriteString("\n\n")

	if !m.hasSnap {
		s.WriteString(warningStyle.Render("⏳ Waiting for the first control tick..."))
		s.WriteString("\n\n")
	} else {
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.renderFlight(), " ", m.renderActuators()))
		s.WriteString("\n")
	}

	if m.stats != nil {
		s.WriteString(renderStats(m.stats().Counts()))
		s.WriteString("\n")
	}

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(m.log.render(m.height-22, m.width))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m dashboardModel) renderFlight() string {
	snap := m.snap
	var s strings.Builder

	s.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("Mode:"), modeStyle(snap.Mode).Render(snap.Mode.String()),
		statsLabelStyle.Render("Switch:"), statsValueStyle.Render(onOff(snap.SwitchOn))))

	ref := warningStyle.Render("searching")
	if snap.Yaw.ReferenceFound {
		ref = statsValueStyle.Render("found")
	}
	s.WriteString(fmt.Sprintf("%s %s\n\n", statsLabelStyle.Render("Reference:"), ref))

	s.WriteString(fmt.Sprintf("%s %s %s\n",
		statsLabelStyle.Render("Yaw:"),
		statsValueStyle.Render(fmt.Sprintf("%4d°", snap.Record.YawActual)),
		headerStyle.Render(fmt.Sprintf("[setpoint %d°]", snap.Record.YawSetpoint))))

	alt := headerStyle.Render("baseline pending")
	if snap.Altitude.Captured {
		alt = headerStyle.Render(fmt.Sprintf("[setpoint %d%%, adc %d / base %d]",
			snap.Record.HeightSetpoint, snap.Altitude.Mean, snap.Altitude.Baseline))
	}
	s.WriteString(fmt.Sprintf("%s %s %s",
		statsLabelStyle.Render("Alt:"),
		statsValueStyle.Render(fmt.Sprintf("%4d%%", snap.Record.HeightPercent)),
		alt))

	return boxStyle.Render(s.String())
}

func (m dashboardModel) renderActuators() string {
	snap := m.snap
	var s strings.Builder

	s.WriteString(fmt.Sprintf("%s %3d%%\n", statsLabelStyle.Render("Main"), snap.Output.MainDuty))
	s.WriteString(m.mainBar.ViewAs(float64(snap.Output.MainDuty) / 100))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("%s %3d%%\n", statsLabelStyle.Render("Tail"), snap.Output.TailDuty))
	s.WriteString(m.tailBar.ViewAs(float64(snap.Output.TailDuty) / 100))
	s.WriteString("\n")

	switch {
	case snap.Stale:
		s.WriteString(errorStyle.Render("✗ altitude stale, holding output"))
	case !snap.Emitted:
		s.WriteString(headerStyle.Render("output idle"))
	default:
		s.WriteString(statsValueStyle.Render(fmt.Sprintf("✓ tick %d", snap.Tick)))
	}

	return boxStyle.Render(s.String())
}

func modeStyle(mode flightmode.Mode) lipgloss.Style {
	switch mode {
	case flightmode.Flying:
		return statsValueStyle
	case flightmode.Calibrating, flightmode.Landing:
		return warningStyle
	default:
		return headerStyle
	}
}
