// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/helirig/pkg/control"
	"github.com/Thermoquad/helirig/pkg/rigproto"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings and info
}

// Messages
type tickMsg time.Time
type snapshotMsg control.Snapshot
type logMsg logEntry
type connectionLostMsg struct{}
type reconnectedMsg struct {
	connInfo string
}
type linkDataMsg struct {
	packet           *rigproto.Packet
	decodeErr        error
	validationErrors []rigproto.ValidationError
}
type syncMsg struct {
	invalidBytes int
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Shared styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// logForwarder is a logrus hook that moves entries into a dashboard.
// Fire never blocks; entries are dropped when the buffer is full.
type logForwarder struct {
	entries chan logEntry
}

func newLogForwarder() *logForwarder {
	return &logForwarder{entries: make(chan logEntry, 256)}
}

func (f *logForwarder) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (f *logForwarder) Fire(e *logrus.Entry) error {
	select {
	case f.entries <- entryFromLogrus(e):
	default:
	}
	return nil
}

func (f *logForwarder) run(ctx context.Context, p *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-f.entries:
			p.Send(logMsg(e))
		}
	}
}

func entryFromLogrus(e *logrus.Entry) logEntry {
	msg := e.Message
	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Data[k]))
		}
		msg += " (" + strings.Join(parts, " ") + ")"
	}
	return logEntry{
		timestamp: e.Time,
		message:   msg,
		isError:   e.Level <= logrus.ErrorLevel,
	}
}

// eventLog is a bounded list of log entries.
type eventLog struct {
	entries []logEntry
	max     int
}

func (l *eventLog) add(message string, isError bool) {
	l.push(logEntry{timestamp: time.Now(), message: message, isError: isError})
}

func (l *eventLog) push(e logEntry) {
	l.entries = append(l.entries, e)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// render draws the newest entries that fit in rows lines.
func (l *eventLog) render(rows, width int) string {
	if rows < 5 {
		rows = 5
	}

	content := strings.Builder{}
	start := len(l.entries) - rows
	if start < 0 {
		start = 0
	}

	if len(l.entries) == 0 {
		content.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for i := start; i < len(l.entries); i++ {
		entry := l.entries[i]
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			content.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
		} else {
			content.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
		}
	}

	if width > 4 {
		return boxStyle.Width(width - 4).Render(content.String())
	}
	return boxStyle.Render(content.String())
}

// renderStats draws the link statistics box.
func renderStats(c rigproto.Counts) string {
	var validPercent float64
	errs := c.CRCErrors + c.DecodeErrors + c.Rejected
	if c.Total > 0 {
		validPercent = float64(c.Valid) * 100.0 / float64(c.Total)
	}

	content := strings.Builder{}
	content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", c.Total)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", c.Valid, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", errs)),
	))
	if c.CRCErrors > 0 || c.DecodeErrors > 0 || c.Rejected > 0 {
		content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("CRC:"), errorStyle.Render(fmt.Sprintf("%d", c.CRCErrors)),
			statsLabelStyle.Render("Decode:"), errorStyle.Render(fmt.Sprintf("%d", c.DecodeErrors)),
			statsLabelStyle.Render("Rejected:"), warningStyle.Render(fmt.Sprintf("%d", c.Rejected)),
		))
	}

	errRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
	if c.ErrorRate > 0 {
		errRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
	}
	content.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", c.PacketRate)),
		statsLabelStyle.Render("Error Rate:"), errRate,
	))
	return boxStyle.Render(content.String())
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

// linkStatsModel is the link_stats TUI
type linkStatsModel struct {
	connInfo     string
	showAll      bool
	stats        *rigproto.Statistics
	log          eventLog
	synchronized bool
	invalidBytes int
	lastSample   uint64
	switchOn     bool
	width        int
	height       int
	quitting     bool
}

func initialLinkStatsModel(connInfo string, showAll bool) linkStatsModel {
	return linkStatsModel{
		connInfo: connInfo,
		showAll:  showAll,
		stats:    rigproto.NewStatistics(),
		log:      eventLog{max: 100},
		width:    80,
		height:   24,
	}
}

func (m linkStatsModel) Init() tea.Cmd {
	return tickCmd()
}

func (m linkStatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.log.add(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.log.add("Synchronized", false)
		}

	case linkDataMsg:
		if msg.decodeErr != nil {
			m.stats.Update(msg.decodeErr, nil)
			m.log.add(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
			break
		}
		m.stats.Update(nil, msg.validationErrors)
		msgType := rigproto.FormatMessageType(msg.packet.Type())
		if len(msg.validationErrors) > 0 {
			for _, err := range msg.validationErrors {
				m.log.add(fmt.Sprintf("%s: %s", msgType, err.Message), true)
			}
			break
		}
		m.track(msg.packet)
		if m.showAll {
			m.log.add(fmt.Sprintf("%s (valid)", msgType), false)
		}
	}

	return m, nil
}

// track keeps the latest sensor values for the summary box
func (m *linkStatsModel) track(p *rigproto.Packet) {
	switch p.Type() {
	case rigproto.MsgAltitudeSample:
		m.lastSample, _ = rigproto.GetMapUint(p.PayloadMap(), 0)
	case rigproto.MsgSwitchLevel:
		m.switchOn, _ = rigproto.GetMapBool(p.PayloadMap(), 0)
	case rigproto.MsgButtonPressed:
		b, _ := rigproto.GetMapUint(p.PayloadMap(), 0)
		m.log.add("Button "+rigproto.FormatButton(rigproto.Button(b)), false)
	case rigproto.MsgReferenceCrossing:
		m.log.add("Reference crossing", false)
	}
}

func (m linkStatsModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("HELIRIG - LINK STATS"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	} else {
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(renderStats(m.stats.Counts()))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Altitude ADC:"), statsValueStyle.Render(fmt.Sprintf("%d", m.lastSample)),
		statsLabelStyle.Render("Switch:"), statsValueStyle.Render(onOff(m.switchOn)),
	)))
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(m.log.render(m.height-17, m.width))

	return s.String()
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
