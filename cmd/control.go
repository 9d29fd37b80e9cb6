// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/helirig/pkg/altitude"
	"github.com/Thermoquad/helirig/pkg/control"
	"github.com/Thermoquad/helirig/pkg/display"
	"github.com/Thermoquad/helirig/pkg/flightmode"
	"github.com/Thermoquad/helirig/pkg/rig"
	"github.com/Thermoquad/helirig/pkg/rigproto"
	"github.com/Thermoquad/helirig/pkg/yaw"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runTUI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fly the rig through its bridge board",
	Long: `Connect to the rig's bridge board and run the control loop.

The loop starts in Landed and searches for the yaw reference before it will
fly. Flip the rig's mode switch up to take off; the up/down buttons move the
height setpoint in 10% steps and left/right turn the yaw setpoint by 15
degrees. Switching down lands the rig, returning yaw to the origin first.

Status records alternate between the rig's screen and this terminal. With
--tui a live dashboard replaces the terminal output.

Lost connections are retried with exponential backoff (1s up to 30s); the
controller state survives reconnects.

Supports both serial and WebSocket connections.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addControlFlags(runCmd)
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the live dashboard")
}

// connectionManager keeps a Link to the bridge alive and presents it to the
// control loop as a single rig that survives reconnects.
type connectionManager struct {
	logger *logrus.Logger
	yaw    *yaw.Estimator
	ring   *altitude.Ring

	mu       sync.RWMutex
	link     *rig.Link
	connInfo string

	// notify receives connection events for the dashboard
	notify func(tea.Msg)
}

func (cm *connectionManager) getLink() *rig.Link {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.link
}

func (cm *connectionManager) setLink(link *rig.Link, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.link = link
	cm.connInfo = connInfo
}

func (cm *connectionManager) send(msg tea.Msg) {
	if cm.notify != nil {
		cm.notify(msg)
	}
}

// start wraps conn in a Link and begins reading.
func (cm *connectionManager) start(conn rig.Conn, connInfo string) *rig.Link {
	link := rig.NewLink(conn, cm.yaw, cm.ring, cm.logger)
	link.Start()
	cm.setLink(link, connInfo)
	return link
}

// superviseLoop watches the current link and reconnects when it drops.
func (cm *connectionManager) superviseLoop(ctx context.Context) {
	for {
		link := cm.getLink()
		select {
		case <-ctx.Done():
			link.Close()
			return
		case <-link.Done():
		}

		cm.logger.WithError(link.Err()).Warn("Connection lost")
		cm.send(connectionLostMsg{})

		if !cm.reconnect(ctx) {
			return
		}
	}
}

// reconnect attempts to reconnect with exponential backoff.
// Returns false if shutdown was requested during reconnection.
func (cm *connectionManager) reconnect(ctx context.Context) bool {
	cm.getLink().Close()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection(ctx)
		if err == nil {
			cm.start(conn, connInfo)
			cm.logger.WithField("connection", connInfo).Info("Reconnected")
			cm.send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		cm.logger.WithError(err).WithField("retry_in", backoff*2).Debug("Reconnect failed")

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Commands issued while disconnected are dropped; the loop keeps running
// so the controller state is intact when the link returns.

func (cm *connectionManager) SetMainDuty(percent uint16) error {
	return cm.forward(func(l *rig.Link) error { return l.SetMainDuty(percent) })
}

func (cm *connectionManager) SetTailDuty(percent uint16) error {
	return cm.forward(func(l *rig.Link) error { return l.SetTailDuty(percent) })
}

func (cm *connectionManager) Display(r display.Record) error {
	return cm.forward(func(l *rig.Link) error { return l.Display(r) })
}

func (cm *connectionManager) SwitchLevel() bool {
	return cm.getLink().SwitchLevel()
}

func (cm *connectionManager) TakePresses() flightmode.Presses {
	return cm.getLink().TakePresses()
}

func (cm *connectionManager) Stats() *rigproto.Statistics {
	return cm.getLink().Stats()
}

func (cm *connectionManager) forward(fn func(*rig.Link) error) error {
	link := cm.getLink()
	select {
	case <-link.Done():
		return nil
	default:
	}
	if err := fn(link); err != nil {
		cm.logger.WithError(err).Debug("Write to bridge failed")
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := controlConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}

	// The bridge does not report the resting B level, so the first edge may
	// miscount by one; the reference crossing zeroes the count before flight.
	yawEst := yaw.NewEstimator(false)
	ring := altitude.NewRing(altitude.RingSize)

	cm := &connectionManager{
		logger: logger,
		yaw:    yawEst,
		ring:   ring,
	}
	cm.start(conn, connInfo)

	logger.WithField("connection", connInfo).Info("Connected to bridge")

	return runController(ctx, controllerSetup{
		logger:   logger,
		cfg:      cfg,
		title:    "HELIRIG - RUN",
		connInfo: connInfo,
		useTUI:   runTUI,
		rig: control.Rig{
			Yaw:       yawEst,
			Altitude:  altitude.NewEstimator(ring),
			Switch:    cm,
			Buttons:   cm,
			Actuators: cm,
		},
		screen: cm,
		stats:  cm.Stats,
		background: func(ctx context.Context, notify func(tea.Msg)) {
			cm.notify = notify
			cm.superviseLoop(ctx)
		},
	})
}

// controllerSetup is what run and sim hand to runController.
type controllerSetup struct {
	logger   *logrus.Logger
	cfg      control.Config
	title    string
	connInfo string
	useTUI   bool
	rig      control.Rig
	// screen receives every other status record
	screen display.Sink
	stats  func() *rigproto.Statistics
	// operator lets the dashboard work the switch and buttons
	operator operator
	// background runs alongside the loop until ctx is done
	background func(ctx context.Context, notify func(tea.Msg))
}

// runController runs the control loop, either with terminal status output or
// under the dashboard, until ctx is cancelled or the dashboard quits.
func runController(ctx context.Context, s controllerSetup) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var forward *logForwarder
	if s.useTUI {
		forward = newLogForwarder()
		s.logger.AddHook(forward)
		s.logger.SetOutput(io.Discard)
		s.rig.Display = display.NewAlternator(s.screen, nil)
	} else {
		s.rig.Display = display.NewAlternator(s.screen, display.BlockWriter{W: os.Stdout})
	}

	loop, err := control.New(s.cfg, s.rig, s.logger)
	if err != nil {
		return err
	}

	var p *tea.Program
	var notify func(tea.Msg)
	if s.useTUI {
		p = tea.NewProgram(initialDashboardModel(s.title, s.connInfo, s.stats, s.operator), tea.WithAltScreen())
		notify = p.Send
		go forward.run(ctx, p)
		go forwardSnapshots(ctx, loop.Subscribe(), p)
	}

	var wg sync.WaitGroup
	if s.background != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.background(ctx, notify)
		}()
	}

	loopDone := make(chan error, 1)
	go func() {
		err := loop.Run(ctx)
		loopDone <- err
		if err != nil && p != nil {
			p.Quit()
		}
	}()

	var tuiErr error
	if p != nil {
		if _, err := p.Run(); err != nil {
			tuiErr = fmt.Errorf("TUI error: %w", err)
		}
		cancel()
	}

	err = <-loopDone
	cancel()
	wg.Wait()

	if tuiErr != nil {
		return tuiErr
	}
	return err
}

func forwardSnapshots(ctx context.Context, snaps <-chan control.Snapshot, p *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-snaps:
			p.Send(snapshotMsg(s))
		}
	}
}
