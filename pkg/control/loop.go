// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package control runs the rig's fixed-period control loop.
//
// Each tick reads the estimators, steps the flight-mode machine, renders the
// status record, runs the PID engine and commands the rotors. The loop owns
// all controller state; only the estimators are shared with the link reader.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/helirig/pkg/altitude"
	"github.com/Thermoquad/helirig/pkg/display"
	"github.com/Thermoquad/helirig/pkg/flightmode"
	"github.com/Thermoquad/helirig/pkg/pid"
	"github.com/Thermoquad/helirig/pkg/yaw"
	"github.com/sirupsen/logrus"
)

// Actuators drives the two rotors. Duty is in whole percent.
type Actuators interface {
	SetMainDuty(percent uint16) error
	SetTailDuty(percent uint16) error
}

// Switch reports the level of the mode switch.
type Switch interface {
	SwitchLevel() bool
}

// Buttons returns the setpoint buttons pressed since the previous call.
type Buttons interface {
	TakePresses() flightmode.Presses
}

// Rig bundles everything the loop reads from and writes to.
type Rig struct {
	Yaw       *yaw.Estimator
	Altitude  *altitude.Estimator
	Switch    Switch
	Buttons   Buttons
	Actuators Actuators
	Display   display.Sink
}

// Snapshot is the loop state published after every tick.
type Snapshot struct {
	Tick      uint64
	Time      time.Time
	Mode      flightmode.Mode
	SwitchOn  bool
	Setpoints flightmode.Setpoints
	Yaw       yaw.Reading
	Altitude  altitude.Reading
	Record    display.Record
	Output    pid.Output
	// Emitted is false when the tick sent nothing to the actuators.
	Emitted bool
	Stale   bool
}

// Loop is the controller context.
type Loop struct {
	cfg    Config
	rig    Rig
	logger *logrus.Logger
	engine *pid.Engine
	rules  flightmode.Rules

	state     flightmode.State
	shown     pid.Output
	last      pid.Output
	hasLast   bool
	tick      uint64
	staleRun  int
	staleWarn bool

	mu          sync.Mutex
	subscribers []chan Snapshot
}

// New creates a loop. Switch, Buttons and Display may be nil.
func New(cfg Config, rig Rig, logger *logrus.Logger) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rig.Yaw == nil || rig.Altitude == nil || rig.Actuators == nil {
		return nil, fmt.Errorf("%w: yaw, altitude and actuators are required", ErrInvalidConfig)
	}
	if rig.Display == nil {
		rig.Display = display.Discard
	}
	if logger == nil {
		logger = logrus.New()
	}

	engine := pid.NewEngine(cfg.YawGains, cfg.AltitudeGains)
	engine.SetIntegralLimit(cfg.IntegralLimit)

	return &Loop{
		cfg:    cfg,
		rig:    rig,
		logger: logger,
		engine: engine,
		rules:  flightmode.Rules{HoldFlying: cfg.HoldFlying},
		state:  flightmode.Initial(),
	}, nil
}

// State returns the current flight-mode state.
func (l *Loop) State() flightmode.State {
	return l.state
}

// Subscribe returns a channel receiving a Snapshot after each tick.
// Snapshots are dropped while the channel is full.
func (l *Loop) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 16)
	l.mu.Lock()
	l.subscribers = append(l.subscribers, ch)
	l.mu.Unlock()
	return ch
}

func (l *Loop) publish(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}

// Run ticks at the configured period until ctx is cancelled. Actuator
// errors end the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.WithFields(logrus.Fields{
		"period":      l.cfg.Period,
		"elapsed":     l.cfg.Elapsed,
		"stale_ticks": l.cfg.StaleTicks,
		"hold_flying": l.cfg.HoldFlying,
	}).Info("Control loop started")

	ticker := time.NewTicker(l.cfg.Period)
	defer ticker.Stop()

	for {
		if _, err := l.Tick(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			l.logger.Info("Control loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one control cycle.
func (l *Loop) Tick() (Snapshot, error) {
	l.tick++

	if l.rig.Yaw.TakeSetpointReset() {
		l.state.Setpoints.Yaw = 0
		l.logger.Info("Yaw reference found")
	}

	if l.rig.Switch != nil && l.rig.Switch.SwitchLevel() != l.state.SwitchOn {
		l.state.SwitchOn = !l.state.SwitchOn
	}

	var presses flightmode.Presses
	if l.rig.Buttons != nil {
		presses = l.rig.Buttons.TakePresses()
	}

	previous := l.state.Mode
	l.state = l.rules.Step(l.state, l.rig.Yaw.Read().ReferenceFound, presses)
	if l.state.Mode != previous {
		l.logger.WithFields(logrus.Fields{
			"from": previous.String(),
			"to":   l.state.Mode.String(),
		}).Info("Flight mode changed")
	}
	if l.state.ClearDuty {
		l.shown = pid.Output{}
	}

	alt := l.rig.Altitude.Update()
	yr := l.rig.Yaw.Read()
	degrees := yr.Degrees()
	heightPct := alt.Percent()

	record := display.Record{
		YawSetpoint:    l.state.Setpoints.Yaw,
		YawActual:      int(degrees),
		HeightSetpoint: l.state.Setpoints.Height,
		HeightPercent:  heightPct,
		MainDuty:       int(l.shown.MainDuty),
		TailDuty:       int(l.shown.TailDuty),
		Mode:           l.state.Mode.String(),
	}
	if err := l.rig.Display.Display(record); err != nil {
		l.logger.WithError(err).Warn("Display update failed")
	}

	snap := Snapshot{
		Tick:      l.tick,
		Time:      time.Now(),
		Mode:      l.state.Mode,
		SwitchOn:  l.state.SwitchOn,
		Setpoints: l.state.Setpoints,
		Yaw:       yr,
		Altitude:  alt,
		Record:    record,
	}

	stale := l.trackStale(alt)
	snap.Stale = stale

	var out pid.Output
	switch {
	case !alt.Captured:
		l.logger.WithField("tick", l.tick).Debug("Altitude baseline not captured, output suppressed")
		l.publish(snap)
		return snap, nil
	case stale:
		if !l.hasLast {
			l.publish(snap)
			return snap, nil
		}
		out = l.last
	default:
		out = l.engine.Step(l.cfg.Elapsed, pid.Inputs{
			YawSetpoint:    l.state.Setpoints.Yaw,
			YawDegrees:     degrees,
			HeightSetpoint: l.state.Setpoints.Height,
			HeightPercent:  heightPct,
		})
	}

	if err := l.emit(out); err != nil {
		l.publish(snap)
		return snap, err
	}
	l.shown = out
	l.last = out
	l.hasLast = true

	snap.Output = out
	snap.Emitted = true

	l.logger.WithFields(logrus.Fields{
		"tick":     l.tick,
		"mode":     l.state.Mode.String(),
		"yaw":      degrees,
		"height":   heightPct,
		"main":     out.MainDuty,
		"tail":     out.TailDuty,
		"fresh":    alt.Fresh,
		"baseline": alt.Baseline,
	}).Debug("Tick")

	l.publish(snap)
	return snap, nil
}

// trackStale counts consecutive ticks without a new sample and reports
// whether the output should be held.
func (l *Loop) trackStale(alt altitude.Reading) bool {
	if alt.Fresh > 0 {
		if l.staleWarn {
			l.logger.WithField("ticks", l.staleRun).Info("Altitude samples resumed")
		}
		l.staleRun = 0
		l.staleWarn = false
		return false
	}

	l.staleRun++
	if l.cfg.StaleTicks == 0 || l.staleRun < l.cfg.StaleTicks {
		return false
	}
	if !l.staleWarn {
		l.logger.WithFields(logrus.Fields{
			"ticks": l.staleRun,
			"main":  l.last.MainDuty,
			"tail":  l.last.TailDuty,
		}).Warn("No altitude samples, holding last output")
		l.staleWarn = true
	}
	return true
}

func (l *Loop) emit(out pid.Output) error {
	if err := l.rig.Actuators.SetMainDuty(out.MainDuty); err != nil {
		return fmt.Errorf("failed to set main duty: %w", err)
	}
	if err := l.rig.Actuators.SetTailDuty(out.TailDuty); err != nil {
		return fmt.Errorf("failed to set tail duty: %w", err)
	}
	return nil
}
