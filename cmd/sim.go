// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Thermoquad/helirig/pkg/altitude"
	"github.com/Thermoquad/helirig/pkg/control"
	"github.com/Thermoquad/helirig/pkg/rigproto"
	"github.com/Thermoquad/helirig/pkg/sim"
	"github.com/Thermoquad/helirig/pkg/yaw"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	simTUI        bool
	simSwitchOn   bool
	simNoise      int
	simSampleRate float64
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Fly a simulated rig",
	Long: `Run the control loop against a simulated rig and bridge board.

The simulator speaks the same link protocol as the bridge, so everything from
the framing up is exercised exactly as on hardware.

Without --tui, single-letter commands on stdin work the rig's controls:
  s  toggle the mode switch
  u  height up      d  height down
  l  yaw left       r  yaw right
With --tui the dashboard takes the same keys (arrows for the buttons).`,
	RunE: runSim,
}

func init() {
	rootCmd.AddCommand(simCmd)
	addControlFlags(simCmd)
	addPlantFlags(simCmd)
	simCmd.Flags().BoolVar(&simTUI, "tui", false, "Show the live dashboard")
}

func addPlantFlags(cmd *cobra.Command) {
	defaults := sim.DefaultParams()
	cmd.Flags().BoolVar(&simSwitchOn, "switch-on", false, "Start with the mode switch up")
	cmd.Flags().IntVar(&simNoise, "noise", defaults.Noise, "Peak altitude ADC noise in counts")
	cmd.Flags().Float64Var(&simSampleRate, "sample-rate", defaults.SampleRate, "Altitude samples per second")
}

func plantParams() (sim.Params, error) {
	p := sim.DefaultParams()
	if simSampleRate <= 0 {
		return p, fmt.Errorf("--sample-rate must be positive, got %v", simSampleRate)
	}
	if simNoise < 0 {
		return p, fmt.Errorf("--noise must not be negative, got %d", simNoise)
	}
	p.Noise = simNoise
	p.SampleRate = simSampleRate
	return p, nil
}

func runSim(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := controlConfig()
	if err != nil {
		return err
	}
	params, err := plantParams()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hostConn, rigConn := net.Pipe()
	simRig := sim.NewRig(rigConn, sim.NewPlant(params), logger)

	// The simulated encoder rests with both channels low
	yawEst := yaw.NewEstimator(sim.LevelsAt(0).B)
	ring := altitude.NewRing(altitude.RingSize)
	cm := &connectionManager{
		logger: logger,
		yaw:    yawEst,
		ring:   ring,
	}
	link := cm.start(hostConn, "Simulator")

	if !simTUI {
		go readOperatorCommands(os.Stdin, simRig, logger)
	}

	return runController(ctx, controllerSetup{
		logger:   logger,
		cfg:      cfg,
		title:    "HELIRIG - SIM",
		connInfo: "Simulator",
		useTUI:   simTUI,
		rig: control.Rig{
			Yaw:       yawEst,
			Altitude:  altitude.NewEstimator(ring),
			Switch:    cm,
			Buttons:   cm,
			Actuators: cm,
		},
		screen:   cm,
		stats:    link.Stats,
		operator: simRig,
		background: func(ctx context.Context, notify func(tea.Msg)) {
			runErr := make(chan error, 1)
			go func() {
				runErr <- simRig.Run(ctx)
			}()
			if simSwitchOn {
				if err := simRig.SetSwitch(true); err != nil {
					logger.WithError(err).Warn("Failed to set switch")
				}
			}
			if err := <-runErr; err != nil {
				logger.WithError(err).Error("Simulator stopped")
			}
			rigConn.Close()
			link.Close()
		},
	})
}

// readOperatorCommands applies the single-letter operator commands read from
// r to op until r is exhausted.
func readOperatorCommands(r io.Reader, op operator, logger *logrus.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		for _, word := range strings.Fields(scanner.Text()) {
			if err := applyOperatorCommand(op, word); err != nil {
				logger.WithError(err).WithField("command", word).Warn("Operator command failed")
			}
		}
	}
}

func applyOperatorCommand(op operator, cmd string) error {
	switch strings.ToLower(cmd) {
	case "s", "switch":
		return op.ToggleSwitch()
	case "u", "up":
		return op.Press(rigproto.ButtonUp)
	case "d", "down":
		return op.Press(rigproto.ButtonDown)
	case "l", "left":
		return op.Press(rigproto.ButtonLeft)
	case "r", "right":
		return op.Press(rigproto.ButtonRight)
	}
	return fmt.Errorf("unknown command %q", cmd)
}
