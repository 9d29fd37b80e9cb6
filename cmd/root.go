// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/helirig/pkg/control"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Logging flags
	logLevel string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "helirig",
	Short: "Helicopter rig controller",
	Long: `Helirig - closed-loop altitude and yaw controller for the two-rotor heli rig.

The controller talks to the rig's bridge board, which forwards encoder edges,
altitude samples, the mode switch and button presses, and drives the main and
tail rotors from the duty commands it receives. A built-in simulator stands in
for the rig when no hardware is attached.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the HELIRIG_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging (same as --log-level debug)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the command's logger from the logging flags.
func newLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	if verbose && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	return logger, nil
}

// Control loop flags shared by run and sim
var (
	loopPeriod        = control.DefaultPeriod
	loopElapsed       = control.DefaultElapsed
	loopStaleTicks    = control.DefaultStaleTicks
	loopIntegralLimit float64
	loopHoldFlying    bool
	gainsFile         string
)

func addControlFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&loopPeriod, "period", control.DefaultPeriod, "Control loop period")
	cmd.Flags().Float64Var(&loopElapsed, "elapsed", control.DefaultElapsed, "Nominal PID time step")
	cmd.Flags().IntVar(&loopStaleTicks, "stale-ticks", control.DefaultStaleTicks, "Ticks without altitude samples before holding output (0 disables)")
	cmd.Flags().Float64Var(&loopIntegralLimit, "integral-limit", 0, "Bound on the PID integral term (0 disables)")
	cmd.Flags().BoolVar(&loopHoldFlying, "hold-flying", false, "Stay in Flying while the switch is on")
	cmd.Flags().StringVar(&gainsFile, "gains", "", "YAML file with yaw/altitude gains")
}

// controlConfig assembles the loop configuration from the flags.
func controlConfig() (control.Config, error) {
	cfg := control.DefaultConfig()
	cfg.Period = loopPeriod
	cfg.Elapsed = loopElapsed
	cfg.StaleTicks = loopStaleTicks
	cfg.IntegralLimit = loopIntegralLimit
	cfg.HoldFlying = loopHoldFlying

	if gainsFile != "" {
		if err := cfg.LoadGains(gainsFile); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
