// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Helirig - Helicopter Rig Controller
//
// Closed-loop altitude and yaw control for a two-rotor heli rig, talking
// to the rig's bridge board over serial or WebSocket.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/helirig/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
