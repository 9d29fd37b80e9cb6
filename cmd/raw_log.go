// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/helirig/pkg/rig"
	"github.com/Thermoquad/helirig/pkg/rigproto"
	"github.com/spf13/cobra"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display link frames as they arrive from the bridge.

Each frame is printed with timestamp, message type and decoded payload data.
Only bytes from the bridge are shown; nothing is sent to the rig.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	fmt.Printf("Helirig - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	return dumpFrames(conn, os.Stdout)
}

// dumpFrames writes every frame decoded from r to w until r fails.
// A closed connection ends the dump cleanly.
func dumpFrames(r io.Reader, w io.Writer) error {
	decoder := rigproto.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			packet, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				fmt.Fprintf(w, "[ERROR] %v\n", decodeErr)
				continue
			}
			if packet != nil {
				fmt.Fprint(w, rigproto.FormatPacket(packet))
			}
		}
		if err != nil {
			// A read error means the connection is gone
			if errors.Is(err, io.EOF) || errors.Is(err, rig.ErrConnectionClosed) {
				fmt.Fprintln(w, "Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
	}
}
