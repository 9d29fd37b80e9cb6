// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/helirig/pkg/rigproto"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid frame",
	Long: `Wait for a valid link frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
frame from the bridge. It ignores invalid bytes and waits for a complete,
valid frame (passing CRC check).

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking the bridge is powered and streaming before flying.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

// packetResult is the outcome of waitForPacket.
type packetResult struct {
	packet       *rigproto.Packet
	invalidBytes int
	err          error
}

// waitForPacket reads r until one frame decodes. The returned channel
// receives exactly one result.
func waitForPacket(r io.Reader) <-chan packetResult {
	result := make(chan packetResult, 1)

	go func() {
		decoder := rigproto.NewDecoder()
		buf := make([]byte, 128)
		invalidBytes := 0
		for {
			n, err := r.Read(buf)
			for i := 0; i < n; i++ {
				packet, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					// Ignore decode errors, just count invalid bytes
					invalidBytes++
					continue
				}
				if packet != nil {
					result <- packetResult{packet: packet, invalidBytes: invalidBytes}
					return
				}
			}
			if err != nil {
				result <- packetResult{err: err}
				return
			}
		}
	}()

	return result
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Helirig - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	select {
	case res := <-waitForPacket(conn):
		if res.err != nil {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", res.err)
			os.Exit(2)
		}
		if res.invalidBytes > 0 {
			fmt.Printf("(skipped %d invalid bytes before sync)\n", res.invalidBytes)
		}
		packet := res.packet
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", rigproto.FormatMessageType(packet.Type()), packet.Type())
		fmt.Printf("  Length: %d bytes\n", packet.Length())
		fmt.Printf("  CRC: 0x%04X\n", packet.CRC())
		os.Exit(0)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
