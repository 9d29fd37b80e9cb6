// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/helirig/pkg/rigproto"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var linkStatsCmd = &cobra.Command{
	Use:   "link_stats",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track frame errors, malformed data and out-of-range values with statistics.

This command validates each frame from the bridge and detects:
  - CRC errors and decode failures
  - Missing payload fields and unknown message types
  - Out-of-range values (ADC samples above 4095, unknown buttons)
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Decode errors before the first valid frame are counted as sync noise rather
than reported.`,
	RunE: runLinkStats,
}

func init() {
	rootCmd.AddCommand(linkStatsCmd)
	linkStatsCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	linkStatsCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	linkStatsCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// frameScanner decodes a byte stream and reports what it finds. Decode
// errors before the first frame only count towards invalidBytes.
type frameScanner struct {
	decoder      *rigproto.Decoder
	synchronized bool
	invalidBytes int

	// onSync runs once, before the first frame is reported
	onSync  func(invalidBytes int)
	onFrame func(linkDataMsg)
}

func newFrameScanner(onSync func(int), onFrame func(linkDataMsg)) *frameScanner {
	return &frameScanner{
		decoder: rigproto.NewDecoder(),
		onSync:  onSync,
		onFrame: onFrame,
	}
}

func (s *frameScanner) feed(data []byte) {
	for _, b := range data {
		packet, decodeErr := s.decoder.DecodeByte(b)

		if decodeErr != nil {
			if s.synchronized {
				s.onFrame(linkDataMsg{decodeErr: decodeErr})
			} else {
				s.invalidBytes++
			}
			continue
		}
		if packet == nil {
			continue
		}

		if !s.synchronized {
			s.synchronized = true
			s.onSync(s.invalidBytes)
		}
		s.onFrame(linkDataMsg{
			packet:           packet,
			validationErrors: rigproto.ValidatePacket(packet),
		})
	}
}

// readChunks copies reads from r onto a channel until r fails.
func readChunks(r io.Reader) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte, 10)
	errc := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				chunks <- data
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()
	return chunks, errc
}

func runLinkStats(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(ctx, conn, connInfo)
}

// runTUIMode runs link_stats under the terminal UI
func runTUIMode(conn io.Reader, connInfo string) error {
	p := tea.NewProgram(initialLinkStatsModel(connInfo, showAll))

	scanner := newFrameScanner(
		func(n int) { p.Send(syncMsg{invalidBytes: n}) },
		func(msg linkDataMsg) { p.Send(msg) },
	)

	go func() {
		chunks, errc := readChunks(conn)
		for {
			select {
			case data := <-chunks:
				scanner.feed(data)
			case err := <-errc:
				p.Send(logMsg(logEntry{timestamp: time.Now(), message: fmt.Sprintf("Read error: %v", err), isError: true}))
				return
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode prints errors and periodic statistics to stdout
func runTextMode(ctx context.Context, conn io.Reader, connInfo string) error {
	fmt.Printf("Helirig - Link Stats\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := rigproto.NewStatistics()
	scanner := newFrameScanner(
		func(n int) { printSync(os.Stdout, n) },
		func(msg linkDataMsg) {
			stats.Update(msg.decodeErr, msg.validationErrors)
			printFrame(os.Stdout, msg, showAll)
		},
	)

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	chunks, errc := readChunks(conn)
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n%s\n", stats.String())
			return nil

		case err := <-errc:
			fmt.Printf("\n%s\n", stats.String())
			return fmt.Errorf("read error: %w", err)

		case data := <-chunks:
			scanner.feed(data)

		case <-statsTicker.C:
			stats.CalculateRates()
			fmt.Printf("\n%s\n\n", stats.String())
		}
	}
}

func printSync(w io.Writer, invalidBytes int) {
	if invalidBytes > 0 {
		fmt.Fprintf(w, "[SYNC] Synchronized after skipping %d invalid bytes\n\n", invalidBytes)
	} else {
		fmt.Fprintf(w, "[SYNC] Synchronized\n\n")
	}
}

// printFrame prints one scanner result in highlighted text form
func printFrame(w io.Writer, msg linkDataMsg, all bool) {
	timestamp := time.Now().Format("15:04:05.000")

	if msg.decodeErr != nil {
		fmt.Fprintf(w, "[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, msg.decodeErr)
		fmt.Fprintf(w, "  >>> DECODE FAILED <<<\n\n")
		return
	}

	packet := msg.packet
	timestamp = packet.Timestamp().Format("15:04:05.000")

	if len(msg.validationErrors) > 0 {
		msgType := rigproto.FormatMessageType(packet.Type())
		fmt.Fprintf(w, "[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, msgType, packet.Type())
		fmt.Fprintf(w, "  CRC: \033[1;32mOK\033[0m\n")
		for i, err := range msg.validationErrors {
			switch err.Type {
			case rigproto.AnomalyOutOfRange:
				fmt.Fprintf(w, "  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			case rigproto.AnomalyParseError, rigproto.AnomalyMissingField:
				fmt.Fprintf(w, "  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			default:
				fmt.Fprintf(w, "  Issue %d: %s\n", i+1, err.Message)
			}
		}
		fmt.Fprintf(w, "  >>> FRAME REJECTED <<<\n\n")
		return
	}

	switch {
	case packet.Type() == rigproto.MsgPingResponse:
		// Always print ping responses
		uptime, _ := rigproto.GetMapUint(packet.PayloadMap(), 0)
		fmt.Fprintf(w, "[%s] \033[1;32mPING_RESPONSE:\033[0m Bridge uptime: %s\n\n", timestamp, formatUptime(uptime))
	case packet.Type() == rigproto.MsgErrorInvalidCmd:
		fmt.Fprint(w, rigproto.FormatPacket(packet))
	case all:
		fmt.Fprint(w, rigproto.FormatPacket(packet))
	}
}
