// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rigproto

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, FormatMessageType(p.Type()), p.Type(), p.length)
	if p.PayloadMap() != nil {
		result += FormatPayloadMap(p.Type(), p.PayloadMap())
	}
	return result
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgDutyCommand:
		return "DUTY_COMMAND"
	case MsgDisplayFrame:
		return "DISPLAY_FRAME"
	case MsgPingRequest:
		return "PING_REQUEST"
	case MsgEncoderEdge:
		return "ENCODER_EDGE"
	case MsgReferenceCrossing:
		return "REFERENCE_CROSSING"
	case MsgAltitudeSample:
		return "ALTITUDE_SAMPLE"
	case MsgSwitchLevel:
		return "SWITCH_LEVEL"
	case MsgButtonPressed:
		return "BUTTON_PRESSED"
	case MsgPingResponse:
		return "PING_RESPONSE"
	case MsgErrorInvalidCmd:
		return "ERROR_INVALID_CMD"
	default:
		return "UNKNOWN"
	}
}

// FormatButton returns the name of a button value
func FormatButton(b Button) string {
	switch b {
	case ButtonUp:
		return "UP"
	case ButtonDown:
		return "DOWN"
	case ButtonLeft:
		return "LEFT"
	case ButtonRight:
		return "RIGHT"
	default:
		return fmt.Sprintf("BUTTON(%d)", int(b))
	}
}

// FormatPayloadMap formats a decoded payload map for the given message type
func FormatPayloadMap(msgType uint8, m map[int]interface{}) string {
	var s strings.Builder

	switch msgType {
	case MsgDutyCommand:
		channel, _ := GetMapUint(m, 0)
		duty, _ := GetMapUint(m, 1)
		name := "MAIN"
		if Channel(channel) == ChannelTail {
			name = "TAIL"
		}
		fmt.Fprintf(&s, "  Channel: %s, Duty: %d%%\n", name, duty)

	case MsgEncoderEdge:
		a, _ := GetMapBool(m, 0)
		b, _ := GetMapBool(m, 1)
		fmt.Fprintf(&s, "  A: %t, B: %t\n", a, b)

	case MsgAltitudeSample:
		raw, _ := GetMapUint(m, 0)
		fmt.Fprintf(&s, "  Raw: %d\n", raw)

	case MsgSwitchLevel:
		on, _ := GetMapBool(m, 0)
		fmt.Fprintf(&s, "  Switch: %t\n", on)

	case MsgButtonPressed:
		b, _ := GetMapUint(m, 0)
		fmt.Fprintf(&s, "  Button: %s\n", FormatButton(Button(b)))

	case MsgPingResponse:
		uptime, _ := GetMapUint(m, 0)
		fmt.Fprintf(&s, "  Uptime: %d ms\n", uptime)

	default:
		keys := make([]int, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		for _, k := range keys {
			fmt.Fprintf(&s, "  [%d]: %v\n", k, m[k])
		}
	}

	return s.String()
}
