// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rigproto

// Builder functions create Packet structs ready for encoding.
// They pin the payload keys each message type uses on the wire.

// NewDutyCommand creates a DUTY_COMMAND packet (0x20).
// Duty is a whole percentage; the bridge maps it onto the PWM period.
func NewDutyCommand(channel Channel, duty uint16) *Packet {
	return NewPacketWithPayload(MsgDutyCommand, map[int]interface{}{
		0: uint64(channel),
		1: uint64(duty),
	})
}

// DisplayFrame mirrors the controller's display record plus the active mode.
type DisplayFrame struct {
	YawSetpoint    int
	YawActual      int
	HeightSetpoint int
	HeightPercent  int
	MainDuty       int
	TailDuty       int
	Mode           string
}

// NewDisplayFrame creates a DISPLAY_FRAME packet (0x21).
func NewDisplayFrame(f DisplayFrame) *Packet {
	return NewPacketWithPayload(MsgDisplayFrame, map[int]interface{}{
		0: int64(f.YawSetpoint),
		1: int64(f.YawActual),
		2: int64(f.HeightSetpoint),
		3: int64(f.HeightPercent),
		4: int64(f.MainDuty),
		5: int64(f.TailDuty),
		6: f.Mode,
	})
}

// NewPingRequest creates a PING_REQUEST packet (0x2F).
// The bridge answers with PING_RESPONSE containing its uptime.
func NewPingRequest() *Packet {
	return NewPacketWithPayload(MsgPingRequest, nil)
}

// NewEncoderEdge creates an ENCODER_EDGE packet (0x30) carrying both channel
// levels sampled in the edge interrupt.
func NewEncoderEdge(a, b bool) *Packet {
	return NewPacketWithPayload(MsgEncoderEdge, map[int]interface{}{
		0: a,
		1: b,
	})
}

// NewReferenceCrossing creates a REFERENCE_CROSSING packet (0x31).
func NewReferenceCrossing() *Packet {
	return NewPacketWithPayload(MsgReferenceCrossing, nil)
}

// NewAltitudeSample creates an ALTITUDE_SAMPLE packet (0x32).
func NewAltitudeSample(raw uint32) *Packet {
	return NewPacketWithPayload(MsgAltitudeSample, map[int]interface{}{
		0: uint64(raw),
	})
}

// NewSwitchLevel creates a SWITCH_LEVEL packet (0x33).
func NewSwitchLevel(on bool) *Packet {
	return NewPacketWithPayload(MsgSwitchLevel, map[int]interface{}{
		0: on,
	})
}

// NewButtonPressed creates a BUTTON_PRESSED packet (0x34).
func NewButtonPressed(button Button) *Packet {
	return NewPacketWithPayload(MsgButtonPressed, map[int]interface{}{
		0: uint64(button),
	})
}

// NewPingResponse creates a PING_RESPONSE packet (0x3F).
func NewPingResponse(uptimeMs uint64) *Packet {
	return NewPacketWithPayload(MsgPingResponse, map[int]interface{}{
		0: uptimeMs,
	})
}

// NewErrorInvalidCmd creates an ERROR_INVALID_CMD packet (0xE0).
func NewErrorInvalidCmd(offending uint8) *Packet {
	return NewPacketWithPayload(MsgErrorInvalidCmd, map[int]interface{}{
		0: uint64(offending),
	})
}

// ParseDisplayFrame extracts a DisplayFrame from a DISPLAY_FRAME packet.
func ParseDisplayFrame(p *Packet) (DisplayFrame, bool) {
	if p.Type() != MsgDisplayFrame {
		return DisplayFrame{}, false
	}
	m := p.PayloadMap()
	var f DisplayFrame
	fields := []*int{&f.YawSetpoint, &f.YawActual, &f.HeightSetpoint, &f.HeightPercent, &f.MainDuty, &f.TailDuty}
	for key, dst := range fields {
		v, ok := GetMapInt(m, key)
		if !ok {
			return DisplayFrame{}, false
		}
		*dst = int(v)
	}
	f.Mode, _ = GetMapString(m, 6)
	return f, true
}
