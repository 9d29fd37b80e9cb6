// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rigproto implements the framed link protocol spoken between the
// helirig controller and the rig bridge board.
//
// Frames reuse the Fusain framing: a START byte, a byte-stuffed body made of a
// length byte, a CBOR payload [msg_type, payload_map] and a CRC-16-CCITT, and
// an END byte. The bridge board forwards encoder edges, reference crossings,
// ADC samples, the main switch level and button presses; the controller sends
// back actuator duty commands and display frames.
package rigproto

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Packet size limits
const (
	MaxPayloadSize = 64
	MaxPacketSize  = 1 + MaxPayloadSize + 2 // length + payload + CRC
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Message types - Commands (Controller → Rig) 0x20-0x2F
const (
	MsgDutyCommand  = 0x20
	MsgDisplayFrame = 0x21
	MsgPingRequest  = 0x2F
)

// Message types - Sensor events (Rig → Controller) 0x30-0x3F
const (
	MsgEncoderEdge       = 0x30
	MsgReferenceCrossing = 0x31
	MsgAltitudeSample    = 0x32
	MsgSwitchLevel       = 0x33
	MsgButtonPressed     = 0x34
	MsgPingResponse      = 0x3F
)

// Message types - Errors (Bidirectional) 0xE0-0xEF
const (
	MsgErrorInvalidCmd = 0xE0
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

// Channel identifies an actuator in DUTY_COMMAND
type Channel int

// Actuator channels
const (
	ChannelMain Channel = 0x00
	ChannelTail Channel = 0x01
)

// Button identifies a setpoint button in BUTTON_PRESSED
type Button int

// Button values
const (
	ButtonUp    Button = 0x00
	ButtonDown  Button = 0x01
	ButtonLeft  Button = 0x02
	ButtonRight Button = 0x03
)

// Sensor and actuator ranges enforced by the validator
const (
	MaxADCValue = 4095 // 12-bit converter
	MaxDuty     = 100
)
