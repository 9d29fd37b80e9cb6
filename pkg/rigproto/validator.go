// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rigproto

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyMissingField AnomalyType = iota
	AnomalyOutOfRange
	AnomalyUnknownType
	AnomalyParseError
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket checks payload presence and value ranges.
// Returns a slice of validation errors (empty if the packet is valid)
func ValidatePacket(p *Packet) []ValidationError {
	if err := p.ParseError(); err != nil {
		return []ValidationError{{
			Type:    AnomalyParseError,
			Message: fmt.Sprintf("CBOR parse error: %v", err),
			Details: map[string]interface{}{"error": err.Error()},
		}}
	}

	m := p.PayloadMap()
	switch p.Type() {
	case MsgEncoderEdge:
		return requireBools(p.Type(), m, 0, 1)
	case MsgSwitchLevel:
		return requireBools(p.Type(), m, 0)
	case MsgReferenceCrossing, MsgPingRequest:
		return nil
	case MsgAltitudeSample:
		return requireUintRange(p.Type(), m, 0, MaxADCValue)
	case MsgButtonPressed:
		return requireUintRange(p.Type(), m, 0, uint64(ButtonRight))
	case MsgDutyCommand:
		errs := requireUintRange(p.Type(), m, 0, uint64(ChannelTail))
		return append(errs, requireUintRange(p.Type(), m, 1, MaxDuty)...)
	case MsgPingResponse, MsgErrorInvalidCmd:
		return requireUintRange(p.Type(), m, 0, ^uint64(0))
	case MsgDisplayFrame:
		if _, ok := ParseDisplayFrame(p); !ok {
			return []ValidationError{missingField(p.Type(), -1)}
		}
		return nil
	}

	return []ValidationError{{
		Type:    AnomalyUnknownType,
		Message: fmt.Sprintf("Unknown message type 0x%02X", p.Type()),
		Details: map[string]interface{}{"type": p.Type()},
	}}
}

func missingField(msgType uint8, key int) ValidationError {
	return ValidationError{
		Type:    AnomalyMissingField,
		Message: fmt.Sprintf("%s missing field %d", FormatMessageType(msgType), key),
		Details: map[string]interface{}{"type": msgType, "key": key},
	}
}

func requireBools(msgType uint8, m map[int]interface{}, keys ...int) []ValidationError {
	var errs []ValidationError
	for _, key := range keys {
		if _, ok := GetMapBool(m, key); !ok {
			errs = append(errs, missingField(msgType, key))
		}
	}
	return errs
}

func requireUintRange(msgType uint8, m map[int]interface{}, key int, max uint64) []ValidationError {
	v, ok := GetMapUint(m, key)
	if !ok {
		return []ValidationError{missingField(msgType, key)}
	}
	if v > max {
		return []ValidationError{{
			Type:    AnomalyOutOfRange,
			Message: fmt.Sprintf("%s field %d=%d out of range (max %d)", FormatMessageType(msgType), key, v, max),
			Details: map[string]interface{}{"type": msgType, "key": key, "value": v, "max": max},
		}}
	}
	return nil
}
