package domain

import (
	"encoding/json"
	"fmt"
)

// DeviceCommand is the single message shape exchanged with the robot
// controller in both directions.
type DeviceCommand struct {
	Response string `json:"response"`
}

func NewDeviceCommand(c Category) DeviceCommand {
	return DeviceCommand{Response: c.WireName()}
}

// Encode returns the compact JSON form, e.g. {"response":"dance"}.
func (d DeviceCommand) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding device command: %w", err)
	}
	return data, nil
}

// DecodeDeviceCommand parses an inbound payload. Non-JSON payloads and
// payloads without a string "response" field return ErrMalformedMessage.
func DecodeDeviceCommand(payload []byte) (DeviceCommand, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return DeviceCommand{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	field, ok := raw["response"]
	if !ok {
		return DeviceCommand{}, fmt.Errorf("%w: missing response field", ErrMalformedMessage)
	}

	var cmd DeviceCommand
	if err := json.Unmarshal(field, &cmd.Response); err != nil {
		return DeviceCommand{}, fmt.Errorf("%w: response is not a string", ErrMalformedMessage)
	}

	return cmd, nil
}

// IsTalkAck reports whether the payload is the controller's talk acknowledgment.
func IsTalkAck(payload []byte) (bool, error) {
	cmd, err := DecodeDeviceCommand(payload)
	if err != nil {
		return false, err
	}
	return cmd.Response == CategoryTalk.WireName(), nil
}
