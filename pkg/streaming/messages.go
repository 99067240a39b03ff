package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/rigsync/pkg/core"
)

// Message type constants of the sensor bridge protocol.
const (
	TypeHello      = "hello"
	TypeFrame      = "frame"
	TypeSensorLost = "sensor_lost"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HelloPayload is sent by the bridge once after connecting.
type HelloPayload struct {
	Sensor  string `json:"sensor"`
	Version string `json:"version"`
}

// FramePayload carries one sensor frame.
type FramePayload struct {
	Frame core.Frame `json:"frame"`
}

// SensorLostPayload tells the client the sensor stopped delivering frames.
type SensorLostPayload struct {
	Reason string `json:"reason"`
}

// Encode marshals payload into an envelope of the given type.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// Decode unmarshals a raw message into an envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("envelope without type")
	}
	return env, nil
}
