package api

import (
	"encoding/json"
	"fmt"

	"rollback-duel/internal/sim"
)

// Websocket message types
const (
	MessageSnapshot = "snapshot" // server → client, data is host.Published
	MessageAction   = "action"   // both ways: client sends ActionMessage, server relays host.Relayed
)

// Envelope wraps every websocket message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ActionMessage is an input submitted by a client. Tick is the client's tick
// when the input was applied locally; nil means "apply now".
type ActionMessage struct {
	Action sim.Action `json:"action"`
	Tick   *int64     `json:"tick,omitempty"`
}

// EncodeEnvelope marshals data under the given message type.
func EncodeEnvelope(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}

// DecodeEnvelope parses the outer message.
func DecodeEnvelope(message []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}
