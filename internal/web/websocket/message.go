package websocket

import (
	"encoding/json"
	"fmt"
)

// Message types pushed to watchers
const (
	TypeSnapshot = "snapshot" // a new schema snapshot was published
	TypeError    = "error"
)

// Message is the envelope for every frame sent to a client
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals payload into a message of the given type
func NewMessage(typ string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return &Message{Type: typ, Data: data}, nil
}
