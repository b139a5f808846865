package kafka

import (
	"encoding/json"
	"fmt"
)

// Meta is the part of an envelope every consumer reads before deciding how
// to decode the payload.
type Meta struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	Payload      json.RawMessage `json:"payload"`
}

func PeekMeta(b []byte) (Meta, error) {
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, fmt.Errorf("decode envelope: %w", err)
	}
	return m, nil
}

func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
