// Package protocol defines the observer wire protocol: JSON messages
// over a websocket, one frame per message, discriminated by a type field.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is bumped on any incompatible message change. Subscribers must
// send the matching version in SUBSCRIBE.
const Version = 1

// Message type discriminators.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeSnapshot  = "SNAPSHOT"
	TypeInspect   = "INSPECT"
	TypeCell      = "CELL"
	TypeError     = "ERROR"
)

// BaseMessage is the minimal envelope every frame carries; decode it
// first to dispatch on Type.
type BaseMessage struct {
	Type string `json:"type"`
}

// DecodeBase extracts the discriminator from a raw frame.
func DecodeBase(data []byte) (BaseMessage, error) {
	var m BaseMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return BaseMessage{}, fmt.Errorf("malformed frame: %w", err)
	}
	if m.Type == "" {
		return BaseMessage{}, fmt.Errorf("frame missing type")
	}
	return m, nil
}
