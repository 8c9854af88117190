package websocket

import (
	"time"

	"github.com/KevinKickass/OpenLogoBridge/internal/blocks"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Block value delivered by the bridge
	MessageTypeBlockValue MessageType = "block_value"

	// Bridge lifecycle state
	MessageTypeBridgeState MessageType = "bridge_state"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type BlockValueData struct {
	BlockID string      `json:"block_id"`
	Name    string      `json:"name"`
	Block   string      `json:"block"`
	Kind    string      `json:"kind"`
	Value   interface{} `json:"value"`
}

type BridgeStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewBlockValueMessage(u blocks.Update) Message {
	msg := NewMessage(MessageTypeBlockValue, BlockValueData{
		BlockID: u.BlockID.String(),
		Name:    u.Name,
		Block:   u.Block,
		Kind:    u.Value.Kind.String(),
		Value:   u.Value.Interface(),
	})
	if !u.At.IsZero() {
		msg.Timestamp = u.At
	}
	return msg
}

func NewBridgeStateMessage(newState, previousState string) Message {
	return NewMessage(MessageTypeBridgeState, BridgeStateData{
		State:    newState,
		Previous: previousState,
	})
}
