package websocket

import (
	"time"

	"github.com/KevinKickass/dcscontrol/internal/types"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Server to client
	MessageTypeDispatch     MessageType = "dispatch"
	MessageTypeConfigLoaded MessageType = "config_loaded"
	MessageTypeAuthSuccess  MessageType = "auth_success"
	MessageTypeAuthFailed   MessageType = "auth_failed"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeSystemStatus MessageType = "system_status"

	// Client to server
	MessageTypeAuth      MessageType = "auth"
	MessageTypeSubscribe MessageType = "subscribe"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// ClientMessage is what clients send: an auth token first, then optional
// server subscriptions. An empty server list subscribes to everything.
type ClientMessage struct {
	Type    MessageType `json:"type"`
	Token   string      `json:"token,omitempty"`
	Servers []string    `json:"servers,omitempty"`
}

// ConfigLoadedData summarises a configuration load.
type ConfigLoadedData struct {
	Profiles  int      `json:"profiles"`
	Conflicts int      `json:"conflicts"`
	Files     []string `json:"files"`
}

func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewDispatchMessage(ev types.DispatchEvent) Message {
	return NewMessage(MessageTypeDispatch, ev)
}
