package types

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord is written once for every successful command dispatch.
type AuditRecord struct {
	ID            uuid.UUID `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Server        string    `json:"server"`
	AccountID     string    `json:"account_id"`
	DeviceID      string    `json:"device_id"`
	UniqueID      string    `json:"unique_id"`
	Command       string    `json:"command"`
	CommandString string    `json:"command_string"`
	Args          []string  `json:"args,omitempty"`
	Transport     string    `json:"transport"`
	ResultCode    string    `json:"result_code"`
	Message       string    `json:"message"`
	StatusCode    int       `json:"status_code,omitempty"`
	RequestedBy   string    `json:"requested_by,omitempty"`
}

// SMSMessage is handed to the SMS gateway for devices without a socket
// command path.
type SMSMessage struct {
	ID        uuid.UUID `json:"id"`
	Server    string    `json:"server"`
	AccountID string    `json:"account_id"`
	DeviceID  string    `json:"device_id"`
	Phone     string    `json:"phone"`
	Command   string    `json:"command"`
	Text      string    `json:"text"`
	Handler   string    `json:"handler,omitempty"`
	Queue     bool      `json:"queue,omitempty"`
}

// DispatchEvent is published to live subscribers after each dispatch.
type DispatchEvent struct {
	ID         uuid.UUID     `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Server     string        `json:"server"`
	AccountID  string        `json:"account_id,omitempty"`
	DeviceID   string        `json:"device_id,omitempty"`
	Command    string        `json:"command"`
	Transport  string        `json:"transport,omitempty"`
	ResultCode string        `json:"result_code"`
	Success    bool          `json:"success"`
	Message    string        `json:"message,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}
