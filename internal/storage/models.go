package storage

import (
	"time"

	"github.com/google/uuid"
)

// Operator is an interactive user of the control plane API.
type Operator struct {
	ID                  uuid.UUID         `json:"id"`
	Username            string            `json:"username"`
	PasswordHash        string            `json:"-"`
	Role                string            `json:"role"`
	ACL                 map[string]string `json:"acl,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	LastLoginAt         *time.Time        `json:"last_login_at"`
	FailedLoginAttempts int               `json:"-"`
	LockedUntil         *time.Time        `json:"locked_until,omitempty"`
}

// APIKey is a long-lived credential for integrations dispatching commands.
type APIKey struct {
	ID         uuid.UUID         `json:"id"`
	KeyHash    string            `json:"-"`
	Name       string            `json:"name"`
	ACL        map[string]string `json:"acl"`
	CreatedAt  time.Time         `json:"created_at"`
	LastUsedAt *time.Time        `json:"last_used_at"`
	CreatedBy  *uuid.UUID        `json:"created_by"`
}

// AuthEvent is one row of the authentication event log.
type AuthEvent struct {
	Type       string
	OperatorID *uuid.UUID
	APIKeyID   *uuid.UUID
	IPAddress  string
	UserAgent  string
	Success    bool
	Reason     string
}
