package types

import "strings"

// Account is the owning account of a device, as far as dispatch cares.
type Account struct {
	ID         string `json:"account_id"`
	SMSEnabled bool   `json:"sms_enabled"`
}

// Device is the boundary view of a tracked device. Persistence of devices
// lives outside this module; storage.PostgresClient fills these fields.
type Device struct {
	Account        Account `json:"account"`
	ID             string  `json:"device_id"`
	UniqueID       string  `json:"unique_id"`
	ServerID       string  `json:"server_id"`
	DataKey        string  `json:"-"`
	ModemID        string  `json:"modem_id,omitempty"`
	IMEI           string  `json:"imei,omitempty"`
	SerialNumber   string  `json:"serial_number,omitempty"`
	SimPhone       string  `json:"sim_phone,omitempty"`
	MaxPingCount   int     `json:"max_ping_count"`
	TotalPingCount int     `json:"total_ping_count"`
}

// ExceedsMaxPingCount reports whether the device already reached its
// configured ping limit. A limit <= 0 means unlimited.
func (d *Device) ExceedsMaxPingCount() bool {
	if d == nil || d.MaxPingCount <= 0 {
		return false
	}
	return d.TotalPingCount >= d.MaxPingCount
}

func (d *Device) AccountID() string {
	if d == nil {
		return ""
	}
	return d.Account.ID
}

// AccessLevel is the granted or required access for an ACL.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessRead
	AccessWrite
	AccessAll
)

func (a AccessLevel) String() string {
	switch a {
	case AccessNone:
		return "none"
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseAccessLevel parses names ("write") or digits ("2"); unknown values
// return dft.
func ParseAccessLevel(s string, dft AccessLevel) AccessLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "0":
		return AccessNone
	case "read", "r", "1":
		return AccessRead
	case "write", "w", "rw", "2":
		return AccessWrite
	case "all", "3":
		return AccessAll
	default:
		return dft
	}
}
