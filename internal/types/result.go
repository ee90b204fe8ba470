package types

import "strings"

// ResultCode is the fixed outcome taxonomy of a command dispatch.
type ResultCode struct {
	code    string
	message string
}

var (
	Success         = ResultCode{"OK000", "Successful"}
	Queued          = ResultCode{"OK001", "Queued for later delivery"}
	InvalidAccount  = ResultCode{"AC001", "Invalid account"}
	InvalidDevice   = ResultCode{"DV001", "Invalid device"}
	InvalidServer   = ResultCode{"SV001", "Invalid server"}
	NotAuthorized   = ResultCode{"AU001", "Not authorized"}
	OverLimit       = ResultCode{"LM001", "Over limit"}
	InvalidCommand  = ResultCode{"CM001", "Invalid command"}
	InvalidArg      = ResultCode{"CM002", "Invalid argument"}
	InvalidType     = ResultCode{"CM003", "Invalid command type"}
	UnknownHost     = ResultCode{"HO001", "Unknown host"}
	TransmitFail    = ResultCode{"TX001", "Transmit failure"}
	NoSession       = ResultCode{"SS001", "No active session"}
	DeviceOffline   = ResultCode{"SS002", "Device offline"}
	StaleRoute      = ResultCode{"SS003", "Stale return route"}
	InvalidProtocol = ResultCode{"PR001", "Invalid protocol"}
	InvalidSMS      = ResultCode{"SM001", "Invalid SMS specification"}
	InvalidPacket   = ResultCode{"PK001", "Invalid packet"}
	GatewayError    = ResultCode{"GW001", "Gateway error"}
	GatewayTimeout  = ResultCode{"GW002", "Gateway timeout"}
	GatewayRejected = ResultCode{"GW003", "Gateway rejected message"}
	InternalError   = ResultCode{"IE001", "Internal error"}
	Unknown         = ResultCode{"UN001", "Unknown"}
)

var resultCodes = []ResultCode{
	Success, Queued, InvalidAccount, InvalidDevice, InvalidServer,
	NotAuthorized, OverLimit, InvalidCommand, InvalidArg, InvalidType,
	UnknownHost, TransmitFail, NoSession, DeviceOffline, StaleRoute,
	InvalidProtocol, InvalidSMS, InvalidPacket, GatewayError,
	GatewayTimeout, GatewayRejected, InternalError, Unknown,
}

// Code returns the short code string sent on the wire.
func (r ResultCode) Code() string { return r.code }

// Message returns the human readable description.
func (r ResultCode) Message() string { return r.message }

func (r ResultCode) String() string { return r.code + ": " + r.message }

// IsSuccess reports whether r is Success or Queued.
func (r ResultCode) IsSuccess() bool {
	return r == Success || r == Queued
}

// ParseResultCode maps a wire code to its variant. A blank code is Success,
// anything unrecognised is Unknown.
func ParseResultCode(code string) ResultCode {
	code = strings.TrimSpace(code)
	if code == "" {
		return Success
	}
	for _, rc := range resultCodes {
		if strings.EqualFold(rc.code, code) {
			return rc
		}
	}
	return Unknown
}

// ResultCodes returns all variants in declaration order.
func ResultCodes() []ResultCode {
	out := make([]ResultCode, len(resultCodes))
	copy(out, resultCodes)
	return out
}

// Result is the outcome of one dispatch: a ResultCode plus detail text.
type Result struct {
	Code      ResultCode `json:"-"`
	Message   string     `json:"message,omitempty"`
	Transport string     `json:"transport,omitempty"`
	Command   string     `json:"command_string,omitempty"`
}

// NewResult builds a Result, defaulting the message to the code's own text.
func NewResult(code ResultCode, message string) Result {
	if message == "" {
		message = code.Message()
	}
	return Result{Code: code, Message: message}
}

func (r Result) IsSuccess() bool { return r.Code.IsSuccess() }

// MarshalFields returns a JSON friendly view used by the REST layer.
func (r Result) MarshalFields() map[string]any {
	return map[string]any{
		"result":         r.Code.Code(),
		"success":        r.Code.IsSuccess(),
		"message":        r.Message,
		"transport":      r.Transport,
		"command_string": r.Command,
	}
}
