package dcs

import (
	"strconv"
	"strings"
	"sync"
)

// StatusIgnore is returned by Translate for events that must be dropped.
const StatusIgnore = -1

// EventCode maps one device-native code to a canonical status code.
type EventCode struct {
	Key        string `json:"key"`
	StatusCode int    `json:"status_code"`
	Data       string `json:"data,omitempty"`
	Ignore     bool   `json:"ignore,omitempty"`
}

// EventCodeMap is the event code translation table of a profile.
type EventCodeMap struct {
	mu    sync.RWMutex
	codes map[string]EventCode
}

func NewEventCodeMap() *EventCodeMap {
	return &EventCodeMap{codes: make(map[string]EventCode)}
}

// eventKey canonicalizes numeric keys so "0x10" and "16" collide.
func eventKey(key string) string {
	key = strings.TrimSpace(key)
	if n, err := strconv.ParseInt(key, 0, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return strings.ToLower(key)
}

// Add stores a translation. code is the canonical status code text: "0"
// means "use the caller's default", blank or negative means ignore.
func (m *EventCodeMap) Add(key, code, data string) {
	ec := EventCode{Key: strings.TrimSpace(key), Data: data}
	code = strings.TrimSpace(code)
	if code == "" {
		ec.Ignore = true
	} else if n, err := strconv.ParseInt(code, 0, 32); err != nil || n < 0 {
		ec.Ignore = true
	} else {
		ec.StatusCode = int(n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[eventKey(key)] = ec
}

func (m *EventCodeMap) Lookup(key string) (EventCode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ec, ok := m.codes[eventKey(key)]
	return ec, ok
}

// LookupInt is Lookup for a numeric device code.
func (m *EventCodeMap) LookupInt(code int64) (EventCode, bool) {
	return m.Lookup(strconv.FormatInt(code, 10))
}

// Translate returns the canonical status code for key: dft when the key is
// unknown or maps to 0, StatusIgnore when the event is to be dropped.
func (m *EventCodeMap) Translate(key string, dft int) int {
	ec, ok := m.Lookup(key)
	switch {
	case !ok:
		return dft
	case ec.Ignore:
		return StatusIgnore
	case ec.StatusCode == 0:
		return dft
	default:
		return ec.StatusCode
	}
}

func (m *EventCodeMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.codes)
}
