package dcs

import (
	"encoding/hex"
	"sort"
	"strings"
	"sync"
)

// DefaultEncoder is the id used when a command names no handler, or one
// that is not registered.
const DefaultEncoder = "text"

// CommandEncoder turns a rendered command string into the line written to
// the transport.
type CommandEncoder interface {
	Encode(cmd string) (string, error)
}

// EncoderFunc adapts a function to CommandEncoder.
type EncoderFunc func(string) (string, error)

func (f EncoderFunc) Encode(cmd string) (string, error) { return f(cmd) }

// EncoderFactory builds a CommandEncoder for a protocol module.
type EncoderFactory func() CommandEncoder

// Modules is the registration table of installed protocol modules. It is
// populated at startup; profiles reference modules by id.
type Modules struct {
	mu       sync.RWMutex
	encoders map[string]EncoderFactory
}

// NewModules returns a table with the built-in "text" and "hex" encoders.
func NewModules() *Modules {
	m := &Modules{encoders: make(map[string]EncoderFactory)}
	m.Register(DefaultEncoder, func() CommandEncoder {
		return EncoderFunc(func(s string) (string, error) { return s, nil })
	})
	m.Register("hex", func() CommandEncoder {
		return EncoderFunc(func(s string) (string, error) {
			return strings.ToUpper(hex.EncodeToString([]byte(s))), nil
		})
	})
	return m
}

// Register installs a module under id, replacing any previous factory.
// A nil factory installs the module with the default encoder.
func (m *Modules) Register(id string, f EncoderFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.encoders[strings.ToLower(id)] = f
}

func (m *Modules) Installed(id string) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.encoders[strings.ToLower(id)]
	return ok
}

// Encoder resolves id to an encoder, failing closed to the default.
func (m *Modules) Encoder(id string) CommandEncoder {
	m.mu.RLock()
	f := m.encoders[strings.ToLower(id)]
	if f == nil {
		f = m.encoders[DefaultEncoder]
	}
	m.mu.RUnlock()
	return f()
}

func (m *Modules) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.encoders))
	for id := range m.encoders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
