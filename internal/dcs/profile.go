package dcs

import (
	"sort"
	"strings"
	"sync"

	"github.com/KevinKickass/dcscontrol/internal/props"
	"github.com/KevinKickass/dcscontrol/internal/types"
)

// DefaultScope is the id of the property scope consulted by the cascade.
const DefaultScope = "default"

// Flags is the attribute bitmask of a server profile.
type Flags uint32

const (
	FlagHasInputs Flags = 1 << iota
	FlagHasOutputs
	FlagModuleOptional
	FlagCommandsAck
	FlagHasAnalog
	FlagStartable
)

var flagNames = map[string]Flags{
	"hasInputs":      FlagHasInputs,
	"hasOutputs":     FlagHasOutputs,
	"moduleOptional": FlagModuleOptional,
	"commandsAck":    FlagCommandsAck,
	"hasAnalog":      FlagHasAnalog,
	"startable":      FlagStartable,
}

func (f Flags) Has(flag Flags) bool { return f&flag == flag }

// Names lists the set flags in stable order.
func (f Flags) Names() []string {
	var out []string
	for name, bit := range flagNames {
		if f.Has(bit) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// PortBinding is one listen port; an empty Bind means all interfaces.
type PortBinding struct {
	Port int    `json:"port"`
	Bind string `json:"bind,omitempty"`
}

// PortSet is an ordered list of listen ports. A port may repeat within one
// profile.
type PortSet []PortBinding

func (ps PortSet) Ports() []int {
	out := make([]int, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Port)
	}
	return out
}

func (ps PortSet) Contains(port int) bool {
	for _, p := range ps {
		if p.Port == port {
			return true
		}
	}
	return false
}

// ServerProfile is the resolved configuration of one DCS.
type ServerProfile struct {
	name       string
	sourceFile string
	module     string

	descMu      sync.RWMutex
	description string

	BindAddress      string
	SSL              bool
	Models           []string
	Flags            Flags
	UniqueIDPrefixes []string

	TCPPorts PortSet
	UDPPorts PortSet
	SATPorts PortSet

	CommandHost     string
	CommandPort     int
	CommandProtocol Protocol
	CommandACL      string
	CommandAccess   types.AccessLevel

	Commands   *CommandRegistry
	EventCodes *EventCodeMap
	ConfigKeys []string

	scopeMu sync.RWMutex
	scopes  map[string]*props.Scope
	global  *props.Scope
}

// NewServerProfile creates an empty profile bound to the process-wide
// global scope.
func NewServerProfile(name string, global *props.Scope) *ServerProfile {
	if global == nil {
		global = props.NewScope("global")
	}
	return &ServerProfile{
		name:          name,
		module:        name,
		CommandAccess: types.AccessWrite,
		Commands:      NewCommandRegistry(),
		EventCodes:    NewEventCodeMap(),
		scopes:        map[string]*props.Scope{DefaultScope: props.NewScope(DefaultScope)},
		global:        global,
	}
}

func (p *ServerProfile) Name() string       { return p.name }
func (p *ServerProfile) SourceFile() string { return p.sourceFile }

// Module is the protocol module id backing this server.
func (p *ServerProfile) Module() string { return p.module }

func (p *ServerProfile) Description() string {
	p.descMu.RLock()
	defer p.descMu.RUnlock()
	return p.description
}

// SetDescription is an administrative override; safe for concurrent use.
func (p *ServerProfile) SetDescription(desc string) {
	p.descMu.Lock()
	defer p.descMu.Unlock()
	p.description = desc
}

// Scope returns the named property scope, creating it when create is set.
func (p *ServerProfile) Scope(id string, create bool) *props.Scope {
	if id == "" {
		id = DefaultScope
	}
	p.scopeMu.RLock()
	s, ok := p.scopes[id]
	p.scopeMu.RUnlock()
	if ok || !create {
		return s
	}

	p.scopeMu.Lock()
	defer p.scopeMu.Unlock()
	if s, ok = p.scopes[id]; ok {
		return s
	}
	s = props.NewScope(id)
	p.scopes[id] = s
	return s
}

// ScopeIDs lists the profile's property scope ids, default first.
func (p *ServerProfile) ScopeIDs() []string {
	p.scopeMu.RLock()
	defer p.scopeMu.RUnlock()
	ids := make([]string, 0, len(p.scopes))
	for id := range p.scopes {
		if id != DefaultScope {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return append([]string{DefaultScope}, ids...)
}

// Props is the four-level property cascade for this profile.
func (p *ServerProfile) Props() props.Cascade {
	return props.Cascade{
		Name:   p.name,
		Local:  p.Scope(DefaultScope, false),
		Global: p.global,
	}
}

// NormalizeKey prefixes key with the profile name.
func (p *ServerProfile) NormalizeKey(key string) string {
	return props.NormalizeKey(p.name, key)
}

// UniqueIDPrefixList returns the prefixes used for device lookup; an empty
// list yields a single empty prefix.
func (p *ServerProfile) UniqueIDPrefixList() []string {
	if len(p.UniqueIDPrefixes) == 0 {
		return []string{""}
	}
	out := make([]string, 0, len(p.UniqueIDPrefixes))
	for _, pfx := range p.UniqueIDPrefixes {
		if pfx == "*" {
			pfx = ""
		}
		out = append(out, pfx)
	}
	return out
}

// ResolvedCommandHost is the host used for socket dispatch.
func (p *ServerProfile) ResolvedCommandHost(dft string) string {
	if h := strings.TrimSpace(p.CommandHost); h != "" {
		return h
	}
	return p.Props().String("commandHost", dft)
}

// ResolvedCommandPort is the socket dispatch port; <= 0 means the server
// accepts no socket commands.
func (p *ServerProfile) ResolvedCommandPort() int {
	if p.CommandPort > 0 {
		return p.CommandPort
	}
	return p.Props().Int("commandPort", 0)
}

// MissingConfigKeys returns the recommended configuration keys that resolve
// to nothing through the cascade.
func (p *ServerProfile) MissingConfigKeys() []string {
	var missing []string
	c := p.Props()
	for _, k := range p.ConfigKeys {
		if !c.Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}
