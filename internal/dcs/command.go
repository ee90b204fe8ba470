package dcs

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/types"
)

// Protocol is the transport a command is sent over.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
	ProtocolSMS Protocol = "sms"
)

// ParseProtocol accepts "tcp", "udp", "sms" and "sms:<handler>" style
// values and returns the protocol plus the optional handler id.
func ParseProtocol(s string) (Protocol, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ProtocolTCP, "", nil
	}
	name, handler, _ := strings.Cut(s, ":")
	switch p := Protocol(strings.ToLower(strings.TrimSpace(name))); p {
	case ProtocolTCP, ProtocolUDP, ProtocolSMS:
		return p, strings.TrimSpace(handler), nil
	default:
		return "", "", fmt.Errorf("unknown command protocol %q", s)
	}
}

func (p Protocol) IsSMS() bool { return p == ProtocolSMS }

// CommandArg describes one positional command argument.
type CommandArg struct {
	Name          string
	Description   string
	ReadOnly      bool
	SessionVar    string
	Default       string
	DisplayLength int
	MaxLength     int

	index   int
	command *CommandDefinition
}

// Index is the positional index of the argument within its command.
func (a *CommandArg) Index() int { return a.index }

// Command is the owning command.
func (a *CommandArg) Command() *CommandDefinition { return a.command }

// CommandDefinition is a named, parameterized command. It is immutable
// after construction except for Enabled, which is resolved at load time.
type CommandDefinition struct {
	Name        string
	Description string
	Enabled     bool
	Types       []string
	ACL         string
	Access      types.AccessLevel
	Template    string
	HasArgs     bool
	Args        []*CommandArg
	Protocol    Protocol
	Handler     string
	MaxRouteAge time.Duration
	AllowQueue  bool
	ExpectAck   bool
	AckCode     int
	HasState    bool
	StateMask   uint64
	StateValue  uint64
	AuditCode   int
}

// CommandArgSpec is the structured form of a CommandArg.
type CommandArgSpec struct {
	Name          string `yaml:"name" json:"name"`
	Description   string `yaml:"description" json:"description,omitempty"`
	ReadOnly      bool   `yaml:"readOnly" json:"read_only,omitempty"`
	SessionVar    string `yaml:"sessionVar" json:"session_var,omitempty"`
	Default       string `yaml:"default" json:"default,omitempty"`
	DisplayLength int    `yaml:"length" json:"length,omitempty"`
	MaxLength     int    `yaml:"maxLength" json:"max_length,omitempty"`
}

// CommandStateSpec declares the device state bits a command produces.
type CommandStateSpec struct {
	Mask  string `yaml:"mask" json:"mask"`
	Value string `yaml:"value" json:"value"`
}

// CommandSpec is the structured form of a CommandDefinition, used by the
// config loader and by callers building commands in code.
type CommandSpec struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description,omitempty"`
	Enabled     *bool             `yaml:"enabled" json:"enabled,omitempty"`
	Types       []string          `yaml:"types" json:"types,omitempty"`
	ACL         string            `yaml:"acl" json:"acl,omitempty"`
	Access      string            `yaml:"access" json:"access,omitempty"`
	Protocol    string            `yaml:"protocol" json:"protocol,omitempty"`
	Handler     string            `yaml:"handler" json:"handler,omitempty"`
	String      string            `yaml:"string" json:"string"`
	MaxRouteAge string            `yaml:"maxRouteAge" json:"max_route_age,omitempty"`
	AllowQueue  bool              `yaml:"allowQueue" json:"allow_queue,omitempty"`
	ExpectAck   bool              `yaml:"expectAck" json:"expect_ack,omitempty"`
	AckCode     string            `yaml:"ackCode" json:"ack_code,omitempty"`
	ResultCode  string            `yaml:"resultCode" json:"result_code,omitempty"`
	State       *CommandStateSpec `yaml:"state" json:"state,omitempty"`
	Args        []CommandArgSpec  `yaml:"args" json:"args,omitempty"`
}

// NewCommand builds a CommandDefinition from its structured form. aclBase
// and access are the command-block defaults.
func NewCommand(spec CommandSpec, aclBase string, access types.AccessLevel) (*CommandDefinition, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, fmt.Errorf("command name is required")
	}

	proto, handler, err := ParseProtocol(spec.Protocol)
	if err != nil {
		return nil, fmt.Errorf("command %s: %w", name, err)
	}
	if spec.Handler != "" {
		handler = spec.Handler
	}

	cmd := &CommandDefinition{
		Name:        name,
		Description: spec.Description,
		Enabled:     spec.Enabled == nil || *spec.Enabled,
		Types:       spec.Types,
		Access:      types.ParseAccessLevel(spec.Access, access),
		Template:    spec.String,
		HasArgs:     strings.Contains(spec.String, "${"),
		Protocol:    proto,
		Handler:     handler,
		AllowQueue:  spec.AllowQueue,
		ExpectAck:   spec.ExpectAck,
	}

	switch {
	case spec.ACL != "":
		cmd.ACL = spec.ACL
	case aclBase != "":
		cmd.ACL = aclBase + "." + name
	}

	if spec.MaxRouteAge != "" {
		d, err := parseDurationSeconds(spec.MaxRouteAge)
		if err != nil {
			return nil, fmt.Errorf("command %s: maxRouteAge: %w", name, err)
		}
		cmd.MaxRouteAge = d
	}
	if spec.AckCode != "" {
		if cmd.AckCode, err = parseCode(spec.AckCode); err != nil {
			return nil, fmt.Errorf("command %s: ackCode: %w", name, err)
		}
	}
	if spec.ResultCode != "" {
		if cmd.AuditCode, err = parseCode(spec.ResultCode); err != nil {
			return nil, fmt.Errorf("command %s: resultCode: %w", name, err)
		}
	}
	if spec.State != nil {
		mask, err := strconv.ParseUint(strings.TrimSpace(spec.State.Mask), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("command %s: state mask: %w", name, err)
		}
		val, err := strconv.ParseUint(strings.TrimSpace(spec.State.Value), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("command %s: state value: %w", name, err)
		}
		cmd.HasState, cmd.StateMask, cmd.StateValue = true, mask, val
	}

	for i, as := range spec.Args {
		if strings.TrimSpace(as.Name) == "" {
			return nil, fmt.Errorf("command %s: argument %d has no name", name, i)
		}
		cmd.Args = append(cmd.Args, &CommandArg{
			Name:          as.Name,
			Description:   as.Description,
			ReadOnly:      as.ReadOnly,
			SessionVar:    as.SessionVar,
			Default:       as.Default,
			DisplayLength: as.DisplayLength,
			MaxLength:     as.MaxLength,
			index:         i,
			command:       cmd,
		})
	}

	return cmd, nil
}

// Arg returns the declared argument with the given name.
func (c *CommandDefinition) Arg(name string) (*CommandArg, bool) {
	for _, a := range c.Args {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// HasType reports whether the command is tagged with the given context type.
// An untagged command applies to every context.
func (c *CommandDefinition) HasType(t string) bool {
	if len(c.Types) == 0 || t == "" {
		return true
	}
	for _, ct := range c.Types {
		if strings.EqualFold(ct, t) {
			return true
		}
	}
	return false
}

// CommandRegistry is an ordered map of command name to definition.
type CommandRegistry struct {
	mu       sync.RWMutex
	order    []string
	commands map[string]*CommandDefinition
	ACL      string
	Access   types.AccessLevel
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]*CommandDefinition),
		Access:   types.AccessWrite,
	}
}

// Add registers cmd; an existing name is replaced in place.
func (r *CommandRegistry) Add(cmd *CommandDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[cmd.Name]; !ok {
		r.order = append(r.order, cmd.Name)
	}
	r.commands[cmd.Name] = cmd
}

func (r *CommandRegistry) Get(name string) (*CommandDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

func (r *CommandRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *CommandRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// List returns the commands in declaration order, filtered by context type
// and optionally excluding disabled ones.
func (r *CommandRegistry) List(ctxType string, enabledOnly bool) []*CommandDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CommandDefinition, 0, len(r.order))
	for _, name := range r.order {
		cmd := r.commands[name]
		if enabledOnly && !cmd.Enabled {
			continue
		}
		if !cmd.HasType(ctxType) {
			continue
		}
		out = append(out, cmd)
	}
	return out
}

func parseCode(s string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// parseDurationSeconds accepts a Go duration ("90s") or a bare number of
// seconds.
func parseDurationSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
