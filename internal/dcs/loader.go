package dcs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KevinKickass/dcscontrol/internal/props"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type document struct {
	DCServers []declaration `yaml:"dcservers"`
}

// declaration is one entry of the dcservers list; exactly one field is set.
type declaration struct {
	Server  *serverDecl  `yaml:"server"`
	Include *includeDecl `yaml:"include"`
}

type includeDecl struct {
	Dir      string `yaml:"dir"`
	File     string `yaml:"file"`
	Optional bool   `yaml:"optional"`
}

type serverDecl struct {
	Name             string            `yaml:"name"`
	Active           *bool             `yaml:"active"`
	Module           string            `yaml:"module"`
	Description      string            `yaml:"description"`
	Models           []string          `yaml:"models"`
	Flags            map[string]bool   `yaml:"flags"`
	UniqueIDPrefixes []string          `yaml:"uniqueIdPrefixes"`
	ListenPorts      *listenPortsDecl  `yaml:"listenPorts"`
	Properties       []propertiesDecl  `yaml:"properties"`
	GlobalProperties yaml.Node         `yaml:"globalProperties"`
	EventCodes       []eventCodeDecl   `yaml:"eventCodes"`
	Commands         *commandBlockDecl `yaml:"commands"`
	ConfigKeys       []string          `yaml:"configKeys"`
}

type listenPortsDecl struct {
	Bind            string   `yaml:"bind"`
	SSL             bool     `yaml:"ssl"`
	ConflictWarning *bool    `yaml:"conflictWarning"`
	TCP             portList `yaml:"tcp"`
	UDP             portList `yaml:"udp"`
	SAT             portList `yaml:"sat"`
}

type propertiesDecl struct {
	ID     string    `yaml:"id"`
	Trim   bool      `yaml:"trim"`
	Values yaml.Node `yaml:"values"`
}

type eventCodeDecl struct {
	Key  string `yaml:"key"`
	Code string `yaml:"code"`
	Data string `yaml:"data"`
}

type commandBlockDecl struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Protocol string        `yaml:"protocol"`
	ACL      string        `yaml:"acl"`
	Access   string        `yaml:"access"`
	List     []CommandSpec `yaml:"list"`
}

// portList accepts "31000" and "10.0.0.1:31000" style entries.
type portList []PortBinding

func (pl *portList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: port list must be a sequence", n.Line)
	}
	for _, item := range n.Content {
		b, err := parsePortBinding(item.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", item.Line, err)
		}
		*pl = append(*pl, b)
	}
	return nil
}

func parsePortBinding(s string) (PortBinding, error) {
	bind, port := "", strings.TrimSpace(s)
	if i := strings.LastIndex(port, ":"); i >= 0 {
		bind, port = strings.TrimSpace(port[:i]), port[i+1:]
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return PortBinding{}, fmt.Errorf("invalid port %q", s)
	}
	return PortBinding{Port: n, Bind: bind}, nil
}

// LoadResult is the outcome of one load pass.
type LoadResult struct {
	Profiles  []*ServerProfile
	Global    *props.Scope
	Conflicts []PortConflict
	Files     []string
}

// Populate registers every loaded profile with d and returns how many were
// accepted.
func (r *LoadResult) Populate(d *Directory) int {
	n := 0
	for _, p := range r.Profiles {
		if d.Add(p) {
			n++
		}
	}
	return n
}

// Loader parses DCS configuration trees into server profiles.
type Loader struct {
	global    *props.Scope
	filter    string
	validator *Validator
	logger    *zap.Logger
}

// NewLoader creates a loader. global is the process-wide scope; it supplies
// parse-time overrides and receives the global-property block of a server
// loaded standalone. filter, when set, restricts loading to one server name.
func NewLoader(global *props.Scope, filter string, logger *zap.Logger) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}
	if global == nil {
		global = props.NewScope("global")
	}
	return &Loader{
		global:    global,
		filter:    strings.TrimSpace(filter),
		validator: validator,
		logger:    logger,
	}, nil
}

type frame struct {
	file    string
	decls   []declaration
	pending []string
}

type loadState struct {
	result  *LoadResult
	visited map[string]bool
	seen    map[string]string
	ports   *PortRegistry
}

// LoadFile loads the configuration tree rooted at path. Only a failure to
// read the root document is returned as an error; problems in included
// files and individual declarations are logged and skipped.
func (l *Loader) LoadFile(path string) (*LoadResult, error) {
	root := canonicalPath(path)
	doc, err := l.readDocument(root)
	if err != nil {
		return nil, err
	}

	st := &loadState{
		result:  &LoadResult{Global: l.global, Files: []string{root}},
		visited: map[string]bool{root: true},
		seen:    make(map[string]string),
		ports:   NewPortRegistry(l.logger),
	}

	stack := []*frame{{file: root, decls: doc.DCServers}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if len(top.pending) > 0 {
			next := top.pending[0]
			top.pending = top.pending[1:]
			if f := l.enter(st, stack, next); f != nil {
				stack = append(stack, f)
			}
			continue
		}

		if len(top.decls) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}

		d := top.decls[0]
		top.decls = top.decls[1:]
		switch {
		case d.Server != nil:
			l.loadServer(st, top.file, d.Server)
		case d.Include != nil:
			top.pending = l.resolveInclude(top.file, *d.Include)
		}
	}

	st.result.Conflicts = st.ports.Conflicts()
	l.logger.Info("DCS configuration loaded",
		zap.String("file", root),
		zap.Int("files", len(st.result.Files)),
		zap.Int("servers", len(st.result.Profiles)),
		zap.Int("port_conflicts", len(st.result.Conflicts)))

	return st.result, nil
}

// enter reads an included file and returns its frame, or nil when the file
// was already visited in this pass or is invalid. stack holds the files
// currently being processed; the last one is the including file.
func (l *Loader) enter(st *loadState, stack []*frame, path string) *frame {
	from := stack[len(stack)-1].file
	canon := canonicalPath(path)
	if st.visited[canon] {
		msg := "Skipping include already loaded"
		for _, f := range stack {
			if f.file == canon {
				msg = "Skipping recursive include"
				break
			}
		}
		l.logger.Warn(msg,
			zap.String("file", canon),
			zap.String("included_from", from))
		return nil
	}
	st.visited[canon] = true

	doc, err := l.readDocument(canon)
	if err != nil {
		l.logger.Error("Skipping configuration file",
			zap.String("file", canon),
			zap.String("included_from", from),
			zap.Error(err))
		return nil
	}
	st.result.Files = append(st.result.Files, canon)
	return &frame{file: canon, decls: doc.DCServers}
}

func (l *Loader) readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := l.validator.ValidateYAML(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &doc, nil
}

// resolveInclude expands an include declaration to the files it names.
func (l *Loader) resolveInclude(from string, inc includeDecl) []string {
	parent := filepath.Dir(from)
	dir := parent
	switch {
	case inc.Dir == "":
	case filepath.IsAbs(inc.Dir):
		dir = inc.Dir
	default:
		dir = filepath.Join(parent, inc.Dir)
	}
	pattern := filepath.Join(dir, inc.File)

	if strings.ContainsAny(inc.File, "*?[") {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			l.logger.Error("Invalid include pattern", zap.String("pattern", pattern), zap.Error(err))
			return nil
		}
		if len(matches) == 0 && !inc.Optional {
			l.logger.Error("Include pattern matched no files",
				zap.String("pattern", pattern),
				zap.String("included_from", from))
		}
		return matches
	}

	if _, err := os.Stat(pattern); err != nil {
		if errors.Is(err, fs.ErrNotExist) && inc.Optional {
			return nil
		}
		l.logger.Error("Include file not found",
			zap.String("file", pattern),
			zap.String("included_from", from),
			zap.Error(err))
		return nil
	}
	return []string{pattern}
}

func (l *Loader) loadServer(st *loadState, file string, decl *serverDecl) {
	name := strings.TrimSpace(decl.Name)
	if l.filter != "" && l.filter != name {
		return
	}
	if decl.Active != nil && !*decl.Active {
		l.logger.Debug("Server inactive", zap.String("server", name), zap.String("file", file))
		return
	}
	if first, dup := st.seen[name]; dup {
		l.logger.Warn("Duplicate server name ignored",
			zap.String("server", name),
			zap.String("file", file),
			zap.String("first_file", first))
		return
	}

	p := l.buildProfile(file, name, decl)
	st.seen[name] = file
	st.result.Profiles = append(st.result.Profiles, p)

	warn := true
	if decl.ListenPorts != nil && decl.ListenPorts.ConflictWarning != nil {
		warn = *decl.ListenPorts.ConflictWarning
	}
	st.ports.ClaimAll(p, warn)
}

func (l *Loader) buildProfile(file, name string, decl *serverDecl) *ServerProfile {
	p := NewServerProfile(name, l.global)
	p.sourceFile = file
	if m := strings.TrimSpace(decl.Module); m != "" {
		p.module = m
	}
	p.SetDescription(strings.TrimSpace(decl.Description))
	p.Models = decl.Models
	p.UniqueIDPrefixes = decl.UniqueIDPrefixes
	p.ConfigKeys = decl.ConfigKeys

	for flag, on := range decl.Flags {
		bit, ok := flagNames[flag]
		if !ok {
			l.logger.Warn("Unknown server flag", zap.String("server", name), zap.String("flag", flag))
			continue
		}
		if on {
			p.Flags |= bit
		}
	}

	if lp := decl.ListenPorts; lp != nil {
		p.BindAddress = lp.Bind
		p.SSL = lp.SSL
		p.TCPPorts = PortSet(lp.TCP)
		p.UDPPorts = PortSet(lp.UDP)
		p.SATPorts = PortSet(lp.SAT)
	}

	for _, block := range decl.Properties {
		l.loadProperties(p, block)
	}

	if l.filter != "" && decl.GlobalProperties.Kind == yaml.MappingNode {
		added := 0
		eachPair(&decl.GlobalProperties, func(key string, val *yaml.Node) {
			if l.global.SetIfAbsent(key, nodeValue(val, true)) {
				added++
			}
		})
		l.logger.Debug("Merged global properties", zap.String("server", name), zap.Int("added", added))
	}

	for _, ec := range decl.EventCodes {
		p.EventCodes.Add(ec.Key, ec.Code, ec.Data)
	}

	if decl.Commands != nil {
		l.loadCommands(p, decl.Commands)
	}

	return p
}

// loadProperties fills one property scope. A value in the global scope
// under "<server>.<key>" (or "<server>.<id>.<key>" for a named scope)
// replaces the value from the file.
func (l *Loader) loadProperties(p *ServerProfile, block propertiesDecl) {
	id := strings.TrimSpace(block.ID)
	if id == "" {
		id = DefaultScope
	}
	scope := p.Scope(id, true)
	prefix := p.Name()
	if id != DefaultScope {
		prefix += "." + id
	}

	eachPair(&block.Values, func(key string, val *yaml.Node) {
		v := nodeValue(val, block.Trim)
		if ov, ok := l.global.Get(props.NormalizeKey(prefix, key)); ok {
			v = ov
		}
		scope.Set(key, v)
	})
}

func (l *Loader) loadCommands(p *ServerProfile, block *commandBlockDecl) {
	name := p.Name()
	p.CommandHost = strings.TrimSpace(block.Host)
	p.CommandPort = block.Port

	proto, _, err := ParseProtocol(block.Protocol)
	if err != nil {
		l.logger.Warn("Invalid command protocol, using tcp", zap.String("server", name), zap.Error(err))
		proto = ProtocolTCP
	}
	p.CommandProtocol = proto

	p.CommandACL = block.ACL
	if p.CommandACL == "" {
		p.CommandACL = "dcs." + name + ".commands"
	}
	p.CommandAccess = types.ParseAccessLevel(block.Access, types.AccessWrite)
	p.Commands.ACL = p.CommandACL
	p.Commands.Access = p.CommandAccess

	for _, spec := range block.List {
		if spec.Protocol == "" {
			spec.Protocol = block.Protocol
		}
		cmd, err := NewCommand(spec, p.CommandACL, p.CommandAccess)
		if err != nil {
			l.logger.Error("Invalid command definition", zap.String("server", name), zap.Error(err))
			continue
		}
		if v, ok := l.global.Get(name + ".command." + cmd.Name + ".enabled"); ok {
			if on, ok := v.Bool(); ok {
				cmd.Enabled = on
			}
		}
		p.Commands.Add(cmd)
	}
}

func eachPair(n *yaml.Node, fn func(key string, val *yaml.Node)) {
	if n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		fn(n.Content[i].Value, n.Content[i+1])
	}
}

// nodeValue converts a YAML node to a typed property value.
func nodeValue(n *yaml.Node, trim bool) props.Value {
	clean := func(s string) string {
		if trim {
			return strings.TrimSpace(s)
		}
		return s
	}

	switch n.Kind {
	case yaml.SequenceNode:
		list := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			list = append(list, clean(c.Value))
		}
		return props.StringsValue(list)
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!int":
			if i, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
				return props.LongValue(i)
			}
		case "!!float":
			if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
				return props.DoubleValue(f)
			}
		case "!!bool":
			if b, ok := props.ParseBool(n.Value); ok {
				return props.BoolValue(b)
			}
		}
		return props.StringValue(clean(n.Value))
	}
	return props.StringValue("")
}

func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
