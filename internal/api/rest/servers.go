package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/dcscontrol/internal/auth"
	"github.com/KevinKickass/dcscontrol/internal/dcs"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/gin-gonic/gin"
)

type ServerSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Module      string `json:"module"`
	Installed   bool   `json:"installed"`
	Commands    int    `json:"commands"`
}

type ServerDetail struct {
	ServerSummary
	SourceFile       string          `json:"source_file"`
	BindAddress      string          `json:"bind_address,omitempty"`
	SSL              bool            `json:"ssl"`
	Models           []string        `json:"models,omitempty"`
	Flags            []string        `json:"flags,omitempty"`
	UniqueIDPrefixes []string        `json:"unique_id_prefixes"`
	Ports            dcs.ServerPorts `json:"ports"`
	CommandHost      string          `json:"command_host,omitempty"`
	CommandPort      int             `json:"command_port,omitempty"`
	CommandProtocol  dcs.Protocol    `json:"command_protocol,omitempty"`
	Scopes           []string        `json:"scopes"`
	MissingKeys      []string        `json:"missing_config_keys,omitempty"`
}

type CommandArgView struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default,omitempty"`
	ReadOnly    bool   `json:"read_only,omitempty"`
	MaxLength   int    `json:"max_length,omitempty"`
}

type CommandView struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Enabled     bool             `json:"enabled"`
	Types       []string         `json:"types,omitempty"`
	ACL         string           `json:"acl"`
	Access      string           `json:"access"`
	Protocol    dcs.Protocol     `json:"protocol"`
	Template    string           `json:"template"`
	ExpectAck   bool             `json:"expect_ack,omitempty"`
	Args        []CommandArgView `json:"args,omitempty"`
}

func (s *Server) directory() *dcs.Directory {
	return s.lm.Directory()
}

func (s *Server) summary(p *dcs.ServerProfile) ServerSummary {
	return ServerSummary{
		Name:        p.Name(),
		Description: p.Description(),
		Module:      p.Module(),
		Installed:   s.directory().IsInstalled(p),
		Commands:    p.Commands.Len(),
	}
}

func commandView(cmd *dcs.CommandDefinition) CommandView {
	v := CommandView{
		Name:        cmd.Name,
		Description: cmd.Description,
		Enabled:     cmd.Enabled,
		Types:       cmd.Types,
		ACL:         cmd.ACL,
		Access:      cmd.Access.String(),
		Protocol:    cmd.Protocol,
		Template:    cmd.Template,
		ExpectAck:   cmd.ExpectAck,
	}
	for _, a := range cmd.Args {
		v.Args = append(v.Args, CommandArgView{
			Name:        a.Name,
			Description: a.Description,
			Default:     a.Default,
			ReadOnly:    a.ReadOnly,
			MaxLength:   a.MaxLength,
		})
	}
	return v
}

func serverACL(name string) string {
	return "dcs." + name
}

// profile resolves :name and checks read access; it writes the error
// response itself.
func (s *Server) profile(c *gin.Context) (*dcs.ServerProfile, bool) {
	name := c.Param("name")
	p, ok := s.directory().Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("SERVER_404", "Server not found", name))
		return nil, false
	}
	if pr := auth.PrincipalFrom(c); pr == nil || !pr.Grants.Allows(serverACL(name), types.AccessRead) {
		c.JSON(http.StatusForbidden, types.NewErrorResponse("SERVER_403", "Insufficient permissions", serverACL(name)))
		return nil, false
	}
	return p, true
}

// GET /api/v1/servers
func (s *Server) listServers(c *gin.Context) {
	installed, _ := strconv.ParseBool(c.DefaultQuery("installed", "false"))
	pr := auth.PrincipalFrom(c)

	out := []ServerSummary{}
	for _, p := range s.directory().List(installed) {
		if pr == nil || !pr.Grants.Allows(serverACL(p.Name()), types.AccessRead) {
			continue
		}
		out = append(out, s.summary(p))
	}

	c.JSON(http.StatusOK, gin.H{"servers": out, "count": len(out)})
}

// GET /api/v1/servers/:name
func (s *Server) getServer(c *gin.Context) {
	p, ok := s.profile(c)
	if !ok {
		return
	}
	ports, _ := s.directory().Ports(p.Name())

	c.JSON(http.StatusOK, ServerDetail{
		ServerSummary:    s.summary(p),
		SourceFile:       p.SourceFile(),
		BindAddress:      p.BindAddress,
		SSL:              p.SSL,
		Models:           p.Models,
		Flags:            p.Flags.Names(),
		UniqueIDPrefixes: p.UniqueIDPrefixList(),
		Ports:            ports,
		CommandHost:      p.CommandHost,
		CommandPort:      p.ResolvedCommandPort(),
		CommandProtocol:  p.CommandProtocol,
		Scopes:           p.ScopeIDs(),
		MissingKeys:      p.MissingConfigKeys(),
	})
}

// GET /api/v1/servers/:name/ports
func (s *Server) getServerPorts(c *gin.Context) {
	p, ok := s.profile(c)
	if !ok {
		return
	}
	ports, err := s.directory().Ports(p.Name())
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("SERVER_404", "Server not found", err.Error()))
		return
	}
	c.JSON(http.StatusOK, ports)
}

// GET /api/v1/servers/:name/commands?type=&enabled=
func (s *Server) listServerCommands(c *gin.Context) {
	p, ok := s.profile(c)
	if !ok {
		return
	}
	enabledOnly, _ := strconv.ParseBool(c.DefaultQuery("enabled", "false"))

	cmds := p.Commands.List(c.Query("type"), enabledOnly)
	out := make([]CommandView, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, commandView(cmd))
	}
	c.JSON(http.StatusOK, gin.H{"server": p.Name(), "commands": out})
}
