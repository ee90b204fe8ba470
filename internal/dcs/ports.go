package dcs

import (
	"go.uber.org/zap"
)

// Transport names used by the port registry.
const (
	TransportTCP = "tcp"
	TransportUDP = "udp"
)

// PortConflict records two distinct profiles claiming the same port.
type PortConflict struct {
	Transport string `json:"transport"`
	Port      int    `json:"port"`
	Owner     string `json:"owner"`
	Claimant  string `json:"claimant"`
}

// PortRegistry tracks port ownership for the duration of one load pass.
type PortRegistry struct {
	tcp       map[int]string
	udp       map[int]string
	conflicts []PortConflict
	logger    *zap.Logger
}

func NewPortRegistry(logger *zap.Logger) *PortRegistry {
	return &PortRegistry{
		tcp:    make(map[int]string),
		udp:    make(map[int]string),
		logger: logger,
	}
}

// Claim records that server listens on transport/port. A claim on a port
// owned by a different server is recorded as a conflict (and logged when
// warn is set); the first owner keeps the entry.
func (r *PortRegistry) Claim(transport string, port int, server string, warn bool) bool {
	if port <= 0 {
		return true
	}
	owner, taken := r.Owner(transport, port)
	if !taken {
		r.owners(transport)[port] = server
		return true
	}
	if owner == server {
		return true
	}

	c := PortConflict{Transport: transport, Port: port, Owner: owner, Claimant: server}
	r.conflicts = append(r.conflicts, c)
	if warn {
		r.logger.Warn("Port conflict",
			zap.String("transport", transport),
			zap.Int("port", port),
			zap.String("owner", owner),
			zap.String("server", server))
	}
	return false
}

// ClaimAll registers every TCP and UDP port of p.
func (r *PortRegistry) ClaimAll(p *ServerProfile, warn bool) {
	for _, b := range p.TCPPorts {
		r.Claim(TransportTCP, b.Port, p.Name(), warn)
	}
	for _, b := range p.UDPPorts {
		r.Claim(TransportUDP, b.Port, p.Name(), warn)
	}
}

// Owner returns the profile that first claimed a port.
func (r *PortRegistry) Owner(transport string, port int) (string, bool) {
	name, ok := r.owners(transport)[port]
	return name, ok
}

func (r *PortRegistry) owners(transport string) map[int]string {
	if transport == TransportUDP {
		return r.udp
	}
	return r.tcp
}

func (r *PortRegistry) Conflicts() []PortConflict {
	return append([]PortConflict(nil), r.conflicts...)
}
