package dcs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/KevinKickass/dcscontrol/internal/types"
	"go.uber.org/zap"
)

// DeviceFinder looks devices up by their transport unique id.
type DeviceFinder interface {
	DeviceByUniqueID(ctx context.Context, uniqueID string) (*types.Device, error)
}

// Directory maps server name to profile. It is populated once at startup
// and is safe for concurrent reads afterwards.
type Directory struct {
	mu       sync.RWMutex
	order    []string
	profiles map[string]*ServerProfile
	modules  *Modules
	logger   *zap.Logger
}

func NewDirectory(modules *Modules, logger *zap.Logger) *Directory {
	if modules == nil {
		modules = NewModules()
	}
	return &Directory{
		profiles: make(map[string]*ServerProfile),
		modules:  modules,
		logger:   logger,
	}
}

// Add registers p; the first registration of a name wins.
func (d *Directory) Add(p *ServerProfile) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.profiles[p.Name()]; exists {
		return false
	}
	d.profiles[p.Name()] = p
	d.order = append(d.order, p.Name())
	return true
}

// Get returns the profile for name.
func (d *Directory) Get(name string) (*ServerProfile, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, exists := d.profiles[name]
	return p, exists
}

// Lookup is Get that optionally logs a warning when name is unknown.
func (d *Directory) Lookup(name string, warn bool) *ServerProfile {
	p, ok := d.Get(name)
	if !ok && warn {
		d.logger.Warn("Server not found", zap.String("server", name))
	}
	return p
}

func (d *Directory) Has(name string) bool {
	_, ok := d.Get(name)
	return ok
}

// Modules returns the protocol module table backing this directory.
func (d *Directory) Modules() *Modules { return d.modules }

// IsInstalled reports whether the protocol module behind p is available.
func (d *Directory) IsInstalled(p *ServerProfile) bool {
	return p.Flags.Has(FlagModuleOptional) || d.modules.Installed(p.Module())
}

// List returns profiles in registration order, optionally only those whose
// protocol module is installed.
func (d *Directory) List(installedOnly bool) []*ServerProfile {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*ServerProfile, 0, len(d.order))
	for _, name := range d.order {
		p := d.profiles[name]
		if installedOnly && !d.IsInstalled(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// ServerPorts is the effective listen port view of one profile.
type ServerPorts struct {
	Server string `json:"server"`
	TCP    []int  `json:"tcp"`
	UDP    []int  `json:"udp"`
	SAT    []int  `json:"sat"`
}

// Ports returns the listen ports of a profile.
func (d *Directory) Ports(name string) (ServerPorts, error) {
	p, ok := d.Get(name)
	if !ok {
		return ServerPorts{}, fmt.Errorf("%w: %s", types.ErrServerNotFound, name)
	}
	return ServerPorts{
		Server: name,
		TCP:    p.TCPPorts.Ports(),
		UDP:    p.UDPPorts.Ports(),
		SAT:    p.SATPorts.Ports(),
	}, nil
}

// FindDevice resolves a raw device identifier by trying each profile's
// unique-id prefixes in registration order. The first device found wins.
func (d *Directory) FindDevice(ctx context.Context, finder DeviceFinder, rawID string) (*ServerProfile, *types.Device, error) {
	if rawID == "" {
		return nil, nil, types.ErrDeviceNotFound
	}
	for _, p := range d.List(false) {
		for _, pfx := range p.UniqueIDPrefixList() {
			dev, err := finder.DeviceByUniqueID(ctx, pfx+rawID)
			if err == nil && dev != nil {
				return p, dev, nil
			}
			if err != nil && !errors.Is(err, types.ErrDeviceNotFound) {
				return nil, nil, fmt.Errorf("device lookup %s%s: %w", pfx, rawID, err)
			}
		}
	}
	d.logger.Debug("Device not found for any server", zap.String("id", rawID))
	return nil, nil, types.ErrDeviceNotFound
}
