package interfaces

import (
	"context"

	"github.com/KevinKickass/dcscontrol/internal/config"
	"github.com/KevinKickass/dcscontrol/internal/dcs"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State         string             `json:"state"`
	Error         string             `json:"error,omitempty"`
	Profiles      int                `json:"profiles"`
	Installed     int                `json:"installed"`
	ConfigFiles   []string           `json:"config_files"`
	PortConflicts []dcs.PortConflict `json:"port_conflicts"`
	LiveClients   int                `json:"live_clients"`
	StartedAt     int64              `json:"started_at"`
}

type LifecycleManager interface {
	Config() *config.Config
	Directory() *dcs.Directory
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
