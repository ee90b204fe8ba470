package system

import (
	"fmt"

	"github.com/KevinKickass/dcscontrol/internal/config"
	"github.com/KevinKickass/dcscontrol/internal/dcs"
	"github.com/KevinKickass/dcscontrol/internal/props"
	"go.uber.org/zap"
)

// LoadDirectory runs one load pass over cfg.ConfigFile and registers the
// resulting profiles. Process properties seed the global scope, so they
// take precedence over the global-property block of the file.
func LoadDirectory(cfg config.DCSConfig, modules *dcs.Modules, logger *zap.Logger) (*dcs.Directory, *dcs.LoadResult, error) {
	overrides, err := cfg.PropertyMap()
	if err != nil {
		return nil, nil, err
	}
	global := props.NewScopeFrom("global", overrides)

	loader, err := dcs.NewLoader(global, cfg.Filter, logger)
	if err != nil {
		return nil, nil, err
	}

	res, err := loader.LoadFile(cfg.ConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load dcs config %s: %w", cfg.ConfigFile, err)
	}

	dir := dcs.NewDirectory(modules, logger)
	added := res.Populate(dir)
	if added < len(res.Profiles) {
		logger.Warn("Duplicate server profiles ignored",
			zap.Int("loaded", len(res.Profiles)),
			zap.Int("registered", added))
	}

	for _, p := range dir.List(false) {
		if !dir.IsInstalled(p) {
			logger.Warn("Protocol module not installed",
				zap.String("server", p.Name()),
				zap.String("module", p.Module()))
		}
		if missing := p.MissingConfigKeys(); len(missing) > 0 {
			logger.Warn("Server profile missing configuration keys",
				zap.String("server", p.Name()),
				zap.Strings("keys", missing))
		}
	}

	return dir, res, nil
}
