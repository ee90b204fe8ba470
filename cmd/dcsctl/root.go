package main

import (
	"github.com/KevinKickass/dcscontrol/internal/config"
	"github.com/KevinKickass/dcscontrol/internal/dcs"
	"github.com/KevinKickass/dcscontrol/internal/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	configPath string
	dcsConfig  string
	filter     string
	properties []string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "dcsctl",
		Short:         "Inspect DCS server configuration and dispatch commands",
		Long:          "dcsctl loads the DCS server declarations the control plane uses, reports ports and conflicts, and renders or sends device commands.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "server config file (defaults apply when empty)")
	pf.StringVarP(&opts.dcsConfig, "dcs-config", "f", "", "DCS server declaration file, overrides dcs.config_file")
	pf.StringVar(&opts.filter, "server", "", "load only this server")
	pf.StringArrayVarP(&opts.properties, "property", "D", nil, "process property key=value, may repeat")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log loader diagnostics")

	cmd.AddCommand(
		newServersCmd(opts),
		newPortsCmd(opts),
		newCheckCmd(opts),
		newRenderCmd(opts),
		newDispatchCmd(opts),
		newOperatorCmd(opts),
		newCodesCmd(),
	)
	return cmd
}

func (o *options) config() (*config.Config, error) {
	cfg := &config.Config{}
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.dcsConfig != "" {
		cfg.DCS.ConfigFile = o.dcsConfig
	}
	if o.filter != "" {
		cfg.DCS.Filter = o.filter
	}
	// later entries win in PropertyMap
	cfg.DCS.Properties = append(cfg.DCS.Properties, o.properties...)
	return cfg, nil
}

func (o *options) logger() *zap.Logger {
	level := "error"
	if o.verbose {
		level = "debug"
	}
	logger, err := config.LogConfig{Level: level, Development: true}.NewLogger()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (o *options) load() (*config.Config, *dcs.Directory, *dcs.LoadResult, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, nil, err
	}
	dir, res, err := system.LoadDirectory(cfg.DCS, dcs.NewModules(), o.logger())
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, dir, res, nil
}
