package main

import (
	"context"
	"fmt"

	"github.com/KevinKickass/dcscontrol/internal/audit"
	"github.com/KevinKickass/dcscontrol/internal/dispatch"
	"github.com/KevinKickass/dcscontrol/internal/sms"
	"github.com/KevinKickass/dcscontrol/internal/storage"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/spf13/cobra"
)

type deviceFlags struct {
	account string
	device  string
}

func (d *deviceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.account, "account", "", "account id of the target device")
	cmd.Flags().StringVar(&d.device, "device", "", "device id of the target device")
}

// bare builds a device from the flags alone.
func (d *deviceFlags) bare() *types.Device {
	if d.account == "" && d.device == "" {
		return nil
	}
	return &types.Device{Account: types.Account{ID: d.account}, ID: d.device}
}

func printResult(cmd *cobra.Command, res types.Result) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", res.Code.Code(), res.Message)
	if res.Command != "" {
		fmt.Fprintf(out, "command: %s\n", res.Command)
	}
	if res.Transport != "" {
		fmt.Fprintf(out, "transport: %s\n", res.Transport)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("dispatch failed: %s", res.Code)
	}
	return nil
}

func newRenderCmd(opts *options) *cobra.Command {
	var dev deviceFlags

	cmd := &cobra.Command{
		Use:   "render <server> <command> [args...]",
		Short: "Render a command string without sending it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dir, _, err := opts.load()
			if err != nil {
				return err
			}
			engine := dispatch.NewEngine(dir, dispatch.Deps{}, dispatch.Options{
				DefaultHost: cfg.Dispatch.DefaultHost,
				Timeout:     cfg.Dispatch.Timeout,
			}, opts.logger())

			_, res := engine.Render(args[0], args[1], args[2:], dev.bare())
			return printResult(cmd, res)
		},
	}
	dev.register(cmd)
	return cmd
}

func newDispatchCmd(opts *options) *cobra.Command {
	var (
		dev     deviceFlags
		cmdType string
		useDB   bool
	)

	cmd := &cobra.Command{
		Use:   "dispatch <server> <command> [args...]",
		Short: "Send a command to a device through its DCS",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dir, _, err := opts.load()
			if err != nil {
				return err
			}
			logger := opts.logger()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			deps := dispatch.Deps{}
			device := dev.bare()

			if useDB {
				db, err := storage.NewPostgresClient(ctx, cfg.Database, logger)
				if err != nil {
					return err
				}
				defer db.Close()

				device, err = db.DeviceByID(ctx, dev.account, dev.device)
				if err != nil {
					return fmt.Errorf("device %s/%s: %w", dev.account, dev.device, err)
				}
				deps.Store = db
				deps.Audit = audit.NewPostgresSink(db)
			}

			if cfg.SMS.Enabled {
				gw, err := sms.NewGateway(cfg.SMS, logger)
				if err != nil {
					return err
				}
				defer gw.Close()
				deps.SMS = gw
			}

			engine := dispatch.NewEngine(dir, deps, dispatch.Options{
				DefaultHost: cfg.Dispatch.DefaultHost,
				Timeout:     cfg.Dispatch.Timeout,
			}, logger)

			res := engine.Dispatch(ctx, dispatch.Request{
				Server:      args[0],
				Device:      device,
				Command:     args[1],
				Args:        args[2:],
				CmdType:     cmdType,
				RequestedBy: "dcsctl",
			})
			return printResult(cmd, res)
		},
	}
	dev.register(cmd)
	cmd.Flags().StringVar(&cmdType, "type", "", "command context type")
	cmd.Flags().BoolVar(&useDB, "db", false, "resolve the device and record the dispatch in the database")
	return cmd
}
