package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/KevinKickass/dcscontrol/internal/auth"
	"github.com/KevinKickass/dcscontrol/internal/storage"
	"github.com/spf13/cobra"
)

func newOperatorCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage API operators",
	}
	cmd.AddCommand(newOperatorCreateCmd(opts))
	return cmd
}

func newOperatorCreateCmd(opts *options) *cobra.Command {
	var (
		role string
		acl  []string
	)

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an operator; the password is read from DCS_OPERATOR_PASSWORD",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("DCS_OPERATOR_PASSWORD")
			if len(password) < 8 {
				return errors.New("DCS_OPERATOR_PASSWORD must hold at least 8 characters")
			}
			switch role {
			case auth.RoleAdmin, auth.RoleOperator, auth.RoleViewer:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			grants, err := parseACL(acl)
			if err != nil {
				return err
			}

			cfg, err := opts.config()
			if err != nil {
				return err
			}
			logger := opts.logger()
			ctx := context.Background()

			db, err := storage.NewPostgresClient(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				return err
			}

			op, err := auth.NewService(db, cfg.Auth, logger).CreateOperator(ctx, args[0], password, role, grants)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created operator %s (%s) with role %s\n", op.Username, op.ID, op.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleOperator, "admin, operator or viewer")
	cmd.Flags().StringArrayVar(&acl, "acl", nil, "extra grant pattern=level, may repeat")
	return cmd
}

func parseACL(entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		pattern, level, ok := strings.Cut(e, "=")
		if !ok || strings.TrimSpace(pattern) == "" {
			return nil, fmt.Errorf("invalid acl entry %q: expected pattern=level", e)
		}
		out[strings.TrimSpace(pattern)] = strings.TrimSpace(level)
	}
	if _, err := auth.ParseGrants(out); err != nil {
		return nil, err
	}
	return out, nil
}
