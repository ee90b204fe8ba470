package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/KevinKickass/dcscontrol/internal/dcs"
	"github.com/spf13/cobra"
)

func newServersCmd(opts *options) *cobra.Command {
	var installed bool

	cmd := &cobra.Command{
		Use:   "servers [name]",
		Short: "List loaded server profiles or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, dir, _, err := opts.load()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return showServer(cmd, dir, args[0])
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMODULE\tINSTALLED\tCOMMANDS\tDESCRIPTION")
			for _, p := range dir.List(installed) {
				fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\n",
					p.Name(), p.Module(), dir.IsInstalled(p), p.Commands.Len(), p.Description())
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&installed, "installed", false, "only servers whose protocol module is installed")
	return cmd
}

func showServer(cmd *cobra.Command, dir *dcs.Directory, name string) error {
	p, ok := dir.Get(name)
	if !ok {
		return fmt.Errorf("server %q not found", name)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:         %s\n", p.Name())
	fmt.Fprintf(out, "Description:  %s\n", p.Description())
	fmt.Fprintf(out, "Source:       %s\n", p.SourceFile())
	fmt.Fprintf(out, "Module:       %s (installed: %t)\n", p.Module(), dir.IsInstalled(p))
	fmt.Fprintf(out, "Flags:        %s\n", strings.Join(p.Flags.Names(), ", "))
	fmt.Fprintf(out, "ID prefixes:  %q\n", p.UniqueIDPrefixList())
	if port := p.ResolvedCommandPort(); port > 0 {
		fmt.Fprintf(out, "Command port: %d\n", port)
	}
	if missing := p.MissingConfigKeys(); len(missing) > 0 {
		fmt.Fprintf(out, "Missing keys: %s\n", strings.Join(missing, ", "))
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMMAND\tENABLED\tPROTOCOL\tACL\tACCESS\tTEMPLATE")
	for _, c := range p.Commands.List("", false) {
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\t%s\n",
			c.Name, c.Enabled, c.Protocol, c.ACL, c.Access, c.Template)
	}
	return w.Flush()
}

func newPortsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ports [name]",
		Short: "Show listen ports per server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, dir, _, err := opts.load()
			if err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				for _, p := range dir.List(false) {
					names = append(names, p.Name())
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SERVER\tTCP\tUDP\tSAT")
			for _, name := range names {
				ports, err := dir.Ports(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, joinInts(ports.TCP), joinInts(ports.UDP), joinInts(ports.SAT))
			}
			return w.Flush()
		},
	}
}

func joinInts(ns []int) string {
	if len(ns) == 0 {
		return "-"
	}
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
