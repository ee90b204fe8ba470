package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCheckCmd(opts *options) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load the configuration tree and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, dir, res, err := opts.load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Files loaded:   %d\n", len(res.Files))
			for _, f := range res.Files {
				fmt.Fprintf(out, "  %s\n", f)
			}
			fmt.Fprintf(out, "Servers:        %d\n", dir.Len())
			fmt.Fprintf(out, "Modules:        %s\n", strings.Join(dir.Modules().IDs(), ", "))

			problems := 0
			for _, c := range res.Conflicts {
				fmt.Fprintf(out, "CONFLICT %s port %d: owned by %s, claimed by %s\n", c.Transport, c.Port, c.Owner, c.Claimant)
				problems++
			}
			for _, p := range dir.List(false) {
				if !dir.IsInstalled(p) {
					fmt.Fprintf(out, "WARNING %s: protocol module %q not installed\n", p.Name(), p.Module())
				}
				for _, key := range p.MissingConfigKeys() {
					fmt.Fprintf(out, "WARNING %s: missing configuration key %q\n", p.Name(), key)
					if strict {
						problems++
					}
				}
			}

			if problems > 0 {
				return fmt.Errorf("%d problem(s) found", problems)
			}
			fmt.Fprintln(out, "OK")
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat missing configuration keys as errors")
	return cmd
}
