package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/spf13/cobra"
)

func newCodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "codes",
		Short: "List dispatch result codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tSUCCESS\tMESSAGE")
			for _, rc := range types.ResultCodes() {
				fmt.Fprintf(w, "%s\t%t\t%s\n", rc.Code(), rc.IsSuccess(), rc.Message())
			}
			return w.Flush()
		},
	}
}
