package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cswitch/internal/executor"
	"cswitch/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cswitch and claude versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := executor.FindExecutable()
			var claude string
			if err == nil {
				claude, err = version.Claude(cmd.Context(), path)
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.Report(claude, err))
			return nil
		},
	}
}
