package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var extended bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !extended {
				_, err := fmt.Fprintf(out, "tokengate %s\n", version)
				return err
			}
			_, err := fmt.Fprintf(out, "tokengate %s\nCommit: %s\nBuilt: %s\nGo: %s\n",
				version, gitCommit, buildTime, runtime.Version())
			return err
		},
	}

	cmd.Flags().BoolVarP(&extended, "extended", "e", false, "show commit, build time and Go version")
	return cmd
}
