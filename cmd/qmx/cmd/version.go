package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tobil/qmx/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if verbose {
				cmd.Println(version.String())
			} else {
				cmd.Println(version.Short())
			}
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include commit, date, and go version")
	return cmd
}
