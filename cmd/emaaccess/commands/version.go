package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-access/cmd/emaaccess/internal/build"
)

func newVersionCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.String())
			if root.verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "  go:     %s\n", runtime.Version())
			}
		},
	}
}
