// Package commands implements the emaaccess command tree.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	verbose bool
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "emaaccess",
		Short: "Spoken feedback for UI event streams",
		Long: `emaaccess - turns UI events into speech, earcons and haptics.

Events go through rule files, a coalescing queue and a speech controller.
Key chords move a reading cursor over the UI tree.

Examples:
  # Replay a scripted session through the console engine
  emaaccess replay --config ema.toml session.yaml

  # Print the schema rule files are validated against
  emaaccess schema`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(
		newReplayCommand(),
		newSchemaCommand(),
		newVersionCommand(opts),
	)
	return cmd
}

// Execute runs the root command against the process arguments.
func Execute() error {
	cmd := NewRootCommand()
	cmd.SetOut(os.Stdout)
	return cmd.Execute()
}
