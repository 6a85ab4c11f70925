// Package cli provides the spritestep command-line interface. Each
// subcommand is the entrypoint of one GitHub Action wrapper; the commands
// stay thin and delegate to the runner.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/spritestep/spritestep/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "spritestep",
	Short: "Persistent CI steps on Sprites",
	Long: `Spritestep checkpoints a CI job's sandbox after each successful step
and resumes from the last good checkpoint on rerun, skipping steps that
already completed.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logging.SetLevel(logging.LevelDebug)
		}
	},
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("spritestep version {{.Version}}\n")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
