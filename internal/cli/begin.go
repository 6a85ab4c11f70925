package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spritestep/spritestep/internal/gha"
)

var beginCmd = &cobra.Command{
	Use:   "begin",
	Short: "Ensure the job's sprite exists and resume from its last checkpoint",
	Long: `Begin derives the job's sandbox identity from the workflow context,
creates the sprite if this is the first attempt, and restores the most
recent checkpoint this job produced on a previous attempt.

Outputs: sprite-name, restored-checkpoint (empty on a fresh start).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := newRunner()
		if err != nil {
			return err
		}

		result, err := r.Begin(cmd.Context())
		if err != nil {
			gha.Error("begin failed: %v", err)
			return err
		}

		if result.RestoredCheckpoint != "" {
			fmt.Printf("Resumed %s from checkpoint %s\n", result.SpriteName, result.RestoredCheckpoint)
		} else {
			fmt.Printf("Started %s fresh\n", result.SpriteName)
		}

		if err := gha.SetOutput("sprite-name", result.SpriteName); err != nil {
			return err
		}
		if err := gha.SetOutput("restored-checkpoint", result.RestoredCheckpoint); err != nil {
			return err
		}
		return gha.SaveState("sprite-name", result.SpriteName)
	},
}

func init() {
	rootCmd.AddCommand(beginCmd)
}
