package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spritestep/spritestep/internal/api"
	"github.com/spritestep/spritestep/internal/gha"
)

var endCmd = &cobra.Command{
	Use:   "end",
	Short: "Delete the job's sprite",
	Long: `End deletes the sandbox once the job no longer needs it. A sprite that
is already gone is not an error: reruns and concurrent cleanup make that
an ordinary case.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := newRunner()
		if err != nil {
			return err
		}

		if err := r.End(cmd.Context()); err != nil {
			if errors.Is(err, api.ErrNotFound) {
				fmt.Printf("Sprite %s already deleted\n", r.SpriteName())
				return nil
			}
			gha.Error("end failed: %v", err)
			return err
		}

		fmt.Printf("Deleted sprite %s\n", r.SpriteName())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(endCmd)
}
