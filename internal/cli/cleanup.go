package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spritestep/spritestep/internal/config"
)

var (
	cleanupPrefix string
	cleanupMaxAge time.Duration
	cleanupForce  bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete sprites left behind by finished runs",
	Long: `Cleanup lists sprites matching a name prefix and deletes the ones older
than the retention threshold. Without --force it only reports what would
be deleted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to determine working directory: %w", err)
		}
		cfg, err := config.Load(cwd)
		if err != nil {
			return err
		}
		client := newClient(cfg)

		sprites, err := client.ListAllSprites(cmd.Context(), cleanupPrefix)
		if err != nil {
			return fmt.Errorf("failed to list sprites: %w", err)
		}

		cutoff := time.Now().Add(-cleanupMaxAge)
		var stale []string
		for _, s := range sprites {
			if !s.CreatedAt.IsZero() && s.CreatedAt.Before(cutoff) {
				stale = append(stale, s.Name)
			}
		}

		if len(stale) == 0 {
			fmt.Printf("No sprites matching %q older than %v\n", cleanupPrefix, cleanupMaxAge)
			return nil
		}

		fmt.Printf("Found %d sprite(s) matching %q older than %v:\n", len(stale), cleanupPrefix, cleanupMaxAge)
		for _, name := range stale {
			fmt.Printf("  %s\n", name)
		}

		if !cleanupForce {
			fmt.Println("Dry run - nothing deleted. Use --force to delete.")
			return nil
		}

		var failed []string
		deleted := 0
		for _, name := range stale {
			if err := client.DeleteSprite(cmd.Context(), name); err != nil {
				failed = append(failed, fmt.Sprintf("  %s: %v", name, err))
				continue
			}
			fmt.Printf("  Deleted %s\n", name)
			deleted++
		}

		fmt.Printf("Deleted %d/%d sprites\n", deleted, len(stale))
		if len(failed) > 0 {
			return fmt.Errorf("failed to delete some sprites:\n%s", strings.Join(failed, "\n"))
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupPrefix, "prefix", "gh-", "only consider sprites with this name prefix")
	cleanupCmd.Flags().DurationVar(&cleanupMaxAge, "max-age", 24*time.Hour, "delete sprites older than this")
	cleanupCmd.Flags().BoolVar(&cleanupForce, "force", false, "actually delete (default is dry run)")
	rootCmd.AddCommand(cleanupCmd)
}
