package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spritestep/spritestep/internal/gha"
)

var (
	stepRun     string
	stepWorkdir string
	stepEnv     []string
)

var stepCmd = &cobra.Command{
	Use:   "step <key>",
	Short: "Run a persistent step, skipping it if already checkpointed",
	Long: `Step runs a command on the job's sprite. If a checkpoint for the step
key already exists from this run, the command is skipped; otherwise the
command runs and, on success, the sprite is checkpointed.

Outputs: skipped, checkpoint-id, exit-code.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stepKey := args[0]
		if strings.ContainsAny(stepKey, ";=") {
			return fmt.Errorf("step key %q must not contain ';' or '='", stepKey)
		}

		env, err := parseEnvFlags(stepEnv)
		if err != nil {
			return err
		}

		r, _, err := newRunner()
		if err != nil {
			return err
		}

		result, runErr := r.RunStep(cmd.Context(), stepKey, stepRun, stepWorkdir, env)
		if result != nil {
			if err := gha.SetOutput("skipped", strconv.FormatBool(result.Skipped)); err != nil {
				return err
			}
			if err := gha.SetOutput("checkpoint-id", result.CheckpointID); err != nil {
				return err
			}
			if err := gha.SetOutput("exit-code", strconv.Itoa(result.ExitCode)); err != nil {
				return err
			}
		}
		if runErr != nil {
			gha.Error("step %s failed: %v", stepKey, runErr)
			return runErr
		}

		if result.Skipped {
			fmt.Printf("Step %s already completed (checkpoint %s), skipped\n", stepKey, result.CheckpointID)
		} else {
			fmt.Printf("Step %s completed, checkpoint %s\n", stepKey, result.CheckpointID)
		}
		return nil
	},
}

// parseEnvFlags converts repeated KEY=VALUE flags into a map.
func parseEnvFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid env flag %q, expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}

func init() {
	stepCmd.Flags().StringVar(&stepRun, "run", "", "command to execute on the sprite")
	stepCmd.Flags().StringVar(&stepWorkdir, "workdir", "", "working directory for the command")
	stepCmd.Flags().StringArrayVar(&stepEnv, "env", nil, "environment variable KEY=VALUE (repeatable)")
	stepCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(stepCmd)
}
