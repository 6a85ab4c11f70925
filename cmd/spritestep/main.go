// Command spritestep is the entrypoint the persistent-step GitHub Actions
// invoke: begin resumes or creates the job's sprite, step runs a
// checkpointed command, end deletes the sprite, cleanup reaps leftovers.
package main

import (
	"os"

	"github.com/spritestep/spritestep/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
