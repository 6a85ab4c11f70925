package cli

import (
	"fmt"
	"os"

	"github.com/spritestep/spritestep/internal/api"
	"github.com/spritestep/spritestep/internal/config"
	"github.com/spritestep/spritestep/internal/gha"
	"github.com/spritestep/spritestep/internal/runner"
)

// newRunner wires config, workflow context, API client and runner for the
// lifecycle commands. The token is registered with the runner's log
// masking before the client can make any request.
func newRunner() (*runner.Runner, *config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to determine working directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, nil, err
	}
	gha.MaskSecret(cfg.Token)

	execCtx, err := gha.ExecutionContext()
	if err != nil {
		return nil, nil, err
	}

	client := newClient(cfg)

	r, err := runner.New(client, execCtx, runner.Options{
		RequestTimeout: cfg.RequestTimeout,
		StreamTimeout:  cfg.StreamTimeout,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
	})
	if err != nil {
		return nil, nil, err
	}
	return r, cfg, nil
}

// newClient builds the API client from config.
func newClient(cfg *config.Config) *api.Client {
	opts := []api.Option{api.WithMaxRetries(cfg.MaxRetries)}
	if cfg.BaseURL != "" {
		opts = append(opts, api.WithBaseURL(cfg.BaseURL))
	}
	return api.New(cfg.Token, opts...)
}
