// Package runner orchestrates persistent CI steps: it derives the job's
// sandbox identity, ensures the sprite exists, skips steps that already
// have a checkpoint from this run, restores the last good checkpoint on
// rerun, and checkpoints after each successful step.
package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spritestep/spritestep/internal/api"
	"github.com/spritestep/spritestep/internal/identity"
	"github.com/spritestep/spritestep/internal/logging"
)

// SpriteAPI is the slice of the Sprites client the runner needs. It is an
// interface so tests drive the runner against a recorded fake.
type SpriteAPI interface {
	CreateOrGetSprite(ctx context.Context, name string) (*api.Sprite, error)
	DeleteSprite(ctx context.Context, name string) error
	ListCheckpoints(ctx context.Context, spriteName string) ([]*api.Checkpoint, error)
	CreateCheckpoint(ctx context.Context, spriteName, comment string) (string, error)
	RestoreCheckpoint(ctx context.Context, spriteName, checkpointID string) error
	Exec(ctx context.Context, spriteName, command string, opts api.ExecOptions) (*api.ExecResult, error)
}

// Options configure a Runner.
type Options struct {
	// RequestTimeout bounds CRUD calls. Zero means 30s.
	RequestTimeout time.Duration

	// StreamTimeout bounds checkpoint, restore and exec streams. Zero
	// means 10m.
	StreamTimeout time.Duration

	// Stdout and Stderr receive live command output. Nil means discard
	// (the accumulated output is still returned).
	Stdout io.Writer
	Stderr io.Writer

	// Logger defaults to the package default logger.
	Logger *logging.Logger
}

const (
	defaultRequestTimeout = 30 * time.Second
	defaultStreamTimeout  = 10 * time.Minute
)

// Runner drives the persistent-step lifecycle for one CI job.
type Runner struct {
	client         SpriteAPI
	spriteName     string
	runID          string
	jobKey         string
	requestTimeout time.Duration
	streamTimeout  time.Duration
	stdout         io.Writer
	stderr         io.Writer
	logger         *logging.Logger
}

// New derives the sandbox identity for execCtx and returns a Runner bound
// to it. Identity derivation failing is a fatal configuration error.
func New(client SpriteAPI, execCtx identity.ExecutionContext, opts Options) (*Runner, error) {
	spriteName, err := identity.SandboxName(execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sandbox name: %w", err)
	}
	jobKey, err := identity.JobKey(execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to derive job key: %w", err)
	}

	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.StreamTimeout == 0 {
		opts.StreamTimeout = defaultStreamTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Runner{
		client:         client,
		spriteName:     spriteName,
		runID:          execCtx.RunID,
		jobKey:         jobKey,
		requestTimeout: opts.RequestTimeout,
		streamTimeout:  opts.StreamTimeout,
		stdout:         opts.Stdout,
		stderr:         opts.Stderr,
		logger:         logger.With("sprite", spriteName),
	}, nil
}

// SpriteName returns the derived sandbox name.
func (r *Runner) SpriteName() string {
	return r.spriteName
}

// JobKey returns the derived checkpoint-matching key.
func (r *Runner) JobKey() string {
	return r.jobKey
}

// BeginResult reports what Begin found and did.
type BeginResult struct {
	// SpriteName is the derived sandbox name.
	SpriteName string

	// RestoredCheckpoint is the id of the checkpoint the sprite was
	// restored from, or "" for a fresh start.
	RestoredCheckpoint string
}

// Begin ensures the job's sprite exists and, on rerun, restores the most
// recent checkpoint this run/job lineage produced.
func (r *Runner) Begin(ctx context.Context) (*BeginResult, error) {
	crudCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	if _, err := r.client.CreateOrGetSprite(crudCtx, r.spriteName); err != nil {
		return nil, fmt.Errorf("failed to ensure sprite exists: %w", err)
	}

	last, err := r.lastCheckpoint(ctx)
	if err != nil {
		return nil, err
	}

	result := &BeginResult{SpriteName: r.spriteName}
	if last == "" {
		r.logger.Info("starting fresh, no previous checkpoint for this job")
		return result, nil
	}

	r.logger.Info("restoring previous checkpoint", "checkpoint", last)
	streamCtx, cancel := context.WithTimeout(ctx, r.streamTimeout)
	defer cancel()
	if err := r.client.RestoreCheckpoint(streamCtx, r.spriteName, last); err != nil {
		return nil, fmt.Errorf("failed to restore checkpoint %s: %w", last, err)
	}

	result.RestoredCheckpoint = last
	return result, nil
}

// StepResult reports what RunStep did.
type StepResult struct {
	// Skipped is true when a checkpoint for the step already existed and
	// the command was not run.
	Skipped bool

	// CheckpointID is the checkpoint covering this step: the pre-existing
	// one when skipped, the newly created one otherwise.
	CheckpointID string

	// ExitCode, Stdout and Stderr are the command's outcome. Unset when
	// the step was skipped.
	ExitCode int
	Stdout   string
	Stderr   string
}

// RunStep executes one persistent step. If the step already has a
// checkpoint from this run it is skipped; otherwise the command runs on
// the sprite and, on success, the sprite is checkpointed with the step's
// metadata comment. A failing command checkpoints nothing.
func (r *Runner) RunStep(ctx context.Context, stepKey, command, workdir string, env map[string]string) (*StepResult, error) {
	log := r.logger.With("step", stepKey)

	existing, err := r.findStepCheckpoint(ctx, stepKey)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		log.Info("step already completed, skipping", "checkpoint", existing)
		return &StepResult{Skipped: true, CheckpointID: existing}, nil
	}

	log.Info("running step", "command", command)
	streamCtx, cancel := context.WithTimeout(ctx, r.streamTimeout)
	result, err := r.client.Exec(streamCtx, r.spriteName, command, api.ExecOptions{
		Workdir: workdir,
		Env:     env,
		Stdout:  r.stdout,
		Stderr:  r.stderr,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to execute step %q: %w", stepKey, err)
	}

	stepResult := &StepResult{
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	if result.ExitCode != 0 {
		return stepResult, fmt.Errorf("step %q failed with exit code %d", stepKey, result.ExitCode)
	}

	comment := identity.FormatCheckpointComment(r.runID, r.jobKey, stepKey)
	checkpointCtx, cancel := context.WithTimeout(ctx, r.streamTimeout)
	defer cancel()
	checkpointID, err := r.client.CreateCheckpoint(checkpointCtx, r.spriteName, comment)
	if err != nil {
		return stepResult, fmt.Errorf("step %q succeeded but checkpointing failed: %w", stepKey, err)
	}

	log.Info("step checkpointed", "checkpoint", checkpointID)
	stepResult.CheckpointID = checkpointID
	return stepResult, nil
}

// End deletes the job's sprite.
func (r *Runner) End(ctx context.Context) error {
	crudCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	if err := r.client.DeleteSprite(crudCtx, r.spriteName); err != nil {
		return fmt.Errorf("failed to delete sprite: %w", err)
	}
	return nil
}

// findStepCheckpoint returns the id of this step's checkpoint, or "".
func (r *Runner) findStepCheckpoint(ctx context.Context, stepKey string) (string, error) {
	checkpoints, err := r.listCheckpoints(ctx)
	if err != nil {
		return "", err
	}
	return identity.FindCheckpointForStep(checkpoints, r.runID, r.jobKey, stepKey), nil
}

// lastCheckpoint returns the most recent checkpoint for this run/job, or "".
func (r *Runner) lastCheckpoint(ctx context.Context) (string, error) {
	checkpoints, err := r.listCheckpoints(ctx)
	if err != nil {
		return "", err
	}
	return identity.FindLastCheckpointForJob(checkpoints, r.runID, r.jobKey), nil
}

func (r *Runner) listCheckpoints(ctx context.Context) ([]identity.Checkpoint, error) {
	crudCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	remote, err := r.client.ListCheckpoints(crudCtx, r.spriteName)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	checkpoints := make([]identity.Checkpoint, 0, len(remote))
	for _, cp := range remote {
		checkpoints = append(checkpoints, identity.Checkpoint{
			ID:         cp.ID,
			CreateTime: cp.CreateTime,
			Comment:    cp.Comment,
		})
	}
	return checkpoints, nil
}
