// Package gha adapts between the GitHub Actions execution environment and
// the core packages: it marshals ambient workflow context into an explicit
// identity.ExecutionContext, writes step outputs and state through the
// platform's file-based carriers, and emits workflow commands. No core
// package imports this one.
package gha

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spritestep/spritestep/internal/identity"
)

// MatrixEnvVar carries the job's matrix as JSON. Action wrappers set it to
// `${{ toJSON(matrix) }}`; GitHub renders "null" for jobs without a matrix.
const MatrixEnvVar = "MATRIX_CONTEXT"

// ExecutionContext reads the GITHUB_* environment into an explicit
// execution context. It fails on missing required variables so a
// misconfigured invocation dies before any network call.
func ExecutionContext() (identity.ExecutionContext, error) {
	var ctx identity.ExecutionContext

	repository := os.Getenv("GITHUB_REPOSITORY")
	owner, repo, found := strings.Cut(repository, "/")
	if !found || owner == "" || repo == "" {
		return ctx, fmt.Errorf("GITHUB_REPOSITORY must be owner/repo, got %q", repository)
	}

	workflow := os.Getenv("GITHUB_WORKFLOW")
	if workflow == "" {
		return ctx, fmt.Errorf("GITHUB_WORKFLOW is not set")
	}
	runID := os.Getenv("GITHUB_RUN_ID")
	if runID == "" {
		return ctx, fmt.Errorf("GITHUB_RUN_ID is not set")
	}
	job := os.Getenv("GITHUB_JOB")
	if job == "" {
		return ctx, fmt.Errorf("GITHUB_JOB is not set")
	}

	runAttempt := 1
	if v := os.Getenv("GITHUB_RUN_ATTEMPT"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return ctx, fmt.Errorf("GITHUB_RUN_ATTEMPT is not a number: %q", v)
		}
		runAttempt = parsed
	}

	matrix, err := parseMatrix(os.Getenv(MatrixEnvVar))
	if err != nil {
		return ctx, err
	}

	return identity.ExecutionContext{
		Owner:      owner,
		Repo:       repo,
		Workflow:   workflow,
		RunID:      runID,
		Job:        job,
		Matrix:     matrix,
		RunAttempt: runAttempt,
	}, nil
}

// parseMatrix decodes the MATRIX_CONTEXT JSON. "null", "{}" and the empty
// string all mean no matrix.
func parseMatrix(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var matrix map[string]any
	if err := json.Unmarshal([]byte(raw), &matrix); err != nil {
		return nil, fmt.Errorf("%s is not valid JSON: %w", MatrixEnvVar, err)
	}
	if len(matrix) == 0 {
		return nil, nil
	}
	return matrix, nil
}
