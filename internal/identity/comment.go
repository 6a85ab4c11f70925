package identity

import (
	"sort"
	"strings"
	"time"
)

// CheckpointMetadata is the structured content embedded in a checkpoint
// comment, linking the checkpoint to the run, job lineage and step that
// produced it.
type CheckpointMetadata struct {
	RunID   string
	JobKey  string
	StepKey string
}

// Checkpoint is the view of a remote checkpoint the matching functions
// need: its identifier, creation time, and comment.
type Checkpoint struct {
	ID         string
	CreateTime time.Time
	Comment    string
}

// FormatCheckpointComment renders checkpoint metadata as the comment string
// stored on the remote checkpoint: "ghrun=<runID>;job=<jobKey>;step=<stepKey>".
//
// The grammar defines no escaping: values containing ';' or '=' would make
// the comment unparseable. The hash-based job keys and normalized run ids
// this package produces never contain either character; caller-supplied
// step keys are expected to follow the same restriction.
func FormatCheckpointComment(runID, jobKey, stepKey string) string {
	return "ghrun=" + runID + ";job=" + jobKey + ";step=" + stepKey
}

// ParseCheckpointComment parses a comment produced by
// FormatCheckpointComment. It returns nil for anything that does not match
// the exact grammar, including the empty string; a foreign comment is an
// ordinary case for callers, never an error.
func ParseCheckpointComment(comment string) *CheckpointMetadata {
	if comment == "" {
		return nil
	}

	parts := strings.Split(comment, ";")
	if len(parts) != 3 {
		return nil
	}

	runID, ok := strings.CutPrefix(parts[0], "ghrun=")
	if !ok {
		return nil
	}
	jobKey, ok := strings.CutPrefix(parts[1], "job=")
	if !ok {
		return nil
	}
	stepKey, ok := strings.CutPrefix(parts[2], "step=")
	if !ok {
		return nil
	}

	return &CheckpointMetadata{RunID: runID, JobKey: jobKey, StepKey: stepKey}
}

// FindCheckpointForStep returns the id of the first checkpoint in list
// order whose comment matches runID, jobKey and stepKey exactly, or "" if
// none matches. First match wins: duplicates should not exist, but can
// under rerun races, and the list order is the API's creation order.
func FindCheckpointForStep(checkpoints []Checkpoint, runID, jobKey, stepKey string) string {
	for _, cp := range checkpoints {
		meta := ParseCheckpointComment(cp.Comment)
		if meta == nil {
			continue
		}
		if meta.RunID == runID && meta.JobKey == jobKey && meta.StepKey == stepKey {
			return cp.ID
		}
	}
	return ""
}

// FindLastCheckpointForJob returns the id of the most recently created
// checkpoint matching runID and jobKey, or "" if none matches. Recency is
// by CreateTime, not list position.
func FindLastCheckpointForJob(checkpoints []Checkpoint, runID, jobKey string) string {
	matches := make([]Checkpoint, 0, len(checkpoints))
	for _, cp := range checkpoints {
		meta := ParseCheckpointComment(cp.Comment)
		if meta == nil {
			continue
		}
		if meta.RunID == runID && meta.JobKey == jobKey {
			matches = append(matches, cp)
		}
	}
	if len(matches) == 0 {
		return ""
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreateTime.After(matches[j].CreateTime)
	})
	return matches[0].ID
}
