// Package identity derives deterministic sandbox names and checkpoint
// matching keys from a CI job's execution context. Every function here is
// pure: the same context always produces the same strings, with no ambient
// state and no I/O. Name derivation is the only linkage between a rerun and
// the sandbox its previous attempt used, so determinism is load-bearing.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MaxSandboxNameLength bounds derived sandbox names. 63 is the DNS label
// limit, the strictest bound any hosting platform applies to resource names.
const MaxSandboxNameLength = 63

// digestLength is the number of hex characters kept from a sha256 digest
// when it is appended as a disambiguating suffix.
const digestLength = 8

// ExecutionContext captures the CI coordinates of one job invocation. It is
// constructed once, from the platform's ambient context, and passed
// explicitly into every derivation; the core never reads globals.
type ExecutionContext struct {
	Owner      string
	Repo       string
	Workflow   string
	RunID      string
	Job        string
	Matrix     map[string]any
	RunAttempt int
}

// SandboxName derives the deterministic sandbox name for the context.
// The name is built from "gh", owner, repo, workflow, run id and job, each
// normalized to lowercase alphanumerics and hyphens, joined with "-". When
// the job runs under a matrix, an 8-hex digest of the matrix (serialized
// with sorted keys, so key order is irrelevant) is appended to keep matrix
// cells apart. Names longer than MaxSandboxNameLength are truncated and
// suffixed with an 8-hex digest of the full untruncated name.
//
// RunAttempt is deliberately excluded: reruns of the same job must map to
// the same sandbox.
func SandboxName(ctx ExecutionContext) (string, error) {
	parts := []string{
		"gh",
		normalize(ctx.Owner),
		normalize(ctx.Repo),
		normalize(ctx.Workflow),
		ctx.RunID,
		normalize(ctx.Job),
	}

	if len(ctx.Matrix) > 0 {
		digest, err := matrixDigest(ctx.Matrix)
		if err != nil {
			return "", err
		}
		parts = append(parts, digest)
	}

	name := strings.Join(parts, "-")

	if len(name) > MaxSandboxNameLength {
		// Keep a collision-resistant suffix derived from the full name so
		// two long contexts that truncate to the same base stay distinct.
		base := name[:MaxSandboxNameLength-digestLength-1]
		base = strings.TrimRight(base, "-")
		name = base + "-" + shortDigest(name)
	}

	return name, nil
}

// JobKey derives the checkpoint-matching discriminator for the context:
// the job name plus, for matrix jobs, an 8-hex digest of the matrix. Unlike
// SandboxName it is never used as a platform resource identifier, so it has
// no length cap and the job name is not normalized.
func JobKey(ctx ExecutionContext) (string, error) {
	if len(ctx.Matrix) == 0 {
		return ctx.Job, nil
	}
	digest, err := matrixDigest(ctx.Matrix)
	if err != nil {
		return "", err
	}
	return ctx.Job + "-" + digest, nil
}

// normalize lowercases s, replaces every character outside [a-z0-9-] with a
// hyphen, collapses hyphen runs, and trims leading/trailing hyphens.
func normalize(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}

	out := b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	return strings.Trim(out, "-")
}

// matrixDigest serializes the matrix with sorted keys and returns an 8-hex
// digest, so permutations of the same matrix hash identically. A value the
// JSON encoder rejects is a configuration error for the caller.
func matrixDigest(matrix map[string]any) (string, error) {
	keys := make([]string, 0, len(matrix))
	for k := range matrix {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		val, err := json.Marshal(matrix[k])
		if err != nil {
			return "", fmt.Errorf("matrix value for %q is not serializable: %w", k, err)
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.Write(val)
	}

	return shortDigest(b.String()), nil
}

// shortDigest returns the first 8 hex characters of sha256(s).
func shortDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:digestLength]
}
