package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// streamEvent is one NDJSON line of a long-running operation's progress
// stream. Checkpoint and restore streams emit info/error/complete events;
// exec streams emit stdout/stderr/exit events.
type streamEvent struct {
	Type  string `json:"type"`
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  *int   `json:"code,omitempty"`
	Time  string `json:"time,omitempty"`
}

const (
	eventInfo     = "info"
	eventError    = "error"
	eventComplete = "complete"
	eventStdout   = "stdout"
	eventStderr   = "stderr"
	eventExit     = "exit"
)

// checkpointIDPattern extracts the checkpoint identifier from the
// complete event's message, e.g. "Checkpoint v8 created".
var checkpointIDPattern = regexp.MustCompile(`Checkpoint (\S+) created`)

// eventScanner reads NDJSON events off a streaming response body. The
// sequence is finite and forward-only: it ends when the server closes the
// connection, and a retry means issuing a fresh HTTP call.
type eventScanner struct {
	scanner *bufio.Scanner
}

func newEventScanner(r io.Reader) *eventScanner {
	s := bufio.NewScanner(r)
	// Command output lines can be large.
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &eventScanner{scanner: s}
}

// next returns the next line of the stream: the parsed event if the line
// is valid JSON, otherwise the raw line with a nil event. ok is false once
// the stream is exhausted.
func (s *eventScanner) next() (event *streamEvent, raw string, ok bool) {
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Type == "" {
			return nil, line, true
		}
		return &ev, line, true
	}
	return nil, "", false
}

func (s *eventScanner) err() error {
	return s.scanner.Err()
}

// openStream issues a streaming POST and returns the response body. The
// retry policy applies to establishing the connection only; once the
// stream is open a broken connection surfaces to the caller.
func (c *Client) openStream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, func() (*http.Request, error) {
		req, err := c.newRequest(ctx, http.MethodPost, path, payload)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/x-ndjson")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// CreateCheckpoint snapshots the sprite's current state, tagging the
// checkpoint with comment. It consumes the server's progress stream to
// completion and returns the new checkpoint's id, extracted from the
// terminal complete event. A stream that ends without a complete event is
// a protocol error, never a silent success.
func (c *Client) CreateCheckpoint(ctx context.Context, spriteName, comment string) (string, error) {
	path := "/sprites/" + url.PathEscape(spriteName) + "/checkpoint"
	stream, err := c.openStream(ctx, path, createCheckpointRequest{Comment: comment})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	log := c.logger.With("sprite", spriteName)
	events := newEventScanner(stream)

	for {
		ev, raw, ok := events.next()
		if !ok {
			break
		}
		if ev == nil {
			log.Debug("checkpoint stream", "line", raw)
			continue
		}

		switch ev.Type {
		case eventInfo:
			log.Info("checkpoint progress", "message", ev.Data)
		case eventError:
			return "", &StreamError{Op: "checkpoint", Message: ev.Error}
		case eventComplete:
			match := checkpointIDPattern.FindStringSubmatch(ev.Data)
			if match == nil {
				return "", &StreamError{Op: "checkpoint", Message: fmt.Sprintf("no checkpoint id in complete event: %q", ev.Data)}
			}
			return match[1], nil
		}
	}

	if err := events.err(); err != nil {
		return "", &StreamError{Op: "checkpoint", Message: fmt.Sprintf("stream read failed: %v", err)}
	}
	return "", &StreamError{Op: "checkpoint", Message: "no checkpoint id found in stream"}
}

// RestoreCheckpoint restores the sprite to the given checkpoint. Success
// is signaled by the stream's complete event; anything else is a failure.
func (c *Client) RestoreCheckpoint(ctx context.Context, spriteName, checkpointID string) error {
	path := "/sprites/" + url.PathEscape(spriteName) + "/checkpoints/" + url.PathEscape(checkpointID) + "/restore"
	stream, err := c.openStream(ctx, path, struct{}{})
	if err != nil {
		return err
	}
	defer stream.Close()

	log := c.logger.With("sprite", spriteName).With("checkpoint", checkpointID)
	events := newEventScanner(stream)

	for {
		ev, raw, ok := events.next()
		if !ok {
			break
		}
		if ev == nil {
			log.Debug("restore stream", "line", raw)
			continue
		}

		switch ev.Type {
		case eventInfo:
			log.Info("restore progress", "message", ev.Data)
		case eventError:
			return &StreamError{Op: "restore", Message: ev.Error}
		case eventComplete:
			return nil
		}
	}

	if err := events.err(); err != nil {
		return &StreamError{Op: "restore", Message: fmt.Sprintf("stream read failed: %v", err)}
	}
	return &StreamError{Op: "restore", Message: "stream ended without completion event"}
}

// ExecOptions adjust a single Exec call.
type ExecOptions struct {
	// Workdir is the working directory for the command.
	Workdir string

	// Env is extra environment for the command.
	Env map[string]string

	// Stdout and Stderr receive output chunks as they arrive, so
	// long-running commands show progress. The full output is accumulated
	// into the result regardless.
	Stdout io.Writer
	Stderr io.Writer
}

// Exec runs a command on the sprite and returns its exit code and
// accumulated output. The response stream multiplexes stdout, stderr and
// a terminal exit event; lines that are not valid events are treated as
// raw stdout rather than discarded.
//
// If the stream closes before an exit event arrives the result carries
// exit code -1: the command's outcome is unknown and callers must not
// treat it as success.
func (c *Client) Exec(ctx context.Context, spriteName, command string, opts ExecOptions) (*ExecResult, error) {
	path := "/sprites/" + url.PathEscape(spriteName) + "/exec"
	stream, err := c.openStream(ctx, path, execRequest{
		Command: command,
		Workdir: opts.Workdir,
		Env:     opts.Env,
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var stdout, stderr strings.Builder
	events := newEventScanner(stream)

	writeChunk := func(b *strings.Builder, w io.Writer, chunk string) {
		b.WriteString(chunk)
		if w != nil {
			io.WriteString(w, chunk)
		}
	}

	for {
		ev, raw, ok := events.next()
		if !ok {
			break
		}
		if ev == nil {
			writeChunk(&stdout, opts.Stdout, raw+"\n")
			continue
		}

		switch ev.Type {
		case eventStdout:
			writeChunk(&stdout, opts.Stdout, ev.Data)
		case eventStderr:
			writeChunk(&stderr, opts.Stderr, ev.Data)
		case eventExit:
			code := 0
			if ev.Code != nil {
				code = *ev.Code
			}
			return &ExecResult{
				ExitCode: code,
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}, nil
		}
	}

	if err := events.err(); err != nil {
		return nil, &StreamError{Op: "exec", Message: fmt.Sprintf("stream read failed: %v", err)}
	}

	// Connection closed without an exit event: the outcome is unknown.
	return &ExecResult{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
