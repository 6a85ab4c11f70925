package logging

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(log.New(&buf, "", 0))
	return l, &buf
}

func TestLogger_Levels(t *testing.T) {
	t.Parallel()

	l, buf := newTestLogger()
	l.SetLevel(LevelWarn)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "WARN: warn message")
	assert.Contains(t, out, "ERROR: error message")
}

func TestLogger_KeyValues(t *testing.T) {
	t.Parallel()

	l, buf := newTestLogger()

	l.Info("request failed", "status", 503, "path", "/sprites/x")

	out := buf.String()
	assert.Contains(t, out, "status=503")
	assert.Contains(t, out, "path=/sprites/x")
}

func TestLogger_With(t *testing.T) {
	t.Parallel()

	l, buf := newTestLogger()
	scoped := l.With("sprite", "gh-org-repo-ci-1-build")

	scoped.Info("created")

	assert.Contains(t, buf.String(), "sprite=gh-org-repo-ci-1-build")
}

func TestLogger_QuotesValuesWithSpaces(t *testing.T) {
	t.Parallel()

	l, buf := newTestLogger()

	l.Info("event", "msg", "two words")

	assert.Contains(t, buf.String(), `msg="two words"`)
}
