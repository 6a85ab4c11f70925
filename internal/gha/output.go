package gha

import (
	"fmt"
	"os"
	"strings"
)

// SetOutput appends a step output to the GITHUB_OUTPUT file. It is a no-op
// outside Actions (when the variable is unset), so the CLI stays usable
// for local debugging.
func SetOutput(name, value string) error {
	return appendKeyValue("GITHUB_OUTPUT", name, value)
}

// SaveState appends a value to the GITHUB_STATE file, the platform's
// carrier for passing values from a step's main phase to its post phase.
func SaveState(name, value string) error {
	return appendKeyValue("GITHUB_STATE", name, value)
}

func appendKeyValue(envVar, name, value string) error {
	path := os.Getenv(envVar)
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s file: %w", envVar, err)
	}
	defer f.Close()

	// Multiline values need the heredoc form.
	if strings.ContainsAny(value, "\n\r") {
		delimiter := "ghadelimiter"
		for strings.Contains(value, delimiter) {
			delimiter += "_"
		}
		_, err = fmt.Fprintf(f, "%s<<%s\n%s\n%s\n", name, delimiter, value, delimiter)
	} else {
		_, err = fmt.Fprintf(f, "%s=%s\n", name, value)
	}
	if err != nil {
		return fmt.Errorf("failed to write to %s file: %w", envVar, err)
	}
	return nil
}

// MaskSecret registers value with the runner's log masking, so it is
// redacted from any subsequent log output. Called with the API token
// before the first request is made.
func MaskSecret(value string) {
	if value == "" {
		return
	}
	fmt.Printf("::add-mask::%s\n", value)
}

// Warning emits a workflow warning annotation.
func Warning(format string, args ...any) {
	fmt.Printf("::warning::%s\n", escapeData(fmt.Sprintf(format, args...)))
}

// Error emits a workflow error annotation.
func Error(format string, args ...any) {
	fmt.Printf("::error::%s\n", escapeData(fmt.Sprintf(format, args...)))
}

// escapeData applies the workflow-command data escaping rules.
func escapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}
