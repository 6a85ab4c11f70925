// Package config loads spritestep's runtime configuration: the Sprites
// API token and endpoint, retry limits, and the timeout policy for CRUD
// versus streaming calls.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Load.
const (
	// EnvToken carries the Sprites API bearer token.
	EnvToken = "SPRITE_TOKEN"
	// EnvBaseURL overrides the Sprites API endpoint.
	EnvBaseURL = "SPRITES_API_URL"
)

// envFileName is the dotenv fallback read when EnvToken is unset, so local
// runs outside CI can keep the token out of the shell environment.
const envFileName = ".spritestep.env"

// configFileName is the optional YAML override file.
const configFileName = "spritestep.yaml"

// Default values for Config.
const (
	DefaultMaxRetries     = 3
	DefaultRequestTimeout = 30 * time.Second
	DefaultStreamTimeout  = 10 * time.Minute
)

// Config is the resolved configuration for one invocation.
type Config struct {
	// Token is the Sprites API bearer token. Required.
	Token string

	// BaseURL is the Sprites API endpoint. Empty means the client default.
	BaseURL string

	// MaxRetries is the number of additional attempts after a transient
	// failure.
	MaxRetries int

	// RequestTimeout bounds simple CRUD calls.
	RequestTimeout time.Duration

	// StreamTimeout bounds checkpoint, restore and exec streams, which
	// legitimately run for minutes.
	StreamTimeout time.Duration
}

// fileConfig is the YAML shape of the override file. Durations are Go
// duration strings ("30s", "5m").
type fileConfig struct {
	BaseURL        string `yaml:"base_url"`
	MaxRetries     *int   `yaml:"max_retries"`
	RequestTimeout string `yaml:"request_timeout"`
	StreamTimeout  string `yaml:"stream_timeout"`
}

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// DefaultConfig returns a Config with default values and no token.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		RequestTimeout: DefaultRequestTimeout,
		StreamTimeout:  DefaultStreamTimeout,
	}
}

// Load resolves configuration from basePath. Precedence, lowest first:
// defaults, spritestep.yaml, environment variables. The token comes from
// SPRITE_TOKEN or, failing that, the .spritestep.env dotenv file. A
// missing token is a fatal configuration error: it is reported here,
// before any network call is attempted.
func Load(basePath string) (*Config, error) {
	cfg := DefaultConfig()

	if err := applyFile(filepath.Join(basePath, configFileName), &cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}

	token, err := resolveToken(basePath)
	if err != nil {
		return nil, err
	}
	cfg.Token = token

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyFile merges the YAML override file into cfg if it exists.
func applyFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if file.BaseURL != "" {
		cfg.BaseURL = file.BaseURL
	}
	if file.MaxRetries != nil {
		cfg.MaxRetries = *file.MaxRetries
	}
	if file.RequestTimeout != "" {
		d, err := time.ParseDuration(file.RequestTimeout)
		if err != nil {
			return ValidationError{Field: "request_timeout", Message: err.Error()}
		}
		cfg.RequestTimeout = d
	}
	if file.StreamTimeout != "" {
		d, err := time.ParseDuration(file.StreamTimeout)
		if err != nil {
			return ValidationError{Field: "stream_timeout", Message: err.Error()}
		}
		cfg.StreamTimeout = d
	}
	return nil
}

// resolveToken finds the API token in the environment or the dotenv file.
func resolveToken(basePath string) (string, error) {
	if token := os.Getenv(EnvToken); token != "" {
		return token, nil
	}

	envPath := filepath.Join(basePath, envFileName)
	if _, err := os.Stat(envPath); err == nil {
		vars, err := godotenv.Read(envPath)
		if err != nil {
			return "", fmt.Errorf("failed to read env file %s: %w", envPath, err)
		}
		if token := vars[EnvToken]; token != "" {
			return token, nil
		}
	}

	return "", ValidationError{
		Field:   EnvToken,
		Message: fmt.Sprintf("not set; export it or add it to %s", envFileName),
	}
}

// Validate checks that all config values are usable.
func Validate(cfg *Config) error {
	if cfg.Token == "" {
		return ValidationError{Field: EnvToken, Message: "required value is empty"}
	}
	if cfg.MaxRetries < 0 {
		return ValidationError{Field: "max_retries", Message: "must not be negative"}
	}
	if cfg.RequestTimeout <= 0 {
		return ValidationError{Field: "request_timeout", Message: "must be positive"}
	}
	if cfg.StreamTimeout <= 0 {
		return ValidationError{Field: "stream_timeout", Message: "must be positive"}
	}
	return nil
}
