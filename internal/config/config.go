// Package config loads process settings from MESHFLOW_* environment
// variables. Command-line flags override what it returns.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds environment-level defaults for the CLI.
type Config struct {
	// DB is the project store path used by the store commands.
	DB string `env:"MESHFLOW_DB" envDefault:"meshflow.db"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `env:"MESHFLOW_LOG_LEVEL" envDefault:"info"`

	// LogFormat is text or json.
	LogFormat string `env:"MESHFLOW_LOG_FORMAT" envDefault:"text"`

	// VerifySnapshot replays the log when a project with a state section
	// is loaded and rejects it if the two disagree.
	VerifySnapshot bool `env:"MESHFLOW_VERIFY_SNAPSHOT" envDefault:"true"`

	// ConfirmDefault answers confirmation prompts in non-interactive runs.
	ConfirmDefault bool `env:"MESHFLOW_CONFIRM_DEFAULT" envDefault:"true"`

	// Trace writes operation spans to stderr.
	Trace bool `env:"MESHFLOW_TRACE" envDefault:"false"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the enumerated settings.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", c.LogFormat)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// NewLogger builds the process logger writing to w. verbose forces the
// debug level.
func (c Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
