// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the logger's verbosity and output encoding.
type Config struct {
	// Level is one of zerolog's level names ("debug", "info", "warn",
	// "error"). Unknown values fall back to info.
	Level string `json:"level" yaml:"level"`

	// Format is "json" for machine-readable output or "console" for
	// human-readable output.
	Format string `json:"format" yaml:"format"`
}

// New builds a logger writing to w per cfg. A nil w defaults to stderr.
func New(cfg Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
