// Package logging configures the global zerolog logger and derives the tagged
// loggers used across the service.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thorwhalen/pacing/internal/models"
)

// Config holds logging configuration.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // json, console
}

// Init replaces the global logger with one writing to w.
func Init(cfg Config, w io.Writer) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	return nil
}

// ForSession tags l with the session id and type. Patient and clinician
// identifiers are never logged.
func ForSession(l zerolog.Logger, sc models.SessionContext) zerolog.Logger {
	return l.With().
		Str("sessionId", sc.SessionID).
		Str("sessionType", sc.SessionType).
		Logger()
}

// WithTranscriber returns a logger tagged with the speech-to-text backend.
func WithTranscriber(sessionID, transcriber string) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionID).
		Str("transcriber", transcriber).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
