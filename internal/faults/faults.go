// Package faults defines the error taxonomy of the session pipeline.
//
// Each fault kind has a distinct type so callers can branch with errors.As:
//
//	ConfigError         invalid constructor or configuration values
//	SessionStateError   operation not valid in the current session state
//	AgentError          an agent handler failed on one event (never escalated)
//	TranscriptionError  the transcriber failed on one chunk (chunk skipped)
//	AudioSourceError    the audio source failed (session is stopped)
package faults

import (
	"errors"
	"fmt"
)

// Session state sentinels.
var (
	ErrSessionActive   = errors.New("session already active")
	ErrNoActiveSession = errors.New("no active session")
)

// ErrAgentPanic marks an AgentError recovered from a panicking handler.
var ErrAgentPanic = errors.New("agent handler panicked")

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// SessionStateError reports an operation rejected by the session state machine.
type SessionStateError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *SessionStateError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s: session %s: %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionStateError) Unwrap() error { return e.Err }

// AgentError reports a failure inside one agent's event handler.
type AgentError struct {
	Agent     string
	SessionID string
	Err       error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %s (session %s): %v", e.Agent, e.SessionID, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// TranscriptionError reports a chunk the transcriber could not handle.
type TranscriptionError struct {
	SessionID string
	Chunk     int
	Err       error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed (session %s, chunk %d): %v", e.SessionID, e.Chunk, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// AudioSourceError reports a failure of the audio source. It ends the session.
type AudioSourceError struct {
	SessionID string
	Err       error
}

func (e *AudioSourceError) Error() string {
	return fmt.Sprintf("audio source failed (session %s): %v", e.SessionID, e.Err)
}

func (e *AudioSourceError) Unwrap() error { return e.Err }
