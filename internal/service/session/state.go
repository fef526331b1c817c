// Package session implements the session orchestrator: it owns the session
// lifecycle, drives the acquire → transcribe → fan-out loop and isolates
// agent failures from the pipeline.
package session

import (
	"fmt"
	"strings"
)

// State represents the lifecycle state of the orchestrator.
//
// State transitions:
//
//	IDLE ──Start()──→ ACTIVE ──Stop()──→ IDLE
//
// Rules:
//   - IDLE: Start begins a session, Stop is a no-op
//   - ACTIVE: Start fails with ErrSessionActive, Stop tears the session down
//
// There is no paused state. A session whose audio source is exhausted stays
// ACTIVE until Stop is called.
type State int

const (
	// StateIdle - No session running.
	StateIdle State = iota
	// StateActive - A session is running or awaiting Stop.
	StateActive
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateActive:
		return "ACTIVE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Retention decides what happens to the session transcript buffer on Stop.
type Retention int

const (
	// RetentionEphemeral erases the buffer on Stop.
	RetentionEphemeral Retention = iota
	// RetentionPersist keeps the buffer readable after Stop.
	RetentionPersist
)

// String returns the string representation of the retention mode.
func (r Retention) String() string {
	switch r {
	case RetentionEphemeral:
		return "ephemeral"
	case RetentionPersist:
		return "persist"
	default:
		return fmt.Sprintf("unknown(%d)", r)
	}
}

// ParseRetention accepts "persist"/"dev" and "ephemeral"/"prod".
func ParseRetention(s string) (Retention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "persist", "dev":
		return RetentionPersist, nil
	case "ephemeral", "prod", "":
		return RetentionEphemeral, nil
	default:
		return RetentionEphemeral, fmt.Errorf("unknown retention mode %q", s)
	}
}
