// Package agent defines the sidecar agent contract. Agents observe the
// transcription stream of a session; the orchestrator delivers every event to
// every registered agent concurrently.
package agent

import (
	"context"

	"github.com/thorwhalen/pacing/internal/models"
)

// Agent consumes transcription events.
//
// OnEvent may run concurrently with OnEvent calls of other agents for the same
// event, but an agent never sees two events at once. An error or panic in
// OnEvent is reported as an agent fault and does not affect the session.
// Registration compares agents by identity, so implementations use pointer
// receivers; the orchestrator rejects types that are not comparable.
type Agent interface {
	Name() string
	OnSessionStart(sessionID string, metadata map[string]string)
	OnEvent(ctx context.Context, ev models.TranscriptionEvent, sc models.SessionContext) error
	OnSessionEnd(sessionID string)
	Status() Status
}

// Status is a point-in-time summary reported by an agent.
type Status struct {
	Name    string         `json:"name"`
	State   string         `json:"state"`
	Session string         `json:"session,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Agent states reported in Status.
const (
	StateIdle   = "idle"
	StateActive = "active"
)
