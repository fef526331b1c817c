// Package models defines the data structures shared by the session pipeline.
package models

import (
	"strings"
	"time"
)

// ConfidenceLevel buckets an acoustic confidence score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// TranscriptionEvent is the result of transcribing one audio chunk.
// Exactly one event is produced per processed chunk and it is never mutated
// after it leaves the transcriber.
type TranscriptionEvent struct {
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	SpeakerID  string    `json:"speakerId,omitempty"`
	IsPartial  bool      `json:"isPartial"`
}

// ConfidenceLevel categorizes the confidence score.
func (e TranscriptionEvent) ConfidenceLevel() ConfidenceLevel {
	switch {
	case e.Confidence >= 0.85:
		return ConfidenceHigh
	case e.Confidence >= 0.70:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// IsBlank reports whether the event carries no text worth auditing.
func (e TranscriptionEvent) IsBlank() bool {
	return strings.TrimSpace(e.Text) == ""
}

// DefaultSessionType is used when a session context does not name one.
const DefaultSessionType = "counseling"

// SessionContext identifies a clinical session. It is handed by value to
// every agent alongside each event.
type SessionContext struct {
	SessionID   string     `json:"sessionId"`
	PatientID   string     `json:"patientId"`
	ClinicianID string     `json:"clinicianId"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	SessionType string     `json:"sessionType"`
}

// Metadata flattens the context for OnSessionStart notifications.
func (c SessionContext) Metadata() map[string]string {
	md := map[string]string{
		"session_id":   c.SessionID,
		"patient_id":   c.PatientID,
		"clinician_id": c.ClinicianID,
		"start_time":   c.StartTime.Format(time.RFC3339),
		"session_type": c.SessionType,
	}
	if c.EndTime != nil {
		md["end_time"] = c.EndTime.Format(time.RFC3339)
	}
	return md
}

// ReviewItem is a flagged transcription event awaiting human verification.
type ReviewItem struct {
	ID            string             `json:"id"`
	Event         TranscriptionEvent `json:"event"`
	FlaggedAt     time.Time          `json:"flaggedAt"`
	Reason        string             `json:"reason"`
	Priority      int                `json:"priority"` // 1 lowest, 5 most urgent
	Reviewed      bool               `json:"reviewed"`
	ReviewerNotes string             `json:"reviewerNotes,omitempty"`
}

// Priority bounds for review items.
const (
	MinPriority = 1
	MaxPriority = 5
)
