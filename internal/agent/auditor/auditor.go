// Package auditor implements the uncertainty auditor, a sidecar agent that
// flags transcription segments for human verification.
//
// A segment is flagged when its acoustic confidence falls below the configured
// threshold, or, when enabled, when it mentions a configured medical term.
// Flagged segments land in a priority-ordered review queue that persists
// across sessions until reviewed items are purged.
package auditor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/thorwhalen/pacing/internal/agent"
	"github.com/thorwhalen/pacing/internal/faults"
	"github.com/thorwhalen/pacing/internal/models"
)

// Name is the agent name reported to the orchestrator.
const Name = "UncertaintyAuditor"

// Priorities assigned by the flagging rules.
const (
	PriorityVeryLowConfidence = 5
	PriorityMedicalTerm       = 4
	PriorityLowConfidence     = 3
	PriorityBelowThreshold    = 2
)

// DefaultMedicalTerms are flagged even at acceptable confidence.
var DefaultMedicalTerms = []string{
	"buprenorphine", "naloxone", "methadone", "suboxone",
	"opioid", "benzodiazepine", "fentanyl", "morphine",
	"mg", "milligram", "dose", "dosage", "prescription",
}

// Config holds auditor settings.
type Config struct {
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	MaxQueueSize        int      `yaml:"max_queue_size"`
	FlagMedicalTerms    bool     `yaml:"flag_medical_terms"`
	MedicalTerms        []string `yaml:"medical_terms"`
}

// DefaultConfig returns the default auditor settings.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.70,
		MaxQueueSize:        100,
		FlagMedicalTerms:    true,
		MedicalTerms:        append([]string(nil), DefaultMedicalTerms...),
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if math.IsNaN(c.ConfidenceThreshold) || c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return &faults.ConfigError{Field: "confidence_threshold", Reason: fmt.Sprintf("%v is outside [0,1]", c.ConfidenceThreshold)}
	}
	if c.MaxQueueSize < 1 {
		return &faults.ConfigError{Field: "max_queue_size", Reason: fmt.Sprintf("%d must be at least 1", c.MaxQueueSize)}
	}
	if c.FlagMedicalTerms {
		for _, term := range c.MedicalTerms {
			if strings.TrimSpace(term) == "" {
				return &faults.ConfigError{Field: "medical_terms", Reason: "terms must not be blank"}
			}
		}
	}
	return nil
}

// QueueWarningFunc is called when an insertion leaves the queue above the soft limit.
type QueueWarningFunc func(size, limit int)

// FlagFunc is called after an item has been queued.
type FlagFunc func(item models.ReviewItem, sc models.SessionContext)

// Option configures an Auditor.
type Option func(*Auditor)

// WithLogger sets the auditor's logger. The default discards output.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Auditor) { a.logger = l }
}

// WithQueueWarning installs the soft-limit warning hook.
func WithQueueWarning(fn QueueWarningFunc) Option {
	return func(a *Auditor) { a.onWarning = fn }
}

// WithFlagHook installs a hook run for every flagged item.
func WithFlagHook(fn FlagFunc) Option {
	return func(a *Auditor) { a.onFlag = fn }
}

// Auditor implements agent.Agent.
type Auditor struct {
	cfg   Config
	terms []string
	queue *Queue

	logger    zerolog.Logger
	onWarning QueueWarningFunc
	onFlag    FlagFunc

	mu        sync.Mutex
	processed int
	flagged   int
	warnings  int
	sessionID string
}

var _ agent.Agent = (*Auditor)(nil)

// New validates cfg and creates an auditor.
func New(cfg Config, opts ...Option) (*Auditor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	terms := make([]string, 0, len(cfg.MedicalTerms))
	for _, term := range cfg.MedicalTerms {
		terms = append(terms, strings.ToLower(strings.TrimSpace(term)))
	}
	a := &Auditor{
		cfg:    cfg,
		terms:  terms,
		queue:  NewQueue(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the agent name.
func (a *Auditor) Name() string { return Name }

// OnSessionStart records the session. The review queue is kept: items may
// span sessions.
func (a *Auditor) OnSessionStart(sessionID string, metadata map[string]string) {
	a.mu.Lock()
	a.sessionID = sessionID
	a.mu.Unlock()
	a.logger.Info().Str("sessionId", sessionID).Msg("Auditor session started")
}

// OnSessionEnd logs the session totals and resets the per-session counters.
func (a *Auditor) OnSessionEnd(sessionID string) {
	a.mu.Lock()
	processed, flagged := a.processed, a.flagged
	a.processed = 0
	a.flagged = 0
	a.sessionID = ""
	a.mu.Unlock()

	a.logger.Info().
		Str("sessionId", sessionID).
		Int("processed", processed).
		Int("flagged", flagged).
		Float64("flaggingRate", rate(flagged, processed)).
		Msg("Auditor session ended")
}

// OnEvent applies the flagging rules to one event.
func (a *Auditor) OnEvent(ctx context.Context, ev models.TranscriptionEvent, sc models.SessionContext) error {
	a.mu.Lock()
	a.processed++
	a.mu.Unlock()

	if ev.IsBlank() {
		return nil
	}

	reason, priority, ok := a.evaluate(ev)
	if !ok {
		return nil
	}

	item, size := a.queue.Add(ev, reason, priority)

	a.mu.Lock()
	a.flagged++
	over := size > a.cfg.MaxQueueSize
	if over {
		a.warnings++
	}
	a.mu.Unlock()

	a.logger.Debug().
		Str("sessionId", sc.SessionID).
		Str("itemId", item.ID).
		Int("priority", item.Priority).
		Str("reason", item.Reason).
		Msg("Segment flagged for review")

	if over {
		a.logger.Warn().
			Int("queueSize", size).
			Int("maxQueueSize", a.cfg.MaxQueueSize).
			Msg("Review queue exceeds soft limit")
		if a.onWarning != nil {
			a.onWarning(size, a.cfg.MaxQueueSize)
		}
	}
	if a.onFlag != nil {
		a.onFlag(item, sc)
	}
	return nil
}

// evaluate returns the reason and priority if ev should be flagged.
// Low confidence takes precedence over medical terms.
func (a *Auditor) evaluate(ev models.TranscriptionEvent) (string, int, bool) {
	if ev.Confidence < a.cfg.ConfidenceThreshold {
		reason := fmt.Sprintf("low confidence score: %.2f", ev.Confidence)
		switch {
		case ev.Confidence < 0.50:
			return reason, PriorityVeryLowConfidence, true
		case ev.Confidence < 0.60:
			return reason, PriorityLowConfidence, true
		default:
			return reason, PriorityBelowThreshold, true
		}
	}

	if a.cfg.FlagMedicalTerms {
		if found := a.matchTerms(ev.Text); len(found) > 0 {
			return "contains medical terms: " + strings.Join(found, ", "), PriorityMedicalTerm, true
		}
	}
	return "", 0, false
}

// matchTerms returns the configured terms contained in text, in config order.
func (a *Auditor) matchTerms(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, term := range a.terms {
		if strings.Contains(lower, term) {
			found = append(found, term)
		}
	}
	return found
}

// MarkReviewed marks a queued item as reviewed.
func (a *Auditor) MarkReviewed(itemID, notes string) bool {
	ok := a.queue.MarkReviewed(itemID, notes)
	if ok {
		a.logger.Info().Str("itemId", itemID).Msg("Review item marked reviewed")
	}
	return ok
}

// ListAll returns a snapshot of the whole queue.
func (a *Auditor) ListAll() []models.ReviewItem {
	return a.queue.List()
}

// ListUnreviewed returns a snapshot of items still awaiting review.
func (a *Auditor) ListUnreviewed() []models.ReviewItem {
	return a.queue.Unreviewed()
}

// PurgeReviewed drops reviewed items and returns how many were removed.
func (a *Auditor) PurgeReviewed() int {
	n := a.queue.PurgeReviewed()
	if n > 0 {
		a.logger.Info().Int("removed", n).Msg("Purged reviewed items")
	}
	return n
}

// Stats summarizes the queue and the current session's counters.
type Stats struct {
	Counts
	Processed    int     `json:"transcriptionsProcessed"`
	Flagged      int     `json:"transcriptionsFlagged"`
	FlaggingRate float64 `json:"flaggingRate"`
	Warnings     int     `json:"queueWarnings"`
}

// Stats returns auditor statistics.
func (a *Auditor) Stats() Stats {
	counts := a.queue.Counts()
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Counts:       counts,
		Processed:    a.processed,
		Flagged:      a.flagged,
		FlaggingRate: rate(a.flagged, a.processed),
		Warnings:     a.warnings,
	}
}

// Status reports the auditor's configuration and counters.
func (a *Auditor) Status() agent.Status {
	size := a.queue.Len()
	a.mu.Lock()
	defer a.mu.Unlock()
	state := agent.StateIdle
	if a.sessionID != "" {
		state = agent.StateActive
	}
	return agent.Status{
		Name:    Name,
		State:   state,
		Session: a.sessionID,
		Details: map[string]any{
			"confidence_threshold": a.cfg.ConfidenceThreshold,
			"review_queue_size":    size,
			"total_processed":      a.processed,
			"total_flagged":        a.flagged,
		},
	}
}

func rate(flagged, processed int) float64 {
	if processed < 1 {
		processed = 1
	}
	return float64(flagged) / float64(processed)
}
