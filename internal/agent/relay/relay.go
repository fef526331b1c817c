// Package relay implements an agent that forwards every transcription event to
// an external sink, typically the Kafka publisher.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thorwhalen/pacing/internal/agent"
	"github.com/thorwhalen/pacing/internal/models"
)

// Name is the agent name reported to the orchestrator.
const Name = "TranscriptRelay"

// Sink receives relayed events.
type Sink interface {
	PublishTranscript(ctx context.Context, sc models.SessionContext, ev models.TranscriptionEvent) error
}

// Relay implements agent.Agent.
type Relay struct {
	sink       Sink
	timeout    time.Duration
	skipBlanks bool
	logger     zerolog.Logger

	mu        sync.Mutex
	sessionID string
	published int
	failed    int
}

var _ agent.Agent = (*Relay)(nil)

// Option configures a Relay.
type Option func(*Relay)

// WithTimeout bounds each publish. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Relay) { r.timeout = d }
}

// WithSkipBlanks drops events with no text.
func WithSkipBlanks(skip bool) Option {
	return func(r *Relay) { r.skipBlanks = skip }
}

// WithLogger sets the relay logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// New creates a relay publishing to sink.
func New(sink Sink, opts ...Option) *Relay {
	r := &Relay{
		sink:       sink,
		timeout:    5 * time.Second,
		skipBlanks: true,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Name() string { return Name }

func (r *Relay) OnSessionStart(sessionID string, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = sessionID
	r.published = 0
	r.failed = 0
}

func (r *Relay) OnSessionEnd(sessionID string) {
	r.mu.Lock()
	published, failed := r.published, r.failed
	r.sessionID = ""
	r.mu.Unlock()

	r.logger.Info().
		Str("sessionId", sessionID).
		Int("published", published).
		Int("failed", failed).
		Msg("Relay session ended")
}

// OnEvent publishes ev. A publish failure is returned so the orchestrator
// records it as an agent fault.
func (r *Relay) OnEvent(ctx context.Context, ev models.TranscriptionEvent, sc models.SessionContext) error {
	if r.skipBlanks && ev.IsBlank() {
		return nil
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	err := r.sink.PublishTranscript(ctx, sc, ev)

	r.mu.Lock()
	if err != nil {
		r.failed++
	} else {
		r.published++
	}
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("relay transcript: %w", err)
	}
	return nil
}

func (r *Relay) Status() agent.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := agent.Status{
		Name:  Name,
		State: agent.StateIdle,
		Details: map[string]any{
			"published": r.published,
			"failed":    r.failed,
		},
	}
	if r.sessionID != "" {
		st.State = agent.StateActive
		st.Session = r.sessionID
	}
	return st
}
