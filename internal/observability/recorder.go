package observability

import (
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/thorwhalen/pacing/internal/faults"
	"github.com/thorwhalen/pacing/internal/models"
	"github.com/thorwhalen/pacing/internal/observability/logging"
	"github.com/thorwhalen/pacing/internal/observability/metrics"
	"github.com/thorwhalen/pacing/internal/service/session"
)

// Recorder turns orchestrator notifications into log lines and metrics.
// Transcript text is only logged at debug level.
type Recorder struct {
	m      *metrics.Metrics
	logger zerolog.Logger
}

var _ session.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder. A nil m uses metrics.DefaultMetrics.
func NewRecorder(m *metrics.Metrics, logger zerolog.Logger) *Recorder {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Recorder{m: m, logger: logger}
}

func (r *Recorder) SessionStarted(sc models.SessionContext) {
	r.m.RecordSessionStart()
	l := logging.ForSession(r.logger, sc)
	l.Info().
		Time("startTime", sc.StartTime).
		Msg("Session started")
}

func (r *Recorder) SessionEnded(sc models.SessionContext, retention session.Retention, buffered int, duration time.Duration) {
	r.m.RecordSessionEnd(duration.Seconds())
	l := logging.ForSession(r.logger, sc)
	l.Info().
		Str("retention", retention.String()).
		Int("events", buffered).
		Dur("duration", duration).
		Msg("Session ended")
}

func (r *Recorder) EventDispatched(sessionID string, ev models.TranscriptionEvent, outcomes []session.Outcome) {
	r.m.RecordChunk()
	for _, out := range outcomes {
		r.m.RecordAgentDispatch(out.Agent, out.Duration.Seconds())
	}
	r.logger.Debug().
		Str("sessionId", sessionID).
		Str("text", ev.Text).
		Float64("confidence", ev.Confidence).
		Str("confidenceLevel", string(ev.ConfidenceLevel())).
		Int("agents", len(outcomes)).
		Msg("Event dispatched")
}

func (r *Recorder) Fault(err error) {
	var (
		agentErr *faults.AgentError
		trErr    *faults.TranscriptionError
		srcErr   *faults.AudioSourceError
	)
	switch {
	case errors.As(err, &agentErr):
		r.m.RecordAgentFault(agentErr.Agent)
		r.logger.Warn().Err(err).
			Str("sessionId", agentErr.SessionID).
			Str("agent", agentErr.Agent).
			Msg("Agent fault")
	case errors.As(err, &trErr):
		r.m.RecordTranscriptionFault()
		r.logger.Warn().Err(err).
			Str("sessionId", trErr.SessionID).
			Int("chunk", trErr.Chunk).
			Msg("Transcription failed, chunk skipped")
	case errors.As(err, &srcErr):
		r.m.RecordSourceFault()
		r.logger.Error().Err(err).
			Str("sessionId", srcErr.SessionID).
			Msg("Audio source failed")
	default:
		r.logger.Error().Err(err).Msg("Session fault")
	}
}

// ReviewFlagged records a newly flagged review item.
func (r *Recorder) ReviewFlagged(item models.ReviewItem, queueSize int) {
	r.m.RecordReviewItem(strconv.Itoa(item.Priority), queueSize)
}

// QueueWarning records an insert above the review queue's soft limit.
func (r *Recorder) QueueWarning(size, limit int) {
	r.m.RecordQueueWarning()
	r.m.RecordQueueSize(size)
}
