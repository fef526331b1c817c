package session

import (
	"time"

	"github.com/thorwhalen/pacing/internal/models"
)

// Observer receives structured notifications from the orchestrator. The
// orchestrator itself produces no output; logging and metrics live in
// Observer implementations. Methods are called from the pipeline goroutine
// and must not block for long.
type Observer interface {
	SessionStarted(sc models.SessionContext)
	SessionEnded(sc models.SessionContext, retention Retention, buffered int, duration time.Duration)
	EventDispatched(sessionID string, ev models.TranscriptionEvent, outcomes []Outcome)
	Fault(err error)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(models.SessionContext)                              {}
func (nopObserver) SessionEnded(models.SessionContext, Retention, int, time.Duration) {}
func (nopObserver) EventDispatched(string, models.TranscriptionEvent, []Outcome)      {}
func (nopObserver) Fault(error)                                                       {}

// Observers fans notifications out to each observer in order.
type Observers []Observer

func (obs Observers) SessionStarted(sc models.SessionContext) {
	for _, o := range obs {
		o.SessionStarted(sc)
	}
}

func (obs Observers) SessionEnded(sc models.SessionContext, retention Retention, buffered int, duration time.Duration) {
	for _, o := range obs {
		o.SessionEnded(sc, retention, buffered, duration)
	}
}

func (obs Observers) EventDispatched(sessionID string, ev models.TranscriptionEvent, outcomes []Outcome) {
	for _, o := range obs {
		o.EventDispatched(sessionID, ev, outcomes)
	}
}

func (obs Observers) Fault(err error) {
	for _, o := range obs {
		o.Fault(err)
	}
}
