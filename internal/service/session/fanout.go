package session

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thorwhalen/pacing/internal/agent"
	"github.com/thorwhalen/pacing/internal/faults"
	"github.com/thorwhalen/pacing/internal/models"
)

// Outcome is the result of delivering one event to one agent.
type Outcome struct {
	Agent    string
	Err      error // *faults.AgentError or nil
	Duration time.Duration
}

// fanOut delivers ev to every agent concurrently and returns once all of them
// have finished. Outcomes are indexed like agents. A failing or panicking
// handler is recorded in its outcome and never cancels its siblings.
func fanOut(ctx context.Context, agents []agent.Agent, ev models.TranscriptionEvent, sc models.SessionContext) []Outcome {
	outcomes := make([]Outcome, len(agents))
	if len(agents) == 0 {
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(len(agents))
	for i, a := range agents {
		g.Go(func() error {
			outcomes[i] = deliver(ctx, a, ev, sc)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func deliver(ctx context.Context, a agent.Agent, ev models.TranscriptionEvent, sc models.SessionContext) (out Outcome) {
	name := agentName(a)
	start := time.Now()
	out.Agent = name

	defer func() {
		out.Duration = time.Since(start)
		if r := recover(); r != nil {
			out.Err = &faults.AgentError{
				Agent:     name,
				SessionID: sc.SessionID,
				Err:       fmt.Errorf("%w: %v", faults.ErrAgentPanic, r),
			}
		}
	}()

	if err := a.OnEvent(ctx, ev, sc); err != nil {
		out.Err = &faults.AgentError{Agent: name, SessionID: sc.SessionID, Err: err}
	}
	return out
}

// notify runs a lifecycle hook and converts a panic into an AgentError.
func notify(a agent.Agent, sessionID string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &faults.AgentError{
				Agent:     agentName(a),
				SessionID: sessionID,
				Err:       fmt.Errorf("%w: %v", faults.ErrAgentPanic, r),
			}
		}
	}()
	fn()
	return nil
}

// agentName guards against a panicking Name implementation.
func agentName(a agent.Agent) (name string) {
	defer func() {
		if recover() != nil {
			name = fmt.Sprintf("%T", a)
		}
	}()
	return a.Name()
}
