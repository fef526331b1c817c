package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thorwhalen/pacing/internal/agent"
	"github.com/thorwhalen/pacing/internal/faults"
	"github.com/thorwhalen/pacing/internal/models"
	"github.com/thorwhalen/pacing/internal/schema"
	"github.com/thorwhalen/pacing/internal/service/audio"
	"github.com/thorwhalen/pacing/internal/service/stt"
)

// Archiver stores the transcript of a completed session. It is only used in
// persist mode.
type Archiver interface {
	Archive(ctx context.Context, sc models.SessionContext, events []models.TranscriptionEvent) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver sets the notification sink.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithArchiver sets the archive target for persist mode.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithArchiveTimeout bounds each Archive call.
func WithArchiveTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.archiveTimeout = d }
}

// Orchestrator runs at most one session at a time.
//
// Each session runs a single pipeline goroutine:
//
//	NextChunk → Transcribe → validate → buffer → fan-out → (join) → repeat
//
// The loop checks the run's active flag at the top of every iteration and
// after each suspension point. Stop clears the flag and cancels the run
// context, so cancellation takes effect within one chunk cycle. Fan-out for
// event N+1 never starts before every agent has finished event N; a slow
// agent therefore throttles the whole pipeline. There is no per-handler
// timeout.
type Orchestrator struct {
	retention      Retention
	observer       Observer
	archiver       Archiver
	archiveTimeout time.Duration
	validator      *schema.Validator

	mu          sync.Mutex
	agents      []agent.Agent
	run         *Run
	transcriber string

	bufMu  sync.RWMutex
	buffer []models.TranscriptionEvent
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(retention Retention, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		retention:      retention,
		observer:       nopObserver{},
		archiveTimeout: 10 * time.Second,
		validator:      schema.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run is the handle of one started session.
type Run struct {
	sc          models.SessionContext
	source      audio.Source
	transcriber stt.Transcriber
	started     time.Time

	ctx    context.Context
	cancel context.CancelFunc
	active atomic.Bool
	chunks atomic.Int64

	stopping bool // guarded by Orchestrator.mu

	loopDone chan struct{}
	stopped  chan struct{}
	err      error // written before loopDone is closed
}

// Session returns the session context of the run.
func (r *Run) Session() models.SessionContext { return r.sc }

// Done is closed when the pipeline loop has exited.
func (r *Run) Done() <-chan struct{} { return r.loopDone }

// Stopped is closed when the session has been torn down.
func (r *Run) Stopped() <-chan struct{} { return r.stopped }

// Chunks returns the number of chunks pulled from the source so far.
func (r *Run) Chunks() int64 { return r.chunks.Load() }

// Wait blocks until the loop exits. It returns the *faults.AudioSourceError
// that ended the session, nil when the source was exhausted or Stop was
// called, or ctx.Err() if ctx ends first.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.loopDone:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register adds an agent. Registering the same agent twice is a no-op.
// Agents registered mid-session receive events from the next fan-out on.
// Agents whose dynamic type is not comparable are rejected with a
// *faults.ConfigError.
func (o *Orchestrator) Register(a agent.Agent) error {
	if a == nil {
		return nil
	}
	if !isComparable(a) {
		return &faults.ConfigError{
			Field:  "agent",
			Reason: fmt.Sprintf("%T is not comparable; register a pointer", a),
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.agents {
		if existing == a {
			return nil
		}
	}
	o.agents = append(o.agents, a)
	return nil
}

// Unregister removes an agent. Unknown agents are ignored.
func (o *Orchestrator) Unregister(a agent.Agent) {
	if a == nil || !isComparable(a) {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := make([]agent.Agent, 0, len(o.agents))
	for _, existing := range o.agents {
		if existing != a {
			kept = append(kept, existing)
		}
	}
	o.agents = kept
}

// Agents returns the registered agents in registration order.
func (o *Orchestrator) Agents() []agent.Agent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]agent.Agent(nil), o.agents...)
}

// Start begins a session and returns once the pipeline loop is running.
// It fails with ErrSessionActive if a session is already active, leaving that
// session untouched. A failure to start the audio source ends the new
// session immediately and is returned as *faults.AudioSourceError.
func (o *Orchestrator) Start(ctx context.Context, sc models.SessionContext, src audio.Source, tr stt.Transcriber) (*Run, error) {
	if src == nil {
		return nil, &faults.ConfigError{Field: "audio source", Reason: "must not be nil"}
	}
	if tr == nil {
		return nil, &faults.ConfigError{Field: "transcriber", Reason: "must not be nil"}
	}
	if sc.SessionID == "" {
		return nil, &faults.ConfigError{Field: "session_id", Reason: "must not be empty"}
	}

	o.mu.Lock()
	if o.run != nil {
		current := o.run.sc.SessionID
		o.mu.Unlock()
		return nil, &faults.SessionStateError{Op: "start", SessionID: current, Err: faults.ErrSessionActive}
	}
	if sc.SessionType == "" {
		sc.SessionType = models.DefaultSessionType
	}
	if sc.StartTime.IsZero() {
		sc.StartTime = time.Now()
	}
	// The run outlives the caller's context; only Stop cancels it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &Run{
		sc:          sc,
		source:      src,
		transcriber: tr,
		started:     time.Now(),
		ctx:         runCtx,
		cancel:      cancel,
		loopDone:    make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	r.active.Store(true)
	o.run = r
	o.transcriber = tr.Name()
	agents := append([]agent.Agent(nil), o.agents...)
	o.mu.Unlock()

	o.bufMu.Lock()
	o.buffer = nil
	o.bufMu.Unlock()

	md := sc.Metadata()
	for _, a := range agents {
		if err := notify(a, sc.SessionID, func() { a.OnSessionStart(sc.SessionID, md) }); err != nil {
			o.observer.Fault(err)
		}
	}
	o.observer.SessionStarted(sc)

	if err := src.Start(runCtx); err != nil {
		r.err = &faults.AudioSourceError{SessionID: sc.SessionID, Err: err}
		o.observer.Fault(r.err)
		if o.claimStop(r) {
			close(r.loopDone)
			o.shutdown(r, false)
		} else {
			// A concurrent Stop owns the teardown and is waiting for loopDone.
			close(r.loopDone)
			<-r.stopped
		}
		return nil, r.err
	}
	if !r.active.Load() {
		// Stop ran while the source was starting and may have stopped it
		// first. The loop below exits at once and lets Stop finish.
		if err := src.Stop(); err != nil {
			o.observer.Fault(&faults.AudioSourceError{SessionID: sc.SessionID, Err: fmt.Errorf("stop: %w", err)})
		}
	}

	began := make(chan struct{})
	go o.loop(r, began)
	<-began
	return r, nil
}

// Stop ends the active session. It is a no-op when idle. Stop waits for the
// in-flight chunk cycle to finish, notifies agents, applies the retention
// policy and returns the orchestrator to idle. If ctx ends first Stop returns
// ctx.Err() and the teardown completes in the background.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	r := o.run
	o.mu.Unlock()
	if r == nil {
		return nil
	}

	if o.claimStop(r) {
		go o.shutdown(r, true)
	}

	select {
	case <-r.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsActive reports whether a session is active.
func (o *Orchestrator) IsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run != nil
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	if o.IsActive() {
		return StateActive
	}
	return StateIdle
}

// Session returns the active session context.
func (o *Orchestrator) Session() (models.SessionContext, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return models.SessionContext{}, &faults.SessionStateError{Op: "session", Err: faults.ErrNoActiveSession}
	}
	return o.run.sc, nil
}

// Transcript returns a copy of the session buffer. After Stop it is empty in
// ephemeral mode and holds the completed session in persist mode.
func (o *Orchestrator) Transcript() []models.TranscriptionEvent {
	o.bufMu.RLock()
	defer o.bufMu.RUnlock()
	return append([]models.TranscriptionEvent(nil), o.buffer...)
}

// Retention returns the configured retention mode.
func (o *Orchestrator) Retention() Retention {
	return o.retention
}

// Status summarizes the orchestrator.
type Status struct {
	Mode        string   `json:"operatingMode"`
	State       string   `json:"state"`
	Active      bool     `json:"sessionActive"`
	SessionID   string   `json:"sessionId,omitempty"`
	Transcriber string   `json:"transcriber,omitempty"`
	Agents      []string `json:"registeredAgents"`
	Buffered    int      `json:"bufferedEvents"`
}

// Status returns a status summary.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		Mode:        o.retention.String(),
		State:       StateIdle.String(),
		Transcriber: o.transcriber,
		Agents:      make([]string, 0, len(o.agents)),
	}
	if o.run != nil {
		st.Active = true
		st.State = StateActive.String()
		st.SessionID = o.run.sc.SessionID
	}
	agents := append([]agent.Agent(nil), o.agents...)
	o.mu.Unlock()

	for _, a := range agents {
		st.Agents = append(st.Agents, agentName(a))
	}
	o.bufMu.RLock()
	st.Buffered = len(o.buffer)
	o.bufMu.RUnlock()
	return st
}

// AgentStatuses collects Status from every registered agent.
func (o *Orchestrator) AgentStatuses() []agent.Status {
	agents := o.Agents()
	out := make([]agent.Status, 0, len(agents))
	for _, a := range agents {
		var st agent.Status
		if err := notify(a, "", func() { st = a.Status() }); err != nil {
			st = agent.Status{Name: agentName(a), State: "error"}
		}
		out = append(out, st)
	}
	return out
}

func (o *Orchestrator) loop(r *Run, began chan<- struct{}) {
	close(began)
	if err := o.pump(r); err != nil {
		r.err = err
		o.observer.Fault(err)
		if o.claimStop(r) {
			close(r.loopDone)
			o.shutdown(r, false)
			return
		}
	}
	close(r.loopDone)
}

// pump is the pipeline loop. It returns a non-nil error only for audio
// source failures.
func (o *Orchestrator) pump(r *Run) error {
	id := r.sc.SessionID
	rate := r.source.SampleRate()
	// Agents finish the event in hand even if Stop cancels the run.
	agentCtx := context.WithoutCancel(r.ctx)

	for r.active.Load() {
		chunk, err := r.source.NextChunk(r.ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || !r.active.Load() {
				return nil
			}
			return &faults.AudioSourceError{SessionID: id, Err: err}
		}
		r.chunks.Add(1)
		if !r.active.Load() {
			return nil
		}

		ev, err := r.transcriber.Transcribe(r.ctx, chunk, rate, true)
		if err == nil {
			err = o.validator.Validate(ev)
		}
		if err != nil {
			if !r.active.Load() {
				return nil
			}
			o.observer.Fault(&faults.TranscriptionError{SessionID: id, Chunk: chunk.Index, Err: err})
			continue
		}

		o.bufMu.Lock()
		o.buffer = append(o.buffer, ev)
		o.bufMu.Unlock()

		outcomes := fanOut(agentCtx, o.Agents(), ev, r.sc)
		for _, out := range outcomes {
			if out.Err != nil {
				o.observer.Fault(out.Err)
			}
		}
		o.observer.EventDispatched(id, ev, outcomes)
	}
	return nil
}

func isComparable(a agent.Agent) bool {
	return reflect.TypeOf(a).Comparable()
}

// claimStop marks r as stopping. Only the first caller gets true and must
// run shutdown.
func (o *Orchestrator) claimStop(r *Run) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r.stopping {
		return false
	}
	r.stopping = true
	return true
}

// shutdown tears r down. It runs exactly once per run.
func (o *Orchestrator) shutdown(r *Run, waitLoop bool) {
	r.active.Store(false)
	r.cancel()
	if err := r.source.Stop(); err != nil {
		o.observer.Fault(&faults.AudioSourceError{SessionID: r.sc.SessionID, Err: fmt.Errorf("stop: %w", err)})
	}
	if waitLoop {
		<-r.loopDone
	}

	end := time.Now()
	sc := r.sc
	sc.EndTime = &end

	for _, a := range o.Agents() {
		if err := notify(a, sc.SessionID, func() { a.OnSessionEnd(sc.SessionID) }); err != nil {
			o.observer.Fault(err)
		}
	}

	buffered := o.applyRetention(sc)
	o.observer.SessionEnded(sc, o.retention, buffered, end.Sub(r.started))

	o.mu.Lock()
	o.run = nil
	o.mu.Unlock()
	close(r.stopped)
}

// applyRetention runs the mode-dependent teardown of the session buffer and
// returns the number of events the session produced.
func (o *Orchestrator) applyRetention(sc models.SessionContext) int {
	o.bufMu.Lock()
	n := len(o.buffer)
	if o.retention != RetentionPersist {
		for i := range o.buffer {
			o.buffer[i] = models.TranscriptionEvent{}
		}
		o.buffer = nil
		o.bufMu.Unlock()
		return n
	}
	events := append([]models.TranscriptionEvent(nil), o.buffer...)
	o.bufMu.Unlock()

	if o.archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), o.archiveTimeout)
		defer cancel()
		if err := o.archiver.Archive(ctx, sc, events); err != nil {
			o.observer.Fault(fmt.Errorf("archive session %s: %w", sc.SessionID, err))
		}
	}
	return n
}
