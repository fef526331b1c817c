package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/thorwhalen/pacing/internal/agent"
	"github.com/thorwhalen/pacing/internal/models"
	"github.com/thorwhalen/pacing/internal/service/audio"
)

var errSourceBroken = errors.New("microphone unplugged")

// testSource yields total chunks (0 = unbounded) and optionally fails at
// chunk failAt.
type testSource struct {
	total     int
	failAt    int
	startErr  error
	startGate chan struct{} // Start blocks until closed
	interval  time.Duration

	mu       sync.Mutex
	next     int
	stopped  chan struct{}
	stopOnce sync.Once
}

func newTestSource(total int) *testSource {
	return &testSource{total: total, failAt: -1, stopped: make(chan struct{})}
}

func (s *testSource) Start(ctx context.Context) error {
	if s.startGate != nil {
		<-s.startGate
	}
	return s.startErr
}

func (s *testSource) isStopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

func (s *testSource) Stop() error {
	s.stopOnce.Do(func() { close(s.stopped) })
	return nil
}

func (s *testSource) NextChunk(ctx context.Context) (audio.Chunk, error) {
	if s.interval > 0 {
		timer := time.NewTimer(s.interval)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.stopped:
			return audio.Chunk{}, io.EOF
		case <-ctx.Done():
			return audio.Chunk{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total > 0 && s.next >= s.total {
		return audio.Chunk{}, io.EOF
	}
	if s.next == s.failAt {
		return audio.Chunk{}, errSourceBroken
	}
	i := s.next
	s.next++
	return audio.Chunk{Index: i, Samples: make([]float32, 4)}, nil
}

func (s *testSource) SampleRate() int { return 16000 }

// testTranscriber emits "chunk-<index>" for every chunk.
type testTranscriber struct {
	fail       map[int]error
	confidence map[int]float64
}

func (tr *testTranscriber) Transcribe(ctx context.Context, chunk audio.Chunk, sampleRate int, isFinal bool) (models.TranscriptionEvent, error) {
	if err, ok := tr.fail[chunk.Index]; ok {
		return models.TranscriptionEvent{}, err
	}
	conf := 0.9
	if c, ok := tr.confidence[chunk.Index]; ok {
		conf = c
	}
	return models.TranscriptionEvent{
		Text:       fmt.Sprintf("chunk-%d", chunk.Index),
		Timestamp:  time.Now(),
		Confidence: conf,
		IsPartial:  !isFinal,
	}, nil
}

func (tr *testTranscriber) Name() string { return "TestTranscriber" }

// testAgent records everything it is told.
type testAgent struct {
	name   string
	delay  time.Duration
	err    error
	panics bool
	before func(ev models.TranscriptionEvent)
	after  func(ev models.TranscriptionEvent)

	mu       sync.Mutex
	events   []models.TranscriptionEvent
	starts   []string
	ends     []string
	metadata map[string]string
}

func (a *testAgent) Name() string { return a.name }

func (a *testAgent) OnSessionStart(sessionID string, metadata map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts = append(a.starts, sessionID)
	a.metadata = metadata
}

func (a *testAgent) OnEvent(ctx context.Context, ev models.TranscriptionEvent, sc models.SessionContext) error {
	if a.before != nil {
		a.before(ev)
	}
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	a.mu.Lock()
	a.events = append(a.events, ev)
	a.mu.Unlock()
	if a.after != nil {
		a.after(ev)
	}
	if a.panics {
		panic("agent exploded")
	}
	return a.err
}

func (a *testAgent) OnSessionEnd(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ends = append(a.ends, sessionID)
}

func (a *testAgent) Status() agent.Status {
	return agent.Status{Name: a.name, State: agent.StateIdle}
}

func (a *testAgent) eventCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

func (a *testAgent) texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, ev := range a.events {
		out[i] = ev.Text
	}
	return out
}

func (a *testAgent) endCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ends)
}

type endedRecord struct {
	sc        models.SessionContext
	retention Retention
	buffered  int
}

type testObserver struct {
	mu         sync.Mutex
	started    []models.SessionContext
	ended      []endedRecord
	dispatched int
	outcomes   [][]Outcome
	faults     []error
}

func (o *testObserver) SessionStarted(sc models.SessionContext) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, sc)
}

func (o *testObserver) SessionEnded(sc models.SessionContext, retention Retention, buffered int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, endedRecord{sc: sc, retention: retention, buffered: buffered})
}

func (o *testObserver) EventDispatched(_ string, _ models.TranscriptionEvent, outcomes []Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dispatched++
	o.outcomes = append(o.outcomes, outcomes)
}

func (o *testObserver) Fault(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.faults = append(o.faults, err)
}

func (o *testObserver) faultList() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.faults...)
}

func (o *testObserver) endedList() []endedRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]endedRecord(nil), o.ended...)
}

type testArchiver struct {
	mu     sync.Mutex
	calls  int
	sc     models.SessionContext
	events []models.TranscriptionEvent
	err    error
}

func (a *testArchiver) Archive(ctx context.Context, sc models.SessionContext, events []models.TranscriptionEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.sc = sc
	a.events = events
	return a.err
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitUntil(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func stopWithin(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func testSession(id string) models.SessionContext {
	return models.SessionContext{
		SessionID:   id,
		PatientID:   "patient-1",
		ClinicianID: "clinician-1",
		StartTime:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}
