// Package app wires configuration, observability, the session orchestrator,
// agents, storage and publishing into one process-wide Application.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/thorwhalen/pacing/internal/agent/auditor"
	"github.com/thorwhalen/pacing/internal/agent/relay"
	"github.com/thorwhalen/pacing/internal/config"
	"github.com/thorwhalen/pacing/internal/events"
	"github.com/thorwhalen/pacing/internal/models"
	"github.com/thorwhalen/pacing/internal/observability"
	"github.com/thorwhalen/pacing/internal/observability/logging"
	"github.com/thorwhalen/pacing/internal/observability/metrics"
	"github.com/thorwhalen/pacing/internal/service/audio"
	audiomock "github.com/thorwhalen/pacing/internal/service/audio/mock"
	"github.com/thorwhalen/pacing/internal/service/session"
	"github.com/thorwhalen/pacing/internal/service/stt"
	"github.com/thorwhalen/pacing/internal/service/stt/google"
	sttmock "github.com/thorwhalen/pacing/internal/service/stt/mock"
	"github.com/thorwhalen/pacing/internal/store"
)

// SourceFactory creates the audio source for a new session.
type SourceFactory func(cfg config.AudioConfig) audio.Source

// TranscriberFactory creates the transcriber for a new session.
type TranscriberFactory func(ctx context.Context, cfg config.STTConfig) (stt.Transcriber, error)

// Option configures an Application.
type Option func(*Application)

// WithSourceFactory replaces the generated audio source.
func WithSourceFactory(f SourceFactory) Option {
	return func(a *Application) { a.newSource = f }
}

// WithTranscriberFactory replaces the provider-selected transcriber.
func WithTranscriberFactory(f TranscriberFactory) Option {
	return func(a *Application) { a.newTranscriber = f }
}

// WithObserver adds an observer next to the metrics Recorder.
func WithObserver(obs session.Observer) Option {
	return func(a *Application) { a.observers = append(a.observers, obs) }
}

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Recorder     *observability.Recorder
	Orchestrator *session.Orchestrator
	Auditor      *auditor.Auditor
	Relay        *relay.Relay
	Publisher    *events.Publisher
	Store        *store.SQLiteStore // nil in ephemeral mode

	newSource      SourceFactory
	newTranscriber TranscriberFactory
	observers      []session.Observer

	mu      sync.Mutex
	current *tracked
}

// tracked is a running session plus a channel closed when its post-session
// work has finished.
type tracked struct {
	run  *session.Run
	done chan struct{}
}

// New constructs an Application from cfg. The configuration is validated.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	retention, _ := cfg.Retention()

	a := &Application{
		Cfg:            cfg,
		Logger:         logging.WithComponent("application"),
		Registry:       prometheus.NewRegistry(),
		newSource:      DefaultSourceFactory,
		newTranscriber: DefaultTranscriberFactory,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.NewMetrics(a.Registry)
	a.Recorder = observability.NewRecorder(a.Metrics, logging.WithComponent("session"))
	a.Publisher = events.New(&events.Config{
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		TopicReview:  cfg.Kafka.TopicReview,
		Principal:    cfg.Kafka.Principal,
		Enabled:      cfg.Kafka.Enabled,
	}, a.Metrics)

	aud, err := auditor.New(cfg.Auditor,
		auditor.WithLogger(logging.WithComponent("auditor")),
		auditor.WithQueueWarning(a.Recorder.QueueWarning),
		auditor.WithFlagHook(a.onFlag),
	)
	if err != nil {
		return nil, err
	}
	a.Auditor = aud

	observers := append(session.Observers{a.Recorder}, a.observers...)
	sessionOpts := []session.Option{session.WithObserver(observers)}
	if retention == session.RetentionPersist {
		st, err := store.NewSQLiteStore(cfg.Session.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		a.Store = st
		sessionOpts = append(sessionOpts, session.WithArchiver(st))
	}

	a.Orchestrator = session.NewOrchestrator(retention, sessionOpts...)
	if err := a.Orchestrator.Register(a.Auditor); err != nil {
		return nil, fmt.Errorf("register auditor: %w", err)
	}
	if cfg.Kafka.Enabled && cfg.Kafka.RelayEvents {
		a.Relay = relay.New(a.Publisher, relay.WithLogger(logging.WithComponent("relay")))
		if err := a.Orchestrator.Register(a.Relay); err != nil {
			return nil, fmt.Errorf("register relay: %w", err)
		}
	}

	a.Logger.Info().
		Str("mode", retention.String()).
		Str("sttProvider", cfg.STT.Provider).
		Bool("kafka", a.Publisher.Enabled()).
		Msg("Pacing application created")
	return a, nil
}

// onFlag records and publishes a newly flagged review item.
func (a *Application) onFlag(item models.ReviewItem, sc models.SessionContext) {
	a.Recorder.ReviewFlagged(item, a.Auditor.Stats().Total)
	if !a.Publisher.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Publisher.PublishReview(ctx, sc.SessionID, item); err != nil {
		a.Logger.Warn().Err(err).Str("itemId", item.ID).Msg("Failed to publish review item")
	}
}

// DefaultSourceFactory builds the generated audio source.
func DefaultSourceFactory(cfg config.AudioConfig) audio.Source {
	mc := audiomock.DefaultConfig()
	mc.SampleRate = cfg.SampleRate
	mc.ChunkDuration = cfg.ChunkDuration
	mc.TotalChunks = cfg.TotalChunks
	mc.Realtime = cfg.Realtime
	return audiomock.New(mc)
}

// DefaultTranscriberFactory builds the transcriber named by cfg.Provider.
func DefaultTranscriberFactory(ctx context.Context, cfg config.STTConfig) (stt.Transcriber, error) {
	switch cfg.Provider {
	case "google":
		return google.New(ctx, google.Config{
			LanguageCode:  cfg.LanguageCode,
			SampleRateHz:  cfg.SampleRateHz,
			AudioEncoding: cfg.AudioEncoding,
			Punctuation:   true,
		})
	case "mock", "":
		mc := sttmock.DefaultConfig()
		mc.Latency = cfg.MockLatency
		mc.BaseConfidence = cfg.MockBaseConfidence
		mc.ConfidenceVariance = cfg.MockConfidenceVariance
		mc.LowConfidenceRate = cfg.MockLowConfidenceRate
		mc.Adaptive = cfg.Adaptive
		if cfg.Seed != 0 {
			mc.Seed = cfg.Seed
		}
		return sttmock.New(mc), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

// StartSession starts a session with fresh collaborators. An empty session id
// is replaced with a random UUID.
func (a *Application) StartSession(ctx context.Context, sc models.SessionContext) (*session.Run, error) {
	if sc.SessionID == "" {
		sc.SessionID = uuid.NewString()
	}

	tr, err := a.newTranscriber(ctx, a.Cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("create transcriber: %w", err)
	}
	run, err := a.Orchestrator.Start(ctx, sc, a.newSource(a.Cfg.Audio), tr)
	if err != nil {
		closeTranscriber(tr)
		return nil, err
	}

	t := &tracked{run: run, done: make(chan struct{})}
	a.mu.Lock()
	a.current = t
	a.mu.Unlock()

	go a.afterSession(t, tr)

	l := logging.WithTranscriber(run.Session().SessionID, tr.Name())
	l.Info().Msg("Session running")
	return run, nil
}

// afterSession releases per-session resources once the run is torn down and
// snapshots the review queue in persist mode.
func (a *Application) afterSession(t *tracked, tr stt.Transcriber) {
	defer close(t.done)
	<-t.run.Stopped()
	closeTranscriber(tr)

	if a.Store != nil {
		id := t.run.Session().SessionID
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.Store.SaveReviewItems(ctx, id, a.Auditor.ListAll()); err != nil {
			a.Logger.Error().Err(err).Str("sessionId", id).Msg("Failed to save review queue")
		}
		cancel()
	}

	a.mu.Lock()
	if a.current == t {
		a.current = nil
	}
	a.mu.Unlock()
}

// StopSession stops the active session and waits for post-session work.
func (a *Application) StopSession(ctx context.Context) error {
	a.mu.Lock()
	t := a.current
	a.mu.Unlock()

	if err := a.Orchestrator.Stop(ctx); err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentRun returns the running session handle, or nil.
func (a *Application) CurrentRun() *session.Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	return a.current.run
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Pacing service starting")
	return nil
}

// Ready reports an error until Start has run.
func (a *Application) Ready() error {
	if a.StartupTime.IsZero() {
		return errors.New("application not started")
	}
	return nil
}

// Shutdown stops any active session and releases resources.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Logger.Info().Msg("Pacing service shutting down")

	var errs []error
	if err := a.StopSession(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop session: %w", err))
	}
	if err := a.Publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func closeTranscriber(tr stt.Transcriber) {
	if c, ok := tr.(io.Closer); ok {
		c.Close()
	}
}
