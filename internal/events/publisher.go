// Package events publishes session transcripts and review items to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/thorwhalen/pacing/internal/models"
	"github.com/thorwhalen/pacing/internal/observability/logging"
	"github.com/thorwhalen/pacing/internal/observability/metrics"
)

// Event types carried in the eventType header.
const (
	EventPartial = "partial"
	EventFinal   = "final"
	EventReview  = "review"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TranscriptMessage is the payload published for each transcription event.
type TranscriptMessage struct {
	SessionID   string                    `json:"sessionId"`
	SessionType string                    `json:"sessionType"`
	Event       models.TranscriptionEvent `json:"event"`
	PublishedAt time.Time                 `json:"publishedAt"`
}

// ReviewMessage is the payload published for each flagged review item.
type ReviewMessage struct {
	SessionID   string            `json:"sessionId"`
	Item        models.ReviewItem `json:"item"`
	PublishedAt time.Time         `json:"publishedAt"`
}

// route binds an event type to its topic and writer. w is nil when Kafka is
// disabled.
type route struct {
	topic string
	w     messageWriter
}

// Publisher publishes transcript events and review items to separate Kafka
// topics. Messages are keyed by session id so a session stays on one
// partition.
type Publisher struct {
	routes    map[string]route
	principal string
	enabled   bool
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	TopicReview  string
	Principal    string
	Enabled      bool
}

func (c *Config) topics() map[string]string {
	return map[string]string{
		EventPartial: c.TopicPartial,
		EventFinal:   c.TopicFinal,
		EventReview:  c.TopicReview,
	}
}

// New creates a publisher. With a nil config, Enabled unset or no brokers it
// runs log-only: payloads are logged at trace level and counted, never sent.
// A nil m uses metrics.DefaultMetrics.
func New(cfg *Config, m *metrics.Metrics) *Publisher {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	if cfg == nil {
		cfg = &Config{}
	}
	p := &Publisher{
		routes:    make(map[string]route, 3),
		principal: cfg.Principal,
		enabled:   cfg.Enabled && len(cfg.Brokers) > 0,
		metrics:   m,
		logger:    logging.WithComponent("kafka"),
	}

	var transport *kafka.Transport
	if p.enabled {
		dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
		transport = &kafka.Transport{Dial: dialer.DialFunc}
	}
	for eventType, topic := range cfg.topics() {
		r := route{topic: topic}
		if p.enabled {
			r.w = &kafka.Writer{
				Addr:         kafka.TCP(cfg.Brokers...),
				Topic:        topic,
				Balancer:     &kafka.Hash{},
				BatchTimeout: 10 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				RequiredAcks: kafka.RequireOne,
				Transport:    transport,
			}
		}
		p.routes[eventType] = r
	}

	if p.enabled {
		p.logger.Info().
			Strs("brokers", cfg.Brokers).
			Str("topicPartial", cfg.TopicPartial).
			Str("topicFinal", cfg.TopicFinal).
			Str("topicReview", cfg.TopicReview).
			Str("principal", cfg.Principal).
			Msg("Kafka publisher initialized")
	} else {
		p.logger.Info().Msg("Kafka disabled, using log-only mode")
	}
	return p
}

// Enabled reports whether messages reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishTranscript publishes ev to the partial or final topic depending on
// ev.IsPartial.
func (p *Publisher) PublishTranscript(ctx context.Context, sc models.SessionContext, ev models.TranscriptionEvent) error {
	eventType := EventFinal
	if ev.IsPartial {
		eventType = EventPartial
	}
	return p.publish(ctx, eventType, sc.SessionID, TranscriptMessage{
		SessionID:   sc.SessionID,
		SessionType: sc.SessionType,
		Event:       ev,
		PublishedAt: time.Now().UTC(),
	})
}

// PublishReview publishes a flagged review item to the review topic.
func (p *Publisher) PublishReview(ctx context.Context, sessionID string, item models.ReviewItem) error {
	return p.publish(ctx, EventReview, sessionID, ReviewMessage{
		SessionID:   sessionID,
		Item:        item,
		PublishedAt: time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, eventType, key string, payload any) error {
	start := time.Now()
	r := p.routes[eventType]

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	// Transcript text is PHI.
	p.logger.Trace().
		Str("topic", r.topic).
		Str("key", key).
		RawJSON("payload", value).
		Msg("Publishing event")

	if r.w != nil {
		err = r.w.WriteMessages(ctx, kafka.Message{
			Key:   []byte(key),
			Value: value,
			Headers: []kafka.Header{
				{Key: "eventType", Value: []byte(eventType)},
				{Key: "principal", Value: []byte(p.principal)},
			},
		})
	}
	p.metrics.RecordKafkaPublish(r.topic, eventType, err, time.Since(start).Seconds())
	if err != nil {
		p.logger.Error().Err(err).Str("topic", r.topic).Str("key", key).Msg("Kafka write failed")
		return fmt.Errorf("publish %s to %s: %w", eventType, r.topic, err)
	}
	return nil
}

// Close closes every Kafka writer and returns the joined errors.
func (p *Publisher) Close() error {
	var errs []error
	for eventType, r := range p.routes {
		if r.w == nil {
			continue
		}
		if err := r.w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s writer: %w", eventType, err))
		}
	}
	return errors.Join(errs...)
}
