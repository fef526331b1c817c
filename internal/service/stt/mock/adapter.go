// Package mock provides a scripted transcriber for running sessions without
// cloud credentials. It returns lines of a counseling conversation in order,
// with simulated latency and plausible confidence scores.
package mock

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/thorwhalen/pacing/internal/models"
	"github.com/thorwhalen/pacing/internal/service/audio"
	"github.com/thorwhalen/pacing/internal/service/stt"
)

// DefaultScript is a short counseling session.
var DefaultScript = []string{
	"Hi, how have you been doing this week?",
	"I've been okay, but I had a really tough day on Tuesday.",
	"What happened on Tuesday?",
	"I lost my job. They said it was due to budget cuts.",
	"I'm sorry to hear that. That must be very stressful.",
	"Yeah, it's been hard. I almost relapsed that night.",
	"But you didn't?",
	"No, I called my sponsor instead.",
	"That's really good. You used your support system.",
	"I'm still taking my buprenorphine every day.",
	"How long have you been on that now?",
	"About six months.",
	"And it's been helping?",
	"Yeah, definitely. I haven't had any cravings in weeks.",
	"That's excellent progress.",
}

// difficultTerms lower confidence in adaptive mode.
var difficultTerms = []string{
	"buprenorphine", "naloxone", "methadone", "suboxone",
	"opioid", "benzodiazepine", "relapse", "withdrawal",
}

var negations = []string{"not", "no", "never", "didn't"}

// Config controls the simulated transcription behavior.
type Config struct {
	Script             []string
	Latency            time.Duration
	BaseConfidence     float64
	ConfidenceVariance float64
	LowConfidenceRate  float64 // chance of a confidence in [0.50, 0.70)
	Adaptive           bool    // penalize long, technical and negated utterances
	Seed               int64
}

// DefaultConfig returns the default simulation settings.
func DefaultConfig() Config {
	return Config{
		Script:             DefaultScript,
		Latency:            50 * time.Millisecond,
		BaseConfidence:     0.85,
		ConfidenceVariance: 0.10,
		LowConfidenceRate:  0.15,
		Seed:               time.Now().UnixNano(),
	}
}

// Transcriber implements stt.Transcriber with scripted responses.
// Once the script is exhausted it returns events with empty text.
type Transcriber struct {
	cfg Config

	mu    sync.Mutex
	rng   *rand.Rand
	index int
}

var _ stt.Transcriber = (*Transcriber)(nil)

// New creates a scripted transcriber.
func New(cfg Config) *Transcriber {
	if len(cfg.Script) == 0 {
		cfg.Script = DefaultScript
	}
	return &Transcriber{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Transcribe returns the next scripted line after the configured latency.
func (t *Transcriber) Transcribe(ctx context.Context, chunk audio.Chunk, sampleRate int, isFinal bool) (models.TranscriptionEvent, error) {
	if t.cfg.Latency > 0 {
		timer := time.NewTimer(t.cfg.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return models.TranscriptionEvent{}, ctx.Err()
		}
	}

	t.mu.Lock()
	var text string
	if t.index < len(t.cfg.Script) {
		text = t.cfg.Script[t.index]
		t.index++
	}
	confidence := t.cfg.BaseConfidence + (t.rng.Float64()*2-1)*t.cfg.ConfidenceVariance
	if t.rng.Float64() < t.cfg.LowConfidenceRate {
		confidence = 0.50 + t.rng.Float64()*0.20
	}
	t.mu.Unlock()

	confidence = clamp(confidence, 0, 1)
	if t.cfg.Adaptive && text != "" {
		confidence = adjust(text, confidence)
	}

	return models.TranscriptionEvent{
		Text:       text,
		Timestamp:  time.Now(),
		Confidence: confidence,
		IsPartial:  !isFinal,
	}, nil
}

// Name returns the transcriber name.
func (t *Transcriber) Name() string {
	if t.cfg.Adaptive {
		return "AdaptiveConfidenceTranscriber"
	}
	return "MockTranscriber"
}

// ModelInfo describes the mock model.
func (t *Transcriber) ModelInfo() stt.ModelInfo {
	return stt.ModelInfo{
		Name:     t.Name(),
		Version:  "1.0.0",
		Language: "en-US",
		Type:     "scripted",
	}
}

// Reset rewinds the script to the first line.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.index = 0
}

// adjust applies the adaptive confidence penalties.
func adjust(text string, confidence float64) float64 {
	if len(strings.Fields(text)) > 15 {
		confidence *= 0.90
	}
	lower := strings.ToLower(text)
	if containsAny(lower, difficultTerms) {
		confidence *= 0.85
	}
	if containsAny(lower, negations) {
		confidence *= 0.90
	}
	return clamp(confidence, 0.40, 1)
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
