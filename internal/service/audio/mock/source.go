// Package mock provides a synthetic audio source for running sessions without
// capture hardware. Chunks are silence with a low-amplitude noise floor.
package mock

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/thorwhalen/pacing/internal/service/audio"
)

// ErrNotStarted is returned by NextChunk before Start.
var ErrNotStarted = errors.New("audio stream not started")

// Config controls the shape and pacing of generated audio.
type Config struct {
	SampleRate    int           // Hz
	ChunkDuration time.Duration // length of each chunk
	TotalChunks   int           // 0 means unbounded
	Realtime      bool          // sleep ChunkDuration between chunks
	NoiseStdDev   float64
	Seed          int64
}

// DefaultConfig returns a 16kHz source producing 100ms chunks for one minute.
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		ChunkDuration: 100 * time.Millisecond,
		TotalChunks:   600,
		Realtime:      true,
		NoiseStdDev:   0.001,
		Seed:          time.Now().UnixNano(),
	}
}

// Source implements audio.Source with generated chunks.
type Source struct {
	cfg       Config
	chunkSize int

	mu       sync.Mutex
	rng      *rand.Rand
	started  bool
	stopped  bool
	produced int
	stopCh   chan struct{}
}

// New creates a mock source.
func New(cfg Config) *Source {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = 100 * time.Millisecond
	}
	return &Source{
		cfg:       cfg,
		chunkSize: int(int64(cfg.SampleRate) * cfg.ChunkDuration.Milliseconds() / 1000),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		stopCh:    make(chan struct{}),
	}
}

// Start begins streaming. Starting a stopped source is not supported.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// Stop ends the stream. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	return nil
}

// NextChunk returns the next generated chunk, pacing in real time if configured.
func (s *Source) NextChunk(ctx context.Context) (audio.Chunk, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return audio.Chunk{}, ErrNotStarted
	}
	if s.stopped || (s.cfg.TotalChunks > 0 && s.produced >= s.cfg.TotalChunks) {
		s.mu.Unlock()
		return audio.Chunk{}, io.EOF
	}
	idx := s.produced
	s.produced++
	samples := make([]float32, s.chunkSize)
	for i := range samples {
		samples[i] = float32(s.rng.NormFloat64() * s.cfg.NoiseStdDev)
	}
	s.mu.Unlock()

	if s.cfg.Realtime && idx > 0 {
		t := time.NewTimer(s.cfg.ChunkDuration)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.stopCh:
			return audio.Chunk{}, io.EOF
		case <-ctx.Done():
			return audio.Chunk{}, ctx.Err()
		}
	}

	return audio.Chunk{Index: idx, Samples: samples}, nil
}

// SampleRate returns the configured sample rate.
func (s *Source) SampleRate() int {
	return s.cfg.SampleRate
}

// ChunkSize returns the number of samples per chunk.
func (s *Source) ChunkSize() int {
	return s.chunkSize
}
