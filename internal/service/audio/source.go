// Package audio defines the audio source contract consumed by the session
// orchestrator.
package audio

import "context"

// Chunk is one block of mono PCM samples normalized to [-1, 1].
type Chunk struct {
	Index   int
	Samples []float32
}

// Source produces audio chunks for a session.
//
// NextChunk blocks until a chunk is available and returns io.EOF once the
// source is exhausted or stopped. Any other error is treated as a failure of
// the source and ends the session. Stop must be idempotent and must unblock
// a pending NextChunk.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
	NextChunk(ctx context.Context) (Chunk, error)
	SampleRate() int
}
