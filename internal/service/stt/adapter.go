// Package stt defines the interface for Speech-to-Text transcribers.
package stt

import (
	"context"

	"github.com/thorwhalen/pacing/internal/models"
	"github.com/thorwhalen/pacing/internal/service/audio"
)

// Transcriber converts audio chunks into transcription events
// (Google, mock, etc.).
type Transcriber interface {
	// Transcribe converts one chunk into a single event. It may block on
	// external work and should honor ctx cancellation.
	Transcribe(ctx context.Context, chunk audio.Chunk, sampleRate int, isFinal bool) (models.TranscriptionEvent, error)

	// Name identifies the transcriber in status summaries.
	Name() string
}

// ModelInfo describes a transcriber implementation.
type ModelInfo struct {
	Name               string `json:"name"`
	Version            string `json:"version"`
	Language           string `json:"language"`
	Type               string `json:"type"`
	SpeakerDiarization bool   `json:"speakerDiarization"`
}

// Describer is implemented by transcribers that can report model details.
type Describer interface {
	ModelInfo() ModelInfo
}
