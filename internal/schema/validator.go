// Package schema validates transcription events before they enter the
// session pipeline.
package schema

import (
	"errors"
	"fmt"
	"math"

	"github.com/thorwhalen/pacing/internal/models"
)

// ErrInvalidEvent is wrapped by every validation failure.
var ErrInvalidEvent = errors.New("invalid transcription event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the event invariants: confidence within [0,1] and a
// timestamp set by the transcriber.
func (v *Validator) Validate(ev models.TranscriptionEvent) error {
	if math.IsNaN(ev.Confidence) || ev.Confidence < 0 || ev.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidEvent, ev.Confidence)
	}
	if ev.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	return nil
}
