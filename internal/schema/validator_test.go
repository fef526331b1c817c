package schema

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/thorwhalen/pacing/internal/models"
)

func TestValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		ev    models.TranscriptionEvent
		valid bool
	}{
		{"ok", models.TranscriptionEvent{Text: "hi", Confidence: 0.9, Timestamp: now}, true},
		{"zero confidence", models.TranscriptionEvent{Confidence: 0, Timestamp: now}, true},
		{"full confidence", models.TranscriptionEvent{Confidence: 1, Timestamp: now}, true},
		{"negative", models.TranscriptionEvent{Confidence: -0.01, Timestamp: now}, false},
		{"above one", models.TranscriptionEvent{Confidence: 1.01, Timestamp: now}, false},
		{"NaN", models.TranscriptionEvent{Confidence: math.NaN(), Timestamp: now}, false},
		{"no timestamp", models.TranscriptionEvent{Confidence: 0.5}, false},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.ev)
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}
