package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thorwhalen/pacing/internal/service/audio"
)

func quietConfig(script []string) Config {
	return Config{
		Script:             script,
		BaseConfidence:     0.85,
		ConfidenceVariance: 0.10,
		LowConfidenceRate:  0,
		Seed:               42,
	}
}

func TestTranscriber_FollowsScript(t *testing.T) {
	tr := New(quietConfig([]string{"one", "two"}))
	ctx := context.Background()

	for _, want := range []string{"one", "two", "", ""} {
		ev, err := tr.Transcribe(ctx, audio.Chunk{}, 16000, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Text != want {
			t.Errorf("expected %q, got %q", want, ev.Text)
		}
		if ev.IsPartial {
			t.Error("expected final event when isFinal is true")
		}
	}
}

func TestTranscriber_ConfidenceWithinVariance(t *testing.T) {
	tr := New(quietConfig(nil))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		ev, _ := tr.Transcribe(ctx, audio.Chunk{}, 16000, false)
		if ev.Confidence < 0.75-1e-9 || ev.Confidence > 0.95+1e-9 {
			t.Fatalf("confidence %v outside base±variance", ev.Confidence)
		}
		if !ev.IsPartial {
			t.Error("expected partial event when isFinal is false")
		}
	}
}

func TestTranscriber_LowConfidenceRate(t *testing.T) {
	cfg := quietConfig(nil)
	cfg.LowConfidenceRate = 1
	tr := New(cfg)

	ev, _ := tr.Transcribe(context.Background(), audio.Chunk{}, 16000, true)
	if ev.Confidence < 0.50 || ev.Confidence >= 0.70 {
		t.Errorf("expected forced low confidence in [0.50, 0.70), got %v", ev.Confidence)
	}
}

func TestTranscriber_Adaptive(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"plain", "About six months.", 0.80},
		{"difficult term", "I take buprenorphine", 0.80 * 0.85},
		{"negation", "I did not go", 0.80 * 0.90},
		{"floor", "no buprenorphine", 0.40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := 0.80
			if tt.name == "floor" {
				base = 0.45
			}
			got := adjust(tt.text, base)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("adjust(%q, %v) = %v, want %v", tt.text, base, got, tt.want)
			}
		})
	}
}

func TestTranscriber_RespectsContext(t *testing.T) {
	cfg := quietConfig(nil)
	cfg.Latency = time.Hour
	tr := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Transcribe(ctx, audio.Chunk{}, 16000, true)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTranscriber_ResetAndInfo(t *testing.T) {
	tr := New(quietConfig([]string{"only"}))
	ctx := context.Background()

	tr.Transcribe(ctx, audio.Chunk{}, 16000, true)
	tr.Reset()
	ev, _ := tr.Transcribe(ctx, audio.Chunk{}, 16000, true)
	if ev.Text != "only" {
		t.Errorf("expected script to restart after Reset, got %q", ev.Text)
	}

	if tr.Name() != "MockTranscriber" {
		t.Errorf("unexpected name %q", tr.Name())
	}
	if info := tr.ModelInfo(); info.Type != "scripted" {
		t.Errorf("expected scripted model type, got %q", info.Type)
	}
}
