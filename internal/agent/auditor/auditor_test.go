package auditor

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/thorwhalen/pacing/internal/faults"
	"github.com/thorwhalen/pacing/internal/models"
)

var testSession = models.SessionContext{
	SessionID:   "session_001",
	PatientID:   "patient_123",
	ClinicianID: "clinician_456",
	StartTime:   time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
	SessionType: models.DefaultSessionType,
}

func event(text string, confidence float64) models.TranscriptionEvent {
	return models.TranscriptionEvent{Text: text, Confidence: confidence, Timestamp: time.Now()}
}

func newAuditor(t *testing.T, cfg Config, opts ...Option) *Auditor {
	t.Helper()
	a, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return a
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Config)
		field string
	}{
		{"threshold below zero", func(c *Config) { c.ConfidenceThreshold = -0.1 }, "confidence_threshold"},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"threshold NaN", func(c *Config) { c.ConfidenceThreshold = math.NaN() }, "confidence_threshold"},
		{"queue size zero", func(c *Config) { c.MaxQueueSize = 0 }, "max_queue_size"},
		{"blank term", func(c *Config) { c.MedicalTerms = []string{"opioid", " "} }, "medical_terms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(&cfg)

			a, err := New(cfg)
			if a != nil {
				t.Error("expected nil auditor on invalid config")
			}
			var ce *faults.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ce.Field)
			}
		})
	}
}

func TestNew_BoundaryThresholdsAccepted(t *testing.T) {
	for _, th := range []float64{0, 1} {
		cfg := DefaultConfig()
		cfg.ConfidenceThreshold = th
		if _, err := New(cfg); err != nil {
			t.Errorf("threshold %v: unexpected error: %v", th, err)
		}
	}
}

func TestOnEvent_LowConfidenceScenario(t *testing.T) {
	a := newAuditor(t, DefaultConfig())

	if err := a.OnEvent(context.Background(), event("I've been okay", 0.45), testSession); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items := a.ListAll()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Priority != 5 {
		t.Errorf("expected priority 5, got %d", items[0].Priority)
	}
	if !strings.Contains(items[0].Reason, "0.45") {
		t.Errorf("expected reason to cite 0.45, got %q", items[0].Reason)
	}
	if items[0].ID == "" {
		t.Error("expected item id")
	}
}

func TestOnEvent_MedicalTermScenario(t *testing.T) {
	a := newAuditor(t, DefaultConfig())

	a.OnEvent(context.Background(), event("I take buprenorphine daily", 0.95), testSession)

	items := a.ListAll()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Priority != PriorityMedicalTerm {
		t.Errorf("expected priority 4, got %d", items[0].Priority)
	}
	if !strings.Contains(items[0].Reason, "buprenorphine") {
		t.Errorf("expected reason to cite buprenorphine, got %q", items[0].Reason)
	}
}

func TestOnEvent_EmptyTextScenario(t *testing.T) {
	a := newAuditor(t, DefaultConfig())

	for _, text := range []string{"", "   \t\n"} {
		a.OnEvent(context.Background(), event(text, 0.10), testSession)
	}

	stats := a.Stats()
	if stats.Processed != 2 {
		t.Errorf("expected 2 processed, got %d", stats.Processed)
	}
	if stats.Flagged != 0 {
		t.Errorf("expected 0 flagged, got %d", stats.Flagged)
	}
	if stats.Total != 0 {
		t.Errorf("expected empty queue, got %d", stats.Total)
	}
}

func TestOnEvent_PriorityTiers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.80
	cfg.FlagMedicalTerms = false

	tests := []struct {
		confidence float64
		priority   int
		flagged    bool
	}{
		{0.00, 5, true},
		{0.499, 5, true},
		{0.50, 3, true},
		{0.599, 3, true},
		{0.60, 2, true},
		{0.799, 2, true},
		{0.80, 0, false}, // equal to threshold: not flagged
		{0.95, 0, false},
	}

	for _, tt := range tests {
		a := newAuditor(t, cfg)
		a.OnEvent(context.Background(), event("some words", tt.confidence), testSession)

		items := a.ListAll()
		if !tt.flagged {
			if len(items) != 0 {
				t.Errorf("confidence %v: expected no flag, got %+v", tt.confidence, items)
			}
			continue
		}
		if len(items) != 1 {
			t.Fatalf("confidence %v: expected 1 item, got %d", tt.confidence, len(items))
		}
		if items[0].Priority != tt.priority {
			t.Errorf("confidence %v: expected priority %d, got %d", tt.confidence, tt.priority, items[0].Priority)
		}
	}
}

func TestOnEvent_ThresholdEqualStillChecksMedicalTerms(t *testing.T) {
	a := newAuditor(t, DefaultConfig())

	a.OnEvent(context.Background(), event("my methadone dose", 0.70), testSession)

	items := a.ListAll()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Priority != PriorityMedicalTerm {
		t.Errorf("expected medical-term priority, got %d", items[0].Priority)
	}
	if items[0].Reason != "contains medical terms: methadone, dose" {
		t.Errorf("unexpected reason %q", items[0].Reason)
	}
}

func TestOnEvent_LowConfidenceTakesPrecedence(t *testing.T) {
	a := newAuditor(t, DefaultConfig())

	a.OnEvent(context.Background(), event("buprenorphine", 0.65), testSession)

	items := a.ListAll()
	if len(items) != 1 || items[0].Priority != PriorityBelowThreshold {
		t.Fatalf("expected one low-confidence item, got %+v", items)
	}
	if strings.Contains(items[0].Reason, "medical") {
		t.Errorf("expected low-confidence reason, got %q", items[0].Reason)
	}
}

func TestOnEvent_MedicalTermsDisabledAndCustom(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlagMedicalTerms = false
	a := newAuditor(t, cfg)
	a.OnEvent(context.Background(), event("I take buprenorphine daily", 0.95), testSession)
	if len(a.ListAll()) != 0 {
		t.Error("expected no flag with medical-term flagging disabled")
	}

	cfg = DefaultConfig()
	cfg.MedicalTerms = []string{"Naltrexone"}
	a = newAuditor(t, cfg)
	a.OnEvent(context.Background(), event("started NALTREXONE", 0.95), testSession)
	a.OnEvent(context.Background(), event("I take buprenorphine daily", 0.95), testSession)
	items := a.ListAll()
	if len(items) != 1 || !strings.Contains(items[0].Reason, "naltrexone") {
		t.Errorf("expected only the custom term to flag, got %+v", items)
	}
}

func TestQueue_SortedByPriorityStable(t *testing.T) {
	cfg := DefaultConfig()
	a := newAuditor(t, cfg)
	ctx := context.Background()

	inputs := []models.TranscriptionEvent{
		event("a", 0.65),          // 2
		event("b", 0.40),          // 5
		event("c", 0.55),          // 3
		event("d", 0.66),          // 2
		event("e opioid", 0.90),   // 4
		event("f", 0.10),          // 5
		event("g fentanyl", 0.95), // 4
	}
	for _, ev := range inputs {
		a.OnEvent(ctx, ev, testSession)
	}

	var got []string
	for _, it := range a.ListAll() {
		got = append(got, it.Event.Text[:1])
	}
	want := []string{"b", "f", "e", "g", "c", "a", "d"}
	if strings.Join(got, "") != strings.Join(want, "") {
		t.Errorf("expected order %v, got %v", want, got)
	}
}

func TestMarkReviewed(t *testing.T) {
	a := newAuditor(t, DefaultConfig())
	a.OnEvent(context.Background(), event("hard to hear", 0.30), testSession)
	id := a.ListAll()[0].ID

	if !a.MarkReviewed(id, "verified") {
		t.Fatal("expected MarkReviewed to find the item")
	}
	if !a.MarkReviewed(id, "corrected") {
		t.Fatal("expected re-review to succeed")
	}
	item := a.ListAll()[0]
	if !item.Reviewed || item.ReviewerNotes != "corrected" {
		t.Errorf("expected reviewed item with overwritten notes, got %+v", item)
	}
	if a.MarkReviewed("missing", "x") {
		t.Error("expected false for unknown id")
	}
	if len(a.ListUnreviewed()) != 0 {
		t.Error("expected no unreviewed items")
	}
}

func TestSnapshotsAreIndependent(t *testing.T) {
	a := newAuditor(t, DefaultConfig())
	a.OnEvent(context.Background(), event("hard to hear", 0.30), testSession)

	snap := a.ListAll()
	snap[0].Reviewed = true
	snap[0].Priority = 1

	unrev := a.ListUnreviewed()
	unrev[0].Reason = "changed"

	live := a.ListAll()
	if len(live) != 1 {
		t.Fatalf("expected 1 live item, got %d", len(live))
	}
	if live[0].Reviewed || live[0].Priority != 5 || live[0].Reason == "changed" {
		t.Errorf("live queue changed through a snapshot: %+v", live[0])
	}
}

func TestPurgeReviewed(t *testing.T) {
	a := newAuditor(t, DefaultConfig())
	ctx := context.Background()
	for _, c := range []float64{0.1, 0.2, 0.3} {
		a.OnEvent(ctx, event("x", c), testSession)
	}
	items := a.ListAll()
	a.MarkReviewed(items[0].ID, "")
	a.MarkReviewed(items[2].ID, "")

	if n := a.PurgeReviewed(); n != 2 {
		t.Errorf("expected 2 purged, got %d", n)
	}
	left := a.ListAll()
	if len(left) != 1 || left[0].ID != items[1].ID {
		t.Errorf("expected only the unreviewed item to remain, got %+v", left)
	}
	if n := a.PurgeReviewed(); n != 0 {
		t.Errorf("expected 0 purged on second call, got %d", n)
	}
}

func TestQueueWarning_SoftLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 2

	var mu sync.Mutex
	var warnings [][2]int
	a := newAuditor(t, cfg, WithQueueWarning(func(size, limit int) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, [2]int{size, limit})
	}))

	for i := 0; i < 4; i++ {
		a.OnEvent(context.Background(), event("x", 0.1), testSession)
	}

	if len(a.ListAll()) != 4 {
		t.Errorf("expected soft limit to never reject, got %d items", len(a.ListAll()))
	}
	if len(warnings) != 2 || warnings[0] != [2]int{3, 2} || warnings[1] != [2]int{4, 2} {
		t.Errorf("unexpected warnings %v", warnings)
	}
	if a.Stats().Warnings != 2 {
		t.Errorf("expected 2 warnings in stats, got %d", a.Stats().Warnings)
	}
}

func TestFlagHook(t *testing.T) {
	var got []models.ReviewItem
	a := newAuditor(t, DefaultConfig(), WithFlagHook(func(item models.ReviewItem, sc models.SessionContext) {
		if sc.SessionID != testSession.SessionID {
			t.Errorf("unexpected session %s", sc.SessionID)
		}
		got = append(got, item)
	}))

	a.OnEvent(context.Background(), event("fine", 0.99), testSession)
	a.OnEvent(context.Background(), event("muffled", 0.2), testSession)

	if len(got) != 1 || got[0].Event.Text != "muffled" {
		t.Errorf("expected hook for the flagged item only, got %+v", got)
	}
}

func TestSessionCounters(t *testing.T) {
	a := newAuditor(t, DefaultConfig())
	ctx := context.Background()

	a.OnSessionStart("s1", testSession.Metadata())
	a.OnEvent(ctx, event("muffled", 0.2), testSession)
	a.OnEvent(ctx, event("clear", 0.99), testSession)

	st := a.Status()
	if st.State != "active" || st.Session != "s1" {
		t.Errorf("unexpected status %+v", st)
	}
	if st.Details["total_processed"] != 2 || st.Details["total_flagged"] != 1 {
		t.Errorf("unexpected counters %+v", st.Details)
	}
	if r := a.Stats().FlaggingRate; r != 0.5 {
		t.Errorf("expected flagging rate 0.5, got %v", r)
	}

	a.OnSessionEnd("s1")
	stats := a.Stats()
	if stats.Processed != 0 || stats.Flagged != 0 {
		t.Errorf("expected counters reset on session end, got %+v", stats)
	}
	if stats.Total != 1 {
		t.Errorf("expected review items to survive session end, got %d", stats.Total)
	}

	// Starting a new session does not reset counters accumulated before it.
	a.OnEvent(ctx, event("clear", 0.99), testSession)
	a.OnSessionStart("s2", nil)
	if a.Stats().Processed != 1 {
		t.Errorf("expected session start to keep counters, got %d", a.Stats().Processed)
	}
}

func TestConcurrentEventsAndReads(t *testing.T) {
	a := newAuditor(t, DefaultConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				a.OnEvent(ctx, event("x", float64((i+j)%10)/10), testSession)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				items := a.ListAll()
				for k := 1; k < len(items); k++ {
					if items[k-1].Priority < items[k].Priority {
						t.Error("observed unsorted snapshot")
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	if got := a.Stats().Processed; got != 400 {
		t.Errorf("expected 400 processed, got %d", got)
	}
}

func TestQueue_IDsSortInFlagOrder(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 500; i++ {
		q.Add(event("same priority", 0.55), "low confidence score: 0.55", 3)
	}

	items := q.List()
	for i := 1; i < len(items); i++ {
		if items[i].ID <= items[i-1].ID {
			t.Fatalf("item %d id %s does not sort after %s", i, items[i].ID, items[i-1].ID)
		}
		if items[i].FlaggedAt.Before(items[i-1].FlaggedAt) {
			t.Fatalf("item %d flagged before its predecessor", i)
		}
	}
}
