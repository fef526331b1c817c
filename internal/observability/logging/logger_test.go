package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thorwhalen/pacing/internal/models"
)

func TestInit_RejectsUnknownLevel(t *testing.T) {
	if err := Init(Config{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestForSession_OmitsIdentifiers(t *testing.T) {
	defer func(l zerolog.Logger) { log.Logger = l }(log.Logger)

	var buf bytes.Buffer
	if err := Init(Config{Level: "info", Format: "json"}, &buf); err != nil {
		t.Fatal(err)
	}
	sc := models.SessionContext{
		SessionID:   "s-7",
		PatientID:   "patient-secret",
		ClinicianID: "clinician-secret",
		SessionType: "intake",
		StartTime:   time.Now(),
	}
	l := ForSession(WithComponent("session"), sc)
	l.Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v: %q", err, buf.String())
	}
	if line["sessionId"] != "s-7" || line["sessionType"] != "intake" || line["component"] != "session" {
		t.Errorf("unexpected fields: %v", line)
	}
	if bytes.Contains(buf.Bytes(), []byte("secret")) {
		t.Errorf("identifier leaked into log: %s", buf.String())
	}
}
