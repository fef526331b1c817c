package session

import "testing"

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "IDLE"},
		{StateActive, "ACTIVE"},
		{State(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestParseRetention(t *testing.T) {
	tests := []struct {
		in      string
		want    Retention
		wantErr bool
	}{
		{"persist", RetentionPersist, false},
		{"dev", RetentionPersist, false},
		{" PERSIST ", RetentionPersist, false},
		{"ephemeral", RetentionEphemeral, false},
		{"prod", RetentionEphemeral, false},
		{"", RetentionEphemeral, false},
		{"forever", RetentionEphemeral, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRetention(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRetention(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRetention(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRetention_String(t *testing.T) {
	if RetentionPersist.String() != "persist" {
		t.Errorf("expected persist, got %s", RetentionPersist)
	}
	if RetentionEphemeral.String() != "ephemeral" {
		t.Errorf("expected ephemeral, got %s", RetentionEphemeral)
	}
}
