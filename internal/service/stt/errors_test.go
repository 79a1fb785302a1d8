package stt

import (
	"errors"
	"strings"
	"testing"
)

func TestParseErrorKind(t *testing.T) {
	tests := []struct {
		code     string
		expected ErrorKind
	}{
		{"no-speech", KindNoSpeech},
		{"audio-capture", KindMicrophoneUnavailable},
		{"not-allowed", KindPermissionDenied},
		{"service-not-allowed", KindPermissionDenied},
		{"network", KindNetwork},
		{"aborted", KindOther},
		{"", KindOther},
		{"NO-SPEECH", KindOther}, // Case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := ParseErrorKind(tt.code); got != tt.expected {
				t.Errorf("ParseErrorKind(%q) = %v, want %v", tt.code, got, tt.expected)
			}
		})
	}
}

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected string
	}{
		{KindOther, "other"},
		{KindNoSpeech, "no_speech"},
		{KindMicrophoneUnavailable, "microphone_unavailable"},
		{KindPermissionDenied, "permission_denied"},
		{KindNetwork, "network"},
		{ErrorKind(42), "unknown(42)"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.expected {
			t.Errorf("ErrorKind(%d).String() = %s, want %s", int(tt.kind), got, tt.expected)
		}
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewProviderError("network", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Kind != KindNetwork {
		t.Errorf("expected KindNetwork, got %v", err.Kind)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}

	var pe *ProviderError
	if !errors.As(error(err), &pe) || pe.Code != "network" {
		t.Errorf("expected errors.As to find the provider error, got %+v", pe)
	}
}

func TestProviderError_NoCause(t *testing.T) {
	err := NewProviderError("no-speech", nil)

	if err.Unwrap() != nil {
		t.Error("expected nil cause")
	}
	if err.Error() != "provider error no_speech (no-speech)" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestBatch_Len(t *testing.T) {
	b := Batch{Hypotheses: make([]Hypothesis, 3)}
	if b.Len() != 3 {
		t.Errorf("expected 3, got %d", b.Len())
	}
	if (Batch{}).Len() != 0 {
		t.Error("expected empty batch")
	}
}
