package schema

import (
	"errors"
	"testing"

	"speech-transcript-service/internal/models"
)

func conf(v float64) *float64 { return &v }

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   any
		wantErr bool
	}{
		{
			name: "valid partial",
			event: models.TranscriptPartial{
				EventType: models.EventTypePartial, SessionID: "s", SegmentID: "s-seg-1",
				Timestamp: 1, Language: "en-US", Text: "", Interim: "",
			},
		},
		{
			name: "valid final",
			event: models.TranscriptFinal{
				EventType: models.EventTypeFinal, SessionID: "s", SegmentID: "s-seg-1",
				Timestamp: 1, Language: "en-US", Text: "hello ", Appended: "hello", Confidence: conf(0.8),
			},
		},
		{
			name: "valid session ended with empty text",
			event: models.SessionEnded{
				EventType: models.EventTypeSessionEnded, SessionID: "s", Timestamp: 1, Language: "en-US",
			},
		},
		{
			name:    "unknown type",
			event:   map[string]any{"eventType": "other"},
			wantErr: true,
		},
		{
			name: "missing segment",
			event: models.TranscriptPartial{
				EventType: models.EventTypePartial, SessionID: "s", Timestamp: 1, Language: "en-US",
			},
			wantErr: true,
		},
		{
			name: "final without language",
			event: models.TranscriptFinal{
				EventType: models.EventTypeFinal, SessionID: "s", SegmentID: "s-seg-1", Timestamp: 1, Text: "x",
			},
			wantErr: true,
		},
		{
			name: "zero timestamp",
			event: models.SessionEnded{
				EventType: models.EventTypeSessionEnded, SessionID: "s", Language: "en-US",
			},
			wantErr: true,
		},
		{
			name: "confidence out of range",
			event: models.TranscriptFinal{
				EventType: models.EventTypeFinal, SessionID: "s", SegmentID: "s-seg-1",
				Timestamp: 1, Language: "en-US", Text: "x", Confidence: conf(1.5),
			},
			wantErr: true,
		},
		{
			name:    "not an object",
			event:   []string{"a"},
			wantErr: true,
		},
		{
			name:    "unmarshalable",
			event:   make(chan int),
			wantErr: true,
		},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.event)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEvent) {
					t.Errorf("expected ErrInvalidEvent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
