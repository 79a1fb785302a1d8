// Package models defines the data structures for transcript events.
package models

// Event types carried in the eventType field and the eventType header.
const (
	EventTypePartial      = "session.transcript.partial"
	EventTypeFinal        = "session.transcript.final"
	EventTypeSessionEnded = "session.ended"
)

// TranscriptPartial is published when the interim part of the display text
// changes. Text is the full display text, finalized plus interim.
type TranscriptPartial struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	SegmentID string `json:"segmentId"`
	Timestamp int64  `json:"timestamp"`
	Language  string `json:"language"`
	Text      string `json:"text"`
	Interim   string `json:"interim"`
}

// TranscriptFinal is published when finalized text grows.
// Confidence is omitted when the recognizer never reported one.
type TranscriptFinal struct {
	EventType  string   `json:"eventType"`
	SessionID  string   `json:"sessionId"`
	SegmentID  string   `json:"segmentId"`
	Timestamp  int64    `json:"timestamp"`
	Language   string   `json:"language"`
	Text       string   `json:"text"`
	Appended   string   `json:"appended"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// SessionEnded is published once a session returns to idle.
type SessionEnded struct {
	EventType  string   `json:"eventType"`
	SessionID  string   `json:"sessionId"`
	Timestamp  int64    `json:"timestamp"`
	Language   string   `json:"language"`
	Text       string   `json:"text"`
	Segments   int      `json:"segments"`
	DurationMs int64    `json:"durationMs"`
	Confidence *float64 `json:"confidence,omitempty"`
}
