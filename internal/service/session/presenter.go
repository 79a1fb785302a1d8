package session

import "time"

// Presenter receives display updates after every state-affecting transition.
// Calls are made from the dispatcher and must not block.
type Presenter interface {
	// OnTranscriptChanged is called with the full displayable transcript.
	OnTranscriptChanged(fullText string)

	// OnConfidenceChanged is called with the latest confidence percentage.
	// ok is false when no reading is available.
	OnConfidenceChanged(percent int, ok bool)

	// OnStatusChanged is called with a user-facing status line.
	OnStatusChanged(message string, isError bool)
}

// SnapshotObserver is optionally implemented by presenters that want the
// whole session picture instead of individual fields.
type SnapshotObserver interface {
	OnSnapshot(snap Snapshot)
}

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	SessionID         string    `json:"sessionId"`
	SegmentID         string    `json:"segmentId"`
	State             State     `json:"state"`
	Finalized         string    `json:"finalized"`
	Interim           string    `json:"interim"`
	Text              string    `json:"text"`
	Watermark         int       `json:"watermark"`
	Confidence        float64   `json:"confidence"`
	ConfidencePercent int       `json:"confidencePercent"`
	HasConfidence     bool      `json:"hasConfidence"`
	Language          string    `json:"language"`
	Status            string    `json:"status"`
	StatusError       bool      `json:"statusError"`
	RestartPending    bool      `json:"restartPending"`
	Segments          int       `json:"segments"`
	StartedAt         time.Time `json:"startedAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NopPresenter discards all updates.
type NopPresenter struct{}

func (NopPresenter) OnTranscriptChanged(string) {}
func (NopPresenter) OnConfidenceChanged(int, bool) {}
func (NopPresenter) OnStatusChanged(string, bool) {}
