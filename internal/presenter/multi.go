// Package presenter holds the session.Presenter implementations that carry
// transcript updates out of the service.
package presenter

import "speech-transcript-service/internal/service/session"

// Multi fans updates out to several presenters in order. Presenters that
// also implement session.SnapshotObserver receive snapshots.
type Multi struct {
	sinks []session.Presenter
}

// NewMulti returns a presenter forwarding to every non-nil sink.
func NewMulti(sinks ...session.Presenter) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Multi) OnTranscriptChanged(fullText string) {
	for _, s := range m.sinks {
		s.OnTranscriptChanged(fullText)
	}
}

func (m *Multi) OnConfidenceChanged(percent int, ok bool) {
	for _, s := range m.sinks {
		s.OnConfidenceChanged(percent, ok)
	}
}

func (m *Multi) OnStatusChanged(message string, isError bool) {
	for _, s := range m.sinks {
		s.OnStatusChanged(message, isError)
	}
}

func (m *Multi) OnSnapshot(snap session.Snapshot) {
	for _, s := range m.sinks {
		if o, ok := s.(session.SnapshotObserver); ok {
			o.OnSnapshot(snap)
		}
	}
}
