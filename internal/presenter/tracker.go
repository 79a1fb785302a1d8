package presenter

import "speech-transcript-service/internal/service/session"

// tracker compares consecutive snapshots of the same session.
type tracker struct {
	prev        session.Snapshot
	seen        bool
	lastSegment string
}

// change describes one snapshot relative to the previous one.
type change struct {
	prev       session.Snapshot
	newSession bool // first snapshot of this session id
	ended      bool // session went from active to idle
	segment    string
}

func (t *tracker) observe(s session.Snapshot) change {
	c := change{prev: t.prev}
	if !t.seen || s.SessionID != t.prev.SessionID {
		c.newSession = true
		t.lastSegment = ""
	}
	if s.SegmentID != "" {
		t.lastSegment = s.SegmentID
	}
	c.segment = t.lastSegment
	c.ended = !c.newSession && t.prev.State.IsActive() && !s.State.IsActive()

	t.prev = s
	t.seen = true
	return c
}
