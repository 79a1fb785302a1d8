// Package segment names the provider runs inside a transcript session.
//
// A session is one manually started listening period. Every provider run
// inside it (the first one and each auto-restart) is a segment.
package segment

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out segment ids for a single session.
type Generator struct {
	sessionID string
	counter   uint64
}

// New creates a generator for sessionID.
func New(sessionID string) *Generator {
	return &Generator{sessionID: sessionID}
}

// SessionID returns the session the generator belongs to.
func (g *Generator) SessionID() string {
	return g.sessionID
}

// Next returns the id of the next segment.
func (g *Generator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-seg-%d", g.sessionID, n)
}

// Count returns how many segments were handed out.
func (g *Generator) Count() uint64 {
	return atomic.LoadUint64(&g.counter)
}
