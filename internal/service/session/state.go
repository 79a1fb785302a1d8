package session

import "fmt"

// State represents the lifecycle state of a transcript session.
type State int

const (
	// StateIdle - No provider run is active or pending.
	StateIdle State = iota
	// StateListening - A provider run is active, or an auto-restart is pending.
	StateListening
	// StateStopping - Stop was requested, waiting for the provider to terminate.
	// Presenters may treat it like Idle for button affordances.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateStopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsActive returns true if the session is not idle.
func (s State) IsActive() bool {
	return s != StateIdle
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "IDLE":
		*s = StateIdle
	case "LISTENING":
		*s = StateListening
	case "STOPPING":
		*s = StateStopping
	default:
		return fmt.Errorf("unknown session state %q", text)
	}
	return nil
}
