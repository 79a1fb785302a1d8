package session

import "time"

// Timer is a pending deferred action.
type Timer interface {
	// Stop cancels the action. It returns false if the action already ran
	// or was already stopped.
	Stop() bool
}

// Scheduler runs deferred actions. The restart delay goes through it so
// tests can fire it by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
