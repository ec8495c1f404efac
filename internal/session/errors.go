package session

import "fmt"

// StartupError is fatal: session creation aborted, resources already
// provisioned for the attempt have been cleaned up.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("session startup failed at %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// RegenerationError is non-fatal: it is logged, surfaced to connected
// clients on the live-reload channel, and the watcher keeps running.
type RegenerationError struct {
	Err error
}

func (e *RegenerationError) Error() string {
	return fmt.Sprintf("regeneration failed: %v", e.Err)
}

func (e *RegenerationError) Unwrap() error { return e.Err }
