// Package session owns the live preview session: the content server handle,
// scratch directory, file watcher, and connected-client set, orchestrated by
// one Controller per control host. Exactly one session is live at a time;
// folder switches tear the old one down completely before the next starts.
package session

import (
	"context"

	"github.com/folioview/folio/internal/contentserver"
	"github.com/folioview/folio/internal/scratch"
	"github.com/folioview/folio/internal/watcher"
)

// State is the controller's lifecycle state.
type State int

const (
	// StateStopped means no active session.
	StateStopped State = iota
	// StateStarting covers session provisioning and folder switches.
	StateStarting
	// StateRunning is a healthy live session.
	StateRunning
	// StateDegraded means the watcher gave up after repeated failures;
	// rebuilds must be triggered manually.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Session is the live association of a source directory with its scratch
// directory and running content server.
type Session struct {
	SourceDir string
	Scratch   *scratch.Dir
	Content   *contentserver.Server
	Watcher   *watcher.FileWatcher

	watchCancel context.CancelFunc
}

// Port returns the content server's OS-assigned port.
func (s *Session) Port() int { return s.Content.Port() }
