// Package session wraps the detachable terminal session that hosts the
// server process. The lifecycle controller and the command channel only see
// the Session interface; Screen talks to GNU screen, Memory is the in-memory
// stand-in used by tests.
package session

import (
	"time"

	"mctool/internal/domain"
)

type Session interface {
	// Name returns the session name the handle manages.
	Name() string
	// Exists reports whether the named session is registered. Query
	// failures read as false.
	Exists() bool
	// Info returns the current session view (pid, liveness).
	Info() domain.SessionInfo
	// Create spawns a new detached session executing launchCommand in the
	// server directory. ErrAlreadyRunning if the session exists.
	Create(launchCommand string) error
	// Stuff injects raw text into the session's stdin. Callers are
	// responsible for newline termination and for write serialization.
	Stuff(text string) error
	// Terminate ends the session: no-op when absent, otherwise the process
	// group is signalled and polled until absence or grace elapses, then
	// force-killed. forced reports that the grace period was exceeded.
	Terminate(grace time.Duration) (forced bool, err error)
}
