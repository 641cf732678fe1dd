package console

import (
	"fmt"
	"sync"
	"time"

	"mctool/internal/domain"
	"mctool/internal/session"
)

// HistoryStore records successfully delivered commands.
type HistoryStore interface {
	AppendCommand(entry domain.CommandHistoryEntry) error
}

// Channel is the single writer to the session's stdin. The mutex spans the
// liveness check and the write so concurrent callers, including lifecycle
// operations, never interleave partial commands.
type Channel struct {
	mu      sync.Mutex
	sess    session.Session
	history HistoryStore
}

func NewChannel(sess session.Session, history HistoryStore) *Channel {
	return &Channel{sess: sess, history: history}
}

// Send delivers one newline-terminated command to the server.
// ErrNotRunning when no live session exists; a delivered command is also
// appended to the command history.
func (c *Channel) Send(command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sess.Exists() {
		return domain.ErrNotRunning
	}
	if err := c.sess.Stuff(command + "\n"); err != nil {
		return err
	}

	if c.history != nil {
		entry := domain.CommandHistoryEntry{Text: command, IssuedAt: time.Now()}
		if err := c.history.AppendCommand(entry); err != nil {
			// History is advisory; delivery already succeeded.
			fmt.Printf("warning: could not record command history: %v\n", err)
		}
	}
	return nil
}
