// Package console is the bridge between the tool and the server's
// line-oriented text stream: an incremental log tailer on the read side and
// a serialized command channel on the write side.
package console

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/fsnotify/fsnotify"

	"mctool/internal/domain"
)

const pollInterval = 200 * time.Millisecond

// Tailer exposes the server log as an append-only line sequence. Readers
// hold independent cursors, so the console view and a pattern wait can
// follow the same file without disturbing each other.
type Tailer struct {
	path string
}

func NewTailer(path string) *Tailer {
	return &Tailer{path: path}
}

func (t *Tailer) Path() string { return t.path }

// Cursor returns a new read position. By default it starts at the current
// end of file so history is not replayed; fromStart is the console's
// "load log" action.
func (t *Tailer) Cursor(fromStart bool) *Cursor {
	c := &Cursor{path: t.path}
	if !fromStart {
		if fi, err := os.Stat(t.path); err == nil {
			c.offset = fi.Size()
		}
	}
	return c
}

type Cursor struct {
	path    string
	offset  int64
	partial []byte
}

// Next returns the lines appended since the previous call. A trailing
// fragment without a terminator is held back until it completes. When the
// file shrank under the cursor (rotation or truncation) reading restarts
// from the beginning.
func (c *Cursor) Next() ([]domain.LogLine, error) {
	f, err := os.Open(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < c.offset {
		c.offset = 0
		c.partial = nil
	}
	if fi.Size() == c.offset {
		return nil, nil
	}

	if _, err := f.Seek(c.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	c.offset += int64(len(data))

	data = append(c.partial, data...)
	c.partial = nil

	now := time.Now()
	var lines []domain.LogLine
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		text := string(bytes.TrimSuffix(data[:idx], []byte("\r")))
		lines = append(lines, domain.LogLine{Timestamp: now, Text: text})
		data = data[idx+1:]
	}
	if len(data) > 0 {
		c.partial = append(c.partial, data...)
	}
	return lines, nil
}

// WaitForPattern blocks until a freshly appended line matches re, the
// timeout elapses, alive reports the session gone, or ctx is cancelled.
// The wait polls on a short interval and additionally wakes on file-write
// notifications when a watcher is available.
func (t *Tailer) WaitForPattern(ctx context.Context, re *regexp.Regexp, timeout time.Duration, alive func() bool) (domain.LogLine, error) {
	cur := t.Cursor(false)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if watcher.Add(filepath.Dir(t.path)) == nil {
			events = make(chan fsnotify.Event, 1)
			go func() {
				for ev := range watcher.Events {
					if ev.Name == t.path && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						select {
						case events <- ev:
						default:
						}
					}
				}
			}()
		}
	}

	scan := func() (domain.LogLine, bool, error) {
		lines, err := cur.Next()
		if err != nil {
			return domain.LogLine{}, false, err
		}
		for _, line := range lines {
			if re.MatchString(line.Text) {
				return line, true, nil
			}
		}
		return domain.LogLine{}, false, nil
	}

	for {
		line, found, err := scan()
		if err != nil {
			return domain.LogLine{}, err
		}
		if found {
			return line, nil
		}

		if alive != nil && !alive() {
			// The session may have flushed its last lines between the scan
			// and the liveness check.
			if line, found, err = scan(); err == nil && found {
				return line, nil
			}
			return domain.LogLine{}, domain.ErrSessionEnded
		}

		select {
		case <-ctx.Done():
			return domain.LogLine{}, ctx.Err()
		case <-deadline.C:
			return domain.LogLine{}, domain.ErrTimeoutExceeded
		case <-ticker.C:
		case <-events:
		}
	}
}
