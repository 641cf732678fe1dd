package session

import (
	"fmt"
	"os"
	"sync"
	"time"

	"mctool/internal/domain"
)

// ScriptedLine is output the Memory session emits after Create.
type ScriptedLine struct {
	After time.Duration
	Text  string
}

// Memory is an in-memory Session used by tests and dry runs. Output is
// appended to the same log file the tailer reads, so the whole
// console-bridge path can be exercised without screen or a JVM.
type Memory struct {
	mu      sync.Mutex
	name    string
	logPath string
	alive   bool
	sent    []string
	timers  []*time.Timer

	// Script is emitted to the log file after a successful Create.
	Script []ScriptedLine
	// OnStuff observes every injected text, e.g. to script a reply.
	OnStuff func(text string)
	// CreateErr and StuffErr inject failures.
	CreateErr error
	StuffErr  error
	// TerminateDelay simulates a slow shutdown; Terminate reports a forced
	// kill when the delay exceeds the grace period.
	TerminateDelay time.Duration
}

func NewMemory(name, logPath string) *Memory {
	return &Memory{name: name, logPath: logPath}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Exists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

func (m *Memory) Info() domain.SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := domain.SessionInfo{SessionName: m.name}
	if m.alive {
		info.PID = os.Getpid()
		info.Alive = true
	}
	return info
}

func (m *Memory) Create(launchCommand string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.alive {
		return domain.ErrAlreadyRunning
	}
	if m.CreateErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrSpawnFailed, m.CreateErr)
	}
	m.alive = true

	for _, line := range m.Script {
		text := line.Text
		t := time.AfterFunc(line.After, func() {
			if m.Exists() {
				m.EmitLine(text)
			}
		})
		m.timers = append(m.timers, t)
	}
	return nil
}

func (m *Memory) Stuff(text string) error {
	m.mu.Lock()
	if !m.alive {
		m.mu.Unlock()
		return domain.ErrNotRunning
	}
	if m.StuffErr != nil {
		err := m.StuffErr
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}
	m.sent = append(m.sent, text)
	cb := m.OnStuff
	m.mu.Unlock()

	if cb != nil {
		cb(text)
	}
	return nil
}

func (m *Memory) Terminate(grace time.Duration) (bool, error) {
	if !m.Exists() {
		return false, nil
	}
	forced := m.TerminateDelay > grace
	if m.TerminateDelay > 0 {
		wait := m.TerminateDelay
		if forced {
			wait = grace
		}
		time.Sleep(wait)
	}
	m.Kill()
	return forced, nil
}

// Kill marks the session dead without the terminate protocol, as if the
// child exited on its own.
func (m *Memory) Kill() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive = false
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = nil
}

// EmitLine appends one line of simulated server output to the log file.
func (m *Memory) EmitLine(text string) {
	f, err := os.OpenFile(m.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(text + "\n")
}

// Sent returns a copy of every text injected so far.
func (m *Memory) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}
