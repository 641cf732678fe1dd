package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"mctool/internal/domain"
)

const existsPollInterval = 200 * time.Millisecond

// Screen manages a named GNU screen session hosting the server process.
type Screen struct {
	runner Runner
	name   string
}

func NewScreen(name, serverDir string) *Screen {
	return &Screen{
		runner: &ExecRunner{Dir: serverDir},
		name:   name,
	}
}

// NewScreenWithRunner is used by tests to substitute a recording runner.
func NewScreenWithRunner(name string, runner Runner) *Screen {
	return &Screen{runner: runner, name: name}
}

func (s *Screen) Name() string { return s.name }

func (s *Screen) Exists() bool {
	_, ok := s.lookup()
	return ok
}

// lookup parses `screen -ls` output for a line like
// "\t12345.minecraft\t(Detached)". screen exits non-zero when no sessions
// are registered, so the output is inspected regardless of the exit error.
func (s *Screen) lookup() (pid int, ok bool) {
	out, _ := s.runner.Output(context.Background(), "screen", "-ls")
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		prefix, sessName, found := strings.Cut(fields[0], ".")
		if !found || sessName != s.name {
			continue
		}
		pid, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		return pid, true
	}
	return 0, false
}

func (s *Screen) Info() domain.SessionInfo {
	info := domain.SessionInfo{SessionName: s.name}
	pid, ok := s.lookup()
	if !ok {
		return info
	}
	info.PID = pid
	alive, err := process.PidExists(int32(pid))
	info.Alive = err == nil && alive
	return info
}

func (s *Screen) Create(launchCommand string) error {
	if s.Exists() {
		return domain.ErrAlreadyRunning
	}
	err := s.runner.Run(context.Background(), "screen", "-dmS", s.name, "bash", "-c", launchCommand)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
	}
	return nil
}

func (s *Screen) Stuff(text string) error {
	err := s.runner.Run(context.Background(), "screen", "-S", s.name, "-p", "0", "-X", "stuff", text)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}
	return nil
}

func (s *Screen) Terminate(grace time.Duration) (bool, error) {
	pid, ok := s.lookup()
	if !ok {
		return false, nil
	}

	killProcessGroup(pid)

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		time.Sleep(existsPollInterval)
		if !s.Exists() {
			return false, nil
		}
	}

	// Grace exceeded: tear the session down hard.
	killProcessGroupForce(pid)
	_ = s.runner.Run(context.Background(), "screen", "-S", s.name, "-X", "quit")
	return true, nil
}

// CheckScreen verifies GNU screen is installed and answering.
func CheckScreen() error {
	r := &ExecRunner{}
	if _, err := r.Output(context.Background(), "screen", "--version"); err != nil {
		return fmt.Errorf("screen not found, install it with: sudo apt install screen")
	}
	return nil
}
