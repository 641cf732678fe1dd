// Package lifecycle drives the server state machine. It is the only
// authority that mutates persisted server state, and it serializes every
// state-changing operation behind a try-acquire operation lock plus a
// cross-process file lock.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/shirou/gopsutil/v3/process"

	"mctool/internal/backup"
	"mctool/internal/config"
	"mctool/internal/console"
	"mctool/internal/domain"
	"mctool/internal/loader"
	"mctool/internal/session"
)

type State string

const (
	StateStopped   State = "STOPPED"
	StateStarting  State = "STARTING"
	StateRunning   State = "RUNNING"
	StateStopping  State = "STOPPING"
	StateBackingUp State = "BACKING_UP"
	StateSwitching State = "SWITCHING_VERSION"
)

// Options fixes the recognized log patterns and wait bounds. The patterns
// are configuration, not constants, so changes in server output across
// versions stay auditable.
type Options struct {
	ReadyPattern *regexp.Regexp
	SavedPattern *regexp.Regexp
	StartTimeout time.Duration
	SaveTimeout  time.Duration
	StopGrace    time.Duration
	// LockPath is the cross-process lock file; empty disables the flock.
	LockPath string
}

func DefaultOptions(serverDir string) Options {
	return Options{
		ReadyPattern: regexp.MustCompile(`\bDone\b.*!`),
		SavedPattern: regexp.MustCompile(`Saved the game`),
		StartTimeout: 120 * time.Second,
		SaveTimeout:  30 * time.Second,
		StopGrace:    30 * time.Second,
		LockPath:     filepath.Join(serverDir, config.LockFileName),
	}
}

type Controller struct {
	// op is the process-local operation lock; fileLock guards against a
	// second tool invocation on the same server directory.
	op       sync.Mutex
	fileLock *flock.Flock

	mu    sync.Mutex
	state State

	settings config.Store
	sess     session.Session
	tailer   *console.Tailer
	channel  *console.Channel
	backups  *backup.Manager
	opts     Options
}

func NewController(settings config.Store, sess session.Session, tailer *console.Tailer, channel *console.Channel, backups *backup.Manager, opts Options) *Controller {
	c := &Controller{
		settings: settings,
		sess:     sess,
		tailer:   tailer,
		channel:  channel,
		backups:  backups,
		opts:     opts,
		state:    StateStopped,
	}
	if opts.LockPath != "" {
		c.fileLock = flock.New(opts.LockPath)
	}
	if sess.Exists() {
		c.state = StateRunning
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// acquire claims the operation lock for the duration of one lifecycle
// operation. Contention is rejected immediately, never queued: a stop
// issued mid-backup should fail loudly instead of running later.
func (c *Controller) acquire() (func(), error) {
	if !c.op.TryLock() {
		return nil, domain.ErrOperationInProgress
	}
	if c.fileLock != nil {
		locked, err := c.fileLock.TryLock()
		if err != nil || !locked {
			c.op.Unlock()
			return nil, fmt.Errorf("%w (lock held by another process)", domain.ErrOperationInProgress)
		}
	}
	return func() {
		if c.fileLock != nil {
			_ = c.fileLock.Unlock()
		}
		c.op.Unlock()
	}, nil
}

// Start launches the server in a detached session and waits for the ready
// pattern. On any failure the session is torn down and the state reverts
// to Stopped.
func (c *Controller) Start(ctx context.Context) error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()
	return c.doStart(ctx)
}

func (c *Controller) doStart(ctx context.Context) error {
	if c.sess.Exists() {
		c.setState(StateRunning)
		return domain.ErrAlreadyRunning
	}

	s := c.settings.Get()
	jarPath := filepath.Join(s.ServerDir, "server.jar")
	if _, err := os.Stat(jarPath); err != nil {
		return fmt.Errorf("server.jar not found at %s, install a server first", jarPath)
	}

	c.setState(StateStarting)
	launch := fmt.Sprintf("java -Xmx%dG -Xms%dG -jar server.jar nogui 2>&1 | tee -a %s",
		s.RAMGigabytes, s.RAMGigabytes, config.LogFileName)

	if err := c.sess.Create(launch); err != nil {
		c.setState(StateStopped)
		return err
	}

	if _, err := c.tailer.WaitForPattern(ctx, c.opts.ReadyPattern, c.opts.StartTimeout, c.sess.Exists); err != nil {
		_, _ = c.sess.Terminate(2 * time.Second)
		c.setState(StateStopped)
		return fmt.Errorf("server did not become ready: %w", err)
	}

	c.setState(StateRunning)
	return nil
}

// Stop shuts the server down gracefully: the stop command goes through the
// command channel, the save confirmation is awaited (best effort), then
// the session is terminated. forced reports that the grace period was
// exceeded and the session killed; the stop still completes.
func (c *Controller) Stop(ctx context.Context) (forced bool, err error) {
	release, err := c.acquire()
	if err != nil {
		return false, err
	}
	defer release()
	return c.doStop(ctx)
}

func (c *Controller) doStop(ctx context.Context) (forced bool, err error) {
	if !c.sess.Exists() {
		c.setState(StateStopped)
		return false, domain.ErrNotRunning
	}

	c.setState(StateStopping)
	if err := c.channel.Send("stop"); err == nil {
		// The session usually dies right after saving; both outcomes end
		// the wait and neither fails the stop.
		_, _ = c.tailer.WaitForPattern(ctx, c.opts.SavedPattern, c.opts.SaveTimeout, c.sess.Exists)
	}

	forced, err = c.sess.Terminate(c.opts.StopGrace)
	c.setState(StateStopped)
	return forced, err
}

// Restart is a stop followed by a start under one lock acquisition, so no
// other operation can slip in between the two halves.
func (c *Controller) Restart(ctx context.Context) (forced bool, err error) {
	release, err := c.acquire()
	if err != nil {
		return false, err
	}
	defer release()

	forced, err = c.doStop(ctx)
	if err != nil {
		return forced, err
	}
	return forced, c.doStart(ctx)
}

// Backup archives the world folders. Allowed while running: the server is
// asked to flush first, and the previous state is restored afterwards.
// ServerState fields are never touched.
func (c *Controller) Backup(ctx context.Context) (domain.BackupRecord, error) {
	release, err := c.acquire()
	if err != nil {
		return domain.BackupRecord{}, err
	}
	defer release()

	prev := StateStopped
	if c.sess.Exists() {
		prev = StateRunning
	}
	c.setState(StateBackingUp)
	defer c.setState(prev)

	if prev == StateRunning {
		if err := c.channel.Send("save-all"); err == nil {
			_, _ = c.tailer.WaitForPattern(ctx, c.opts.SavedPattern, c.opts.SaveTimeout, c.sess.Exists)
		}
	}

	rec, err := c.backups.Create(ctx, c.settings.Get().CurrentVersion, nil)
	if err != nil {
		return domain.BackupRecord{}, err
	}

	c.prune()
	return rec, nil
}

func (c *Controller) prune() {
	removed, errs := c.backups.Prune(c.settings.Get().MaxBackups)
	for _, path := range removed {
		fmt.Printf("pruned old backup: %s\n", path)
	}
	for _, err := range errs {
		fmt.Printf("warning: %v\n", err)
	}
}

// SwitchVersion installs a different server artifact. The server must be
// stopped. An implicit backup runs first when auto-backup is enabled;
// its failure aborts the switch unless force is set. Settings are
// persisted only after the artifact landed, so a failed switch leaves
// ServerState untouched.
func (c *Controller) SwitchVersion(ctx context.Context, serverType domain.ServerType, version string, force bool, progressChan chan<- domain.ProgressEvent) error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()

	if c.sess.Exists() {
		c.setState(StateRunning)
		return domain.ErrServerRunning
	}
	if !serverType.Valid() {
		return fmt.Errorf("unknown server type %q", serverType)
	}

	c.setState(StateSwitching)
	defer c.setState(StateStopped)

	s := c.settings.Get()
	if s.AutoBackup {
		if _, err := c.backups.Create(ctx, s.CurrentVersion, nil); err != nil {
			if !force {
				return fmt.Errorf("pre-switch backup failed, use force to switch anyway: %w", err)
			}
			fmt.Printf("warning: continuing without a backup: %v\n", err)
		} else {
			c.prune()
		}
	}

	if err := c.install(serverType, version, s.ServerDir, progressChan); err != nil {
		return err
	}

	if err := c.settings.Update(func(st *config.Settings) {
		st.CurrentVersion = version
		st.ServerType = serverType
	}); err != nil {
		// The artifact is installed but disk state still names the old
		// version; surface that instead of diverging silently.
		return fmt.Errorf("%s installed but settings not saved, re-run the switch: %w", version, err)
	}
	return nil
}

// Install performs a first-time installation: artifact fetch, eula
// acceptance, settings write. No implicit backup; there is nothing to
// lose yet.
func (c *Controller) Install(ctx context.Context, serverType domain.ServerType, version string, ramGB int, progressChan chan<- domain.ProgressEvent) error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()

	if c.sess.Exists() {
		c.setState(StateRunning)
		return domain.ErrServerRunning
	}
	if !serverType.Valid() {
		return fmt.Errorf("unknown server type %q", serverType)
	}
	if ramGB <= 0 {
		ramGB = c.settings.Get().RAMGigabytes
	}

	if err := c.install(serverType, version, c.settings.Get().ServerDir, progressChan); err != nil {
		return err
	}

	if err := c.settings.Update(func(st *config.Settings) {
		st.CurrentVersion = version
		st.ServerType = serverType
		st.RAMGigabytes = ramGB
	}); err != nil {
		return fmt.Errorf("%s installed but settings not saved: %w", version, err)
	}
	return nil
}

func (c *Controller) install(serverType domain.ServerType, version, serverDir string, progressChan chan<- domain.ProgressEvent) error {
	ldr, err := loader.GetLoader(serverType)
	if err != nil {
		return err
	}
	if err := ldr.Install(version, serverDir, progressChan); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrArtifactFetchFailed, err)
	}
	if err := loader.AcceptEULA(serverDir); err != nil {
		fmt.Printf("warning: could not write eula.txt: %v\n", err)
	}
	return nil
}

// Status reports the persisted settings combined with the live session
// view. Resource usage comes from the session's pid when it is alive.
func (c *Controller) Status() domain.Status {
	s := c.settings.Get()
	info := c.sess.Info()

	status := domain.Status{
		Running:      info.Alive,
		Version:      s.CurrentVersion,
		Type:         string(s.ServerType),
		RAMGigabytes: s.RAMGigabytes,
	}
	if !info.Alive {
		return status
	}

	status.PID = info.PID
	if proc, err := process.NewProcess(int32(info.PID)); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			status.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			status.RSSMegabytes = mem.RSS / (1024 * 1024)
		}
	}
	return status
}
