package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"mctool/internal/backup"
	"mctool/internal/config"
	"mctool/internal/console"
	"mctool/internal/domain"
	"mctool/internal/session"
)

// recStore is an in-memory backup.Store.
type recStore struct {
	mu     sync.Mutex
	recs   []domain.BackupRecord
	nextID int
}

func (s *recStore) RecordBackup(rec domain.BackupRecord) (domain.BackupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = fmt.Sprintf("rec-%d", s.nextID)
	s.recs = append(s.recs, rec)
	return rec, nil
}

func (s *recStore) ListBackups() ([]domain.BackupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.BackupRecord, len(s.recs))
	copy(out, s.recs)
	return out, nil
}

func (s *recStore) DeleteBackupRecord(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.recs {
		if rec.ID == id {
			s.recs = append(s.recs[:i], s.recs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no record %s", id)
}

type fixture struct {
	dir   string
	sess  *session.Memory
	store *config.MemStore
	recs  *recStore
	ctrl  *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, config.LogFileName)

	sess := session.NewMemory("mc-test", logPath)
	store := config.NewMemStore(dir)
	tailer := console.NewTailer(logPath)
	channel := console.NewChannel(sess, nil)
	recs := &recStore{}
	backups := backup.NewManager(dir, recs)

	opts := DefaultOptions(dir)
	opts.StartTimeout = 5 * time.Second
	opts.SaveTimeout = 500 * time.Millisecond
	opts.StopGrace = 2 * time.Second

	return &fixture{
		dir:   dir,
		sess:  sess,
		store: store,
		recs:  recs,
		ctrl:  NewController(store, sess, tailer, channel, backups, opts),
	}
}

func writeJar(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "server.jar"), []byte("jar"), 0644); err != nil {
		t.Fatal(err)
	}
}

func writeWorld(t *testing.T, dir, name string) {
	t.Helper()
	worldDir := filepath.Join(dir, name)
	if err := os.MkdirAll(worldDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(worldDir, "level.dat"), []byte("nbt"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestStartBecomesRunning(t *testing.T) {
	f := newFixture(t)
	writeJar(t, f.dir)

	f.sess.Script = []session.ScriptedLine{
		{After: 200 * time.Millisecond, Text: "[12:00:01] [Server thread/INFO]: Starting minecraft server"},
		{After: 2 * time.Second, Text: `[12:00:03] [Server thread/INFO]: Done (3.2s)! For help, type "help"`},
	}

	began := time.Now()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if elapsed := time.Since(began); elapsed >= 5*time.Second {
		t.Errorf("start took %v, should finish before the timeout", elapsed)
	}
	if got := f.ctrl.State(); got != StateRunning {
		t.Errorf("state = %s, want %s", got, StateRunning)
	}
	if !f.sess.Exists() {
		t.Error("session should be alive after start")
	}
}

func TestStartThenStopLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	writeJar(t, f.dir)

	f.sess.Script = []session.ScriptedLine{
		{After: 100 * time.Millisecond, Text: `[INFO]: Done (1.0s)! For help, type "help"`},
	}
	f.sess.OnStuff = func(text string) {
		if strings.TrimSpace(text) != "stop" {
			return
		}
		go func() {
			time.Sleep(100 * time.Millisecond)
			f.sess.EmitLine("[INFO]: Saving the game (this may take a moment!)")
			f.sess.EmitLine("[INFO]: Saved the game")
			time.Sleep(100 * time.Millisecond)
			f.sess.Kill()
		}()
	}

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	forced, err := f.ctrl.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if forced {
		t.Error("graceful stop should not be forced")
	}
	if got := f.ctrl.State(); got != StateStopped {
		t.Errorf("state = %s, want %s", got, StateStopped)
	}
	if f.sess.Exists() {
		t.Error("no session should remain after stop")
	}
	sent := f.sess.Sent()
	if len(sent) == 0 || strings.TrimSpace(sent[len(sent)-1]) != "stop" {
		t.Errorf("stop command not delivered, sent = %q", sent)
	}
}

func TestRestartCyclesTheSession(t *testing.T) {
	f := newFixture(t)
	writeJar(t, f.dir)

	f.sess.Script = []session.ScriptedLine{
		{After: 100 * time.Millisecond, Text: `[INFO]: Done (1.0s)! For help, type "help"`},
	}
	f.sess.OnStuff = func(text string) {
		if strings.TrimSpace(text) != "stop" {
			return
		}
		go func() {
			time.Sleep(50 * time.Millisecond)
			f.sess.EmitLine("[INFO]: Saved the game")
			time.Sleep(50 * time.Millisecond)
			f.sess.Kill()
		}()
	}

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	forced, err := f.ctrl.Restart(context.Background())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if forced {
		t.Error("graceful restart should not be forced")
	}
	if got := f.ctrl.State(); got != StateRunning {
		t.Errorf("state = %s, want %s", got, StateRunning)
	}
	if !f.sess.Exists() {
		t.Error("session should be alive after restart")
	}
}

func TestStartWithoutJarFails(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "server.jar") {
		t.Fatalf("err = %v, want missing server.jar", err)
	}
	if got := f.ctrl.State(); got != StateStopped {
		t.Errorf("state = %s, want %s", got, StateStopped)
	}
}

func TestStartTimeoutTearsSessionDown(t *testing.T) {
	f := newFixture(t)
	writeJar(t, f.dir)
	f.ctrl.opts.StartTimeout = 300 * time.Millisecond

	err := f.ctrl.Start(context.Background())
	if !errors.Is(err, domain.ErrTimeoutExceeded) {
		t.Fatalf("err = %v, want ErrTimeoutExceeded", err)
	}
	if f.sess.Exists() {
		t.Error("session should be torn down after a failed start")
	}
	if got := f.ctrl.State(); got != StateStopped {
		t.Errorf("state = %s, want %s", got, StateStopped)
	}
}

func TestStartWhenSessionDiesEarly(t *testing.T) {
	f := newFixture(t)
	writeJar(t, f.dir)

	go func() {
		time.Sleep(150 * time.Millisecond)
		f.sess.Kill()
	}()

	err := f.ctrl.Start(context.Background())
	if !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("err = %v, want ErrSessionEnded", err)
	}
	if got := f.ctrl.State(); got != StateStopped {
		t.Errorf("state = %s, want %s", got, StateStopped)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	f := newFixture(t)

	if _, err := f.ctrl.Stop(context.Background()); !errors.Is(err, domain.ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}

func TestForcedStopReported(t *testing.T) {
	f := newFixture(t)
	if err := f.sess.Create("sleep"); err != nil {
		t.Fatal(err)
	}
	f.ctrl.setState(StateRunning)
	f.ctrl.opts.SaveTimeout = 100 * time.Millisecond
	f.ctrl.opts.StopGrace = 200 * time.Millisecond
	f.sess.TerminateDelay = time.Second

	forced, err := f.ctrl.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !forced {
		t.Error("stop past the grace period should report forced")
	}
	if f.sess.Exists() {
		t.Error("session should be gone after forced stop")
	}
}

func TestBackupRejectedWhileStopInProgress(t *testing.T) {
	f := newFixture(t)
	writeWorld(t, f.dir, "world")
	if err := f.sess.Create("sleep"); err != nil {
		t.Fatal(err)
	}
	f.ctrl.opts.SaveTimeout = 300 * time.Millisecond
	f.sess.TerminateDelay = 500 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.ctrl.Stop(context.Background())
	}()

	time.Sleep(100 * time.Millisecond)
	if _, err := f.ctrl.Backup(context.Background()); !errors.Is(err, domain.ErrOperationInProgress) {
		t.Fatalf("err = %v, want ErrOperationInProgress", err)
	}
	<-done

	// The lock is free again once the stop completed.
	if _, err := f.ctrl.Backup(context.Background()); err != nil {
		t.Fatalf("backup after stop: %v", err)
	}
}

func TestBackupRestoresPreviousState(t *testing.T) {
	f := newFixture(t)
	writeWorld(t, f.dir, "world")
	if err := f.sess.Create("sleep"); err != nil {
		t.Fatal(err)
	}
	f.ctrl.setState(StateRunning)
	f.ctrl.opts.SaveTimeout = 200 * time.Millisecond

	rec, err := f.ctrl.Backup(context.Background())
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if rec.ID == "" || rec.Path == "" {
		t.Errorf("incomplete record: %+v", rec)
	}
	if _, err := os.Stat(rec.Path); err != nil {
		t.Errorf("archive missing: %v", err)
	}
	if got := f.ctrl.State(); got != StateRunning {
		t.Errorf("state = %s, want %s restored", got, StateRunning)
	}

	// A running server is asked to flush before the archive is cut.
	sent := f.sess.Sent()
	if len(sent) == 0 || strings.TrimSpace(sent[0]) != "save-all" {
		t.Errorf("save-all not sent, sent = %q", sent)
	}
}

func TestBackupPrunesOldArchives(t *testing.T) {
	f := newFixture(t)
	writeWorld(t, f.dir, "world")
	if err := f.store.Update(func(s *config.Settings) { s.MaxBackups = 1 }); err != nil {
		t.Fatal(err)
	}

	oldPath := filepath.Join(f.dir, "backups", "backup_old.zip")
	if err := os.MkdirAll(filepath.Dir(oldPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(oldPath, []byte("zip"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.recs.RecordBackup(domain.BackupRecord{Path: oldPath, CreatedAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}

	rec, err := f.ctrl.Backup(context.Background())
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("oldest archive should be pruned")
	}
	remaining, _ := f.recs.ListBackups()
	if len(remaining) != 1 || remaining[0].ID != rec.ID {
		t.Errorf("remaining = %+v, want only the new record", remaining)
	}
}

func TestSwitchVersionWhileRunningLeavesSettingsUntouched(t *testing.T) {
	dir := t.TempDir()
	store, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Update(func(s *config.Settings) { s.CurrentVersion = "1.21.1" }); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}

	logPath := filepath.Join(dir, config.LogFileName)
	sess := session.NewMemory("mc-test", logPath)
	if err := sess.Create("sleep"); err != nil {
		t.Fatal(err)
	}
	ctrl := NewController(store, sess, console.NewTailer(logPath), console.NewChannel(sess, nil),
		backup.NewManager(dir, &recStore{}), DefaultOptions(dir))

	err = ctrl.SwitchVersion(context.Background(), domain.TypeVanilla, "1.20.4", false, nil)
	if !errors.Is(err, domain.ErrServerRunning) {
		t.Fatalf("err = %v, want ErrServerRunning", err)
	}

	after, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("settings file changed by a rejected switch")
	}
}

func TestSwitchVersionRejectsUnknownType(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.SwitchVersion(context.Background(), domain.ServerType("forge"), "1.21", false, nil)
	if err == nil || !strings.Contains(err.Error(), "forge") {
		t.Fatalf("err = %v, want unknown type", err)
	}
}

func TestSwitchVersionAbortsWhenBackupFails(t *testing.T) {
	// No world folders, auto-backup on: the implicit backup fails and the
	// switch must not proceed to the artifact fetch.
	f := newFixture(t)

	err := f.ctrl.SwitchVersion(context.Background(), domain.TypeVanilla, "1.21", false, nil)
	if !errors.Is(err, domain.ErrBackupFailed) {
		t.Fatalf("err = %v, want ErrBackupFailed", err)
	}
	if got := f.store.Get().CurrentVersion; got != "" {
		t.Errorf("version = %q, want unchanged", got)
	}
}

func TestOperationLockHeldByAnotherProcess(t *testing.T) {
	f := newFixture(t)

	other := flock.New(filepath.Join(f.dir, config.LockFileName))
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("could not take the file lock: %v", err)
	}
	defer other.Unlock()

	if _, err := f.ctrl.Stop(context.Background()); !errors.Is(err, domain.ErrOperationInProgress) {
		t.Fatalf("err = %v, want ErrOperationInProgress", err)
	}
}

func TestStatusReflectsSessionAndSettings(t *testing.T) {
	f := newFixture(t)
	if err := f.store.Update(func(s *config.Settings) {
		s.CurrentVersion = "1.21.1"
		s.ServerType = domain.TypePaper
	}); err != nil {
		t.Fatal(err)
	}

	st := f.ctrl.Status()
	if st.Running {
		t.Error("status should report stopped")
	}
	if st.Version != "1.21.1" || st.Type != "paper" {
		t.Errorf("status = %+v", st)
	}

	if err := f.sess.Create("sleep"); err != nil {
		t.Fatal(err)
	}
	st = f.ctrl.Status()
	if !st.Running {
		t.Error("status should report running")
	}
	if st.PID == 0 {
		t.Error("running status should carry a pid")
	}
}
