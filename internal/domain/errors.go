package domain

import "errors"

// Fault taxonomy shared by the session, console and lifecycle packages.
// Callers match with errors.Is; lower layers wrap these with context via
// fmt.Errorf("...: %w", ...).
var (
	ErrAlreadyRunning      = errors.New("server is already running")
	ErrNotRunning          = errors.New("server is not running")
	ErrSpawnFailed         = errors.New("failed to spawn session")
	ErrWriteFailed         = errors.New("failed to write to session")
	ErrTimeoutExceeded     = errors.New("timed out waiting for server output")
	ErrSessionEnded        = errors.New("session ended")
	ErrOperationInProgress = errors.New("another operation is in progress")
	ErrBackupFailed        = errors.New("backup failed")
	ErrServerRunning       = errors.New("server must be stopped first")
	ErrArtifactFetchFailed = errors.New("failed to fetch server artifact")
	ErrPersistFailed       = errors.New("failed to persist settings")
)
