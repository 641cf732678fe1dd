package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"mctool/internal/domain"
)

const (
	SettingsFileName = ".mctool.json"
	LogFileName      = "server.log"
	DatabaseFileName = ".mctool.db"
	LockFileName     = ".mctool.lock"

	defaultRAMGigabytes = 4
	defaultMaxBackups   = 5
)

// Settings is the persisted server state. It is mutated only by the
// lifecycle controller while the operation lock is held.
type Settings struct {
	ServerDir      string            `json:"server_dir"`
	RAMGigabytes   int               `json:"ram_gb"`
	CurrentVersion string            `json:"current_version"`
	ServerType     domain.ServerType `json:"server_type"`
	AutoBackup     bool              `json:"auto_backup"`
	MaxBackups     int               `json:"max_backups"`
}

func defaultSettings(serverDir string) Settings {
	return Settings{
		ServerDir:    serverDir,
		RAMGigabytes: defaultRAMGigabytes,
		ServerType:   domain.TypeVanilla,
		AutoBackup:   true,
		MaxBackups:   defaultMaxBackups,
	}
}

// Store owns read and atomic write access to the settings record.
type Store interface {
	Get() Settings
	// Update applies fn to a copy of the settings and persists the result.
	// The in-memory value is untouched when persisting fails.
	Update(fn func(*Settings)) error
}

// FileStore keeps settings in <serverDir>/.mctool.json. Writes go through
// a temp file and a rename so a crash never leaves a half-written record.
type FileStore struct {
	path     string
	settings Settings
}

func Load(serverDir string) (*FileStore, error) {
	if err := os.MkdirAll(serverDir, 0755); err != nil {
		return nil, err
	}

	s := &FileStore{
		path:     filepath.Join(serverDir, SettingsFileName),
		settings: defaultSettings(serverDir),
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	// Unmarshal over the defaults so missing keys keep their default value.
	if err := json.Unmarshal(data, &s.settings); err != nil {
		return nil, fmt.Errorf("invalid settings file %s: %w", s.path, err)
	}
	s.settings.ServerDir = serverDir

	return s, nil
}

func (s *FileStore) Get() Settings {
	return s.settings
}

func (s *FileStore) Update(fn func(*Settings)) error {
	next := s.settings
	fn(&next)

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistFailed, err)
	}
	if err := renameio.WriteFile(s.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistFailed, err)
	}

	s.settings = next
	return nil
}

func (s *FileStore) Path() string {
	return s.path
}
