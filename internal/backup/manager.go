package backup

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"mctool/internal/domain"
)

// Store keeps the durable record of created archives.
type Store interface {
	RecordBackup(rec domain.BackupRecord) (domain.BackupRecord, error)
	ListBackups() ([]domain.BackupRecord, error)
	DeleteBackupRecord(id string) error
}

// Manager archives the server's world folders into
// <serverDir>/backups/backup_<version>_<timestamp>.zip.
type Manager struct {
	ServerDir  string
	BackupsDir string
	Store      Store
}

func NewManager(serverDir string, store Store) *Manager {
	return &Manager{
		ServerDir:  serverDir,
		BackupsDir: filepath.Join(serverDir, "backups"),
		Store:      store,
	}
}

// WorldDirs returns the world folder names under the server directory,
// identified by the presence of level.dat.
func (m *Manager) WorldDirs() ([]string, error) {
	entries, err := os.ReadDir(m.ServerDir)
	if err != nil {
		return nil, err
	}

	var worlds []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(m.ServerDir, entry.Name(), "level.dat")); err == nil {
			worlds = append(worlds, entry.Name())
		}
	}
	return worlds, nil
}

// Create archives every world folder. The zip is written to a .temp file
// and renamed into place only when complete, so a crash never leaves a
// half-written archive behind.
func (m *Manager) Create(ctx context.Context, worldVersion string, progressChan chan<- domain.ProgressEvent) (domain.BackupRecord, error) {
	worlds, err := m.WorldDirs()
	if err != nil {
		return domain.BackupRecord{}, fmt.Errorf("%w: %v", domain.ErrBackupFailed, err)
	}
	if len(worlds) == 0 {
		return domain.BackupRecord{}, fmt.Errorf("%w: no world folders found", domain.ErrBackupFailed)
	}

	if err := os.MkdirAll(m.BackupsDir, 0755); err != nil {
		return domain.BackupRecord{}, fmt.Errorf("%w: %v", domain.ErrBackupFailed, err)
	}

	version := worldVersion
	if version == "" {
		version = "unknown"
	}
	timestamp := time.Now().Format("20060102_150405")
	backupName := fmt.Sprintf("backup_%s_%s.zip", sanitizeFileName(version), timestamp)
	backupPath := filepath.Join(m.BackupsDir, backupName)
	tempPath := backupPath + ".temp"

	var totalSize int64
	for _, world := range worlds {
		filepath.Walk(filepath.Join(m.ServerDir, world), func(path string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() {
				totalSize += info.Size()
			}
			return nil
		})
	}

	backupFile, err := os.Create(tempPath)
	if err != nil {
		return domain.BackupRecord{}, fmt.Errorf("%w: %v", domain.ErrBackupFailed, err)
	}
	zipWriter := zip.NewWriter(backupFile)

	var processedSize int64
	var lastProgress int
	for _, world := range worlds {
		if err = m.addWorld(ctx, zipWriter, world, totalSize, &processedSize, &lastProgress, progressChan); err != nil {
			break
		}
	}

	zipErr := zipWriter.Close()
	fileErr := backupFile.Close()

	if err != nil || zipErr != nil || fileErr != nil {
		os.Remove(tempPath)
		if err != nil {
			return domain.BackupRecord{}, fmt.Errorf("%w: %v", domain.ErrBackupFailed, err)
		}
		return domain.BackupRecord{}, fmt.Errorf("%w: closing archive: %v, %v", domain.ErrBackupFailed, zipErr, fileErr)
	}

	if err := os.Rename(tempPath, backupPath); err != nil {
		os.Remove(tempPath)
		return domain.BackupRecord{}, fmt.Errorf("%w: %v", domain.ErrBackupFailed, err)
	}

	rec := domain.BackupRecord{
		Path:         backupPath,
		WorldVersion: worldVersion,
		CreatedAt:    time.Now(),
	}
	if m.Store != nil {
		stored, err := m.Store.RecordBackup(rec)
		if err != nil {
			fmt.Printf("warning: backup created but not recorded: %v\n", err)
			return rec, nil
		}
		rec = stored
	}
	return rec, nil
}

func (m *Manager) addWorld(ctx context.Context, zipWriter *zip.Writer, world string, totalSize int64, processedSize *int64, lastProgress *int, progressChan chan<- domain.ProgressEvent) error {
	worldDir := filepath.Join(m.ServerDir, world)

	return filepath.Walk(worldDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		relPath, err := filepath.Rel(m.ServerDir, path)
		if err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if info.IsDir() {
			header.Name += "/"
		} else {
			header.Method = zip.Deflate
		}

		writer, err := zipWriter.CreateHeader(header)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		if _, err := io.Copy(writer, file); err != nil {
			return err
		}

		*processedSize += info.Size()
		if totalSize > 0 && progressChan != nil {
			percentage := (float64(*processedSize) / float64(totalSize)) * 100
			if progressInt := int(percentage); progressInt > *lastProgress {
				*lastProgress = progressInt
				progressChan <- domain.ProgressEvent{
					Message:      fmt.Sprintf("Backing up... %d%%", progressInt),
					Progress:     percentage,
					CurrentBytes: *processedSize,
					TotalBytes:   totalSize,
				}
			}
		}
		return nil
	})
}

// Prune deletes the oldest archives until at most maxBackups remain.
// Deletion failures are returned for reporting but leave the remaining
// prune work and the backup itself intact.
func (m *Manager) Prune(maxBackups int) (removed []string, errs []error) {
	if m.Store == nil || maxBackups < 0 {
		return nil, nil
	}

	records, err := m.Store.ListBackups()
	if err != nil {
		return nil, []error{err}
	}

	excess := len(records) - maxBackups
	for i := 0; i < excess; i++ {
		rec := records[i]
		if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("could not delete %s: %w", rec.Path, err))
			continue
		}
		if err := m.Store.DeleteBackupRecord(rec.ID); err != nil {
			errs = append(errs, fmt.Errorf("could not forget %s: %w", rec.Path, err))
			continue
		}
		removed = append(removed, rec.Path)
	}
	return removed, errs
}

// List returns the recorded backups, oldest first.
func (m *Manager) List() ([]domain.BackupRecord, error) {
	if m.Store == nil {
		return nil, nil
	}
	return m.Store.ListBackups()
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, " ", "-")
	reg := regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
	sanitized := reg.ReplaceAllString(name, "")
	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
	}
	return sanitized
}
