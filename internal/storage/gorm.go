package storage

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mctool/internal/domain"
)

// DefaultHistoryCap bounds the command history, matching the console's
// recall depth.
const DefaultHistoryCap = 20

type commandRow struct {
	ID       uint `gorm:"primaryKey;autoIncrement"`
	Text     string
	IssuedAt time.Time
}

func (commandRow) TableName() string { return "command_history" }

type backupRow struct {
	ID           string `gorm:"primaryKey"`
	Path         string
	WorldVersion string
	CreatedAt    time.Time
}

func (backupRow) TableName() string { return "backup_records" }

// GormStore persists the command history and backup records in a sqlite
// file next to the server, separate from the settings record.
type GormStore struct {
	db         *gorm.DB
	historyCap int
}

func NewGormStore(path string, historyCap int) (*GormStore, error) {
	newLogger := gormlogger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		gormlogger.Config{
			IgnoreRecordNotFoundError: true,
			LogLevel:                  gormlogger.Error,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&commandRow{}, &backupRow{}); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &GormStore{db: db, historyCap: historyCap}, nil
}

// AppendCommand records one delivered command and trims the history to its
// capacity, oldest entries first.
func (s *GormStore) AppendCommand(entry domain.CommandHistoryEntry) error {
	row := &commandRow{Text: entry.Text, IssuedAt: entry.IssuedAt}
	if err := s.db.Create(row).Error; err != nil {
		return err
	}

	var count int64
	if err := s.db.Model(&commandRow{}).Count(&count).Error; err != nil {
		return err
	}
	if excess := count - int64(s.historyCap); excess > 0 {
		var stale []commandRow
		if err := s.db.Order("id asc").Limit(int(excess)).Find(&stale).Error; err != nil {
			return err
		}
		for _, row := range stale {
			if err := s.db.Delete(&commandRow{}, row.ID).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// ListCommands returns up to limit history entries, most recent last.
func (s *GormStore) ListCommands(limit int) ([]domain.CommandHistoryEntry, error) {
	if limit <= 0 || limit > s.historyCap {
		limit = s.historyCap
	}
	var rows []commandRow
	if err := s.db.Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]domain.CommandHistoryEntry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		entries = append(entries, domain.CommandHistoryEntry{
			Text:     rows[i].Text,
			IssuedAt: rows[i].IssuedAt,
		})
	}
	return entries, nil
}

func (s *GormStore) RecordBackup(rec domain.BackupRecord) (domain.BackupRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	row := &backupRow{
		ID:           rec.ID,
		Path:         rec.Path,
		WorldVersion: rec.WorldVersion,
		CreatedAt:    rec.CreatedAt,
	}
	if err := s.db.Create(row).Error; err != nil {
		return domain.BackupRecord{}, err
	}
	return rec, nil
}

// ListBackups returns all backup records ordered by creation time,
// oldest first.
func (s *GormStore) ListBackups() ([]domain.BackupRecord, error) {
	var rows []backupRow
	if err := s.db.Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]domain.BackupRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.BackupRecord{
			ID:           row.ID,
			Path:         row.Path,
			WorldVersion: row.WorldVersion,
			CreatedAt:    row.CreatedAt,
		})
	}
	return records, nil
}

func (s *GormStore) DeleteBackupRecord(id string) error {
	return s.db.Delete(&backupRow{}, "id = ?", id).Error
}
