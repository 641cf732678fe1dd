package domain

import "time"

// ServerType identifies which artifact family the server jar comes from.
type ServerType string

const (
	TypeVanilla ServerType = "vanilla"
	TypePaper   ServerType = "paper"
)

func (t ServerType) Valid() bool {
	return t == TypeVanilla || t == TypePaper
}

// SessionInfo is a point-in-time view of the screen session. It is never
// persisted; callers recompute it by querying the session registry.
type SessionInfo struct {
	SessionName string `json:"sessionName"`
	PID         int    `json:"pid"`
	Alive       bool   `json:"alive"`
}

// LogLine is one completed line of server output.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

type CommandHistoryEntry struct {
	Text     string    `json:"text"`
	IssuedAt time.Time `json:"issuedAt"`
}

type BackupRecord struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	WorldVersion string    `json:"worldVersion"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Status is the flat record emitted by --status.
type Status struct {
	Running      bool    `json:"running"`
	Version      string  `json:"version"`
	Type         string  `json:"type"`
	RAMGigabytes int     `json:"ramGigabytes"`
	PID          int     `json:"pid,omitempty"`
	CPUPercent   float64 `json:"cpuPercent,omitempty"`
	RSSMegabytes uint64  `json:"rssMegabytes,omitempty"`
}

type ProgressEvent struct {
	Message      string  `json:"message"`
	Progress     float64 `json:"progress"`
	CurrentBytes int64   `json:"currentBytes"`
	TotalBytes   int64   `json:"totalBytes"`
}
