// Package notify reports the outcome of a backup run to external channels.
// Notifications never change the run's exit code.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tis24dev/notionsave/internal/types"
)

// NotificationStatus represents the overall status of a backup run
type NotificationStatus int

const (
	StatusSuccess NotificationStatus = iota
	StatusWarning
	StatusFailure
)

// String returns the string representation of NotificationStatus
func (s NotificationStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "warning"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// StatusFromExitCode maps a process exit code to a notification status.
// A successful run that logged warnings is reported as a warning.
func StatusFromExitCode(exitCode, warnings int) NotificationStatus {
	switch {
	case exitCode != types.ExitSuccess.Int():
		return StatusFailure
	case warnings > 0:
		return StatusWarning
	default:
		return StatusSuccess
	}
}

// NotificationData contains all information sent in a notification
type NotificationData struct {
	Status        NotificationStatus
	StatusMessage string
	ExitCode      int
	Hostname      string

	// Export target
	Target  string // "space" or "block"
	SpaceID string
	BlockID string
	TaskID  string

	// Run metadata
	BackupDate     time.Time
	BackupDuration time.Duration
	ExportWait     time.Duration
	PagesExported  int

	ArchivePath   string
	ArchiveName   string
	ArchiveSize   int64
	ArchiveSizeHR string
	Encrypted     bool
	Checksum      string

	LocalArchives int
	MaxLocal      int

	ErrorCount   int
	WarningCount int
	LogFilePath  string

	Version string
}

// NotificationResult represents the result of a notification attempt
type NotificationResult struct {
	Success  bool
	Method   string
	Error    error
	Duration time.Duration
	Metadata map[string]interface{}
}

// Notifier is implemented by every notification provider
type Notifier interface {
	Name() string
	IsEnabled() bool

	// Send returns an error only for failures that prevented any attempt;
	// delivery failures are reported through the result.
	Send(ctx context.Context, data *NotificationData) (*NotificationResult, error)
}

// GetStatusEmoji returns the emoji for a given status
func GetStatusEmoji(status NotificationStatus) string {
	switch status {
	case StatusSuccess:
		return "✅"
	case StatusWarning:
		return "⚠️"
	case StatusFailure:
		return "❌"
	default:
		return "❓"
	}
}

// TargetLabel describes what was exported, e.g. "workspace 1a2b" or
// "page 9f8e of workspace 1a2b".
func (d *NotificationData) TargetLabel() string {
	if d.BlockID != "" {
		return fmt.Sprintf("page %s of workspace %s", d.BlockID, d.SpaceID)
	}
	if d.SpaceID == "" {
		return "workspace (not selected)"
	}
	return "workspace " + d.SpaceID
}

// FormatDuration formats a duration in human-readable format (e.g., "2h 15m 30s")
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	parts := make([]string, 0, 3)
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 && hours == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, " ")
}
