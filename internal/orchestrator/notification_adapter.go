package orchestrator

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/notify"
)

// NotificationAdapter adapts notify.Notifier to NotificationChannel
type NotificationAdapter struct {
	notifier notify.Notifier
	logger   *logging.Logger
	version  string
	maxLocal int
}

// NewNotificationAdapter creates a new NotificationAdapter
func NewNotificationAdapter(notifier notify.Notifier, logger *logging.Logger, opts Options) *NotificationAdapter {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &NotificationAdapter{
		notifier: notifier,
		logger:   logger,
		version:  opts.Version,
		maxLocal: opts.MaxLocalExports,
	}
}

// Notify implements NotificationChannel. Delivery failures are logged and
// never returned.
func (n *NotificationAdapter) Notify(ctx context.Context, stats *BackupStats) error {
	if !n.notifier.IsEnabled() {
		n.logger.Skip("%s: disabled", n.notifier.Name())
		return nil
	}

	data := n.notificationData(stats)
	n.logger.Debug("%s: sending %s report (exit code %d)", n.notifier.Name(), data.Status, data.ExitCode)

	result, err := n.notifier.Send(ctx, data)
	switch {
	case err != nil:
		n.logger.Warning("%s: failed: %v", n.notifier.Name(), err)
	case !result.Success:
		n.logger.Warning("%s: delivery failed: %v", n.notifier.Name(), result.Error)
	default:
		n.logger.Info("%s: notification sent (took %v)", n.notifier.Name(), result.Duration)
	}
	return nil
}

func (n *NotificationAdapter) notificationData(stats *BackupStats) *notify.NotificationData {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	warnings, errs := n.logger.Counts()
	status := notify.StatusFromExitCode(stats.ExitCode, warnings)

	message := "Backup completed successfully"
	switch status {
	case notify.StatusWarning:
		message = "Backup completed with warnings"
	case notify.StatusFailure:
		message = "Backup failed"
		if stats.ErrorMessage != "" {
			message += ": " + stats.ErrorMessage
		}
	}

	data := &notify.NotificationData{
		Status:         status,
		StatusMessage:  message,
		ExitCode:       stats.ExitCode,
		Hostname:       hostname,
		Target:         stats.Target,
		SpaceID:        stats.SpaceID,
		BlockID:        stats.BlockID,
		TaskID:         stats.TaskID,
		BackupDate:     stats.StartTime,
		BackupDuration: stats.Duration(),
		ExportWait:     stats.ExportWait,
		PagesExported:  stats.PagesExported,
		ArchivePath:    stats.ArchivePath,
		ArchiveSize:    stats.BytesWritten,
		Encrypted:      stats.Encrypted,
		Checksum:       stats.Checksum,
		LocalArchives:  stats.LocalArchives,
		MaxLocal:       n.maxLocal,
		ErrorCount:     errs,
		WarningCount:   warnings,
		LogFilePath:    n.logger.GetLogFilePath(),
		Version:        n.version,
	}
	if stats.ArchivePath != "" {
		data.ArchiveName = filepath.Base(stats.ArchivePath)
		data.ArchiveSizeHR = humanize.Bytes(uint64(stats.BytesWritten))
	}
	return data
}
