package notify

import (
	"fmt"
	"time"
)

func buildPayload(format string, data *NotificationData) interface{} {
	switch format {
	case "slack":
		return buildSlackPayload(data)
	case "discord":
		return buildDiscordPayload(data)
	default:
		return buildGenericPayload(data)
	}
}

func reportTitle(data *NotificationData) string {
	return fmt.Sprintf("%s Notion Backup Report", GetStatusEmoji(data.Status))
}

func archiveSummary(data *NotificationData) string {
	if data.ArchiveName == "" {
		return "no archive written"
	}
	s := fmt.Sprintf("%s (%s)", data.ArchiveName, data.ArchiveSizeHR)
	if data.Encrypted {
		s += ", encrypted"
	}
	return s
}

// buildGenericPayload builds a flat JSON document for custom receivers
func buildGenericPayload(data *NotificationData) map[string]interface{} {
	payload := map[string]interface{}{
		"status":         data.Status.String(),
		"status_message": data.StatusMessage,
		"exit_code":      data.ExitCode,
		"hostname":       data.Hostname,
		"timestamp":      data.BackupDate.UTC().Format(time.RFC3339),
		"version":        data.Version,
		"export": map[string]interface{}{
			"target":           data.Target,
			"space_id":         data.SpaceID,
			"block_id":         data.BlockID,
			"task_id":          data.TaskID,
			"pages_exported":   data.PagesExported,
			"duration_seconds": int64(data.BackupDuration.Seconds()),
			"wait_seconds":     int64(data.ExportWait.Seconds()),
		},
		"archive": map[string]interface{}{
			"path":      data.ArchivePath,
			"name":      data.ArchiveName,
			"size":      data.ArchiveSize,
			"encrypted": data.Encrypted,
			"sha256":    data.Checksum,
		},
		"local": map[string]interface{}{
			"archives":     data.LocalArchives,
			"max_archives": data.MaxLocal,
		},
		"issues": map[string]interface{}{
			"errors":   data.ErrorCount,
			"warnings": data.WarningCount,
			"log_file": data.LogFilePath,
		},
	}
	return payload
}

// buildSlackPayload builds a Slack-formatted payload with blocks
func buildSlackPayload(data *NotificationData) map[string]interface{} {
	blocks := []interface{}{
		map[string]interface{}{
			"type": "header",
			"text": map[string]interface{}{"type": "plain_text", "text": reportTitle(data)},
		},
		map[string]interface{}{
			"type": "section",
			"fields": []interface{}{
				mrkdwn("*Host:*\n%s", data.Hostname),
				mrkdwn("*Status:*\n%s", data.Status.String()),
				mrkdwn("*Target:*\n%s", data.TargetLabel()),
				mrkdwn("*Duration:*\n%s", FormatDuration(data.BackupDuration)),
			},
		},
		map[string]interface{}{"type": "divider"},
		map[string]interface{}{
			"type": "section",
			"fields": []interface{}{
				mrkdwn("*Archive:*\n%s", archiveSummary(data)),
				mrkdwn("*Exit Code:*\n%d", data.ExitCode),
			},
		},
	}
	if data.ErrorCount > 0 || data.WarningCount > 0 || data.StatusMessage != "" {
		text := fmt.Sprintf("*Errors:* %d | *Warnings:* %d", data.ErrorCount, data.WarningCount)
		if data.Status == StatusFailure && data.StatusMessage != "" {
			text += "\n" + data.StatusMessage
		}
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{"type": "mrkdwn", "text": text},
		})
	}
	blocks = append(blocks, map[string]interface{}{
		"type":     "context",
		"elements": []interface{}{mrkdwn("notionsave v%s", data.Version)},
	})
	return map[string]interface{}{
		"text":   reportTitle(data),
		"blocks": blocks,
	}
}

func mrkdwn(format string, args ...interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "mrkdwn", "text": fmt.Sprintf(format, args...)}
}

// buildDiscordPayload builds a Discord-formatted payload with one embed
func buildDiscordPayload(data *NotificationData) map[string]interface{} {
	var color int
	switch data.Status {
	case StatusSuccess:
		color = 3066993 // green
	case StatusWarning:
		color = 16753920 // orange
	case StatusFailure:
		color = 15158332 // red
	default:
		color = 9807270
	}

	fields := []map[string]interface{}{
		{"name": "Host", "value": data.Hostname, "inline": true},
		{"name": "Status", "value": data.Status.String(), "inline": true},
		{"name": "Duration", "value": FormatDuration(data.BackupDuration), "inline": true},
		{"name": "Target", "value": data.TargetLabel(), "inline": false},
		{"name": "Archive", "value": archiveSummary(data), "inline": false},
		{"name": "Issues", "value": fmt.Sprintf("Errors: %d, Warnings: %d", data.ErrorCount, data.WarningCount), "inline": false},
	}
	description := data.StatusMessage
	if description == "" {
		description = fmt.Sprintf("Backup finished with status **%s**", data.Status.String())
	}
	embed := map[string]interface{}{
		"title":       reportTitle(data),
		"description": description,
		"color":       color,
		"fields":      fields,
		"footer": map[string]interface{}{
			"text": fmt.Sprintf("notionsave v%s • Exit Code: %d", data.Version, data.ExitCode),
		},
		"timestamp": data.BackupDate.Format(time.RFC3339),
	}
	return map[string]interface{}{"embeds": []interface{}{embed}}
}
