package main

import (
	"fmt"
	"strings"

	"filippo.io/age"

	"github.com/tis24dev/notionsave/internal/archive"
	"github.com/tis24dev/notionsave/internal/cli"
	"github.com/tis24dev/notionsave/internal/config"
	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/notion"
	"github.com/tis24dev/notionsave/internal/notify"
	"github.com/tis24dev/notionsave/internal/orchestrator"
	"github.com/tis24dev/notionsave/internal/types"
	"github.com/tis24dev/notionsave/internal/version"
)

// runConfig is the merged view of flags and settings for one run.
type runConfig struct {
	opts           orchestrator.Options
	logLevel       types.LogLevel
	logFile        string
	nonInteractive bool
	useCLI         bool
}

// mergeOptions applies flag > environment/file > default precedence.
// Environment already overrides the file inside config.LoadSettings.
func mergeOptions(args *cli.Args, settings *config.Settings) runConfig {
	rc := runConfig{
		logLevel:       settings.LogLevel,
		logFile:        settings.LogFile,
		nonInteractive: settings.NonInteractive || args.NonInteractive,
		useCLI:         settings.UseCLI || args.ForceCLI,
	}
	if args.LogLevel != types.LogLevelNone {
		rc.logLevel = args.LogLevel
	}
	if args.LogFile != "" {
		rc.logFile = args.LogFile
	}

	opts := orchestrator.Options{
		OutputDir:       firstNonEmpty(args.OutputDir, settings.OutputDir),
		SpaceID:         firstNonEmpty(args.SpaceID, settings.SpaceID),
		BlockID:         strings.TrimSpace(args.BlockID),
		SpaceFormat:     settings.ExportType,
		BlockFormat:     notion.DefaultBlockFormat,
		TimeZone:        settings.TimeZone,
		Locale:          settings.Locale,
		Recursive:       args.Recursive,
		IncludeContents: args.IncludeContents,
		ExportComments:  args.ExportComments,
		Extract:         args.Extract,
		WriteChecksum:   settings.WriteChecksum,
		MaxLocalExports: settings.MaxLocalExports,
		PollInterval:    settings.PollInterval,
		MinFreeBytes:    uint64(settings.MinFreeSpaceMB) << 20,
		LockMaxAge:      settings.LockMaxAge,
		Version:         version.String(),
	}
	if _, ok := settings.Get("EXPORT_TYPE"); ok {
		opts.BlockFormat = settings.ExportType
	}
	if args.ExportType != "" {
		opts.SpaceFormat = types.ExportFormat(args.ExportType)
		opts.BlockFormat = opts.SpaceFormat
	}
	if settings.MetricsEnabled {
		opts.MetricsPath = firstNonEmpty(settings.MetricsPath, opts.OutputDir)
	}
	rc.opts = opts
	return rc
}

// loadRecipients collects AGE_RECIPIENT values and AGE_RECIPIENT_FILE
// entries. Encryption disabled yields no recipients.
func loadRecipients(settings *config.Settings, logger *logging.Logger) ([]age.Recipient, error) {
	if !settings.EncryptArchive {
		return nil, nil
	}
	values := append([]string(nil), settings.AgeRecipients...)
	if settings.AgeRecipientFile != "" {
		fromFile, err := archive.ReadRecipientFile(settings.AgeRecipientFile)
		if err != nil {
			return nil, err
		}
		values = append(values, fromFile...)
	}
	recipients, err := archive.ParseRecipients(values)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		logger.Debug("Encryption recipient: %s", archive.DescribeRecipient(v))
	}
	logger.Info("Archive encryption enabled (%d recipient(s))", len(recipients))
	return recipients, nil
}

// webhookConfig maps WEBHOOK_* settings; an empty URL disables the webhook.
func webhookConfig(settings *config.Settings) notify.WebhookConfig {
	return notify.WebhookConfig{
		URL:        settings.WebhookURL,
		Format:     settings.WebhookFormat,
		Method:     settings.WebhookMethod,
		Token:      settings.WebhookToken,
		Secret:     settings.WebhookSecret,
		Headers:    settings.WebhookHeaders,
		Timeout:    settings.WebhookTimeout,
		MaxRetries: settings.WebhookMaxRetries,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func describeTarget(opts orchestrator.Options) string {
	if opts.BlockID != "" {
		return fmt.Sprintf("block %s", opts.BlockID)
	}
	if opts.SpaceID != "" {
		return fmt.Sprintf("workspace %s", opts.SpaceID)
	}
	return "workspace (to be selected)"
}
