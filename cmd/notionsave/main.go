package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/juju/clock"
	"golang.org/x/term"

	"github.com/tis24dev/notionsave/internal/archive"
	"github.com/tis24dev/notionsave/internal/cli"
	"github.com/tis24dev/notionsave/internal/config"
	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/notion"
	"github.com/tis24dev/notionsave/internal/notify"
	"github.com/tis24dev/notionsave/internal/orchestrator"
	"github.com/tis24dev/notionsave/internal/tui"
	"github.com/tis24dev/notionsave/internal/types"
)

const exitCodeInterrupted = 128 + int(syscall.SIGINT)

func main() {
	os.Exit(run())
}

var closeStdinOnce sync.Once

func run() int {
	bootstrap := logging.New(types.LogLevelInfo, term.IsTerminal(int(os.Stderr.Fd())))
	bootstrap.SetOutput(os.Stderr)

	defer func() {
		if r := recover(); r != nil {
			bootstrap.Error("PANIC: %v", r)
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(types.ExitPanicError.Int())
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupted := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			bootstrap.Warning("Received signal %v, initiating graceful shutdown...", sig)
			close(interrupted)
			cancel()
			closeStdinOnce.Do(func() {
				if file := os.Stdin; file != nil {
					_ = file.Close()
				}
			})
		case <-ctx.Done():
		}
	}()
	tui.SetAbortContext(ctx)

	args := cli.Parse()
	if args.ShowVersion {
		cli.ShowVersion(os.Stdout)
		return types.ExitSuccess.Int()
	}
	if args.ShowHelp {
		return types.ExitSuccess.Int()
	}

	settings, err := config.LoadSettings(args.ConfigPath, args.ConfigExplicit)
	if err != nil {
		bootstrap.Error("ERROR: %v", err)
		return types.ExitConfigError.Int()
	}
	rc := mergeOptions(args, settings)

	logger := logging.New(rc.logLevel, settings.UseColor && term.IsTerminal(int(os.Stdout.Fd())))
	logging.SetDefaultLogger(logger)
	if rc.logFile != "" {
		if err := logger.OpenLogFile(rc.logFile, logging.FileOptions{
			MaxSizeMB:  settings.LogMaxSizeMB,
			MaxBackups: settings.LogMaxBackups,
		}); err != nil {
			logger.Warning("Cannot open log file %s: %v", rc.logFile, err)
		}
		defer logger.CloseLogFile()
	}
	if settings.Loaded {
		logger.Debug("Settings loaded from %s (%s)", settings.Path, args.ConfigPathSource)
	} else {
		logger.Debug("No settings file at %s, using defaults", settings.Path)
	}

	recipients, err := loadRecipients(settings, logger)
	if err != nil {
		logger.Error("Encryption setup failed: %v", err)
		return types.ExitEncryptionError.Int()
	}
	rc.opts.Recipients = recipients

	store, err := config.OpenStore(settings.CredentialsFile, logger)
	if err != nil {
		logger.Error("Cannot open credential store: %v", err)
		return types.ExitConfigError.Int()
	}

	client := notion.NewClient(settings.APIRoot, &http.Client{Timeout: settings.HTTPTimeout}, store, logger)
	deps := orchestrator.Deps{
		Store:     store,
		Client:    client,
		Retriever: archive.NewRetriever(nil, logger),
		UI:        selectUI(rc, args.ConfigPath, logger),
		Clock:     clock.WallClock,
		Progress:  progressFactory(),
	}

	orch := orchestrator.New(logger, deps, rc.opts)
	webhook, err := notify.NewWebhookNotifier(webhookConfig(settings), logger, deps.Clock)
	if err != nil {
		logger.Error("Webhook configuration: %v", err)
		return types.ExitConfigError.Int()
	}
	orch.RegisterNotificationChannel(orchestrator.NewNotificationAdapter(webhook, logger, rc.opts))

	logger.Info("Backing up %s into %s", describeTarget(rc.opts), rc.opts.OutputDir)
	stats, err := orch.Run(ctx)
	if err != nil {
		select {
		case <-interrupted:
			logger.Warning("Backup interrupted")
			return exitCodeInterrupted
		default:
		}
		logger.Error("Backup failed: %v", err)
		return orchestrator.ExitCodeFor(err).Int()
	}
	if logger.HasWarnings() {
		logger.Warning("Backup finished with warnings in %s: %s", stats.Duration().Round(time.Second), stats.ArchivePath)
	} else {
		logger.Info("Backup finished in %s: %s", stats.Duration().Round(time.Second), stats.ArchivePath)
	}
	return types.ExitSuccess.Int()
}

// selectUI returns nil in non-interactive mode, plain prompts when asked
// for or when there is no terminal, and the TUI otherwise.
func selectUI(rc runConfig, configPath string, logger *logging.Logger) orchestrator.BackupUI {
	switch {
	case rc.nonInteractive:
		return nil
	case rc.useCLI || !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())):
		return orchestrator.NewCLIUI(logger)
	default:
		return orchestrator.NewTUIUI(configPath, logger)
	}
}

func progressFactory() orchestrator.ProgressFactory {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return func(label string) archive.Progress {
		return archive.NewTerminalProgress(os.Stderr, label)
	}
}
