// Package orchestrator runs the backup workflow: session, workspace
// selection, export task, download and local housekeeping.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/dustin/go-humanize"
	"github.com/juju/clock"

	"github.com/tis24dev/notionsave/internal/archive"
	"github.com/tis24dev/notionsave/internal/checks"
	"github.com/tis24dev/notionsave/internal/config"
	"github.com/tis24dev/notionsave/internal/export"
	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/metrics"
	"github.com/tis24dev/notionsave/internal/notion"
	"github.com/tis24dev/notionsave/internal/safefs"
	"github.com/tis24dev/notionsave/internal/storage"
	"github.com/tis24dev/notionsave/internal/types"
)

const defaultFSTimeout = 10 * time.Second

// Options are the resolved run options.
type Options struct {
	OutputDir string
	SpaceID   string // explicit workspace, overrides the stored default
	BlockID   string // non-empty: export this block instead of the workspace

	SpaceFormat     types.ExportFormat
	BlockFormat     types.ExportFormat
	TimeZone        string
	Locale          string
	Recursive       bool
	IncludeContents string
	ExportComments  bool

	Extract         bool
	Recipients      []age.Recipient // non-empty: encrypt the archive
	WriteChecksum   bool
	MaxLocalExports int

	PollInterval time.Duration
	FSTimeout    time.Duration

	MinFreeBytes uint64        // zero: no free space check
	LockMaxAge   time.Duration // zero: checks.DefaultMaxLockAge

	MetricsPath string // empty: metrics disabled
	Version     string
}

// BackupStats describes one run.
type BackupStats struct {
	Target    string // "space" or "block"
	SpaceID   string
	BlockID   string
	UserID    string
	TaskID    string
	StartTime time.Time
	EndTime   time.Time

	ArchivePath   string
	Encrypted     bool
	BytesWritten  int64
	Checksum      string
	ExtractDir    string
	ExtractedFile int

	Polls         int
	PagesExported int
	ExportWait    time.Duration

	Removed       []string
	LocalArchives int
	ExitCode      int
	ErrorMessage  string
}

// Duration is the wall time of the run.
func (s *BackupStats) Duration() time.Duration {
	if s.EndTime.IsZero() || s.StartTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Orchestrator coordinates one backup run.
type Orchestrator struct {
	logger    *logging.Logger
	store     CredentialStore
	client    RemoteClient
	exports   *export.Manager
	retriever *archive.Retriever
	ui        BackupUI
	clock     clock.Clock
	progress  ProgressFactory
	opts      Options

	notificationChannels []NotificationChannel
	sessionChecked       bool
	lock                 *checks.Checker // held while a backup runs
}

// New creates an Orchestrator.
func New(logger *logging.Logger, deps Deps, opts Options) *Orchestrator {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	if opts.FSTimeout <= 0 {
		opts.FSTimeout = defaultFSTimeout
	}
	if !opts.SpaceFormat.Valid() {
		opts.SpaceFormat = types.ExportMarkdown
	}
	if !opts.BlockFormat.Valid() {
		opts.BlockFormat = notion.DefaultBlockFormat
	}

	o := &Orchestrator{logger: logger, opts: opts}
	deps.fill(o)
	o.store = deps.Store
	o.client = deps.Client
	o.retriever = deps.Retriever
	o.ui = deps.UI
	o.clock = deps.Clock
	o.progress = deps.Progress
	o.exports = export.NewManager(deps.Client, deps.Clock, opts.PollInterval, logger)
	o.exports.SetPollHook(o.refreshLock)
	return o
}

func (o *Orchestrator) logStep(step int, format string, args ...interface{}) {
	o.logger.Step("[%d] %s", step, fmt.Sprintf(format, args...))
}

// Validate rejects option combinations the workflow cannot honor.
func (o *Orchestrator) Validate() error {
	if o.opts.Extract && len(o.opts.Recipients) > 0 {
		return &BackupError{
			Phase: PhaseSetup,
			Err:   fmt.Errorf("%w: --extract cannot unpack an encrypted archive", ErrConflictingOptions),
			Code:  types.ExitConfigError,
		}
	}
	if strings.TrimSpace(o.opts.OutputDir) == "" {
		return &BackupError{Phase: PhaseSetup, Err: fmt.Errorf("%w: no output directory given", ErrOutputPathMissing), Code: types.ExitConfigError}
	}
	return nil
}

// CheckOutputDir verifies the output directory exists, bounded by FSTimeout.
func (o *Orchestrator) CheckOutputDir(ctx context.Context) error {
	dir := o.opts.OutputDir
	err := safefs.RequireDir(ctx, dir, o.opts.FSTimeout)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, safefs.ErrNotDirectory):
		return &BackupError{Phase: PhaseSetup, Err: fmt.Errorf("%w: %s", ErrOutputPathMissing, dir), Code: types.ExitConfigError}
	default:
		return phaseError(PhaseSetup, err, types.ExitStorageError)
	}
}

// Run performs a full backup: a workspace export, or a block export when
// Options.BlockID is set. Metrics are written even when the run fails.
func (o *Orchestrator) Run(ctx context.Context) (*BackupStats, error) {
	return o.execute(ctx, o.opts.SpaceID, o.opts.BlockID)
}

// BackupSpace exports the whole workspace spaceID into the output directory.
// It goes through the same checks, lock, metrics and notifications as Run.
func (o *Orchestrator) BackupSpace(ctx context.Context, spaceID string) (*BackupStats, error) {
	return o.execute(ctx, spaceID, "")
}

// BackupBlock exports one block of spaceID into the output directory, with
// the block options from Options.
func (o *Orchestrator) BackupBlock(ctx context.Context, spaceID, blockID string) (*BackupStats, error) {
	if strings.TrimSpace(blockID) == "" {
		return nil, &BackupError{Phase: PhaseSetup, Err: fmt.Errorf("%w: empty block id", ErrConflictingOptions), Code: types.ExitConfigError}
	}
	return o.execute(ctx, spaceID, blockID)
}

func (o *Orchestrator) execute(ctx context.Context, spaceID, blockID string) (stats *BackupStats, err error) {
	stats = &BackupStats{Target: "space", StartTime: o.clock.Now(), BlockID: blockID}
	if blockID != "" {
		stats.Target = "block"
	}
	defer func() {
		stats.EndTime = o.clock.Now()
		stats.ExitCode = ExitCodeFor(err).Int()
		if err != nil {
			stats.ErrorMessage = err.Error()
		}
		o.exportMetrics(stats)
		o.dispatchNotifications(context.WithoutCancel(ctx), stats)
	}()

	if err := o.Validate(); err != nil {
		return stats, err
	}
	o.logStep(1, "Checking output directory %s", o.opts.OutputDir)
	if err := o.CheckOutputDir(ctx); err != nil {
		return stats, err
	}
	checker := checks.NewChecker(o.logger, &checks.CheckerConfig{
		OutputDir:    o.opts.OutputDir,
		MinFreeBytes: o.opts.MinFreeBytes,
		MaxLockAge:   o.opts.LockMaxAge,
	}, o.clock)
	if _, err := checker.RunAllChecks(ctx); err != nil {
		return stats, phaseError(PhaseSetup, err, types.ExitStorageError)
	}
	o.lock = checker
	defer func() {
		o.lock = nil
		if err := checker.ReleaseLock(); err != nil {
			o.logger.Warning("%v", err)
		}
	}()

	o.logStep(2, "Checking session")
	if err := o.EnsureSession(ctx); err != nil {
		return stats, err
	}

	o.logStep(3, "Selecting workspace")
	ws, userID, err := o.selectWorkspace(ctx, spaceID)
	if err != nil {
		return stats, err
	}
	stats.SpaceID, stats.UserID = ws.ID, userID
	if err := o.rememberWorkspace(ws.ID); err != nil {
		return stats, err
	}

	if blockID != "" {
		return stats, o.backupBlock(ctx, stats)
	}
	return stats, o.backupSpace(ctx, stats)
}

// refreshLock runs between polls so a long export keeps its lock fresh.
func (o *Orchestrator) refreshLock() {
	if o.lock == nil {
		return
	}
	if err := o.lock.RefreshLock(); err != nil {
		o.logger.Warning("%v", err)
	}
}

func (o *Orchestrator) selectWorkspace(ctx context.Context, explicit string) (notion.Workspace, string, error) {
	uc, err := o.client.EnumerateWorkspaces(ctx)
	if err != nil {
		return notion.Workspace{}, "", phaseError(PhaseSelect, err, types.ExitRemoteError)
	}
	if uc.UserID != "" {
		o.logger.Info("User id: %s", uc.UserID)
	}
	ws, err := o.resolveWorkspace(ctx, uc, explicit)
	if err != nil {
		return notion.Workspace{}, "", err
	}
	return ws, uc.UserID, nil
}

// RetrieveBlock exports one block with the default block options and returns
// the archive entries in memory, keyed by entry name.
func (o *Orchestrator) RetrieveBlock(ctx context.Context, spaceID, blockID string) (map[string][]byte, error) {
	if err := o.EnsureSession(ctx); err != nil {
		return nil, err
	}
	target := notion.ExportTarget{
		SpaceID:  spaceID,
		BlockID:  blockID,
		TimeZone: o.opts.TimeZone,
		Locale:   o.opts.Locale,
	}
	res, err := o.exports.Run(ctx, target)
	if err != nil {
		return nil, phaseError(PhaseExport, err, types.ExitRemoteError)
	}
	fileToken, _ := o.store.Get(config.KeyFileToken)
	data, err := o.retriever.DownloadBytes(ctx, res.URL, fileToken)
	if err != nil {
		return nil, phaseError(PhaseDownload, err, types.ExitDownloadError)
	}
	entries, err := archive.Extract(data)
	if err != nil {
		return nil, phaseError(PhaseDownload, err, types.ExitProtocolError)
	}
	o.logger.Info("Retrieved %d file(s) from block %s", len(entries), blockID)
	return entries, nil
}

func (o *Orchestrator) backupSpace(ctx context.Context, stats *BackupStats) error {
	target := notion.ExportTarget{
		SpaceID:  stats.SpaceID,
		Format:   o.opts.SpaceFormat,
		TimeZone: o.opts.TimeZone,
		Locale:   o.opts.Locale,
	}
	if err := o.exportAndDownload(ctx, target, stats); err != nil {
		return err
	}
	if err := o.finalize(ctx, stats); err != nil {
		return err
	}
	o.applyRetention(ctx, stats)
	return nil
}

func (o *Orchestrator) backupBlock(ctx context.Context, stats *BackupStats) error {
	target := notion.ExportTarget{
		SpaceID:         stats.SpaceID,
		BlockID:         stats.BlockID,
		Format:          o.opts.BlockFormat,
		TimeZone:        o.opts.TimeZone,
		Locale:          o.opts.Locale,
		Recursive:       o.opts.Recursive,
		IncludeContents: o.opts.IncludeContents,
		ExportComments:  o.opts.ExportComments,
	}
	if err := o.exportAndDownload(ctx, target, stats); err != nil {
		return err
	}
	return o.finalize(ctx, stats)
}

func (o *Orchestrator) exportAndDownload(ctx context.Context, target notion.ExportTarget, stats *BackupStats) error {
	o.logStep(4, "Launching export task")
	id, err := o.exports.Launch(ctx, target)
	if err != nil {
		return phaseError(PhaseExport, err, types.ExitRemoteError)
	}
	stats.TaskID = id
	o.logger.Info("Export task %s has been launched", id)

	res, err := o.exports.Wait(ctx, id)
	if res != nil {
		stats.Polls = res.Polls
		stats.PagesExported = res.PagesExported
		stats.ExportWait = res.Elapsed
	}
	if err != nil {
		return phaseError(PhaseExport, err, types.ExitRemoteError)
	}
	o.logger.Info("Export task is finished")

	encrypted := len(o.opts.Recipients) > 0
	dest := storage.ArchivePath(o.opts.OutputDir, target.SpaceID, target.BlockID, o.clock.Now(), encrypted)
	o.logStep(5, "Downloading export into %s", dest)
	o.logger.Debug("Export URL: %s", res.URL)

	fileToken, _ := o.store.Get(config.KeyFileToken)
	progress := o.progress(filepath.Base(dest))
	var n int64
	if encrypted {
		n, err = o.retriever.DownloadEncrypted(ctx, res.URL, fileToken, dest, o.opts.Recipients, progress)
	} else {
		n, err = o.retriever.DownloadFile(ctx, res.URL, fileToken, dest, progress)
	}
	if err != nil {
		code := types.ExitDownloadError
		if encrypted {
			code = types.ExitEncryptionError
		}
		return phaseError(PhaseDownload, err, code)
	}

	stats.ArchivePath = dest
	stats.Encrypted = encrypted
	stats.BytesWritten = n
	o.logger.Info("Saved %s (%s)", dest, humanize.Bytes(uint64(n)))
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, stats *BackupStats) error {
	if o.opts.WriteChecksum {
		sum, err := archive.WriteChecksum(ctx, stats.ArchivePath)
		if err != nil {
			return phaseError(PhaseFinalize, err, types.ExitStorageError)
		}
		stats.Checksum = sum
		o.logger.Debug("SHA256 %s", sum)
	}

	if o.opts.Extract {
		dir := storage.ExtractDir(stats.ArchivePath)
		o.logStep(6, "Extracting archive into %s", dir)
		n, err := archive.ExtractToDir(ctx, stats.ArchivePath, dir)
		if err != nil {
			return phaseError(PhaseFinalize, err, types.ExitStorageError)
		}
		stats.ExtractDir = dir
		stats.ExtractedFile = n
		o.logger.Info("Extracted %d file(s)", n)
	}
	return nil
}

// applyRetention prunes old workspace archives; failures are warnings.
func (o *Orchestrator) applyRetention(ctx context.Context, stats *BackupStats) {
	removed, err := storage.ApplyRetention(ctx, o.opts.OutputDir, stats.SpaceID, o.opts.MaxLocalExports, o.logger)
	stats.Removed = removed
	if err != nil {
		o.logger.Warning("Local retention incomplete: %v", err)
	}
	archives, err := storage.ListSpaceArchives(ctx, o.opts.OutputDir, stats.SpaceID, o.opts.FSTimeout)
	if err != nil {
		o.logger.Debug("Could not count local archives: %v", err)
		return
	}
	stats.LocalArchives = len(archives)
}

func (o *Orchestrator) exportMetrics(stats *BackupStats) {
	if strings.TrimSpace(o.opts.MetricsPath) == "" || stats == nil {
		return
	}
	warnings, errs := o.logger.Counts()
	m := &metrics.ExportMetrics{
		SpaceID:       stats.SpaceID,
		Target:        stats.Target,
		Version:       o.opts.Version,
		StartTime:     stats.StartTime,
		EndTime:       stats.EndTime,
		Duration:      stats.Duration(),
		ExitCode:      stats.ExitCode,
		ErrorCount:    errs,
		WarningCount:  warnings,
		BytesWritten:  stats.BytesWritten,
		PollCount:     stats.Polls,
		PagesExported: stats.PagesExported,
		ExportWait:    stats.ExportWait,
		LocalArchives: stats.LocalArchives,
	}
	exporter := metrics.NewPrometheusExporter(o.opts.MetricsPath, o.logger)
	if err := exporter.Export(m); err != nil {
		o.logger.Warning("Failed to export Prometheus metrics: %v", err)
	}
}
