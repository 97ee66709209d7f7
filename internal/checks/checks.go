// Package checks runs the pre-export checks on the output directory: free
// space, write permission and the single-run lock.
package checks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"

	"github.com/tis24dev/notionsave/internal/logging"
)

// LockFileName is created in the output directory while a run is active.
const LockFileName = ".notionsave.lock"

// DefaultMaxLockAge is how long a lock is honored before it is treated as stale.
const DefaultMaxLockAge = 6 * time.Hour

var (
	// ErrLocked is returned when another run holds the output directory lock.
	ErrLocked = errors.New("another backup is running in this output directory")
	// ErrInsufficientSpace is returned when the output filesystem is too full.
	ErrInsufficientSpace = errors.New("insufficient free space")
	// ErrNotWritable is returned when the output directory rejects writes.
	ErrNotWritable = errors.New("output directory is not writable")
	// ErrLockLost is returned when the lock file no longer carries this run's token.
	ErrLockLost = errors.New("lock file was taken over by another run")
)

// createTestFile is swapped by tests to inject write failures.
var createTestFile = os.Create

var (
	osStat       = os.Stat
	osRemove     = os.Remove
	osOpenFile   = os.OpenFile
	osChtimes    = os.Chtimes
	syncFile     = func(f *os.File) error { return f.Sync() }
	freeSpaceFn  = freeSpace
	processAlive = func(pid int) bool {
		err := syscall.Kill(pid, 0)
		return err == nil || errors.Is(err, syscall.EPERM)
	}
)

// CheckerConfig holds configuration for the pre-export checks
type CheckerConfig struct {
	OutputDir    string
	MinFreeBytes uint64 // zero disables the disk space check
	LockFilePath string // defaults to OutputDir/LockFileName
	MaxLockAge   time.Duration
	SkipLock     bool
}

// Validate fills defaults and rejects unusable configurations.
func (c *CheckerConfig) Validate() error {
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.LockFilePath == "" {
		c.LockFilePath = filepath.Join(c.OutputDir, LockFileName)
	}
	if c.MaxLockAge <= 0 {
		c.MaxLockAge = DefaultMaxLockAge
	}
	return nil
}

// CheckResult holds the result of a single check
type CheckResult struct {
	Name    string
	Passed  bool
	Message string
	Error   error
}

// Checker performs the pre-export checks
type Checker struct {
	logger   *logging.Logger
	config   *CheckerConfig
	clock    clock.Clock
	lockHeld bool
	token    string
}

// NewChecker creates a new checker
func NewChecker(logger *logging.Logger, config *CheckerConfig, clk clock.Clock) *Checker {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Checker{logger: logger, config: config, clock: clk}
}

// RunAllChecks runs disk space, permission and lock checks in that order and
// stops at the first failure. The lock is acquired last so a failed check
// never leaves a lock file behind.
func (c *Checker) RunAllChecks(ctx context.Context) ([]CheckResult, error) {
	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	c.logger.Debug("Running pre-export checks on %s", c.config.OutputDir)

	checks := []func() CheckResult{c.CheckDiskSpace, c.CheckPermissions}
	if !c.config.SkipLock {
		checks = append(checks, c.CheckLockFile)
	}

	var results []CheckResult
	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result := check()
		results = append(results, result)
		if !result.Passed {
			return results, fmt.Errorf("%s check failed: %w", strings.ToLower(result.Name), result.Error)
		}
	}
	c.logger.Debug("All pre-export checks passed")
	return results, nil
}

// CheckDiskSpace verifies the output filesystem has MinFreeBytes available
func (c *Checker) CheckDiskSpace() CheckResult {
	result := CheckResult{Name: "Disk Space"}
	if c.config.MinFreeBytes == 0 {
		result.Passed = true
		result.Message = "Disk space check disabled"
		return result
	}

	available, err := freeSpaceFn(c.config.OutputDir)
	if err != nil {
		result.Error = fmt.Errorf("cannot read free space of %s: %w", c.config.OutputDir, err)
		result.Message = result.Error.Error()
		return result
	}
	c.logger.Debug("Free space on %s: %s (required %s)", c.config.OutputDir,
		humanize.IBytes(available), humanize.IBytes(c.config.MinFreeBytes))
	if available < c.config.MinFreeBytes {
		result.Error = fmt.Errorf("%w on %s: %s available, %s required", ErrInsufficientSpace,
			c.config.OutputDir, humanize.IBytes(available), humanize.IBytes(c.config.MinFreeBytes))
		result.Message = result.Error.Error()
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("%s free", humanize.IBytes(available))
	return result
}

// CheckPermissions verifies the output directory accepts new files
func (c *Checker) CheckPermissions() CheckResult {
	result := CheckResult{Name: "Permissions"}
	dir := c.config.OutputDir
	testFile := filepath.Join(dir, fmt.Sprintf(".permission_test_%d", os.Getpid()))

	f, err := createTestFile(testFile)
	if err != nil {
		var reason string
		switch {
		case errors.Is(err, os.ErrPermission):
			reason = "no write permission"
		case errors.Is(err, syscall.EROFS):
			reason = "filesystem is read-only"
		default:
			reason = "failed to test write permission"
		}
		result.Error = fmt.Errorf("%w: %s in %s: %v", ErrNotWritable, reason, dir, err)
		result.Message = result.Error.Error()
		return result
	}
	f.Close()
	if err := osRemove(testFile); err != nil {
		c.logger.Warning("Failed to remove test file %s: %v", testFile, err)
	}

	result.Passed = true
	result.Message = "Output directory is writable"
	return result
}

// CheckLockFile removes a stale lock and creates a new one. A lock is stale
// when it is older than MaxLockAge and its pid is not running on this host.
func (c *Checker) CheckLockFile() CheckResult {
	result := CheckResult{Name: "Lock File"}
	lockPath := c.config.LockFilePath
	hostname, _ := os.Hostname()

	if info, err := osStat(lockPath); err == nil {
		owner := readLock(lockPath)
		age := c.clock.Now().Sub(info.ModTime())
		alive := owner.host == hostname && owner.pid > 0 && processAlive(owner.pid)
		if age <= c.config.MaxLockAge || alive {
			result.Error = fmt.Errorf("%w (%s, lock age %s)", ErrLocked, owner, age.Round(time.Second))
			result.Message = result.Error.Error()
			return result
		}
		c.logger.Warning("Removing stale lock file %s (%s, age: %s)", lockPath, owner, age.Round(time.Second))
		if err := osRemove(lockPath); err != nil && !os.IsNotExist(err) {
			result.Error = fmt.Errorf("failed to remove stale lock: %w", err)
			result.Message = result.Error.Error()
			return result
		}
	}

	token, err := newLockToken()
	if err != nil {
		result.Error = fmt.Errorf("failed to generate lock token: %w", err)
		result.Message = result.Error.Error()
		return result
	}

	f, err := osOpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		if os.IsExist(err) {
			result.Error = fmt.Errorf("%w (lock acquired concurrently)", ErrLocked)
		} else {
			result.Error = fmt.Errorf("failed to create lock file: %w", err)
		}
		result.Message = result.Error.Error()
		return result
	}
	defer f.Close()

	content := fmt.Sprintf("pid=%d\nhost=%s\ntime=%s\ntoken=%s\n",
		os.Getpid(), hostname, c.clock.Now().Format(time.RFC3339), token)
	if _, err := f.WriteString(content); err != nil {
		result.Error = fmt.Errorf("failed to write lock file: %w", err)
		result.Message = result.Error.Error()
		return result
	}
	if err := syncFile(f); err != nil {
		c.logger.Warning("Failed to sync lock file %s: %v", lockPath, err)
	}
	c.lockHeld = true
	c.token = token

	result.Passed = true
	result.Message = "Lock file acquired"
	return result
}

// RefreshLock bumps the lock mtime so a long export never looks stale.
func (c *Checker) RefreshLock() error {
	if !c.lockHeld {
		return nil
	}
	if readLock(c.config.LockFilePath).token != c.token {
		c.lockHeld = false
		return fmt.Errorf("%w: %s", ErrLockLost, c.config.LockFilePath)
	}
	now := c.clock.Now()
	if err := osChtimes(c.config.LockFilePath, now, now); err != nil {
		return fmt.Errorf("failed to refresh lock: %w", err)
	}
	return nil
}

// ReleaseLock removes the lock file created by CheckLockFile. It is a no-op
// when this checker does not hold the lock, and it leaves the file alone when
// another run has replaced it.
func (c *Checker) ReleaseLock() error {
	if !c.lockHeld {
		return nil
	}
	c.lockHeld = false
	if owner := readLock(c.config.LockFilePath); owner.token != c.token {
		c.logger.Warning("Lock file %s now belongs to %s, leaving it in place", c.config.LockFilePath, owner)
		return nil
	}
	if err := osRemove(c.config.LockFilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	c.logger.Debug("Lock file released: %s", c.config.LockFilePath)
	return nil
}

type lockOwner struct {
	pid   int
	host  string
	token string
}

func (o lockOwner) String() string {
	if o.pid <= 0 {
		return "owner unknown"
	}
	return fmt.Sprintf("pid=%d host=%s", o.pid, o.host)
}

// readLock parses an existing lock file; unreadable files yield a zero owner.
func readLock(path string) lockOwner {
	raw, err := os.ReadFile(path)
	if err != nil {
		return lockOwner{}
	}
	fields := map[string]string{}
	for _, line := range strings.Split(string(raw), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			fields[k] = v
		}
	}
	pid, _ := strconv.Atoi(fields["pid"])
	return lockOwner{pid: pid, host: fields["host"], token: fields["token"]}
}

func newLockToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func freeSpace(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
