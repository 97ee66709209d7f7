// Package safefs wraps filesystem calls that may hang on network mounts and
// provides the atomic writer used for every file notionsave produces.
package safefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	osStat    = os.Stat
	osReadDir = os.ReadDir
	nowFunc   = time.Now
)

// ErrTimeout classifies filesystem operations that did not complete within
// the configured timeout.
var ErrTimeout = errors.New("filesystem operation timed out")

// ErrNotDirectory is returned by RequireDir when the path exists but is a file.
var ErrNotDirectory = errors.New("not a directory")

// TimeoutError is returned when a filesystem operation exceeds its allowed duration.
// Note that this does not cancel the underlying kernel call; it only stops waiting.
type TimeoutError struct {
	Op      string
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return "filesystem operation timed out"
	}
	if e.Timeout > 0 {
		return fmt.Sprintf("%s %s: timeout after %s", e.Op, e.Path, e.Timeout)
	}
	return fmt.Sprintf("%s %s: timeout", e.Op, e.Path)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

func effectiveTimeout(ctx context.Context, timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0
		}
		if remaining < timeout {
			return remaining
		}
	}
	return timeout
}

func withTimeout[T any](ctx context.Context, op, path string, timeout time.Duration, call func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	timeout = effectiveTimeout(ctx, timeout)
	if timeout <= 0 {
		return call()
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := call()
		ch <- result{v: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, &TimeoutError{Op: op, Path: path, Timeout: timeout}
	}
}

// Stat is os.Stat bounded by timeout and ctx.
func Stat(ctx context.Context, path string, timeout time.Duration) (fs.FileInfo, error) {
	return withTimeout(ctx, "stat", path, timeout, func() (fs.FileInfo, error) {
		return osStat(path)
	})
}

// ReadDir is os.ReadDir bounded by timeout and ctx.
func ReadDir(ctx context.Context, path string, timeout time.Duration) ([]os.DirEntry, error) {
	return withTimeout(ctx, "readdir", path, timeout, func() ([]os.DirEntry, error) {
		return osReadDir(path)
	})
}

// RequireDir succeeds only when path is an existing directory. A missing path
// yields an error wrapping fs.ErrNotExist.
func RequireDir(ctx context.Context, path string, timeout time.Duration) error {
	info, err := Stat(ctx, path, timeout)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", path, ErrNotDirectory)
	}
	return nil
}

// WriteFileAtomic streams fill's output into a temp file next to path and
// renames it into place only when fill, chmod and close all succeed. On any
// failure the temp file is removed and path is left untouched.
func WriteFileAtomic(path string, perm os.FileMode, fill func(io.Writer) error) (err error) {
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return fmt.Errorf("invalid path")
	}
	perm &= 0o7777
	if perm == 0 {
		perm = 0o644
	}

	tmpPath := fmt.Sprintf("%s.notionsave.tmp.%d", path, nowFunc().UnixNano())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	writeErr := fill(f)
	if writeErr == nil {
		writeErr = f.Sync()
	}
	if writeErr == nil {
		writeErr = f.Chmod(perm)
	}
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return closeErr
	}
	return os.Rename(tmpPath, path)
}

// WriteBytesAtomic is WriteFileAtomic for an in-memory payload.
func WriteBytesAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteFileAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
