package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/safefs"
)

// sidecarSuffixes are removed together with their archive.
var sidecarSuffixes = []string{".sha256"}

// LocalArchive is a whole-workspace export found in the output directory.
type LocalArchive struct {
	Path    string
	Day     time.Time
	ModTime time.Time
}

// ListSpaceArchives returns spaceID's archives in dir, newest first.
func ListSpaceArchives(ctx context.Context, dir, spaceID string, timeout time.Duration) ([]LocalArchive, error) {
	entries, err := safefs.ReadDir(ctx, dir, timeout)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	pattern := spaceArchivePattern(spaceID)
	var archives []LocalArchive
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		day, err := time.Parse(dateLayout, m[1])
		if err != nil {
			continue
		}
		a := LocalArchive{Path: filepath.Join(dir, e.Name()), Day: day}
		if info, err := e.Info(); err == nil {
			a.ModTime = info.ModTime()
		}
		archives = append(archives, a)
	}

	sort.SliceStable(archives, func(i, j int) bool {
		if !archives[i].Day.Equal(archives[j].Day) {
			return archives[i].Day.After(archives[j].Day)
		}
		return archives[i].ModTime.After(archives[j].ModTime)
	})
	return archives, nil
}

// ApplyRetention keeps the newest keep archives of spaceID in dir and deletes
// the rest with their sidecars. keep <= 0 keeps everything.
func ApplyRetention(ctx context.Context, dir, spaceID string, keep int, logger *logging.Logger) ([]string, error) {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	if keep <= 0 {
		logger.Skip("Local retention disabled (MAX_LOCAL_EXPORTS=0)")
		return nil, nil
	}

	archives, err := ListSpaceArchives(ctx, dir, spaceID, 10*time.Second)
	if err != nil {
		return nil, err
	}
	if len(archives) <= keep {
		logger.Debug("Retention: %d archive(s) for %s, limit %d, nothing to delete", len(archives), spaceID, keep)
		return nil, nil
	}

	var removed []string
	var errs []error
	for _, a := range archives[keep:] {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warning("Could not delete old export %s: %v", a.Path, err)
			errs = append(errs, err)
			continue
		}
		removed = append(removed, a.Path)
		for _, suffix := range sidecarSuffixes {
			if err := os.Remove(a.Path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warning("Could not delete %s: %v", a.Path+suffix, err)
			}
		}
		logger.Info("Deleted old export %s", filepath.Base(a.Path))
	}
	return removed, errors.Join(errs...)
}
