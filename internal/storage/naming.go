// Package storage names export archives in the output directory and prunes
// old ones.
package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// ArchiveExt is the extension of a plain export archive.
	ArchiveExt = ".zip"
	// EncryptedExt is appended to ArchiveExt for age-encrypted archives.
	EncryptedExt = ".age"

	dateLayout = "20060102"
)

// ArchiveName returns export_<space>_<YYYYMMDD>.zip, or
// export_<space>_<block>_<YYYYMMDD>.zip for a block export.
func ArchiveName(spaceID, blockID string, day time.Time) string {
	stamp := day.Format(dateLayout)
	if blockID != "" {
		return fmt.Sprintf("export_%s_%s_%s%s", spaceID, blockID, stamp, ArchiveExt)
	}
	return fmt.Sprintf("export_%s_%s%s", spaceID, stamp, ArchiveExt)
}

// ArchivePath joins dir and ArchiveName, adding EncryptedExt when encrypted.
func ArchivePath(dir, spaceID, blockID string, day time.Time, encrypted bool) string {
	name := ArchiveName(spaceID, blockID, day)
	if encrypted {
		name += EncryptedExt
	}
	return filepath.Join(dir, name)
}

// ExtractDir is the directory an archive is unpacked into: its path without
// the archive extension.
func ExtractDir(archivePath string) string {
	p := strings.TrimSuffix(archivePath, EncryptedExt)
	return strings.TrimSuffix(p, ArchiveExt)
}

// spaceArchivePattern matches whole-workspace archives of spaceID only;
// block exports carry an extra segment and never match.
func spaceArchivePattern(spaceID string) *regexp.Regexp {
	return regexp.MustCompile(`^export_` + regexp.QuoteMeta(spaceID) + `_(\d{8})\.zip(\.age)?$`)
}
