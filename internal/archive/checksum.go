package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tis24dev/notionsave/internal/safefs"
)

// ChecksumSuffix is appended to the archive name for its sidecar.
const ChecksumSuffix = ".sha256"

// SHA256File hashes path in 32KB chunks, checking ctx between chunks.
func SHA256File(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := file.Read(buf)
		if n > 0 {
			hash.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// WriteChecksum writes "<hex>  <basename>\n" (sha256sum -c compatible) next
// to path and returns the digest.
func WriteChecksum(ctx context.Context, path string) (string, error) {
	sum, err := SHA256File(ctx, path)
	if err != nil {
		return "", err
	}
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(path))
	if err := safefs.WriteBytesAtomic(path+ChecksumSuffix, []byte(line), 0o644); err != nil {
		return "", fmt.Errorf("write checksum: %w", err)
	}
	return sum, nil
}
