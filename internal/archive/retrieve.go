// Package archive downloads finished exports and post-processes them:
// checksum sidecars, age encryption, unpacking and in-memory extraction.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"filippo.io/age"

	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/safefs"
	"github.com/tis24dev/notionsave/internal/version"
)

// ErrDownload wraps every failed archive transfer.
var ErrDownload = errors.New("archive download failed")

const chunkSize = 32 * 1024

// Retriever streams export archives from their signed URL.
type Retriever struct {
	http   *http.Client
	logger *logging.Logger
}

// NewRetriever returns a Retriever. The client should not carry an overall
// timeout since archives can be large; a nil client uses http.DefaultClient.
func NewRetriever(httpClient *http.Client, logger *logging.Logger) *Retriever {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Retriever{http: httpClient, logger: logger}
}

// Fetch copies the archive at url into w in fixed-size chunks and returns the
// number of bytes written.
func (r *Retriever) Fetch(ctx context.Context, url, fileToken string, w io.Writer, progress Progress) (int64, error) {
	if progress == nil {
		progress = NopProgress{}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	req.Header.Set("User-Agent", "notionsave/"+version.String())
	if strings.TrimSpace(fileToken) != "" {
		req.AddCookie(&http.Cookie{Name: "file_token", Value: fileToken})
	} else {
		r.logger.Debug("No download token stored; requesting archive without it")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return 0, fmt.Errorf("%w: HTTP %d: %s", ErrDownload, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	total := resp.ContentLength
	r.logger.Debug("Archive response: HTTP %d, Content-Length %d", resp.StatusCode, total)
	progress.Start(total)
	defer progress.Finish()

	var written int64
	buf := make([]byte, chunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("write archive: %w", werr)
			}
			written += int64(n)
			progress.Add(int64(n))
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return written, fmt.Errorf("%w: %w", ErrDownload, rerr)
		}
	}

	if total > 0 && written != total {
		return written, fmt.Errorf("%w: short body (%d of %d bytes)", ErrDownload, written, total)
	}
	return written, nil
}

// DownloadFile streams the archive to dest through a temp file renamed on success.
func (r *Retriever) DownloadFile(ctx context.Context, url, fileToken, dest string, progress Progress) (int64, error) {
	var n int64
	err := safefs.WriteFileAtomic(dest, 0o644, func(w io.Writer) error {
		var ferr error
		n, ferr = r.Fetch(ctx, url, fileToken, w, progress)
		return ferr
	})
	return n, err
}

// DownloadEncrypted streams the archive through age into dest, so plaintext
// never reaches the disk. It returns the plaintext byte count.
func (r *Retriever) DownloadEncrypted(ctx context.Context, url, fileToken, dest string, recipients []age.Recipient, progress Progress) (int64, error) {
	if len(recipients) == 0 {
		return 0, ErrNoRecipients
	}
	var n int64
	err := safefs.WriteFileAtomic(dest, 0o600, func(w io.Writer) error {
		enc, err := age.Encrypt(w, recipients...)
		if err != nil {
			return fmt.Errorf("init encryption: %w", err)
		}
		var ferr error
		n, ferr = r.Fetch(ctx, url, fileToken, enc, progress)
		if ferr != nil {
			return ferr
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("finalize encryption: %w", err)
		}
		return nil
	})
	return n, err
}

// DownloadBytes fetches the archive into memory.
func (r *Retriever) DownloadBytes(ctx context.Context, url, fileToken string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := r.Fetch(ctx, url, fileToken, &buf, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
