package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tis24dev/notionsave/internal/archive"
	"github.com/tis24dev/notionsave/internal/checks"
	"github.com/tis24dev/notionsave/internal/config"
	"github.com/tis24dev/notionsave/internal/export"
	"github.com/tis24dev/notionsave/internal/input"
	"github.com/tis24dev/notionsave/internal/notion"
	"github.com/tis24dev/notionsave/internal/safefs"
	"github.com/tis24dev/notionsave/internal/types"
)

var (
	// ErrInvalidSelection means the requested workspace is not one the account can see.
	ErrInvalidSelection = errors.New("selected workspace is not available")
	// ErrOutputPathMissing means the output directory does not exist.
	ErrOutputPathMissing = errors.New("output directory does not exist")
	// ErrInteractionRequired means a prompt was needed in non-interactive mode.
	ErrInteractionRequired = errors.New("interactive input required")
	// ErrConflictingOptions means two run options cannot be combined.
	ErrConflictingOptions = errors.New("conflicting options")
	// ErrSessionExpired means the token expired again right after a fresh login.
	ErrSessionExpired = errors.New("session expired again after login")
)

// Phase names used in BackupError.
const (
	PhaseSetup    = "setup"
	PhaseLogin    = "login"
	PhaseSelect   = "workspace selection"
	PhaseExport   = "export"
	PhaseDownload = "download"
	PhaseFinalize = "finalize"
)

// BackupError represents a backup error with specific phase and exit code
type BackupError struct {
	Phase string         // see Phase* constants
	Err   error          // Underlying error
	Code  types.ExitCode // Specific exit code
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *BackupError) Unwrap() error {
	return e.Err
}

// phaseError wraps err for phase. fallback is used when the chain carries no
// known sentinel; cancellation always stays generic.
func phaseError(phase string, err error, fallback types.ExitCode) error {
	if err == nil {
		return nil
	}
	var be *BackupError
	if errors.As(err, &be) {
		return err
	}
	code := ExitCodeFor(err)
	if code == types.ExitGenericError && !errors.Is(err, context.Canceled) {
		code = fallback
	}
	return &BackupError{Phase: phase, Err: err, Code: code}
}

// ExitCodeFor maps an error chain to the process exit status.
func ExitCodeFor(err error) types.ExitCode {
	if err == nil {
		return types.ExitSuccess
	}
	var be *BackupError
	if errors.As(err, &be) && be.Code != types.ExitSuccess {
		return be.Code
	}

	switch {
	case errors.Is(err, context.Canceled):
		return types.ExitGenericError
	case errors.Is(err, ErrInteractionRequired), input.IsAborted(err), errors.Is(err, input.ErrEmptyAnswer):
		return types.ExitInputError
	case errors.Is(err, config.ErrConfigMissing), errors.Is(err, config.ErrConfigCorrupt), errors.Is(err, ErrOutputPathMissing),
		errors.Is(err, ErrConflictingOptions):
		return types.ExitConfigError
	case errors.Is(err, notion.ErrUnauthenticated), errors.Is(err, notion.ErrAuthExpired),
		errors.Is(err, notion.ErrAuthRequest), errors.Is(err, notion.ErrAuthExchange),
		errors.Is(err, ErrSessionExpired):
		return types.ExitAuthError
	case errors.Is(err, notion.ErrRateLimited):
		return types.ExitRateLimitError
	case errors.Is(err, export.ErrMissingExportURL), errors.Is(err, notion.ErrUnexpectedResponse):
		return types.ExitProtocolError
	case errors.Is(err, notion.ErrRemote), errors.Is(err, notion.ErrTaskNotFound):
		return types.ExitRemoteError
	case errors.Is(err, ErrInvalidSelection):
		return types.ExitSelectionError
	case errors.Is(err, archive.ErrNoRecipients):
		return types.ExitEncryptionError
	case errors.Is(err, archive.ErrDownload):
		return types.ExitDownloadError
	case errors.Is(err, safefs.ErrTimeout), errors.Is(err, archive.ErrUnsafeEntry),
		errors.Is(err, checks.ErrInsufficientSpace), errors.Is(err, checks.ErrNotWritable), errors.Is(err, checks.ErrLocked):
		return types.ExitStorageError
	default:
		return types.ExitGenericError
	}
}
