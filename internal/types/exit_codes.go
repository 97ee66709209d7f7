// Package types defines shared application data types.
package types

// ExitCode represents the application's exit codes.
type ExitCode int

const (
	// ExitSuccess - Execution completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGenericError - Unspecified generic error.
	ExitGenericError ExitCode = 1

	// ExitConfigError - Configuration error (settings, credential file, output directory).
	ExitConfigError ExitCode = 2

	// ExitAuthError - Login failed or the session could not be refreshed.
	ExitAuthError ExitCode = 3

	// ExitRateLimitError - The remote service answered HTTP 429.
	ExitRateLimitError ExitCode = 4

	// ExitRemoteError - Any other failed call to the remote service.
	ExitRemoteError ExitCode = 5

	// ExitProtocolError - The remote service broke an export protocol invariant.
	ExitProtocolError ExitCode = 6

	// ExitSelectionError - The requested workspace is not available to the account.
	ExitSelectionError ExitCode = 7

	// ExitStorageError - Error while writing the archive or its sidecars.
	ExitStorageError ExitCode = 8

	// ExitDownloadError - Error while streaming the export archive.
	ExitDownloadError ExitCode = 9

	// ExitEncryptionError - Error while encrypting the export archive.
	ExitEncryptionError ExitCode = 10

	// ExitInputError - Interactive input was required but not available or aborted.
	ExitInputError ExitCode = 11

	// ExitPanicError - Unhandled panic caught.
	ExitPanicError ExitCode = 13
)

// String returns a human-readable description of the exit code.
func (e ExitCode) String() string {
	switch e {
	case ExitSuccess:
		return "success"
	case ExitGenericError:
		return "generic error"
	case ExitConfigError:
		return "configuration error"
	case ExitAuthError:
		return "authentication error"
	case ExitRateLimitError:
		return "rate limited"
	case ExitRemoteError:
		return "remote service error"
	case ExitProtocolError:
		return "export protocol error"
	case ExitSelectionError:
		return "workspace selection error"
	case ExitStorageError:
		return "storage error"
	case ExitDownloadError:
		return "download error"
	case ExitEncryptionError:
		return "encryption error"
	case ExitInputError:
		return "input error"
	case ExitPanicError:
		return "panic error"
	default:
		return "unknown error"
	}
}

// Int returns the exit code as an int.
func (e ExitCode) Int() int {
	return int(e)
}
