package types

// LogLevel represents the logging level.
type LogLevel int

const (
	// LogLevelDebug - Debug logs (maximum detail)
	LogLevelDebug LogLevel = 5

	// LogLevelInfo - General information
	LogLevelInfo LogLevel = 4

	// LogLevelWarning - Warnings
	LogLevelWarning LogLevel = 3

	// LogLevelError - Errors
	LogLevelError LogLevel = 2

	// LogLevelCritical - Critical errors
	LogLevelCritical LogLevel = 1

	// LogLevelNone - No logs
	LogLevelNone LogLevel = 0
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARNING"
	case LogLevelError:
		return "ERROR"
	case LogLevelCritical:
		return "CRITICAL"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a textual or numeric level into a LogLevel.
// Unknown values map to LogLevelInfo.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG", "5":
		return LogLevelDebug
	case "info", "INFO", "4":
		return LogLevelInfo
	case "warning", "WARNING", "warn", "3":
		return LogLevelWarning
	case "error", "ERROR", "2":
		return LogLevelError
	case "critical", "CRITICAL", "1":
		return LogLevelCritical
	case "none", "NONE", "0":
		return LogLevelNone
	default:
		return LogLevelInfo
	}
}

// ExportFormat is the content format requested from the export task.
type ExportFormat string

const (
	// ExportMarkdown - markdown pages, CSV databases
	ExportMarkdown ExportFormat = "markdown"

	// ExportHTML - HTML pages
	ExportHTML ExportFormat = "html"
)

// String returns the string representation of the export format.
func (f ExportFormat) String() string {
	return string(f)
}

// Valid reports whether f is a format the remote service accepts.
func (f ExportFormat) Valid() bool {
	return f == ExportMarkdown || f == ExportHTML
}
