// Package config loads run settings and persists session credentials.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIME_ZONE must resolve on hosts without a zoneinfo database

	"github.com/tis24dev/notionsave/internal/types"
)

var (
	// ErrConfigMissing is returned when an explicitly requested settings file does not exist.
	ErrConfigMissing = errors.New("settings file not found")
	// ErrConfigCorrupt is returned when a settings or credential file cannot be parsed.
	ErrConfigCorrupt = errors.New("settings file is malformed")
)

const (
	DefaultAPIRoot         = "https://www.notion.so/api/v3"
	DefaultPollInterval    = 10 * time.Second
	DefaultHTTPTimeout     = 60 * time.Second
	DefaultTimeZone        = "UTC"
	DefaultLocale          = "en"
	DefaultLogMaxSizeMB    = 10
	DefaultLogMaxBackups   = 5
	DefaultCredentialsName = ".notion_backup.conf"
	DefaultMetricsName     = "notionsave.prom"
	DefaultMinFreeSpaceMB  = 100
	DefaultLockMaxAge      = 6 * time.Hour
	DefaultWebhookTimeout  = 30 * time.Second
	DefaultWebhookRetries  = 2
)

// prefixedEnvKeys are the NOTION_BACKUP_* aliases for options the CLI also exposes.
var prefixedEnvKeys = map[string]string{
	"OUTPUT_DIR": "NOTION_BACKUP_OUTPUT_DIR",
	"SPACE_ID":   "NOTION_BACKUP_SPACE_ID",
}

var envKeys = []string{
	"OUTPUT_DIR", "SPACE_ID", "NON_INTERACTIVE", "USE_CLI",
	"DEBUG_LEVEL", "USE_COLOR", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS",
	"POLL_INTERVAL", "HTTP_TIMEOUT", "API_ROOT", "CREDENTIALS_FILE",
	"EXPORT_TYPE", "TIME_ZONE", "LOCALE",
	"ENCRYPT_ARCHIVE", "AGE_RECIPIENT", "AGE_RECIPIENT_FILE",
	"MAX_LOCAL_EXPORTS", "WRITE_CHECKSUM",
	"METRICS_ENABLED", "METRICS_PATH",
	"MIN_FREE_SPACE_MB", "LOCK_MAX_AGE",
	"WEBHOOK_URL", "WEBHOOK_FORMAT", "WEBHOOK_METHOD", "WEBHOOK_TOKEN", "WEBHOOK_SECRET",
	"WEBHOOK_HEADERS", "WEBHOOK_TIMEOUT", "WEBHOOK_MAX_RETRIES",
}

// Settings holds the run options resolved from the settings file and the environment.
type Settings struct {
	Path   string
	Loaded bool // false when no settings file was found at the default path

	OutputDir      string
	SpaceID        string
	NonInteractive bool
	UseCLI         bool

	LogLevel      types.LogLevel
	UseColor      bool
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	PollInterval    time.Duration
	HTTPTimeout     time.Duration
	APIRoot         string
	CredentialsFile string

	ExportType types.ExportFormat
	TimeZone   string
	Locale     string

	EncryptArchive   bool
	AgeRecipients    []string
	AgeRecipientFile string

	MaxLocalExports int
	WriteChecksum   bool

	MetricsEnabled bool
	MetricsPath    string

	MinFreeSpaceMB int
	LockMaxAge     time.Duration

	WebhookURL        string
	WebhookFormat     string
	WebhookMethod     string
	WebhookToken      string
	WebhookSecret     string
	WebhookHeaders    map[string]string
	WebhookTimeout    time.Duration
	WebhookMaxRetries int

	raw map[string]string
}

// LoadSettings reads path (when present) and applies environment overrides.
// A missing file is an error only when explicit is true.
func LoadSettings(path string, explicit bool) (*Settings, error) {
	s := &Settings{Path: path, raw: map[string]string{}}

	if strings.TrimSpace(path) != "" {
		info, err := os.Stat(path)
		switch {
		case err == nil && info.IsDir():
			return nil, fmt.Errorf("%w: %s is a directory", ErrConfigCorrupt, path)
		case err == nil:
			raw, perr := parseEnvFile(path)
			if perr != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrConfigCorrupt, path, perr)
			}
			s.raw = raw
			s.Loaded = true
		case errors.Is(err, os.ErrNotExist):
			if explicit {
				return nil, fmt.Errorf("%w: %s", ErrConfigMissing, path)
			}
		default:
			return nil, fmt.Errorf("cannot stat settings file %s: %w", path, err)
		}
	}

	s.loadEnvOverrides()

	if err := s.parse(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}
	return s, nil
}

// loadEnvOverrides lets environment variables take precedence over the file.
func (s *Settings) loadEnvOverrides() {
	for _, key := range envKeys {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			s.raw[key] = v
		}
	}
	for key, alias := range prefixedEnvKeys {
		if v, ok := os.LookupEnv(alias); ok && v != "" {
			s.raw[key] = v
		}
	}
}

func (s *Settings) parse() error {
	var err error

	s.OutputDir = s.getString("OUTPUT_DIR", "")
	s.SpaceID = s.getString("SPACE_ID", "")
	s.NonInteractive = s.getBool("NON_INTERACTIVE", false)
	s.UseCLI = s.getBool("USE_CLI", false)

	s.LogLevel = types.ParseLogLevel(s.getString("DEBUG_LEVEL", "info"))
	s.UseColor = s.getBool("USE_COLOR", true)
	s.LogFile = s.getString("LOG_FILE", "")
	if s.LogMaxSizeMB, err = s.getInt("LOG_MAX_SIZE_MB", DefaultLogMaxSizeMB); err != nil {
		return err
	}
	if s.LogMaxBackups, err = s.getInt("LOG_MAX_BACKUPS", DefaultLogMaxBackups); err != nil {
		return err
	}

	if s.PollInterval, err = s.getDuration("POLL_INTERVAL", DefaultPollInterval); err != nil {
		return err
	}
	if s.HTTPTimeout, err = s.getDuration("HTTP_TIMEOUT", DefaultHTTPTimeout); err != nil {
		return err
	}
	s.APIRoot = strings.TrimRight(s.getString("API_ROOT", DefaultAPIRoot), "/")
	s.CredentialsFile = s.getString("CREDENTIALS_FILE", defaultCredentialsPath())

	s.ExportType = types.ExportFormat(strings.ToLower(s.getString("EXPORT_TYPE", string(types.ExportMarkdown))))
	if !s.ExportType.Valid() {
		return fmt.Errorf("EXPORT_TYPE %q is not markdown or html", s.ExportType)
	}
	s.TimeZone = s.getString("TIME_ZONE", DefaultTimeZone)
	if _, lerr := time.LoadLocation(s.TimeZone); lerr != nil {
		return fmt.Errorf("TIME_ZONE %q: %v", s.TimeZone, lerr)
	}
	s.Locale = s.getString("LOCALE", DefaultLocale)

	s.EncryptArchive = s.getBool("ENCRYPT_ARCHIVE", false)
	s.AgeRecipients = s.getLines("AGE_RECIPIENT")
	s.AgeRecipientFile = s.getString("AGE_RECIPIENT_FILE", "")

	if s.MaxLocalExports, err = s.getInt("MAX_LOCAL_EXPORTS", 0); err != nil {
		return err
	}
	if s.MaxLocalExports < 0 {
		return fmt.Errorf("MAX_LOCAL_EXPORTS must be >= 0")
	}
	s.WriteChecksum = s.getBool("WRITE_CHECKSUM", true)

	s.MetricsEnabled = s.getBool("METRICS_ENABLED", false)
	s.MetricsPath = s.getString("METRICS_PATH", "")

	if s.MinFreeSpaceMB, err = s.getInt("MIN_FREE_SPACE_MB", DefaultMinFreeSpaceMB); err != nil {
		return err
	}
	if s.MinFreeSpaceMB < 0 {
		return fmt.Errorf("MIN_FREE_SPACE_MB must be >= 0")
	}
	if s.LockMaxAge, err = s.getDuration("LOCK_MAX_AGE", DefaultLockMaxAge); err != nil {
		return err
	}

	s.WebhookURL = s.getString("WEBHOOK_URL", "")
	s.WebhookFormat = strings.ToLower(s.getString("WEBHOOK_FORMAT", "generic"))
	s.WebhookMethod = strings.ToUpper(s.getString("WEBHOOK_METHOD", "POST"))
	s.WebhookToken = s.getString("WEBHOOK_TOKEN", "")
	s.WebhookSecret = s.getString("WEBHOOK_SECRET", "")
	if s.WebhookHeaders, err = s.getHeaders("WEBHOOK_HEADERS"); err != nil {
		return err
	}
	if s.WebhookTimeout, err = s.getDuration("WEBHOOK_TIMEOUT", DefaultWebhookTimeout); err != nil {
		return err
	}
	if s.WebhookMaxRetries, err = s.getInt("WEBHOOK_MAX_RETRIES", DefaultWebhookRetries); err != nil {
		return err
	}
	if s.WebhookMaxRetries < 0 {
		return fmt.Errorf("WEBHOOK_MAX_RETRIES must be >= 0")
	}
	return nil
}

// Get returns the raw value for key as read from file/environment.
func (s *Settings) Get(key string) (string, bool) {
	v, ok := s.raw[key]
	return v, ok
}

func (s *Settings) getString(key, defaultValue string) string {
	if v, ok := s.raw[key]; ok && strings.TrimSpace(v) != "" {
		return os.ExpandEnv(strings.TrimSpace(v))
	}
	return defaultValue
}

func (s *Settings) getBool(key string, defaultValue bool) bool {
	if v, ok := s.raw[key]; ok && strings.TrimSpace(v) != "" {
		return parseBool(v)
	}
	return defaultValue
}

func (s *Settings) getInt(key string, defaultValue int) (int, error) {
	v, ok := s.raw[key]
	if !ok || strings.TrimSpace(v) == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

// getDuration accepts Go durations ("90s", "2m") or plain seconds ("10").
func (s *Settings) getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v, ok := s.raw[key]
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%s must be positive", key)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func (s *Settings) getLines(key string) []string {
	v, ok := s.raw[key]
	if !ok {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, line := range strings.FieldsFunc(v, func(r rune) bool { return r == '\n' || r == ',' }) {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	return out
}

// getHeaders parses "Name: value" lines (or comma separated pairs).
func (s *Settings) getHeaders(key string) (map[string]string, error) {
	lines := s.getLines(key)
	if len(lines) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%s: %q is not a \"Name: value\" header", key, line)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return DefaultCredentialsName
	}
	return filepath.Join(home, DefaultCredentialsName)
}
