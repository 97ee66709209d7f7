// Package metrics writes the outcome of the last export run in Prometheus
// textfile format for node_exporter.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/safefs"
)

// FileName is the textfile written into the metrics directory.
const FileName = "notionsave.prom"

// ExportMetrics is the run snapshot exported as metrics.
type ExportMetrics struct {
	SpaceID string
	Target  string // "space" or "block"
	Version string

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	ExitCode      int
	ErrorCount    int
	WarningCount  int
	BytesWritten  int64
	PollCount     int
	PagesExported int
	ExportWait    time.Duration
	LocalArchives int
}

// PrometheusExporter writes ExportMetrics into textfileDir.
type PrometheusExporter struct {
	textfileDir string
	logger      *logging.Logger
}

// NewPrometheusExporter creates a new PrometheusExporter using the provided directory.
func NewPrometheusExporter(textfileDir string, logger *logging.Logger) *PrometheusExporter {
	return &PrometheusExporter{
		textfileDir: strings.TrimRight(textfileDir, "/"),
		logger:      logger,
	}
}

// Path returns the file Export writes.
func (pe *PrometheusExporter) Path() string {
	return filepath.Join(pe.textfileDir, FileName)
}

// Export renders m and replaces the textfile atomically so node_exporter
// never scrapes a half-written file.
func (pe *PrometheusExporter) Export(m *ExportMetrics) error {
	if pe == nil || m == nil {
		return nil
	}
	if pe.textfileDir == "" {
		return fmt.Errorf("metrics textfile directory is empty")
	}
	if err := os.MkdirAll(pe.textfileDir, 0o755); err != nil {
		return fmt.Errorf("create metrics directory %s: %w", pe.textfileDir, err)
	}

	var buf bytes.Buffer
	render(&buf, m)

	if err := safefs.WriteBytesAtomic(pe.Path(), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write metrics file %s: %w", pe.Path(), err)
	}
	if pe.logger != nil {
		pe.logger.Debug("Prometheus metrics exported to %s", pe.Path())
	}
	return nil
}

func render(w io.Writer, m *ExportMetrics) {
	gauge := func(name, help, format string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s "+format+"\n", name, value)
	}

	endTs := m.EndTime.Unix()
	if m.EndTime.IsZero() && !m.StartTime.IsZero() {
		endTs = m.StartTime.Add(m.Duration).Unix()
	}

	// 0=success, 1=warning, 2=error
	status := 0
	if m.ExitCode != 0 {
		status = 2
	} else if m.WarningCount > 0 {
		status = 1
	}

	gauge("notionsave_start_time_seconds", "Unix timestamp of export run start", "%d", m.StartTime.Unix())
	gauge("notionsave_end_time_seconds", "Unix timestamp of export run end", "%d", endTs)
	gauge("notionsave_duration_seconds", "Duration of last export run in seconds", "%.2f", m.Duration.Seconds())
	gauge("notionsave_exit_code", "Exit code of last export run", "%d", m.ExitCode)
	gauge("notionsave_status", "Status of last export run (0=success,1=warning,2=error)", "%d", status)
	gauge("notionsave_errors_total", "Errors logged during last export run", "%d", m.ErrorCount)
	gauge("notionsave_warnings_total", "Warnings logged during last export run", "%d", m.WarningCount)
	gauge("notionsave_archive_bytes", "Bytes downloaded for the last export archive", "%d", m.BytesWritten)
	gauge("notionsave_task_polls_total", "Status polls until the export task completed", "%d", m.PollCount)
	gauge("notionsave_pages_exported", "Pages reported by the last export task", "%d", m.PagesExported)
	gauge("notionsave_task_wait_seconds", "Time spent waiting for the export task", "%.2f", m.ExportWait.Seconds())
	gauge("notionsave_local_archives", "Archives of this workspace kept in the output directory", "%d", m.LocalArchives)

	fmt.Fprintf(w, "# HELP notionsave_info Static information about the last export run\n")
	fmt.Fprintf(w, "# TYPE notionsave_info gauge\n")
	fmt.Fprintf(w, "notionsave_info{space_id=%q,target=%q,version=%q} 1\n", m.SpaceID, m.Target, m.Version)
}
