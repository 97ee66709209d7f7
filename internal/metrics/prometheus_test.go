package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/types"
)

func TestPrometheusExporterExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "textfiles")
	exporter := NewPrometheusExporter(dir+"/", logging.New(types.LogLevelError, false))

	m := &ExportMetrics{
		SpaceID:       "sp-1",
		Target:        "space",
		Version:       "0.3.0",
		StartTime:     time.Unix(1000, 0),
		EndTime:       time.Unix(1100, 0),
		Duration:      100 * time.Second,
		WarningCount:  2,
		BytesWritten:  123456789,
		PollCount:     3,
		PagesExported: 42,
		ExportWait:    20 * time.Second,
		LocalArchives: 5,
	}
	if err := exporter.Export(m); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("Failed to read metrics file: %v", err)
	}
	content := string(data)
	for _, expected := range []string{
		"notionsave_start_time_seconds 1000",
		"notionsave_end_time_seconds 1100",
		"notionsave_duration_seconds 100.00",
		"notionsave_exit_code 0",
		"notionsave_status 1",
		"notionsave_warnings_total 2",
		"notionsave_archive_bytes 123456789",
		"notionsave_task_polls_total 3",
		"notionsave_pages_exported 42",
		"notionsave_task_wait_seconds 20.00",
		"notionsave_local_archives 5",
		`notionsave_info{space_id="sp-1",target="space",version="0.3.0"} 1`,
		"# TYPE notionsave_exit_code gauge",
	} {
		if !strings.Contains(content, expected) {
			t.Errorf("metrics file missing %q", expected)
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the final file, got %v", entries)
	}
}

func TestPrometheusExporterErrorStatusAndEndFallback(t *testing.T) {
	dir := t.TempDir()
	exporter := NewPrometheusExporter(dir, nil)

	err := exporter.Export(&ExportMetrics{
		StartTime: time.Unix(2000, 0),
		Duration:  30 * time.Second,
		ExitCode:  4,
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	data, _ := os.ReadFile(exporter.Path())
	for _, expected := range []string{"notionsave_status 2", "notionsave_exit_code 4", "notionsave_end_time_seconds 2030"} {
		if !strings.Contains(string(data), expected) {
			t.Errorf("missing %q", expected)
		}
	}
}

func TestPrometheusExporterNilAndEmpty(t *testing.T) {
	var pe *PrometheusExporter
	if err := pe.Export(&ExportMetrics{}); err != nil {
		t.Fatalf("nil exporter: %v", err)
	}
	if err := NewPrometheusExporter("", nil).Export(&ExportMetrics{}); err == nil {
		t.Fatal("expected error for empty directory")
	}
}
