package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/types"
)

func testLogger() *logging.Logger {
	logger := logging.New(types.LogLevelDebug, false)
	logger.SetOutput(io.Discard)
	return logger
}

func testNotificationData() *NotificationData {
	return &NotificationData{
		Status:         StatusSuccess,
		StatusMessage:  "Backup completed successfully",
		Hostname:       "backup-host",
		Target:         "space",
		SpaceID:        "sp-1",
		TaskID:         "task-1",
		BackupDate:     time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		BackupDuration: 95 * time.Second,
		PagesExported:  42,
		ArchivePath:    "/srv/notion/export_sp-1_20260314.zip",
		ArchiveName:    "export_sp-1_20260314.zip",
		ArchiveSize:    7558144,
		ArchiveSizeHR:  "7.6 MB",
		Version:        "1.0.0",
	}
}

func TestStatusFromExitCode(t *testing.T) {
	tests := []struct {
		code, warnings int
		want           NotificationStatus
	}{
		{0, 0, StatusSuccess},
		{0, 2, StatusWarning},
		{types.ExitAuthError.Int(), 0, StatusFailure},
		{types.ExitGenericError.Int(), 1, StatusFailure},
	}
	for _, tt := range tests {
		if got := StatusFromExitCode(tt.code, tt.warnings); got != tt.want {
			t.Fatalf("StatusFromExitCode(%d, %d) = %s, want %s", tt.code, tt.warnings, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{300 * time.Millisecond, "< 1s"},
		{42 * time.Second, "42s"},
		{95 * time.Second, "1m 35s"},
		{2*time.Hour + 15*time.Minute + 30*time.Second, "2h 15m"},
		{3 * time.Hour, "3h"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Fatalf("FormatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTargetLabel(t *testing.T) {
	d := &NotificationData{SpaceID: "sp"}
	if got := d.TargetLabel(); got != "workspace sp" {
		t.Fatalf("got %q", got)
	}
	d.BlockID = "blk"
	if got := d.TargetLabel(); got != "page blk of workspace sp" {
		t.Fatalf("got %q", got)
	}
}

func TestNewWebhookNotifierValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     WebhookConfig
		enabled bool
		wantErr bool
	}{
		{"disabled", WebhookConfig{}, false, false},
		{"generic", WebhookConfig{URL: "https://hooks.example.com/x"}, true, false},
		{"slack", WebhookConfig{URL: "https://hooks.example.com/x", Format: "Slack"}, true, false},
		{"bad scheme", WebhookConfig{URL: "ftp://hooks.example.com/x"}, false, true},
		{"bad format", WebhookConfig{URL: "https://hooks.example.com/x", Format: "teams"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWebhookNotifier(tt.cfg, testLogger(), nil)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewWebhookNotifier: %v", err)
			}
			if w.IsEnabled() != tt.enabled {
				t.Fatalf("IsEnabled = %v, want %v", w.IsEnabled(), tt.enabled)
			}
		})
	}
}

func TestWebhookSendGenericPayload(t *testing.T) {
	var got map[string]interface{}
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		if sig := r.Header.Get("X-Signature"); sig != signPayload(raw, "s3cret") {
			t.Errorf("signature mismatch: %s", sig)
		}
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w, err := NewWebhookNotifier(WebhookConfig{
		URL:     srv.URL + "/hook",
		Token:   "tok",
		Secret:  "s3cret",
		Headers: map[string]string{"X-Env": "prod", "Host": "evil"},
	}, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := w.Send(context.Background(), testNotificationData())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Error)
	}
	if headers.Get("Authorization") != "Bearer tok" {
		t.Fatalf("Authorization = %q", headers.Get("Authorization"))
	}
	if headers.Get("X-Env") != "prod" {
		t.Fatalf("custom header missing")
	}
	if ua := headers.Get("User-Agent"); ua != "notionsave/1.0.0" {
		t.Fatalf("User-Agent = %q", ua)
	}
	if got["status"] != "success" {
		t.Fatalf("status = %v", got["status"])
	}
	exp, _ := got["export"].(map[string]interface{})
	if exp["space_id"] != "sp-1" || exp["pages_exported"].(float64) != 42 {
		t.Fatalf("export section = %v", exp)
	}
}

func TestWebhookSendSlackAndDiscord(t *testing.T) {
	for _, format := range []string{"slack", "discord"} {
		t.Run(format, func(t *testing.T) {
			var body string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				body = string(raw)
			}))
			defer srv.Close()

			w, err := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Format: format}, testLogger(), nil)
			if err != nil {
				t.Fatal(err)
			}
			data := testNotificationData()
			data.Status = StatusFailure
			data.StatusMessage = "export: session expired"
			res, err := w.Send(context.Background(), data)
			if err != nil || !res.Success {
				t.Fatalf("Send: %v %+v", err, res)
			}
			if !strings.Contains(body, "Notion Backup Report") || !strings.Contains(body, "workspace sp-1") {
				t.Fatalf("unexpected %s body: %s", format, body)
			}
		})
	}
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clk := testclock.NewClock(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
	w, err := NewWebhookNotifier(WebhookConfig{URL: srv.URL, MaxRetries: 2, RetryDelay: 5 * time.Second}, testLogger(), clk)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan *NotificationResult, 1)
	go func() {
		res, _ := w.Send(context.Background(), testNotificationData())
		done <- res
	}()
	if err := clk.WaitAdvance(5*time.Second, 5*time.Second, 1); err != nil {
		t.Fatalf("WaitAdvance: %v", err)
	}
	res := <-done
	if !res.Success {
		t.Fatalf("expected success after retry: %v", res.Error)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	w, err := NewWebhookNotifier(WebhookConfig{URL: srv.URL, MaxRetries: 3}, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := w.Send(context.Background(), testNotificationData())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Success || res.Error == nil {
		t.Fatalf("expected failure result, got %+v", res)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
	if res.Metadata["status_code"] != http.StatusUnauthorized {
		t.Fatalf("status_code = %v", res.Metadata["status_code"])
	}
}

func TestMaskURL(t *testing.T) {
	if got := maskURL("https://hooks.slack.com/services/T000/B000/XXXX?x=1"); got != "https://hooks.slack.com/***MASKED***?***MASKED***" {
		t.Fatalf("maskURL = %q", got)
	}
	if got := maskURL("not a url"); got != "***INVALID_URL***" {
		t.Fatalf("maskURL = %q", got)
	}
}
