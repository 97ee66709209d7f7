package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"filippo.io/age"

	"github.com/tis24dev/notionsave/internal/archive"
	"github.com/tis24dev/notionsave/internal/checks"
	"github.com/tis24dev/notionsave/internal/config"
	"github.com/tis24dev/notionsave/internal/export"
	"github.com/tis24dev/notionsave/internal/metrics"
	"github.com/tis24dev/notionsave/internal/notion"
	"github.com/tis24dev/notionsave/internal/types"
)

// fakeService is an in-process stand-in for the remote API and file host.
type fakeService struct {
	t       *testing.T
	srv     *httptest.Server
	archive []byte

	mu       sync.Mutex
	calls    map[string]int
	enqueued map[string]any
}

func newFakeService(t *testing.T, archive []byte) *fakeService {
	f := &fakeService{t: t, archive: archive, calls: map[string]int{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeService) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeService) handle(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/v3/")
	f.mu.Lock()
	f.calls[name]++
	n := f.calls[name]
	f.mu.Unlock()

	authed := func() bool {
		ck, err := r.Cookie("token_v2")
		if err != nil || ck.Value != "tok-e2e" {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}

	switch name {
	case "sendTemporaryPassword":
		http.SetCookie(w, &http.Cookie{Name: "csrf", Value: "csrf-e2e"})
		_, _ = io.WriteString(w, `{"csrfState":"state-e2e"}`)
	case "loginWithEmail":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "424242" || body["state"] != "state-e2e" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "token_v2", Value: "tok-e2e"})
		http.SetCookie(w, &http.Cookie{Name: "file_token", Value: "ft-e2e"})
		_, _ = io.WriteString(w, `{}`)
	case "loadUserContent":
		if !authed() {
			return
		}
		_, _ = io.WriteString(w, `{"recordMap":{"notion_user":{"user-e2e":{}},"space":{"sp-e2e":{"value":{"name":"Team"}}}}}`)
	case "enqueueTask":
		if !authed() {
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.enqueued = body
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"taskId":"task-e2e"}`)
	case "getTasks":
		if !authed() {
			return
		}
		if n <= 2 {
			fmt.Fprintf(w, `{"results":[{"id":"task-e2e","state":"in_progress","status":{"type":"progress","pagesExported":%d}}]}`, n)
			return
		}
		fmt.Fprintf(w, `{"results":[{"id":"task-e2e","state":"success","status":{"type":"complete","pagesExported":7,"exportURL":%q}}]}`,
			f.srv.URL+"/files/export.zip")
	case "/files/export.zip":
		ck, err := r.Cookie("file_token")
		if err != nil || ck.Value != "ft-e2e" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(f.archive)))
		_, _ = w.Write(f.archive)
	default:
		f.t.Errorf("unexpected request %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

type runResult struct {
	stats *BackupStats
	err   error
}

func TestRunEndToEndFreshStore(t *testing.T) {
	payload := buildZip(t, map[string]string{"Team/index.md": "# Team\n"})
	svc := newFakeService(t, payload)
	outDir := t.TempDir()
	storePath := filepath.Join(t.TempDir(), ".notion_backup.conf")

	logger := quietLogger()
	store, err := config.OpenStore(storePath, logger)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	client := notion.NewClient(svc.srv.URL+"/api/v3", svc.srv.Client(), store, logger)
	ui := &fakeUI{email: "me@example.com", otp: "424242", choice: -1}

	o, clk := newTestOrchestrator(store, client, ui, Options{
		OutputDir:     outDir,
		WriteChecksum: true,
		Version:       "1.0.0",
	})
	o.retriever = archive.NewRetriever(svc.srv.Client(), logger)

	done := make(chan runResult, 1)
	go func() {
		stats, err := o.Run(context.Background())
		done <- runResult{stats, err}
	}()

	for i := 0; i < 2; i++ {
		if err := clk.WaitAdvance(export.DefaultInterval, 5*time.Second, 1); err != nil {
			t.Fatalf("poll sleep %d: %v", i+1, err)
		}
	}

	var res runResult
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not finish")
	}
	if res.err != nil {
		t.Fatalf("Run: %v", res.err)
	}

	want := filepath.Join(outDir, "export_sp-e2e_20260314.zip")
	got, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("archive not written at %s: %v", want, err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("archive differs from the remote bytes")
	}
	if _, err := os.Stat(want + archive.ChecksumSuffix); err != nil {
		t.Fatalf("checksum sidecar missing: %v", err)
	}

	if svc.count("sendTemporaryPassword") != 1 || svc.count("loginWithEmail") != 1 {
		t.Fatalf("expected exactly one login, calls=%v", svc.calls)
	}
	if svc.count("getTasks") != 3 {
		t.Fatalf("getTasks calls=%d; want 3", svc.count("getTasks"))
	}
	if res.stats.Polls != 3 || res.stats.PagesExported != 7 || res.stats.UserID != "user-e2e" {
		t.Fatalf("stats=%+v", res.stats)
	}
	if res.stats.BytesWritten != int64(len(payload)) || res.stats.ExitCode != 0 {
		t.Fatalf("stats=%+v", res.stats)
	}

	task, _ := svc.enqueued["task"].(map[string]any)
	request, _ := task["request"].(map[string]any)
	if task["eventName"] != "exportSpace" || request["spaceId"] != "sp-e2e" {
		t.Fatalf("enqueued=%v", svc.enqueued)
	}
	if _, ok := request["block"]; ok {
		t.Fatalf("workspace export must not carry a block: %v", request)
	}

	reloaded, err := config.OpenStore(storePath, logger)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	for key, want := range map[string]string{
		config.KeyEmail:     "me@example.com",
		config.KeyToken:     "tok-e2e",
		config.KeyFileToken: "ft-e2e",
		config.KeySpaceID:   "sp-e2e",
	} {
		if v, _ := reloaded.Get(key); v != want {
			t.Fatalf("store[%s]=%q; want %q", key, v, want)
		}
	}
}

func TestRunBlockEncrypted(t *testing.T) {
	payload := buildZip(t, map[string]string{"page.html": "<p>x</p>"})
	files, seenToken := serveArchive(t, payload)

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	outDir := t.TempDir()
	store := newMemStore(config.KeyToken, "tok", config.KeyFileToken, "ft-1")
	remote := &fakeRemote{content: workspaces("A"), tasks: []*notion.ExportTask{completeTask(files.URL + "/x.zip")}}

	o, _ := newTestOrchestrator(store, remote, nil, Options{
		OutputDir:      outDir,
		BlockID:        "blk",
		Recursive:      true,
		ExportComments: true,
		Recipients:     []age.Recipient{identity.Recipient()},
	})

	stats, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := filepath.Join(outDir, "export_A_blk_20260314.zip.age")
	if stats.ArchivePath != want || !stats.Encrypted || stats.Target != "block" {
		t.Fatalf("stats=%+v", stats)
	}
	if *seenToken != "ft-1" {
		t.Fatalf("file_token cookie=%q", *seenToken)
	}

	f, err := os.Open(want)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	r, err := age.Decrypt(f, identity)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	plain, _ := io.ReadAll(r)
	if !bytes.Equal(plain, payload) {
		t.Fatalf("decrypted archive differs")
	}

	if len(remote.launched) != 1 {
		t.Fatalf("launched=%v", remote.launched)
	}
	target := remote.launched[0]
	if !target.IsBlock() || target.SpaceID != "A" || !target.Recursive || !target.ExportComments || target.Format != types.ExportHTML {
		t.Fatalf("target=%+v", target)
	}
	if got, ok := store.Get(config.KeySpaceID); !ok || got != "A" {
		t.Fatalf("resolved workspace not stored for block export: %q %v", got, ok)
	}
}

func TestRunExtractsAndAppliesRetention(t *testing.T) {
	payload := buildZip(t, map[string]string{"a.md": "x", "b.md": "y"})
	files, _ := serveArchive(t, payload)
	outDir := t.TempDir()

	for _, old := range []string{"export_A_20260301.zip", "export_A_20260302.zip", "export_B_20260101.zip"} {
		if err := os.WriteFile(filepath.Join(outDir, old), []byte("old"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(outDir, "export_A_20260301.zip.sha256"), []byte("sum"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newMemStore(config.KeyToken, "tok", config.KeySpaceID, "A")
	remote := &fakeRemote{content: workspaces("B", "A"), tasks: []*notion.ExportTask{completeTask(files.URL)}}
	o, _ := newTestOrchestrator(store, remote, nil, Options{
		OutputDir:       outDir,
		Extract:         true,
		MaxLocalExports: 2,
	})

	stats, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	dir := filepath.Join(outDir, "export_A_20260314")
	if stats.ExtractDir != dir || stats.ExtractedFile != 2 {
		t.Fatalf("stats=%+v", stats)
	}
	for name, want := range map[string]string{"a.md": "x", "b.md": "y"} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil || string(got) != want {
			t.Fatalf("%s=%q err=%v", name, got, err)
		}
	}

	for _, gone := range []string{"export_A_20260301.zip", "export_A_20260301.zip.sha256"} {
		if _, err := os.Stat(filepath.Join(outDir, gone)); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s should be pruned, stat err=%v", gone, err)
		}
	}
	for _, kept := range []string{"export_A_20260302.zip", "export_B_20260101.zip"} {
		if _, err := os.Stat(filepath.Join(outDir, kept)); err != nil {
			t.Fatalf("%s should be kept: %v", kept, err)
		}
	}
	if stats.LocalArchives != 2 || len(stats.Removed) != 1 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestRetrieveBlock(t *testing.T) {
	payload := buildZip(t, map[string]string{"a.md": "x", "b.md": "y"})
	files, _ := serveArchive(t, payload)
	remote := &fakeRemote{tasks: []*notion.ExportTask{completeTask(files.URL)}}
	o, _ := newTestOrchestrator(newMemStore(config.KeyToken, "tok"), remote, nil, Options{Recursive: true})

	entries, err := o.RetrieveBlock(context.Background(), "A", "blk")
	if err != nil {
		t.Fatalf("RetrieveBlock: %v", err)
	}
	if len(entries) != 2 || string(entries["a.md"]) != "x" || string(entries["b.md"]) != "y" {
		t.Fatalf("entries=%v", entries)
	}
	target := remote.launched[0]
	if target.BlockID != "blk" || target.Recursive || target.ExportComments || target.Format != "" {
		t.Fatalf("retrieval uses default block options, got %+v", target)
	}
}

func TestBackupSpace(t *testing.T) {
	payload := buildZip(t, map[string]string{"a.md": "x"})
	files, _ := serveArchive(t, payload)
	outDir := t.TempDir()
	store := newMemStore(config.KeyToken, "tok", config.KeySpaceID, "A")
	remote := &fakeRemote{content: workspaces("A", "B"), tasks: []*notion.ExportTask{completeTask(files.URL)}}
	o, _ := newTestOrchestrator(store, remote, nil, Options{OutputDir: outDir, SpaceID: "A"})
	channel := &recordingChannel{}
	o.RegisterNotificationChannel(channel)

	stats, err := o.BackupSpace(context.Background(), "B")
	if err != nil {
		t.Fatalf("BackupSpace: %v", err)
	}
	if want := filepath.Join(outDir, "export_B_20260314.zip"); stats.ArchivePath != want || stats.Target != "space" {
		t.Fatalf("stats=%+v", stats)
	}
	if got, _ := store.Get(config.KeySpaceID); got != "B" {
		t.Fatalf("stored space_id=%q", got)
	}
	if len(remote.launched) != 1 || remote.launched[0].IsBlock() {
		t.Fatalf("launched=%+v", remote.launched)
	}
	if len(channel.stats) != 1 {
		t.Fatalf("notifications=%d", len(channel.stats))
	}
	if _, err := os.Stat(filepath.Join(outDir, checks.LockFileName)); !os.IsNotExist(err) {
		t.Fatalf("lock left behind: %v", err)
	}
}

func TestBackupBlock(t *testing.T) {
	payload := buildZip(t, map[string]string{"page.html": "<p>x</p>"})
	files, _ := serveArchive(t, payload)
	outDir := t.TempDir()
	remote := &fakeRemote{content: workspaces("A"), tasks: []*notion.ExportTask{completeTask(files.URL)}}
	o, _ := newTestOrchestrator(newMemStore(config.KeyToken, "tok"), remote, nil, Options{OutputDir: outDir, Recursive: true})

	stats, err := o.BackupBlock(context.Background(), "A", "blk")
	if err != nil {
		t.Fatalf("BackupBlock: %v", err)
	}
	if want := filepath.Join(outDir, "export_A_blk_20260314.zip"); stats.ArchivePath != want || stats.Target != "block" {
		t.Fatalf("stats=%+v", stats)
	}
	target := remote.launched[0]
	if target.BlockID != "blk" || !target.Recursive || target.Format != types.ExportHTML {
		t.Fatalf("target=%+v", target)
	}

	if _, err := o.BackupBlock(context.Background(), "A", " "); ExitCodeFor(err) != types.ExitConfigError {
		t.Fatalf("empty block id: err=%v", err)
	}
}

func TestBackupBlockRunsOutputChecks(t *testing.T) {
	remote := &fakeRemote{content: workspaces("A")}
	missing := filepath.Join(t.TempDir(), "missing")
	o, _ := newTestOrchestrator(newMemStore(config.KeyToken, "tok"), remote, nil, Options{OutputDir: missing})

	_, err := o.BackupBlock(context.Background(), "A", "blk")
	if !errors.Is(err, ErrOutputPathMissing) {
		t.Fatalf("err=%v", err)
	}
	if remote.checks != 0 || len(remote.launched) != 0 {
		t.Fatalf("remote contacted: checks=%d launched=%d", remote.checks, len(remote.launched))
	}
}

func TestRunRefreshesLockWhilePolling(t *testing.T) {
	outDir := t.TempDir()
	lockPath := filepath.Join(outDir, checks.LockFileName)
	remote := &fakeRemote{
		content: workspaces("A"),
		tasks:   []*notion.ExportTask{{ID: "task-1", Status: notion.TaskInProgress}},
	}
	o, clk := newTestOrchestrator(newMemStore(config.KeyToken, "tok"), remote, nil, Options{OutputDir: outDir, PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan runResult, 1)
	go func() {
		stats, err := o.Run(ctx)
		done <- runResult{stats, err}
	}()

	for i := 0; i < 3; i++ {
		if err := clk.WaitAdvance(time.Hour, 5*time.Second, 1); err != nil {
			t.Fatalf("poll sleep %d: %v", i+1, err)
		}
	}
	// the fourth poll has refreshed the lock before sleeping again
	if err := clk.WaitAdvance(0, 5*time.Second, 1); err != nil {
		t.Fatalf("waiting for poll sleep: %v", err)
	}
	info, err := os.Stat(lockPath)
	if err != nil {
		t.Fatalf("lock missing while polling: %v", err)
	}
	if want := testStart.Add(3 * time.Hour); !info.ModTime().Equal(want) {
		t.Fatalf("lock mtime=%s, want %s", info.ModTime(), want)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatalf("lock left behind: %v", err)
	}
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name      string
		remote    *fakeRemote
		wantErr   error
		wantCode  types.ExitCode
		wantPhase string
	}{
		{
			name:      "rate limited launch",
			remote:    &fakeRemote{content: workspaces("A"), launchErr: fmt.Errorf("enqueueTask: %w", notion.ErrRateLimited)},
			wantErr:   notion.ErrRateLimited,
			wantCode:  types.ExitRateLimitError,
			wantPhase: PhaseExport,
		},
		{
			name:      "complete without url",
			remote:    &fakeRemote{content: workspaces("A"), tasks: []*notion.ExportTask{{ID: "task-1", Status: notion.TaskComplete}}},
			wantErr:   export.ErrMissingExportURL,
			wantCode:  types.ExitProtocolError,
			wantPhase: PhaseExport,
		},
		{
			name:      "task vanished",
			remote:    &fakeRemote{content: workspaces("A")},
			wantErr:   notion.ErrTaskNotFound,
			wantCode:  types.ExitRemoteError,
			wantPhase: PhaseExport,
		},
		{
			name:      "enumeration failed",
			remote:    &fakeRemote{enumerateErr: fmt.Errorf("loadUserContent: %w", notion.ErrRemote)},
			wantErr:   notion.ErrRemote,
			wantCode:  types.ExitRemoteError,
			wantPhase: PhaseSelect,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(newMemStore(config.KeyToken, "tok"), tt.remote, nil, Options{OutputDir: t.TempDir()})
			stats, err := o.Run(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v; want %v", err, tt.wantErr)
			}
			var be *BackupError
			if !errors.As(err, &be) || be.Phase != tt.wantPhase || be.Code != tt.wantCode {
				t.Fatalf("backup error=%#v", err)
			}
			if stats.ExitCode != tt.wantCode.Int() {
				t.Fatalf("stats exit code=%d; want %d", stats.ExitCode, tt.wantCode)
			}
		})
	}
}

func TestRunMissingOutputDirWritesMetrics(t *testing.T) {
	metricsDir := t.TempDir()
	remote := &fakeRemote{content: workspaces("A")}
	o, _ := newTestOrchestrator(newMemStore(config.KeyToken, "tok"), remote, nil, Options{
		OutputDir:   filepath.Join(t.TempDir(), "missing"),
		MetricsPath: metricsDir,
	})

	_, err := o.Run(context.Background())
	if !errors.Is(err, ErrOutputPathMissing) {
		t.Fatalf("err=%v; want %v", err, ErrOutputPathMissing)
	}
	if ExitCodeFor(err) != types.ExitConfigError {
		t.Fatalf("exit code=%v", ExitCodeFor(err))
	}
	if remote.checks != 0 {
		t.Fatalf("no remote call expected before the output check")
	}

	data, err := os.ReadFile(filepath.Join(metricsDir, metrics.FileName))
	if err != nil {
		t.Fatalf("metrics not written: %v", err)
	}
	if !strings.Contains(string(data), "notionsave_exit_code 2") {
		t.Fatalf("metrics missing exit code:\n%s", data)
	}
}

func TestValidateRejectsExtractOfEncryptedArchive(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	o, _ := newTestOrchestrator(newMemStore(), &fakeRemote{}, nil, Options{
		OutputDir:  t.TempDir(),
		Extract:    true,
		Recipients: []age.Recipient{identity.Recipient()},
	})
	err = o.Validate()
	if !errors.Is(err, ErrConflictingOptions) || ExitCodeFor(err) != types.ExitConfigError {
		t.Fatalf("err=%v", err)
	}
}

func TestRunCanceledDuringPoll(t *testing.T) {
	remote := &fakeRemote{
		content: workspaces("A"),
		tasks:   []*notion.ExportTask{{ID: "task-1", Status: notion.TaskInProgress}},
	}
	o, clk := newTestOrchestrator(newMemStore(config.KeyToken, "tok"), remote, nil, Options{OutputDir: t.TempDir()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan runResult, 1)
	go func() {
		stats, err := o.Run(ctx)
		done <- runResult{stats, err}
	}()

	if err := clk.WaitAdvance(0, 5*time.Second, 1); err != nil {
		t.Fatalf("waiting for poll sleep: %v", err)
	}
	cancel()

	select {
	case res := <-done:
		if !errors.Is(res.err, context.Canceled) {
			t.Fatalf("err=%v; want context.Canceled", res.err)
		}
		if ExitCodeFor(res.err) != types.ExitGenericError {
			t.Fatalf("exit code=%v", ExitCodeFor(res.err))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
