package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/notion"
	"github.com/tis24dev/notionsave/internal/types"
)

var testStart = time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)

func quietLogger() *logging.Logger {
	logger := logging.New(types.LogLevelDebug, false)
	logger.SetOutput(io.Discard)
	return logger
}

type memStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemStore(kv ...string) *memStore {
	s := &memStore{values: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		s.values[kv[i]] = kv[i+1]
	}
	return s
}

func (m *memStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *memStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

type fakeUI struct {
	email      string
	otp        string
	choice     int
	err        error
	emails     []string // current value passed to each PromptEmail
	otpPrompts int
	selects    []int // def passed to each SelectWorkspace
}

func (u *fakeUI) PromptEmail(_ context.Context, current string) (string, error) {
	u.emails = append(u.emails, current)
	if u.err != nil {
		return "", u.err
	}
	return u.email, nil
}

func (u *fakeUI) PromptOTP(context.Context, string) (string, error) {
	u.otpPrompts++
	return u.otp, nil
}

func (u *fakeUI) SelectWorkspace(_ context.Context, _ []notion.Workspace, def int) (int, error) {
	u.selects = append(u.selects, def)
	if u.err != nil {
		return -1, u.err
	}
	if u.choice < 0 {
		return def, nil
	}
	return u.choice, nil
}

func (u *fakeUI) ShowMessage(context.Context, string, string) error { return nil }

// fakeRemote scripts the remote service without HTTP.
type fakeRemote struct {
	states   []notion.SessionState // consumed per CheckSession, last one repeats
	checkErr error
	checks   int

	otpRequests int
	exchanges   int
	token       string

	content      *notion.UserContent
	enumerateErr error

	launched  []notion.ExportTarget
	launchErr error
	tasks     []*notion.ExportTask // consumed per GetTaskStatus, last one repeats
	polls     int
}

func (f *fakeRemote) RequestOTP(context.Context, string) (notion.CSRF, error) {
	f.otpRequests++
	return notion.CSRF{State: "s", Cookie: "c"}, nil
}

func (f *fakeRemote) ExchangeOTP(context.Context, notion.CSRF, string) (string, error) {
	f.exchanges++
	if f.token == "" {
		return "fresh-token-0001", nil
	}
	return f.token, nil
}

func (f *fakeRemote) CheckSession(context.Context) (notion.SessionState, error) {
	f.checks++
	if f.checkErr != nil {
		return notion.SessionAbsent, f.checkErr
	}
	if len(f.states) == 0 {
		return notion.SessionValid, nil
	}
	s := f.states[0]
	if len(f.states) > 1 {
		f.states = f.states[1:]
	}
	return s, nil
}

func (f *fakeRemote) EnumerateWorkspaces(context.Context) (*notion.UserContent, error) {
	if f.enumerateErr != nil {
		return nil, f.enumerateErr
	}
	return f.content, nil
}

func (f *fakeRemote) LaunchExport(_ context.Context, target notion.ExportTarget) (string, error) {
	f.launched = append(f.launched, target)
	if f.launchErr != nil {
		return "", f.launchErr
	}
	return "task-1", nil
}

func (f *fakeRemote) GetTaskStatus(context.Context, string) (*notion.ExportTask, error) {
	f.polls++
	if len(f.tasks) == 0 {
		return nil, notion.ErrTaskNotFound
	}
	t := f.tasks[0]
	if len(f.tasks) > 1 {
		f.tasks = f.tasks[1:]
	}
	return t, nil
}

func workspaces(ids ...string) *notion.UserContent {
	uc := &notion.UserContent{UserID: "user-1"}
	for _, id := range ids {
		uc.Workspaces = append(uc.Workspaces, notion.Workspace{ID: id, Name: "Space " + id})
	}
	return uc
}

func completeTask(url string) *notion.ExportTask {
	return &notion.ExportTask{ID: "task-1", Status: notion.TaskComplete, ExportURL: url, PagesExported: 4}
}

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// serveArchive serves payload and records the file_token cookie it received.
func serveArchive(t *testing.T, payload []byte) (*httptest.Server, *string) {
	t.Helper()
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("file_token"); err == nil {
			seen = ck.Value
		}
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func newTestOrchestrator(store CredentialStore, remote RemoteClient, ui BackupUI, opts Options) (*Orchestrator, *testclock.Clock) {
	clk := testclock.NewClock(testStart)
	deps := Deps{Store: store, Client: remote, UI: ui, Clock: clk}
	return New(quietLogger(), deps, opts), clk
}
