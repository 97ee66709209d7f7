package orchestrator

import (
	"context"

	"github.com/juju/clock"

	"github.com/tis24dev/notionsave/internal/archive"
	"github.com/tis24dev/notionsave/internal/export"
	"github.com/tis24dev/notionsave/internal/notion"
)

// CredentialStore persists session credentials and the default workspace.
type CredentialStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// RemoteClient is the part of notion.Client the workflow uses.
type RemoteClient interface {
	export.TaskAPI
	RequestOTP(ctx context.Context, email string) (notion.CSRF, error)
	ExchangeOTP(ctx context.Context, csrf notion.CSRF, otp string) (string, error)
	CheckSession(ctx context.Context) (notion.SessionState, error)
	EnumerateWorkspaces(ctx context.Context) (*notion.UserContent, error)
}

// ProgressFactory builds a download progress sink for a file label.
type ProgressFactory func(label string) archive.Progress

// Deps are the collaborators of an Orchestrator. Store and Client are
// required; the rest have defaults.
type Deps struct {
	Store     CredentialStore
	Client    RemoteClient
	Retriever *archive.Retriever
	UI        BackupUI // nil: non-interactive
	Clock     clock.Clock
	Progress  ProgressFactory
}

func (d *Deps) fill(o *Orchestrator) {
	if d.Clock == nil {
		d.Clock = clock.WallClock
	}
	if d.Retriever == nil {
		d.Retriever = archive.NewRetriever(nil, o.logger)
	}
	if d.Progress == nil {
		d.Progress = func(string) archive.Progress { return archive.NopProgress{} }
	}
}
