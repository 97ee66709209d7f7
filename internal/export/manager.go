package export

import (
	"context"
	"time"

	"github.com/juju/clock"

	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/notion"
)

// DefaultInterval is the fixed delay between status polls.
const DefaultInterval = 10 * time.Second

// TaskAPI is the part of the remote client the manager drives.
type TaskAPI interface {
	LaunchExport(ctx context.Context, target notion.ExportTarget) (string, error)
	GetTaskStatus(ctx context.Context, id string) (*notion.ExportTask, error)
}

// Result describes a finished export task.
type Result struct {
	TaskID        string
	URL           string
	PagesExported int
	Polls         int
	Elapsed       time.Duration
}

// Manager launches export tasks and waits for them with a fixed interval.
// It never retries a failed poll; callers bound the wait through ctx.
type Manager struct {
	api      TaskAPI
	clock    clock.Clock
	interval time.Duration
	logger   *logging.Logger
	onPoll   func()
}

// NewManager returns a Manager. A zero interval means DefaultInterval and a
// nil clock means the wall clock.
func NewManager(api TaskAPI, clk clock.Clock, interval time.Duration, logger *logging.Logger) *Manager {
	if clk == nil {
		clk = clock.WallClock
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Manager{api: api, clock: clk, interval: interval, logger: logger}
}

// Interval returns the delay between polls.
func (m *Manager) Interval() time.Duration { return m.interval }

// SetPollHook registers fn to run after every non-terminal poll, before the
// manager sleeps. A nil fn removes the hook.
func (m *Manager) SetPollHook(fn func()) { m.onPoll = fn }

// Launch enqueues target and returns the task id.
func (m *Manager) Launch(ctx context.Context, target notion.ExportTarget) (id string, err error) {
	done := logging.DebugStart(m.logger, "launch export", "space=%s block=%s", target.SpaceID, target.BlockID)
	defer func() { done(err) }()
	return m.api.LaunchExport(ctx, target)
}

// Wait polls task id until it completes, fails, or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (*Result, error) {
	started := m.clock.Now()
	res := &Result{TaskID: id}

	for {
		res.Polls++
		task, err := m.api.GetTaskStatus(ctx, id)
		out := Next(task, err, m.interval)
		if task != nil {
			res.PagesExported = task.PagesExported
		}

		switch out.Kind {
		case Done:
			res.URL = out.URL
			res.Elapsed = m.clock.Now().Sub(started)
			m.logger.Debug("Export task %s complete after %d poll(s)", id, res.Polls)
			return res, nil
		case Failed:
			return res, out.Err
		}

		if res.PagesExported > 0 {
			m.logger.Info("Export %s (%d pages so far), checking again in %s", StateLabel(task), res.PagesExported, out.Delay)
		} else {
			m.logger.Info("Export %s, checking again in %s", StateLabel(task), out.Delay)
		}
		if m.onPoll != nil {
			m.onPoll()
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-m.clock.After(out.Delay):
		}
	}
}

// Run launches target and waits for it.
func (m *Manager) Run(ctx context.Context, target notion.ExportTarget) (*Result, error) {
	id, err := m.Launch(ctx, target)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Export task %s launched", id)
	return m.Wait(ctx, id)
}
