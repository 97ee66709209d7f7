// Package export drives an export task from launch to a downloadable URL.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tis24dev/notionsave/internal/notion"
)

// ErrMissingExportURL means the task reported complete without an export URL.
var ErrMissingExportURL = errors.New("export task completed without an export URL")

// OutcomeKind tells the poll loop what to do next.
type OutcomeKind int

const (
	Continue OutcomeKind = iota
	Done
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "continue"
	}
}

// Outcome is the decision taken after one status poll.
type Outcome struct {
	Kind  OutcomeKind
	Delay time.Duration // Continue only
	URL   string        // Done only
	Err   error         // Failed only
}

// Next is the poll transition. Any poll error ends the loop; every state
// other than complete waits interval and polls again.
func Next(task *notion.ExportTask, err error, interval time.Duration) Outcome {
	if err != nil {
		return Outcome{Kind: Failed, Err: err}
	}
	if task == nil {
		return Outcome{Kind: Failed, Err: fmt.Errorf("%w: empty task status", notion.ErrUnexpectedResponse)}
	}
	if task.Status != notion.TaskComplete {
		return Outcome{Kind: Continue, Delay: interval}
	}
	if strings.TrimSpace(task.ExportURL) == "" {
		return Outcome{Kind: Failed, Err: fmt.Errorf("task %s: %w", task.ID, ErrMissingExportURL)}
	}
	return Outcome{Kind: Done, URL: task.ExportURL}
}

var titleCaser = cases.Title(language.English)

// StateLabel renders a task state for humans, e.g. "in_progress" -> "In Progress".
func StateLabel(task *notion.ExportTask) string {
	if task == nil {
		return "Unknown"
	}
	raw := strings.TrimSpace(task.State)
	if raw == "" {
		raw = task.Status.String()
	}
	return titleCaser.String(strings.NewReplacer("_", " ", "-", " ").Replace(raw))
}
