package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/tis24dev/notionsave/internal/types"
)

// Block export defaults.
const (
	IncludeNoFiles    = "no_files"
	IncludeEverything = "everything"

	DefaultBlockFormat = types.ExportHTML
)

// ExportTarget selects what to export. An empty BlockID means the whole workspace.
type ExportTarget struct {
	SpaceID string
	BlockID string

	Format   types.ExportFormat
	TimeZone string
	Locale   string

	// Block exports only.
	Recursive       bool
	IncludeContents string
	ExportComments  bool
}

// IsBlock reports whether the target is a single block.
func (t ExportTarget) IsBlock() bool { return t.BlockID != "" }

// TaskStatus is the coarse state of an export task.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskInProgress
	TaskComplete
)

func (s TaskStatus) String() string {
	switch s {
	case TaskInProgress:
		return "in progress"
	case TaskComplete:
		return "complete"
	default:
		return "pending"
	}
}

// ExportTask is one getTasks result.
type ExportTask struct {
	ID            string
	Status        TaskStatus
	State         string // raw status.type, for logging
	ExportURL     string
	PagesExported int
}

type exportOptions struct {
	ExportType               string `json:"exportType"`
	TimeZone                 string `json:"timeZone"`
	Locale                   string `json:"locale"`
	CollectionViewExportType string `json:"collectionViewExportType,omitempty"`
	IncludeContents          string `json:"includeContents,omitempty"`
}

type spaceExportRequest struct {
	SpaceID       string        `json:"spaceId"`
	ExportOptions exportOptions `json:"exportOptions"`
}

type blockRef struct {
	ID      string `json:"id"`
	SpaceID string `json:"spaceId"`
}

type blockExportRequest struct {
	Block                blockRef      `json:"block"`
	ExportOptions        exportOptions `json:"exportOptions"`
	Recursive            bool          `json:"recursive"`
	ShouldExportComments bool          `json:"shouldExportComments"`
}

type enqueueTask struct {
	Task struct {
		EventName string `json:"eventName"`
		Request   any    `json:"request"`
	} `json:"task"`
}

// buildEnqueue renders the enqueueTask body for target.
func buildEnqueue(target ExportTarget) (enqueueTask, error) {
	var body enqueueTask
	if strings.TrimSpace(target.SpaceID) == "" {
		return body, fmt.Errorf("export target has no workspace id")
	}
	tz := target.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	locale := target.Locale
	if locale == "" {
		locale = "en"
	}

	if !target.IsBlock() {
		format := target.Format
		if format == "" {
			format = types.ExportMarkdown
		}
		body.Task.EventName = "exportSpace"
		body.Task.Request = spaceExportRequest{
			SpaceID: target.SpaceID,
			ExportOptions: exportOptions{
				ExportType: string(format),
				TimeZone:   tz,
				Locale:     locale,
			},
		}
		return body, nil
	}

	format := target.Format
	if format == "" {
		format = DefaultBlockFormat
	}
	include := target.IncludeContents
	if include == "" {
		include = IncludeNoFiles
	}
	body.Task.EventName = "exportBlock"
	body.Task.Request = blockExportRequest{
		Block: blockRef{ID: target.BlockID, SpaceID: target.SpaceID},
		ExportOptions: exportOptions{
			CollectionViewExportType: "currentView",
			ExportType:               string(format),
			IncludeContents:          include,
			Locale:                   locale,
			TimeZone:                 tz,
		},
		Recursive:            target.Recursive,
		ShouldExportComments: target.ExportComments,
	}
	return body, nil
}

// LaunchExport enqueues an export task and returns its id.
func (c *Client) LaunchExport(ctx context.Context, target ExportTarget) (string, error) {
	body, err := buildEnqueue(target)
	if err != nil {
		return "", err
	}
	var out struct {
		TaskID string `json:"taskId"`
	}
	if err := c.Call(ctx, "enqueueTask", body, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("enqueueTask: %w: no taskId", ErrUnexpectedResponse)
	}
	return out.TaskID, nil
}

type taskResult struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Status *struct {
		Type          string `json:"type"`
		ExportURL     string `json:"exportURL"`
		PagesExported int    `json:"pagesExported"`
	} `json:"status"`
}

// GetTaskStatus fetches the current state of task id.
func (c *Client) GetTaskStatus(ctx context.Context, id string) (*ExportTask, error) {
	var out struct {
		Results []taskResult `json:"results"`
	}
	if err := c.Call(ctx, "getTasks", map[string][]string{"taskIds": {id}}, &out); err != nil {
		return nil, err
	}
	for _, r := range out.Results {
		if r.ID != id {
			continue
		}
		task := &ExportTask{ID: r.ID, State: r.State}
		switch {
		case r.Status == nil:
			task.Status = TaskPending
		case r.Status.Type == "complete":
			task.Status = TaskComplete
		default:
			task.Status = TaskInProgress
		}
		if r.Status != nil {
			task.State = r.Status.Type
			task.ExportURL = r.Status.ExportURL
			task.PagesExported = r.Status.PagesExported
		}
		return task, nil
	}
	return nil, fmt.Errorf("getTasks %s: %w", id, ErrTaskNotFound)
}
