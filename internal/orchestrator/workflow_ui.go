package orchestrator

import (
	"context"

	"github.com/tis24dev/notionsave/internal/notion"
)

// BackupUI groups the prompts the backup workflow may need. A nil BackupUI
// means non-interactive mode: any prompt fails with ErrInteractionRequired.
type BackupUI interface {
	// PromptEmail asks for the account email; current is the stored one.
	PromptEmail(ctx context.Context, current string) (string, error)
	// PromptOTP asks for the one-time code mailed to email.
	PromptOTP(ctx context.Context, email string) (string, error)
	// SelectWorkspace returns the index of the chosen workspace; def is preselected.
	SelectWorkspace(ctx context.Context, workspaces []notion.Workspace, def int) (int, error)
	ShowMessage(ctx context.Context, title, message string) error
}

func workspaceLabels(workspaces []notion.Workspace) []string {
	labels := make([]string, len(workspaces))
	for i, ws := range workspaces {
		labels[i] = ws.Label()
	}
	return labels
}
