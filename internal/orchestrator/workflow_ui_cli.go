package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/tis24dev/notionsave/internal/input"
	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/notion"
)

type cliBackupUI struct {
	prompter *input.Prompter
	out      io.Writer
	logger   *logging.Logger
}

// NewCLIUI returns line-oriented prompts on stdin/stdout. The one-time code
// is read without echo when stdin is a terminal.
func NewCLIUI(logger *logging.Logger) BackupUI {
	p := &input.Prompter{
		In:  bufio.NewReader(os.Stdin),
		Out: os.Stdout,
	}
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		p.ReadPassword = term.ReadPassword
		p.Fd = fd
	}
	return newCLIBackupUI(p, logger)
}

func newCLIBackupUI(p *input.Prompter, logger *logging.Logger) *cliBackupUI {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &cliBackupUI{prompter: p, out: p.Out, logger: logger}
}

func (u *cliBackupUI) PromptEmail(ctx context.Context, current string) (string, error) {
	return u.prompter.AskDefault(ctx, "Email address", current)
}

func (u *cliBackupUI) PromptOTP(ctx context.Context, email string) (string, error) {
	fmt.Fprintf(u.out, "A temporary password has been sent to %s\n", email)
	return u.prompter.AskSecret(ctx, "Temporary password: ")
}

func (u *cliBackupUI) SelectWorkspace(ctx context.Context, workspaces []notion.Workspace, def int) (int, error) {
	return u.prompter.Choose(ctx, "Available workspaces:", workspaceLabels(workspaces), def)
}

func (u *cliBackupUI) ShowMessage(ctx context.Context, title, message string) error {
	if strings.TrimSpace(title) != "" {
		fmt.Fprintf(u.out, "\n%s\n", title)
	}
	if strings.TrimSpace(message) != "" {
		fmt.Fprintln(u.out, message)
	}
	return nil
}
