package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tis24dev/notionsave/internal/input"
	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/notion"
	"github.com/tis24dev/notionsave/internal/tui"
	"github.com/tis24dev/notionsave/internal/tui/components"
	"github.com/tis24dev/notionsave/internal/version"
)

const (
	labelEmail = "Email address"
	labelOTP   = "Temporary password"

	tuiNavText = "[yellow]TAB[-] next  [yellow]ENTER[-] confirm  [yellow]ESC[-] cancel"
)

var tuiRunner = func(app *tui.App, root, focus tview.Primitive) error {
	return app.SetRoot(root, true).SetFocus(focus).Run()
}

type tuiBackupUI struct {
	configPath string
	logger     *logging.Logger
}

// NewTUIUI returns full-screen prompts built on tview.
func NewTUIUI(configPath string, logger *logging.Logger) BackupUI {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &tuiBackupUI{configPath: configPath, logger: logger}
}

func (u *tuiBackupUI) header() string {
	path := u.configPath
	if strings.TrimSpace(path) == "" {
		path = "(none)"
	}
	return fmt.Sprintf("%s\n[gray]Settings: %s[-]", version.Banner(), tview.Escape(path))
}

func formPage(title, header, intro string, form *components.Form) tview.Primitive {
	body := tview.NewFlex().SetDirection(tview.FlexRow)
	if intro != "" {
		text := tview.NewTextView().
			SetText(intro).
			SetTextColor(tui.Paper).
			SetDynamicColors(true).
			SetWordWrap(true)
		body.AddItem(text, 3, 0, false)
	}
	body.AddItem(form.Form, 0, 1, true).
		AddItem(form.StatusView(), 1, 0, false)
	return tui.Frame(title, header, tuiNavText, body)
}

// promptField shows a one-field form and returns the trimmed value.
func (u *tuiBackupUI) promptField(ctx context.Context, title, intro, label, value, button string, secret bool, validators ...components.ValidatorFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", input.ErrInputAborted
	}
	app := tui.NewApp()
	form := components.NewForm(app)
	if secret {
		form.AddPasswordField(label, 24, validators...)
	} else {
		form.AddInputFieldWithValidation(label, value, 48, validators...)
	}

	var (
		answer    string
		submitted bool
	)
	form.SetOnSubmit(func(values map[string]string) error {
		answer = strings.TrimSpace(values[label])
		submitted = true
		return nil
	})
	form.AddSubmitButton(button)
	form.AddCancelButton("Cancel")

	page := formPage(title, u.header(), intro, form)
	if err := tuiRunner(app, page, form.Form); err != nil {
		return "", err
	}
	if !submitted || answer == "" {
		return "", input.ErrInputAborted
	}
	return answer, nil
}

func (u *tuiBackupUI) PromptEmail(ctx context.Context, current string) (string, error) {
	return u.promptField(ctx, "Sign in", "A temporary password will be mailed to this address.",
		labelEmail, current, "Send code", false,
		components.NotBlank("email address is required"), validateEmail)
}

func (u *tuiBackupUI) PromptOTP(ctx context.Context, email string) (string, error) {
	intro := fmt.Sprintf("Enter the temporary password sent to [yellow]%s[-].", tview.Escape(email))
	return u.promptField(ctx, "Sign in", intro, labelOTP, "", "Log in", true,
		components.NotBlank("temporary password is required"))
}

func (u *tuiBackupUI) SelectWorkspace(ctx context.Context, workspaces []notion.Workspace, def int) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, input.ErrInputAborted
	}
	app := tui.NewApp()
	selected := -1

	picker := components.NewPicker(workspaceLabels(workspaces), def).
		SetLabel("Workspaces").
		SetChosenFunc(func(index int) {
			selected = index
			app.Stop()
		})

	form := components.NewForm(app)
	form.Form.AddFormItem(picker)
	form.AddCancelButton("Cancel")

	page := formPage("Select workspace", u.header(), "Pick the workspace to export and press ENTER.", form)
	if err := tuiRunner(app, page, form.Form); err != nil {
		return -1, err
	}
	if selected < 0 || selected >= len(workspaces) {
		return -1, input.ErrInputAborted
	}
	return selected, nil
}

func (u *tuiBackupUI) ShowMessage(ctx context.Context, title, message string) error {
	app := tui.NewApp()
	modal := tview.NewModal().
		SetText(fmt.Sprintf("%s\n\n[yellow]Press ENTER to continue[-]", strings.TrimSpace(message))).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(int, string) { app.Stop() })
	modal.SetBorder(true).
		SetTitle(" " + strings.TrimSpace(title) + " ").
		SetTitleColor(tui.Accent).
		SetBorderColor(tui.Accent).
		SetBackgroundColor(tcell.ColorBlack)
	return tuiRunner(app, modal, modal)
}

func validateEmail(value string) error {
	value = strings.TrimSpace(value)
	at := strings.Index(value, "@")
	if at <= 0 || at == len(value)-1 || strings.ContainsAny(value, " \t") {
		return fmt.Errorf("%q is not an email address", value)
	}
	return nil
}
