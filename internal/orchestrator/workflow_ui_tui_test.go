package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tis24dev/notionsave/internal/input"
	"github.com/tis24dev/notionsave/internal/notion"
	"github.com/tis24dev/notionsave/internal/tui"
	"github.com/tis24dev/notionsave/internal/tui/components"
)

func withTUIRunner(t *testing.T, fn func(app *tui.App, root, focus tview.Primitive) error) {
	t.Helper()
	orig := tuiRunner
	tuiRunner = fn
	t.Cleanup(func() { tuiRunner = orig })
}

func enter() *tcell.EventKey { return tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone) }

func noFocus(tview.Primitive) {}

// fillAndPress types text into the first field and presses button.
func fillAndPress(t *testing.T, focus tview.Primitive, text string, button int) {
	t.Helper()
	form, ok := focus.(*tview.Form)
	if !ok {
		t.Fatalf("focus is %T, want *tview.Form", focus)
	}
	field, ok := form.GetFormItem(0).(*tview.InputField)
	if !ok {
		t.Fatalf("first item is %T", form.GetFormItem(0))
	}
	if text != "" {
		field.SetText(text)
	}
	form.GetButton(button).InputHandler()(enter(), noFocus)
}

func TestTUIPromptEmail(t *testing.T) {
	var title string
	withTUIRunner(t, func(app *tui.App, root, focus tview.Primitive) error {
		title = root.(*tview.Flex).GetTitle()
		fillAndPress(t, focus, "", 0)
		return nil
	})

	ui := NewTUIUI("/etc/notionsave.env", quietLogger())
	got, err := ui.PromptEmail(context.Background(), " me@example.com ")
	if err != nil || got != "me@example.com" {
		t.Fatalf("got=%q err=%v", got, err)
	}
	if title != " Sign in " {
		t.Fatalf("title=%q", title)
	}
}

func TestTUIPromptEmailRejectsInvalidAddress(t *testing.T) {
	withTUIRunner(t, func(app *tui.App, root, focus tview.Primitive) error {
		fillAndPress(t, focus, "not-an-address", 0)
		// validation keeps the form open; the user then cancels
		focus.(*tview.Form).GetButton(1).InputHandler()(enter(), noFocus)
		return nil
	})

	_, err := NewTUIUI("", quietLogger()).PromptEmail(context.Background(), "")
	if !errors.Is(err, input.ErrInputAborted) {
		t.Fatalf("err=%v; want aborted", err)
	}
}

func TestTUIPromptOTP(t *testing.T) {
	withTUIRunner(t, func(app *tui.App, root, focus tview.Primitive) error {
		fillAndPress(t, focus, " 424242 ", 0)
		return nil
	})

	got, err := NewTUIUI("", quietLogger()).PromptOTP(context.Background(), "me@example.com")
	if err != nil || got != "424242" {
		t.Fatalf("got=%q err=%v", got, err)
	}
}

func TestTUISelectWorkspace(t *testing.T) {
	withTUIRunner(t, func(app *tui.App, root, focus tview.Primitive) error {
		form := focus.(*tview.Form)
		picker, ok := form.GetFormItem(0).(*components.Picker)
		if !ok {
			t.Fatalf("first item is %T", form.GetFormItem(0))
		}
		if picker.GetCurrentItem() != 1 {
			t.Fatalf("default not preselected: %d", picker.GetCurrentItem())
		}
		picker.List.InputHandler()(enter(), noFocus)
		return nil
	})

	list := []notion.Workspace{{ID: "a"}, {ID: "b"}}
	idx, err := NewTUIUI("", quietLogger()).SelectWorkspace(context.Background(), list, 1)
	if err != nil || idx != 1 {
		t.Fatalf("idx=%d err=%v", idx, err)
	}
}

func TestTUISelectWorkspaceCancel(t *testing.T) {
	withTUIRunner(t, func(app *tui.App, root, focus tview.Primitive) error {
		focus.(*tview.Form).GetButton(0).InputHandler()(enter(), noFocus)
		return nil
	})

	_, err := NewTUIUI("", quietLogger()).SelectWorkspace(context.Background(), []notion.Workspace{{ID: "a"}}, 0)
	if !errors.Is(err, input.ErrInputAborted) {
		t.Fatalf("err=%v; want aborted", err)
	}
}

func TestTUIPromptsRespectCanceledContext(t *testing.T) {
	withTUIRunner(t, func(*tui.App, tview.Primitive, tview.Primitive) error {
		t.Fatal("runner must not start for a canceled context")
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ui := NewTUIUI("", quietLogger())
	if _, err := ui.PromptEmail(ctx, ""); !errors.Is(err, input.ErrInputAborted) {
		t.Fatalf("PromptEmail err=%v", err)
	}
	if _, err := ui.SelectWorkspace(ctx, []notion.Workspace{{ID: "a"}}, 0); !errors.Is(err, input.ErrInputAborted) {
		t.Fatalf("SelectWorkspace err=%v", err)
	}
}

func TestTUIRunnerErrorPropagates(t *testing.T) {
	boom := errors.New("no terminal")
	withTUIRunner(t, func(*tui.App, tview.Primitive, tview.Primitive) error { return boom })

	if _, err := NewTUIUI("", quietLogger()).PromptOTP(context.Background(), "x@y.z"); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if err := NewTUIUI("", quietLogger()).ShowMessage(context.Background(), "t", "m"); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}

func TestValidateEmail(t *testing.T) {
	for _, tt := range []struct {
		in string
		ok bool
	}{
		{"me@example.com", true},
		{"@example.com", false},
		{"me@", false},
		{"me example@x.y", false},
		{"plain", false},
	} {
		if err := validateEmail(tt.in); (err == nil) != tt.ok {
			t.Fatalf("validateEmail(%q) err=%v", tt.in, err)
		}
	}
}
