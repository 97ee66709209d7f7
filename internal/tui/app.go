// Package tui holds the themed tview application shared by the interactive prompts.
package tui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// App wraps tview.Application with the notionsave theme.
type App struct {
	*tview.Application
	stopHook func()
}

// NewApp creates a themed application bound to the abort context.
func NewApp() *App {
	app := &App{
		Application: tview.NewApplication(),
	}
	app.EnableMouse(true)
	applyTheme()
	bindAbortContext(app)
	return app
}

func applyTheme() {
	tview.Styles.PrimitiveBackgroundColor = tcell.ColorBlack
	tview.Styles.ContrastBackgroundColor = tcell.ColorBlack
	tview.Styles.MoreContrastBackgroundColor = Ink
	tview.Styles.BorderColor = Accent
	tview.Styles.TitleColor = Accent
	tview.Styles.GraphicsColor = Accent
	tview.Styles.PrimaryTextColor = tcell.ColorWhite
	tview.Styles.SecondaryTextColor = Paper
	tview.Styles.TertiaryTextColor = Muted
	tview.Styles.InverseTextColor = tcell.ColorBlack
	tview.Styles.ContrastSecondaryTextColor = tcell.ColorWhite
}

// Stop stops the application; safe on a nil or zero App.
func (a *App) Stop() {
	if a == nil {
		return
	}
	if a.stopHook != nil {
		a.stopHook()
		return
	}
	if a.Application != nil {
		a.Application.Stop()
	}
}

// Frame puts content inside a titled, accent-bordered page with a header line
// and a footer hint.
func Frame(title, header, footer string, content tview.Primitive) *tview.Flex {
	head := tview.NewTextView().
		SetText(header).
		SetTextColor(Paper).
		SetDynamicColors(true)

	foot := tview.NewTextView().
		SetText(footer).
		SetTextColor(Muted).
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(head, 2, 0, false).
		AddItem(content, 0, 1, true).
		AddItem(foot, 1, 0, false)

	flex.SetBorder(true).
		SetTitle(" " + title + " ").
		SetTitleAlign(tview.AlignCenter).
		SetTitleColor(Accent).
		SetBorderColor(Accent).
		SetBackgroundColor(tcell.ColorBlack)
	return flex
}
