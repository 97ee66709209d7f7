package tui

import (
	"github.com/gdamore/tcell/v2"
)

// notionsave palette
var (
	// Accent is used for borders, titles and the focused button.
	Accent = tcell.NewRGBColor(35, 131, 226) // #2383E2

	Ink   = tcell.NewRGBColor(37, 37, 37)    // #252525
	Muted = tcell.NewRGBColor(120, 119, 116) // #787774
	Paper = tcell.NewRGBColor(222, 220, 215) // #DEDCD7

	SuccessGreen  = tcell.NewRGBColor(34, 197, 94)  // #22C55E
	ErrorRed      = tcell.NewRGBColor(239, 68, 68)  // #EF4444
	WarningYellow = tcell.NewRGBColor(234, 179, 8)  // #EAB308
	InfoBlue      = tcell.NewRGBColor(59, 130, 246) // #3B82F6

	White     = tcell.ColorWhite
	Black     = tcell.ColorBlack
	LightGray = tcell.ColorLightGray
)

const (
	SymbolSuccess  = "✓"
	SymbolError    = "✗"
	SymbolWarning  = "⚠"
	SymbolInfo     = "ℹ"
	SymbolSelected = "▸"
	SymbolBullet   = "•"
)

// StatusColor maps a message kind or export task state to a color.
func StatusColor(status string) tcell.Color {
	switch status {
	case "success", "ok", "complete":
		return SuccessGreen
	case "error", "failed":
		return ErrorRed
	case "warning", "expired":
		return WarningYellow
	case "info", "pending", "in_progress":
		return InfoBlue
	default:
		return LightGray
	}
}

// StatusSymbol maps a message kind or export task state to a symbol.
func StatusSymbol(status string) string {
	switch status {
	case "success", "ok", "complete":
		return SymbolSuccess
	case "error", "failed":
		return SymbolError
	case "warning", "expired":
		return SymbolWarning
	case "info", "pending", "in_progress":
		return SymbolInfo
	default:
		return SymbolBullet
	}
}
