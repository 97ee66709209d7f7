package components

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tis24dev/notionsave/internal/tui"
)

// Picker is a single-choice list usable as a tview.FormItem. Enter on an
// entry calls the chosen handler with its index.
type Picker struct {
	*tview.List
	label       string
	fieldWidth  int
	fieldHeight int
	finished    func(tcell.Key)
	chosen      func(index int)
	disabled    bool
	hasFocus    bool
	textColor   tcell.Color
	idleBg      tcell.Color
}

// NewPicker builds a picker over options with def preselected.
func NewPicker(options []string, def int) *Picker {
	p := &Picker{
		List:        tview.NewList().ShowSecondaryText(false),
		fieldHeight: PickerHeight(len(options)),
		textColor:   tcell.ColorWhite,
		idleBg:      tui.Ink,
	}
	for i, opt := range options {
		index := i
		p.List.AddItem(opt, "", 0, func() {
			if p.chosen != nil {
				p.chosen(index)
			}
		})
	}
	if def >= 0 && def < len(options) {
		p.List.SetCurrentItem(def)
	}
	p.List.SetInputCapture(p.inputCapture)
	return p
}

// PickerHeight bounds the list height between 4 and 12 rows.
func PickerHeight(n int) int {
	switch {
	case n < 4:
		return 4
	case n > 12:
		return 12
	default:
		return n
	}
}

// SetChosenFunc sets the handler called when an entry is picked.
func (p *Picker) SetChosenFunc(handler func(index int)) *Picker {
	p.chosen = handler
	return p
}

// SetLabel sets the label shown in the form.
func (p *Picker) SetLabel(label string) *Picker {
	p.label = label
	return p
}

// SetFieldWidth sets the list width (0 = flexible).
func (p *Picker) SetFieldWidth(width int) *Picker {
	p.fieldWidth = width
	return p
}

// GetLabel implements tview.FormItem.
func (p *Picker) GetLabel() string { return p.label }

// SetFormAttributes implements tview.FormItem.
func (p *Picker) SetFormAttributes(labelWidth int, labelColor, bgColor, fieldTextColor, fieldBgColor tcell.Color) tview.FormItem {
	p.textColor = fieldTextColor
	p.List.
		SetMainTextColor(fieldTextColor).
		SetBackgroundColor(bgColor)
	return p
}

// GetFieldWidth implements tview.FormItem.
func (p *Picker) GetFieldWidth() int { return p.fieldWidth }

// GetFieldHeight implements tview.FormItem.
func (p *Picker) GetFieldHeight() int { return p.fieldHeight }

// SetFinishedFunc implements tview.FormItem.
func (p *Picker) SetFinishedFunc(handler func(key tcell.Key)) tview.FormItem {
	p.finished = handler
	return p
}

// SetDisabled implements tview.FormItem.
func (p *Picker) SetDisabled(disabled bool) tview.FormItem {
	p.disabled = disabled
	return p
}

// Tab, Escape and moving past either end hand focus back to the form.
func (p *Picker) inputCapture(event *tcell.EventKey) *tcell.EventKey {
	if p.disabled || event == nil || p.finished == nil {
		return event
	}
	count := p.List.GetItemCount()
	current := p.List.GetCurrentItem()

	switch event.Key() {
	case tcell.KeyTab, tcell.KeyBacktab, tcell.KeyEscape:
		p.finished(event.Key())
		return nil
	case tcell.KeyUp:
		if count > 0 && current == 0 {
			p.finished(tcell.KeyBacktab)
			return nil
		}
	case tcell.KeyDown:
		if count > 0 && current == count-1 {
			p.finished(tcell.KeyTab)
			return nil
		}
	}
	return event
}

// Focus implements tview.Primitive.
func (p *Picker) Focus(delegate func(tview.Primitive)) {
	p.hasFocus = true
	p.List.SetSelectedBackgroundColor(tui.Accent).SetSelectedTextColor(p.textColor)
	p.List.Focus(delegate)
}

// Blur implements tview.Primitive.
func (p *Picker) Blur() {
	p.hasFocus = false
	p.List.SetSelectedBackgroundColor(p.idleBg).SetSelectedTextColor(p.textColor)
	p.List.Blur()
}
