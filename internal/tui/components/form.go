// Package components holds the form widgets used by the interactive prompts.
package components

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tis24dev/notionsave/internal/tui"
)

// ValidatorFunc checks one field value.
type ValidatorFunc func(value string) error

// Form wraps tview.Form with the theme, per-field validation and an inline
// status line for errors.
type Form struct {
	*tview.Form
	app        *tui.App
	validators map[string][]ValidatorFunc
	order      []string
	onSubmit   func(values map[string]string) error
	onCancel   func()
	status     *tview.TextView
}

// NewForm creates a themed form.
func NewForm(app *tui.App) *Form {
	form := tview.NewForm().
		SetButtonsAlign(tview.AlignCenter).
		SetButtonBackgroundColor(tui.Accent).
		SetButtonTextColor(tcell.ColorWhite).
		SetLabelColor(tui.Paper).
		SetFieldBackgroundColor(tui.Ink).
		SetFieldTextColor(tcell.ColorWhite)

	status := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	return &Form{
		Form:       form,
		app:        app,
		validators: make(map[string][]ValidatorFunc),
		status:     status,
	}
}

// StatusView is the line where submit errors are shown. Callers place it in
// their layout.
func (f *Form) StatusView() *tview.TextView {
	return f.status
}

func (f *Form) register(label string, validators []ValidatorFunc) {
	if _, seen := f.validators[label]; !seen {
		f.order = append(f.order, label)
	}
	f.validators[label] = validators
}

// AddInputFieldWithValidation adds a text field.
func (f *Form) AddInputFieldWithValidation(label, value string, fieldWidth int, validators ...ValidatorFunc) *Form {
	f.register(label, validators)
	f.Form.AddInputField(label, value, fieldWidth, nil, nil)
	return f
}

// AddPasswordField adds a masked field.
func (f *Form) AddPasswordField(label string, fieldWidth int, validators ...ValidatorFunc) *Form {
	f.register(label, validators)
	f.Form.AddPasswordField(label, "", fieldWidth, '*', nil)
	return f
}

// SetOnSubmit sets the submit handler. A returned error keeps the form open.
func (f *Form) SetOnSubmit(handler func(values map[string]string) error) *Form {
	f.onSubmit = handler
	return f
}

// SetOnCancel sets the cancel handler.
func (f *Form) SetOnCancel(handler func()) *Form {
	f.onCancel = handler
	return f
}

// AddSubmitButton validates, calls the submit handler and stops the app.
func (f *Form) AddSubmitButton(label string) *Form {
	f.Form.AddButton(label, f.submit)
	return f
}

func (f *Form) submit() {
	values := f.GetFormValues()
	if err := f.ValidateAll(values); err != nil {
		f.ShowStatus(err.Error())
		return
	}
	if f.onSubmit != nil {
		if err := f.onSubmit(values); err != nil {
			f.ShowStatus(err.Error())
			return
		}
	}
	f.app.Stop()
}

// AddCancelButton calls the cancel handler and stops the app.
func (f *Form) AddCancelButton(label string) *Form {
	f.Form.AddButton(label, func() {
		if f.onCancel != nil {
			f.onCancel()
		}
		f.app.Stop()
	})
	f.Form.SetCancelFunc(func() {
		if f.onCancel != nil {
			f.onCancel()
		}
		f.app.Stop()
	})
	return f
}

// ShowStatus displays message as an error on the status line.
func (f *Form) ShowStatus(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		f.status.SetText("")
		return
	}
	f.status.SetText("[red]" + tui.SymbolError + " " + tview.Escape(message) + "[-]")
}

// StatusText returns the current status line without color tags.
func (f *Form) StatusText() string {
	return f.status.GetText(true)
}

// GetFormValues returns input field values keyed by label.
func (f *Form) GetFormValues() map[string]string {
	values := make(map[string]string)
	for i := 0; i < f.Form.GetFormItemCount(); i++ {
		if input, ok := f.Form.GetFormItem(i).(*tview.InputField); ok {
			values[input.GetLabel()] = input.GetText()
		}
	}
	return values
}

// ValidateAll runs validators in the order fields were added.
func (f *Form) ValidateAll(values map[string]string) error {
	for _, label := range f.order {
		for _, validate := range f.validators[label] {
			if validate == nil {
				continue
			}
			if err := validate(values[label]); err != nil {
				return err
			}
		}
	}
	return nil
}

// NotBlank rejects empty or whitespace-only values.
func NotBlank(message string) ValidatorFunc {
	return func(value string) error {
		if strings.TrimSpace(value) == "" {
			return validationError(message)
		}
		return nil
	}
}

type validationError string

func (e validationError) Error() string { return string(e) }
