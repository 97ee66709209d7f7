package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrInputAborted signals that interactive input was interrupted (Ctrl+C
// cancelling the context, or stdin being closed).
var ErrInputAborted = errors.New("input aborted")

// ErrEmptyAnswer is returned by Prompter when the user keeps submitting blank lines.
var ErrEmptyAnswer = errors.New("no answer provided")

// IsAborted reports whether err means the user aborted the prompt.
func IsAborted(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInputAborted) || errors.Is(err, context.Canceled)
}

// MapInputError normalizes common stdin errors (EOF/closed fd) into ErrInputAborted.
func MapInputError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return ErrInputAborted
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "use of closed file") ||
		strings.Contains(errStr, "bad file descriptor") ||
		strings.Contains(errStr, "file already closed") {
		return ErrInputAborted
	}
	return err
}

// readWithContext runs a blocking read in a goroutine so the caller can stop
// waiting on ctx. The goroutine itself finishes once the read returns.
func readWithContext[T any](ctx context.Context, read func() (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := read()
		ch <- result{v: v, err: MapInputError(err)}
	}()

	var zero T
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, context.DeadlineExceeded
		}
		return zero, ErrInputAborted
	case res := <-ch:
		return res.v, res.err
	}
}

// ReadLineWithContext reads a single line and supports cancellation. On ctx cancellation
// or stdin closure it returns ErrInputAborted. On ctx deadline it returns context.DeadlineExceeded.
func ReadLineWithContext(ctx context.Context, reader *bufio.Reader) (string, error) {
	return readWithContext(ctx, func() (string, error) {
		return reader.ReadString('\n')
	})
}

// ReadPasswordWithContext reads a secret (no echo) and supports cancellation
// the same way ReadLineWithContext does.
func ReadPasswordWithContext(ctx context.Context, readPassword func(int) ([]byte, error), fd int) ([]byte, error) {
	if readPassword == nil {
		return nil, errors.New("readPassword function is nil")
	}
	return readWithContext(ctx, func() ([]byte, error) {
		return readPassword(fd)
	})
}

// Prompter asks questions on a line-oriented terminal.
type Prompter struct {
	In  *bufio.Reader
	Out io.Writer

	// ReadPassword reads without echo from Fd; when nil, secrets are read as
	// plain lines from In.
	ReadPassword func(int) ([]byte, error)
	Fd           int

	// Attempts bounds how many blank answers are tolerated (default 3).
	Attempts int
}

func (p *Prompter) attempts() int {
	if p.Attempts <= 0 {
		return 3
	}
	return p.Attempts
}

// Ask prints label and returns the first non-blank trimmed answer.
func (p *Prompter) Ask(ctx context.Context, label string) (string, error) {
	for i := 0; i < p.attempts(); i++ {
		fmt.Fprint(p.Out, label)
		line, err := ReadLineWithContext(ctx, p.In)
		if err != nil {
			// A final line without newline is still an answer.
			if errors.Is(err, ErrInputAborted) && strings.TrimSpace(line) != "" {
				return strings.TrimSpace(line), nil
			}
			return "", err
		}
		if answer := strings.TrimSpace(line); answer != "" {
			return answer, nil
		}
	}
	return "", ErrEmptyAnswer
}

// AskDefault is Ask where a blank answer returns def. An empty def behaves
// like Ask.
func (p *Prompter) AskDefault(ctx context.Context, label, def string) (string, error) {
	def = strings.TrimSpace(def)
	if def == "" {
		return p.Ask(ctx, label+": ")
	}
	fmt.Fprintf(p.Out, "%s [%s]: ", label, def)
	line, err := ReadLineWithContext(ctx, p.In)
	answer := strings.TrimSpace(line)
	if err != nil && (!errors.Is(err, ErrInputAborted) || answer == "") {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// AskSecret is Ask without terminal echo.
func (p *Prompter) AskSecret(ctx context.Context, label string) (string, error) {
	if p.ReadPassword == nil {
		return p.Ask(ctx, label)
	}
	for i := 0; i < p.attempts(); i++ {
		fmt.Fprint(p.Out, label)
		b, err := ReadPasswordWithContext(ctx, p.ReadPassword, p.Fd)
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", err
		}
		if answer := strings.TrimSpace(string(b)); answer != "" {
			return answer, nil
		}
	}
	return "", ErrEmptyAnswer
}

// Choose prints a numbered menu and returns the zero-based index of the pick.
// A blank answer selects def when def is a valid index.
func (p *Prompter) Choose(ctx context.Context, title string, options []string, def int) (int, error) {
	if len(options) == 0 {
		return -1, errors.New("no options to choose from")
	}
	hasDefault := def >= 0 && def < len(options)

	fmt.Fprintln(p.Out, title)
	for i, opt := range options {
		fmt.Fprintf(p.Out, "  [%d] %s\n", i+1, opt)
	}
	label := fmt.Sprintf("Choice [1-%d]: ", len(options))
	if hasDefault {
		label = fmt.Sprintf("Choice [1-%d] (default %d): ", len(options), def+1)
	}

	for i := 0; i < p.attempts(); i++ {
		fmt.Fprint(p.Out, label)
		line, err := ReadLineWithContext(ctx, p.In)
		answer := strings.TrimSpace(line)
		if err != nil && (!errors.Is(err, ErrInputAborted) || answer == "") {
			return -1, err
		}
		if answer == "" {
			if hasDefault {
				return def, nil
			}
			continue
		}
		n, convErr := strconv.Atoi(answer)
		if convErr == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Fprintf(p.Out, "Invalid choice %q\n", answer)
	}
	return -1, ErrEmptyAnswer
}
