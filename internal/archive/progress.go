package archive

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
)

// Progress receives download progress. Start gets -1 when the size is unknown.
type Progress interface {
	Start(total int64)
	Add(n int64)
	Finish()
}

// NopProgress discards progress updates.
type NopProgress struct{}

func (NopProgress) Start(int64) {}
func (NopProgress) Add(int64)   {}
func (NopProgress) Finish()     {}

// TerminalProgress redraws a single status line on w.
type TerminalProgress struct {
	mu       sync.Mutex
	w        io.Writer
	label    string
	total    int64
	done     int64
	lastDraw int64
	step     int64
}

// NewTerminalProgress returns a progress line prefixed with label.
func NewTerminalProgress(w io.Writer, label string) *TerminalProgress {
	return &TerminalProgress{w: w, label: label, step: 1 << 20}
}

func (p *TerminalProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.done = 0
	p.lastDraw = 0
	p.draw()
}

func (p *TerminalProgress) Add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += n
	if p.done-p.lastDraw >= p.step {
		p.lastDraw = p.done
		p.draw()
	}
}

func (p *TerminalProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draw()
	fmt.Fprintln(p.w)
}

func (p *TerminalProgress) draw() {
	fmt.Fprintf(p.w, "\r%s %s", p.label, describeProgress(p.done, p.total))
}

// describeProgress renders "3.1 MB / 12 MB (25%)", or just the byte count
// when total is unknown.
func describeProgress(done, total int64) string {
	if total <= 0 {
		return humanize.Bytes(uint64(done))
	}
	pct := done * 100 / total
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("%s / %s (%d%%)", humanize.Bytes(uint64(done)), humanize.Bytes(uint64(total)), pct)
}
