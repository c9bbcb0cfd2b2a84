package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Progress reports completion of a fixed number of checks. It is safe for
// use by concurrent workers.
type Progress struct {
	mu      sync.Mutex
	writer  io.Writer
	total   int
	current int
	width   int
	label   string
	noColor bool
}

// NewProgress creates a progress bar over total units
func NewProgress(w io.Writer, label string, total int, noColor bool) *Progress {
	return &Progress{
		writer:  w,
		total:   total,
		width:   30,
		label:   label,
		noColor: noColor,
	}
}

// Step marks one unit done and redraws
func (p *Progress) Step() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current < p.total {
		p.current++
	}
	p.render()
}

// Current returns the number of completed units
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Done terminates the bar line
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		fmt.Fprintln(p.writer)
	}
}

func (p *Progress) render() {
	if p.total == 0 {
		return
	}

	filled := p.width * p.current / p.total
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if p.noColor {
		cyan.DisableColor()
		gray.DisableColor()
	}

	var bar strings.Builder
	bar.WriteString("[")
	cyan.Fprint(&bar, strings.Repeat("█", filled))
	gray.Fprint(&bar, strings.Repeat("░", p.width-filled))
	bar.WriteString("]")

	fmt.Fprintf(p.writer, "\r%s %d/%d %s", bar.String(), p.current, p.total, p.label)
}
