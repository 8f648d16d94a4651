package view

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/willibrandon/ChronoTrace/pkg/state"
	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

// DefaultWidth is used when the output is not a terminal
const DefaultWidth = 100

const (
	ansiBold  = "\033[1m"
	ansiReset = "\033[0m"
)

// RenderOptions controls text rendering
type RenderOptions struct {
	// Width is the line width lines are truncated to. Zero means no limit.
	Width int
	// Color highlights values modified at the current step with ANSI bold;
	// otherwise they are suffixed with "*".
	Color bool
}

// TerminalWidth returns the width of f when it is a terminal, otherwise
// DefaultWidth
func TerminalWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return DefaultWidth
	}
	return w
}

type renderer struct {
	w    io.Writer
	opts RenderOptions
	err  error
}

func (r *renderer) line(format string, args ...any) {
	if r.err != nil {
		return
	}
	s := fmt.Sprintf(format, args...)
	if r.opts.Width > 0 && !r.opts.Color && runewidth.StringWidth(s) > r.opts.Width {
		s = runewidth.Truncate(s, r.opts.Width, "…")
	}
	_, r.err = fmt.Fprintln(r.w, s)
}

func (r *renderer) cell(c Cell) string {
	if !c.Modified {
		return c.Text
	}
	if r.opts.Color {
		return ansiBold + c.Text + ansiReset
	}
	return c.Text + "*"
}

// Render writes the heap as text
func (h *Heap) Render(w io.Writer, opts RenderOptions) error {
	r := &renderer{w: w, opts: opts}
	if len(h.Objects) == 0 && len(h.Nodes) == 0 {
		r.line("Heap is empty")
		return r.err
	}

	for _, o := range h.Objects {
		r.line("%s", o.Title())
		switch {
		case o.Table != nil:
			r.table(o.Table)
		case o.Kind == Record:
			for _, f := range o.Fields {
				r.line("  %s: %s", f.Name, r.cell(f.Cell))
			}
		default:
			items := make([]string, len(o.Items))
			for i, c := range o.Items {
				items[i] = r.cell(c)
			}
			r.line("  [%s]", strings.Join(items, ", "))
		}
	}

	if len(h.Nodes) > 0 {
		r.line("Graph:")
		for _, n := range h.Nodes {
			label := strings.ReplaceAll(n.Label, "\n", ", ")
			if len(n.Names) > 0 {
				r.line("  #%d {%s} (%s)", n.Ptr, label, strings.Join(n.Names, ", "))
			} else {
				r.line("  #%d {%s}", n.Ptr, label)
			}
		}
		for _, e := range h.Edges {
			r.line("  #%d -%s-> #%d", e.From, e.Member, e.To)
		}
	}
	return r.err
}

func (r *renderer) table(t *Table) {
	hasRowHeaders := len(t.RowHeaders) > 0

	// column 0 holds row headers when present
	ncols := len(t.Headers)
	if hasRowHeaders {
		ncols++
	}
	widths := make([]int, ncols)
	offset := 0
	if hasRowHeaders {
		offset = 1
		widths[0] = runewidth.StringWidth("#")
		for _, h := range t.RowHeaders {
			widths[0] = max(widths[0], runewidth.StringWidth(h))
		}
	}
	for j, h := range t.Headers {
		widths[j+offset] = runewidth.StringWidth(h)
	}
	for _, row := range t.Rows {
		for j, c := range row {
			// modification markers take one extra column
			width := runewidth.StringWidth(c.Text)
			if c.Modified && !r.opts.Color {
				width++
			}
			widths[j+offset] = max(widths[j+offset], width)
		}
	}

	pad := func(s string, visible, width int) string {
		return s + strings.Repeat(" ", max(0, width-visible))
	}

	var head []string
	if hasRowHeaders {
		head = append(head, pad("#", 1, widths[0]))
	}
	for j, h := range t.Headers {
		head = append(head, runewidth.FillRight(h, widths[j+offset]))
	}
	r.line("  | %s |", strings.Join(head, " | "))

	for i, row := range t.Rows {
		var cells []string
		if hasRowHeaders {
			cells = append(cells, runewidth.FillRight(t.RowHeaders[i], widths[0]))
		}
		for j := range t.Headers {
			if j >= len(row) {
				cells = append(cells, strings.Repeat(" ", widths[j+offset]))
				continue
			}
			visible := runewidth.StringWidth(row[j].Text)
			if row[j].Modified && !r.opts.Color {
				visible++
			}
			cells = append(cells, pad(r.cell(row[j]), visible, widths[j+offset]))
		}
		r.line("  | %s |", strings.Join(cells, " | "))
	}
}

// RenderStack writes the globals, then the call stack outermost frame first
func RenderStack(w io.Writer, stack *state.Stack, globals *state.Bindings, step int, opts RenderOptions) error {
	r := &renderer{w: w, opts: opts}
	if globals.Len() > 0 {
		r.line("Globals:")
		r.bindings(globals, step)
	}
	if stack.Depth() == 0 {
		r.line("Call stack is empty")
		return r.err
	}
	for i, f := range stack.Frames() {
		r.line("#%d %s", i, f.MethodName)
		r.bindings(f.Args, step)
		r.bindings(f.Locals, step)
		if f.ReturnValue != nil {
			r.line("  return: %s", r.cell(FormatValue(*f.ReturnValue, step)))
		}
	}
	return r.err
}

func (r *renderer) bindings(b *state.Bindings, step int) {
	b.Range(func(name string, v trace.Value) bool {
		r.line("  %s = %s", name, r.cell(FormatValue(v, step)))
		return true
	})
}
