package prepare

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const rule = "============================================================"

// Progress narrates the run step by step. Styling is dropped automatically
// when the writer is not a terminal.
type Progress struct {
	w       io.Writer
	heading lipgloss.Style
	ok      lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
}

// NewProgress creates a narrator writing to w.
func NewProgress(w io.Writer) *Progress {
	r := lipgloss.NewRenderer(w)
	return &Progress{
		w:       w,
		heading: r.NewStyle().Bold(true),
		ok:      r.NewStyle().Foreground(lipgloss.Color("2")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("1")),
		muted:   r.NewStyle().Faint(true),
	}
}

// Writer exposes the underlying writer, for echoing commands.
func (p *Progress) Writer() io.Writer { return p.w }

// Banner prints title between two horizontal rules.
func (p *Progress) Banner(title string) {
	fmt.Fprintf(p.w, "%s\n%s\n%s\n", rule, p.heading.Render(title), rule)
}

// Section starts a new step.
func (p *Progress) Section(format string, args ...any) {
	fmt.Fprintf(p.w, "\n%s\n", p.heading.Render("=== "+fmt.Sprintf(format, args...)+" ==="))
}

// Printf writes one plain line.
func (p *Progress) Printf(format string, args ...any) {
	fmt.Fprintln(p.w, strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}

// OK reports a successful sub-step.
func (p *Progress) OK(format string, args ...any) {
	fmt.Fprintf(p.w, "  %s\n", p.ok.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Fail reports a failed sub-step.
func (p *Progress) Fail(format string, args ...any) {
	fmt.Fprintf(p.w, "  %s\n", p.fail.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Hint prints a de-emphasized, indented note.
func (p *Progress) Hint(format string, args ...any) {
	fmt.Fprintf(p.w, "    %s\n", p.muted.Render(fmt.Sprintf(format, args...)))
}
