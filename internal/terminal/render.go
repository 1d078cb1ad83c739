package terminal

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/frederikbeimgraben/mcssh/internal/domain"
)

// ContinuationIndent aligns wrapped console lines after the timestamp.
const ContinuationIndent = 20

const promptPrefix = "> "

// ClearScreen erases the screen and homes the cursor.
const ClearScreen = "\x1b[2J\x1b[H"

// Renderer produces the ANSI output for a session.
type Renderer struct {
	broadcast lipgloss.Style
	builtin   lipgloss.Style
	known     lipgloss.Style
	unknown   lipgloss.Style
	ghost     lipgloss.Style
	errStyle  lipgloss.Style
}

// NewRenderer creates a renderer. The SSH channel is not a local terminal,
// so the colour profile is forced instead of detected from w.
func NewRenderer(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w, termenv.WithProfile(termenv.ANSI))
	r.SetColorProfile(termenv.ANSI)

	return &Renderer{
		broadcast: r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		builtin:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("4")),
		known:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		unknown:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		ghost:     r.NewStyle().Foreground(lipgloss.Color("8")),
		errStyle:  r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// Highlight colours buffer by class. Broadcasts are coloured whole; other
// classes colour only the first word.
func (r *Renderer) Highlight(buffer string, class domain.Class) string {
	if buffer == "" {
		return ""
	}
	if class == domain.ClassBroadcast {
		return r.broadcast.Render(buffer)
	}

	first, rest := buffer, ""
	if i := strings.IndexByte(buffer, ' '); i >= 0 {
		first, rest = buffer[:i], buffer[i:]
	}

	var style lipgloss.Style
	switch class {
	case domain.ClassBuiltin:
		style = r.builtin
	case domain.ClassKnown:
		style = r.known
	case domain.ClassUnknown:
		style = r.unknown
	default:
		return buffer
	}
	return style.Render(first) + rest
}

// Prompt redraws the prompt on the bottom row and places the cursor.
func (r *Renderer) Prompt(e *Editor, class domain.Class, height int) string {
	if height < 1 {
		height = 1
	}
	line := e.Line()

	var b strings.Builder
	b.WriteString("\x1b[2K")
	fmt.Fprintf(&b, "\x1b[%d;1H", height)
	b.WriteString(promptPrefix)
	b.WriteString(r.Highlight(line, class))
	if suffix := e.Suffix(); suffix != "" {
		b.WriteString(r.ghost.Render(suffix))
	}

	col := ansi.StringWidth(string([]rune(line)[:e.Cursor()])) + len(promptPrefix) + 1
	fmt.Fprintf(&b, "\x1b[%d;%dH", height, col)
	return b.String()
}

// ConsoleLine renders a console line above the prompt. The first row uses
// the full width; the rest are wrapped and indented after the timestamp.
func (r *Renderer) ConsoleLine(line string, width int) string {
	rows := WrapConsole(line, width)
	return "\r\x1b[2K" + strings.Join(rows, "\r\n\x1b[2K") + "\r\n"
}

// Error renders msg as a red line.
func (r *Renderer) Error(msg string) string {
	return "\r\x1b[2K" + r.errStyle.Render(msg) + "\r\n"
}

// WrapConsole splits line into terminal rows of at most width cells.
func WrapConsole(line string, width int) []string {
	if width <= 0 || ansi.StringWidth(line) <= width {
		return []string{line}
	}

	rows := []string{ansi.Truncate(line, width, "")}
	rest := ansi.TruncateLeft(line, width, "")

	inner := width - ContinuationIndent
	indent := strings.Repeat(" ", ContinuationIndent)
	if inner <= 0 {
		inner = width
		indent = ""
	}
	for _, l := range strings.Split(ansi.Hardwrap(rest, inner, true), "\n") {
		rows = append(rows, indent+l)
	}
	return rows
}
