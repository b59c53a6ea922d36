// Package ui is the terminal surface of the chat: styled progress lines,
// panels for the question and the answer, and prompts for input.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samsaffron/term-agent/internal/chat"
	"golang.org/x/term"
)

const defaultWidth = 80

// Terminal implements chat.Surface. On a TTY it prompts with huh forms and
// renders answers as markdown; otherwise it reads plain lines.
type Terminal struct {
	out         io.Writer
	styles      *Styles
	lines       *lineReader
	interactive bool
	width       int
}

var _ chat.Surface = (*Terminal)(nil)

// NewTerminal returns a surface over stdin and stdout. Interactive prompts
// are used only when both are terminals.
func NewTerminal(theme *Theme) *Terminal {
	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	width := defaultWidth
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	t := NewPlainTerminal(os.Stdin, os.Stdout, theme)
	t.interactive = interactive
	t.width = width
	return t
}

// NewPlainTerminal returns a line-oriented surface over arbitrary streams.
func NewPlainTerminal(in io.Reader, out io.Writer, theme *Theme) *Terminal {
	if theme == nil {
		theme = DefaultTheme()
	}
	return &Terminal{
		out:    out,
		styles: NewStyles(out, theme),
		lines:  newLineReader(in),
		width:  defaultWidth,
	}
}

func (t *Terminal) ShowUserEcho(text string) {
	fmt.Fprintln(t.out, t.styles.UserTitle.Render("You"))
	fmt.Fprintln(t.out, t.styles.UserPanel.Render(text))
}

func (t *Terminal) ShowProgress(label, text string) {
	fmt.Fprintln(t.out, t.styles.Label.Render(label+":")+" "+t.styles.Progress.Render(text))
}

func (t *Terminal) ShowFinalAnswer(text string) {
	body := text
	if t.interactive {
		body = RenderMarkdown(t.styles.Theme(), text, t.panelWidth())
	}
	fmt.Fprintln(t.out, t.styles.AgentTitle.Render("Agent"))
	fmt.Fprintln(t.out, t.styles.AgentPanel.Render(body))
}

func (t *Terminal) ShowNotice(text string) {
	style := t.styles.Notice
	if strings.HasPrefix(text, "Error:") {
		style = t.styles.Error
	}
	fmt.Fprintln(t.out, style.Render(text))
}

// panelWidth is the usable text width inside a bordered panel.
func (t *Terminal) panelWidth() int {
	w := t.width - 4
	if w < 20 {
		w = 20
	}
	return w
}
