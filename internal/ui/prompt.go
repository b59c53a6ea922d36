package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/samsaffron/term-agent/internal/chat"
)

func (t *Terminal) PromptQuestion(ctx context.Context) (string, error) {
	if t.interactive {
		var question string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("You").
					Placeholder("Ask a question, or type exit").
					Value(&question),
			),
		)
		if err := runForm(ctx, form); err != nil {
			return "", err
		}
		return question, nil
	}

	fmt.Fprint(t.out, "\n"+t.styles.Title.Render("You")+": ")
	return t.lines.next(ctx)
}

func (t *Terminal) PromptMenuChoice(ctx context.Context, choices []string) (string, error) {
	if len(choices) == 0 {
		return "", errors.New("no choices")
	}

	if t.interactive {
		choice := choices[0]
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Main Menu").
					Options(huh.NewOptions(choices...)...).
					Value(&choice),
			),
		)
		if err := runForm(ctx, form); err != nil {
			return "", err
		}
		return choice, nil
	}

	fmt.Fprintln(t.out, t.styles.Title.Render("Main Menu"))
	keys := make([]string, len(choices))
	for i, c := range choices {
		keys[i] = strconv.Itoa(i + 1)
		fmt.Fprintf(t.out, "  %d. %s\n", i+1, c)
	}
	fmt.Fprintf(t.out, "Choose an option [%s] (1): ", strings.Join(keys, "/"))

	line, err := t.lines.next(ctx)
	if err != nil {
		return "", err
	}
	return resolveChoice(strings.TrimSpace(line), choices), nil
}

// resolveChoice maps a typed menu answer to a choice: empty selects the
// first entry, a number selects by position, and text matches a choice
// case-insensitively. Anything else is returned unchanged.
func resolveChoice(answer string, choices []string) string {
	if answer == "" {
		return choices[0]
	}
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(choices) {
		return choices[n-1]
	}
	for _, c := range choices {
		if strings.EqualFold(c, answer) {
			return c
		}
	}
	return answer
}

func runForm(ctx context.Context, form *huh.Form) error {
	err := form.RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return chat.ErrInterrupted
	}
	return err
}

// lineReader reads lines on a background goroutine so a blocked read does
// not keep a cancelled prompt waiting.
type lineReader struct {
	r     *bufio.Reader
	once  sync.Once
	lines chan lineResult
}

type lineResult struct {
	line string
	err  error
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r), lines: make(chan lineResult)}
}

func (l *lineReader) next(ctx context.Context) (string, error) {
	l.once.Do(func() { go l.pump() })
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-l.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	}
}

func (l *lineReader) pump() {
	defer close(l.lines)
	for {
		line, err := l.r.ReadString('\n')
		if line != "" {
			l.lines <- lineResult{line: strings.TrimRight(line, "\r\n")}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.lines <- lineResult{err: err}
			}
			return
		}
	}
}
