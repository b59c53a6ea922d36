package ui

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/samsaffron/term-agent/internal/chat"
	"github.com/samsaffron/term-agent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainTerminal_Show(t *testing.T) {
	var out bytes.Buffer
	term := NewPlainTerminal(strings.NewReader(""), &out, nil)

	term.ShowUserEcho("What is 2+2?")
	term.ShowProgress("ACTION", "calculate: {expression: 2+2}")
	term.ShowFinalAnswer("**4**")
	term.ShowNotice(chat.NoAnswerNotice)

	got := out.String()
	assert.Contains(t, got, "You\n")
	assert.Contains(t, got, "What is 2+2?")
	assert.Contains(t, got, "ACTION: calculate: {expression: 2+2}\n")
	assert.Contains(t, got, "Agent\n")
	// Markdown is rendered only on an interactive terminal.
	assert.Contains(t, got, "**4**")
	assert.True(t, strings.HasSuffix(got, chat.NoAnswerNotice+"\n"))
}

func TestPlainTerminal_PromptQuestion(t *testing.T) {
	var out bytes.Buffer
	term := NewPlainTerminal(strings.NewReader("first question\r\n\nlast without newline"), &out, nil)
	ctx := context.Background()

	q, err := term.PromptQuestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first question", q)

	q, err = term.PromptQuestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", q)

	q, err = term.PromptQuestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "last without newline", q)

	_, err = term.PromptQuestion(ctx)
	assert.ErrorIs(t, err, io.EOF)
	_, err = term.PromptQuestion(ctx)
	assert.ErrorIs(t, err, io.EOF)

	assert.Contains(t, out.String(), "You: ")
}

func TestPlainTerminal_PromptCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	term := NewPlainTerminal(pr, io.Discard, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := term.PromptQuestion(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlainTerminal_PromptMenuChoice(t *testing.T) {
	var out bytes.Buffer
	term := NewPlainTerminal(strings.NewReader("2\n\nexit\n7\n"), &out, nil)
	ctx := context.Background()

	choice, err := term.PromptMenuChoice(ctx, chat.MenuChoices)
	require.NoError(t, err)
	assert.Equal(t, chat.ChoiceHistory, choice)

	choice, err = term.PromptMenuChoice(ctx, chat.MenuChoices)
	require.NoError(t, err)
	assert.Equal(t, chat.ChoiceChat, choice, "empty answer picks the default")

	choice, err = term.PromptMenuChoice(ctx, chat.MenuChoices)
	require.NoError(t, err)
	assert.Equal(t, chat.ChoiceExit, choice)

	choice, err = term.PromptMenuChoice(ctx, chat.MenuChoices)
	require.NoError(t, err)
	assert.Equal(t, "7", choice)

	_, err = term.PromptMenuChoice(ctx, chat.MenuChoices)
	assert.ErrorIs(t, err, io.EOF)

	assert.Contains(t, out.String(), "  1. Start chat session\n")
	assert.Contains(t, out.String(), "Choose an option [1/2/3] (1): ")

	_, err = term.PromptMenuChoice(ctx, nil)
	assert.Error(t, err)
}

func TestConsoleOverPlainTerminal(t *testing.T) {
	var out bytes.Buffer
	term := NewPlainTerminal(strings.NewReader("1\n  QUIT \n3\n"), &out, nil)
	console := chat.NewConsole(term, chat.NewSession(term, nil, chat.SessionOptions{}))

	require.NoError(t, console.Run(context.Background()))
	got := out.String()
	assert.Contains(t, got, "You are now in a chat session with the AI agent.")
	assert.True(t, strings.HasSuffix(got, chat.GoodbyeNotice+"\n"))
}

func TestThemeFromConfig(t *testing.T) {
	theme := ThemeFromConfig(config.ThemeConfig{Primary: "10", Muted: "#000000"})
	assert.EqualValues(t, "10", theme.Primary)
	assert.EqualValues(t, "10", theme.Success)
	assert.EqualValues(t, "#000000", theme.Muted)
	assert.Equal(t, DefaultTheme().Secondary, theme.Secondary)
}

func TestRenderMarkdown(t *testing.T) {
	theme := DefaultTheme()
	assert.Equal(t, "", RenderMarkdown(theme, "", 40))
	got := RenderMarkdown(theme, "# Title\n\nSome **bold** text.", 40)
	assert.Contains(t, got, "Title")
	assert.Contains(t, got, "bold")
	assert.NotContains(t, got, "**")
}
