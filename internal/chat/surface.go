// Package chat runs the interactive conversation: the main menu and the
// session loop that streams each question's reasoning trace to a surface.
package chat

import (
	"context"
	"errors"
)

// ErrInterrupted is returned by a surface when the operator aborts a prompt.
var ErrInterrupted = errors.New("interrupted by user")

// Surface is where the conversation is shown and where input comes from.
// Prompts return io.EOF when input is exhausted.
type Surface interface {
	ShowUserEcho(text string)
	ShowProgress(label, text string)
	ShowFinalAnswer(text string)
	ShowNotice(text string)
	PromptQuestion(ctx context.Context) (string, error)
	PromptMenuChoice(ctx context.Context, choices []string) (string, error)
}
