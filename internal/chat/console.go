package chat

import (
	"context"
	"errors"
	"io"
)

// Main menu entries.
const (
	ChoiceChat    = "Start chat session"
	ChoiceHistory = "View chat history"
	ChoiceExit    = "Exit"
)

const (
	HistoryNotice = "Chat history feature is not yet implemented."
	GoodbyeNotice = "Deactivating agent. Goodbye!"
)

// MenuChoices lists the main menu entries in display order.
var MenuChoices = []string{ChoiceChat, ChoiceHistory, ChoiceExit}

// Console is the top-level menu around a Session.
type Console struct {
	surface Surface
	session *Session
}

func NewConsole(surface Surface, session *Session) *Console {
	return &Console{surface: surface, session: session}
}

// Run shows the menu until the operator exits. Input ending is treated as
// exit.
func (c *Console) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		choice, err := c.surface.PromptMenuChoice(ctx, MenuChoices)
		if errors.Is(err, io.EOF) {
			c.surface.ShowNotice(GoodbyeNotice)
			return nil
		}
		if err != nil {
			return err
		}

		switch choice {
		case ChoiceChat:
			c.surface.ShowNotice(SessionBanner)
			if err := c.session.Run(ctx); err != nil {
				return err
			}
		case ChoiceHistory:
			c.surface.ShowNotice(HistoryNotice)
		case ChoiceExit:
			c.surface.ShowNotice(GoodbyeNotice)
			return nil
		default:
			c.surface.ShowNotice("Invalid choice. Please try again.")
		}
	}
}
