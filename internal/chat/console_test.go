package chat

import (
	"context"
	"testing"

	"github.com/samsaffron/term-agent/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_MenuFlow(t *testing.T) {
	engine := &scriptedEngine{streams: []*sliceStream{{steps: []agent.Step{answerStep("hello")}}}}
	surface := &fakeSurface{
		choices: []string{ChoiceHistory, ChoiceChat, "bogus", ChoiceExit, ChoiceChat},
		inputs:  []string{"hi", "exit"},
	}
	console := NewConsole(surface, newTestSession(surface, engine, SessionOptions{}))

	require.NoError(t, console.Run(context.Background()))

	assert.Equal(t, []string{
		"notice: " + HistoryNotice,
		"notice: " + SessionBanner,
		"you: hi",
		"answer: hello",
		"notice: Invalid choice. Please try again.",
		"notice: " + GoodbyeNotice,
	}, surface.events)
	require.Len(t, surface.menus, 4)
	assert.Equal(t, MenuChoices, surface.menus[0])
	assert.Equal(t, []string{ChoiceChat}, surface.choices, "menu stops being read after Exit")
}

func TestConsole_InputEndsIsExit(t *testing.T) {
	surface := &fakeSurface{}
	console := NewConsole(surface, newTestSession(surface, &scriptedEngine{}, SessionOptions{}))

	require.NoError(t, console.Run(context.Background()))
	assert.Equal(t, []string{"notice: " + GoodbyeNotice}, surface.events)
}

func TestConsole_SessionEndsOnInputEOF(t *testing.T) {
	surface := &fakeSurface{choices: []string{ChoiceChat}}
	console := NewConsole(surface, newTestSession(surface, &scriptedEngine{}, SessionOptions{}))

	require.NoError(t, console.Run(context.Background()))
	assert.Equal(t, []string{"notice: " + SessionBanner, "notice: " + GoodbyeNotice}, surface.events)
}

func TestConsole_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	surface := &fakeSurface{choices: []string{ChoiceChat}}
	console := NewConsole(surface, newTestSession(surface, &scriptedEngine{}, SessionOptions{}))

	assert.ErrorIs(t, console.Run(ctx), context.Canceled)
	assert.Empty(t, surface.menus)
}
