package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockTurn is one scripted provider response.
type MockTurn struct {
	Text      string
	ToolCalls []ToolCall
	Err       error
}

// MockProvider replays scripted turns, one per Stream call. It records every
// request so tests can inspect what the engine sent.
type MockProvider struct {
	name string

	mu       sync.Mutex
	turns    []MockTurn
	Requests []Request
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (m *MockProvider) Name() string {
	return m.name
}

// AddTextResponse queues a turn that only returns text.
func (m *MockProvider) AddTextResponse(text string) *MockProvider {
	return m.AddTurn(MockTurn{Text: text})
}

// AddToolCall queues a turn with optional text and a single tool call.
func (m *MockProvider) AddToolCall(text, id, name string, args any) *MockProvider {
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte("{}")
	}
	return m.AddTurn(MockTurn{Text: text, ToolCalls: []ToolCall{{ID: id, Name: name, Arguments: raw}}})
}

// AddError queues a turn that fails.
func (m *MockProvider) AddError(err error) *MockProvider {
	return m.AddTurn(MockTurn{Err: err})
}

func (m *MockProvider) AddTurn(turn MockTurn) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	return m
}

// Remaining reports how many scripted turns have not been consumed.
func (m *MockProvider) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

func (m *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	if len(m.turns) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock provider %s: no scripted turns left", m.name)
	}
	turn := m.turns[0]
	m.turns = m.turns[1:]
	m.mu.Unlock()

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		if turn.Err != nil {
			return turn.Err
		}
		if turn.Text != "" {
			if err := send(ctx, events, Event{Type: EventTextDelta, Text: turn.Text}); err != nil {
				return err
			}
		}
		for i := range turn.ToolCalls {
			call := turn.ToolCalls[i]
			if err := send(ctx, events, Event{Type: EventToolCall, Tool: &call}); err != nil {
				return err
			}
		}
		if err := send(ctx, events, Event{Type: EventUsage, Use: &Usage{InputTokens: 10, OutputTokens: 5}}); err != nil {
			return err
		}
		return send(ctx, events, Event{Type: EventDone})
	}), nil
}
