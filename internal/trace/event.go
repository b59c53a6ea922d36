package trace

import (
	"github.com/samsaffron/term-agent/internal/llm"
)

// RawEvent is one execution event as produced by the engine. The set of
// variants is closed; anything the converter does not recognise becomes an
// UnknownEvent.
type RawEvent interface {
	rawEvent()
}

// UserEvent is a message the operator sent.
type UserEvent struct {
	Text string
}

// AgentEvent is a model reply: optional reasoning text and zero or more
// requested tool invocations.
type AgentEvent struct {
	TextParts   []string
	Invocations []Invocation
}

// Invocation is a tool call requested by the agent.
type Invocation struct {
	Name      string
	Arguments []byte // JSON object
}

// ResultEvent is the output of a tool.
type ResultEvent struct {
	Name  string
	Value any
}

// TerminalEvent carries the structured final answer of a turn.
type TerminalEvent struct {
	FinalAnswer string
}

// UnknownEvent wraps a payload of unrecognised shape.
type UnknownEvent struct {
	Value any
}

func (UserEvent) rawEvent()     {}
func (AgentEvent) rawEvent()    {}
func (ResultEvent) rawEvent()   {}
func (TerminalEvent) rawEvent() {}
func (UnknownEvent) rawEvent()  {}

// FromMessage converts an engine message into a RawEvent.
func FromMessage(msg llm.Message) RawEvent {
	switch msg.Role {
	case llm.RoleUser:
		return UserEvent{Text: msg.TextContent()}
	case llm.RoleAssistant:
		var ev AgentEvent
		for _, part := range msg.Parts {
			switch {
			case part.Type == llm.PartText && part.Text != "":
				ev.TextParts = append(ev.TextParts, part.Text)
			case part.Type == llm.PartToolCall && part.ToolCall != nil:
				ev.Invocations = append(ev.Invocations, Invocation{
					Name:      part.ToolCall.Name,
					Arguments: part.ToolCall.Arguments,
				})
			}
		}
		return ev
	case llm.RoleTool:
		for _, part := range msg.Parts {
			if part.Type == llm.PartToolResult && part.ToolResult != nil {
				return ResultEvent{Name: part.ToolResult.Name, Value: part.ToolResult.Content}
			}
		}
	}
	return UnknownEvent{Value: msg}
}
