// Package trace turns the agent's execution steps into typed, display-ready
// messages: the thoughts, actions, observations and final answer of a turn.
package trace

import "fmt"

// MessageType classifies a message in the agent's ReAct trace.
type MessageType int

const (
	TypeUser MessageType = iota + 1
	TypeThought
	TypeAction
	TypeObservation
	TypeFinalAnswer
)

func (t MessageType) String() string {
	switch t {
	case TypeUser:
		return "USER"
	case TypeThought:
		return "THOUGHT"
	case TypeAction:
		return "ACTION"
	case TypeObservation:
		return "OBSERVATION"
	case TypeFinalAnswer:
		return "FINAL_ANSWER"
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

// InProgress reports whether the type is rendered as incremental progress
// before the final answer.
func (t MessageType) InProgress() bool {
	return t == TypeThought || t == TypeAction || t == TypeObservation
}

// Message is one classified entry of the trace.
type Message struct {
	Type    MessageType
	Content string
}

func (m Message) String() string {
	return m.Type.String() + ": " + m.Content
}
