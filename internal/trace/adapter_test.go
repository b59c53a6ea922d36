package trace

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/samsaffron/term-agent/internal/agent"
	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/samsaffron/term-agent/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedSteps struct {
	steps  []agent.Step
	err    error
	read   int
	closed int
}

func (s *scriptedSteps) Recv() (agent.Step, error) {
	if s.read >= len(s.steps) {
		if s.err != nil {
			return agent.Step{}, s.err
		}
		return agent.Step{}, io.EOF
	}
	step := s.steps[s.read]
	s.read++
	return step, nil
}

func (s *scriptedSteps) Close() error {
	s.closed++
	return nil
}

type scriptedEngine struct {
	stream    *scriptedSteps
	startErr  error
	threadID  string
	questions []string
}

func (e *scriptedEngine) Stream(ctx context.Context, threadID, question string) (agent.StepStream, error) {
	e.threadID = threadID
	e.questions = append(e.questions, question)
	if e.startErr != nil {
		return nil, e.startErr
	}
	return e.stream, nil
}

func collect(t *testing.T, turn *Turn) ([]Message, error) {
	t.Helper()
	var out []Message
	for {
		msg, err := turn.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
}

func toolCallMsg(text, name, args string) llm.Message {
	msg := llm.Message{Role: llm.RoleAssistant}
	if text != "" {
		msg.Parts = append(msg.Parts, llm.Part{Type: llm.PartText, Text: text})
	}
	msg.Parts = append(msg.Parts, llm.Part{Type: llm.PartToolCall, ToolCall: &llm.ToolCall{
		ID: "call_" + name, Name: name, Arguments: json.RawMessage(args),
	}})
	return msg
}

func agentStep(msgs ...llm.Message) agent.Step {
	return agent.Step{Node: agent.NodeAgent, Messages: msgs}
}

func toolStep(msgs ...llm.Message) agent.Step {
	return agent.Step{Node: agent.NodeTools, Messages: msgs}
}

func finalStep(answer string) agent.Step {
	return agent.Step{Node: agent.NodeStructuredResponse, Structured: &agent.StructuredResponse{FinalAnswer: answer}}
}

func TestTurn_StopsAtFinalAnswer(t *testing.T) {
	steps := &scriptedSteps{steps: []agent.Step{
		agentStep(toolCallMsg("Let me compute.", "calc", `{"expression":"2+2"}`)),
		toolStep(llm.ToolResultMessage("call_calc", "calc", "4")),
		finalStep("4"),
		agentStep(llm.AssistantText("never seen")),
		toolStep(llm.ToolResultMessage("x", "calc", "never seen")),
	}}
	engine := &scriptedEngine{stream: steps}
	tracer := NewTracer(engine, "thread-1", nil)

	turn, err := tracer.TraceTurn(context.Background(), "What is 2+2?")
	require.NoError(t, err)
	got, err := collect(t, turn)
	require.NoError(t, err)

	want := []Message{
		{Type: TypeThought, Content: "Let me compute."},
		{Type: TypeAction, Content: "calc: {expression: 2+2}"},
		{Type: TypeObservation, Content: "4"},
		{Type: TypeFinalAnswer, Content: "4"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("trace mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, steps.read, "events after the final answer must not be pulled")
	assert.Equal(t, 1, steps.closed)
	assert.Equal(t, "thread-1", engine.threadID)
	assert.Equal(t, []string{"What is 2+2?"}, engine.questions)

	// Further reads keep reporting the end of the turn.
	_, err = turn.Recv()
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, turn.Close())
	assert.Equal(t, 1, steps.closed)
}

func TestTurn_FinalAnswerDropsBufferedSiblings(t *testing.T) {
	terminal := finalStep("done")
	terminal.Messages = []llm.Message{llm.AssistantText("sibling thought")}
	steps := &scriptedSteps{steps: []agent.Step{terminal}}

	turn, err := NewTracer(&scriptedEngine{stream: steps}, "t", nil).TraceTurn(context.Background(), "q")
	require.NoError(t, err)
	got, err := collect(t, turn)
	require.NoError(t, err)
	assert.Equal(t, []Message{{Type: TypeFinalAnswer, Content: "done"}}, got)
}

func TestTurn_NoFinalAnswer(t *testing.T) {
	steps := &scriptedSteps{steps: []agent.Step{
		toolStep(llm.ToolResultMessage("a", "t", "one")),
		toolStep(llm.ToolResultMessage("b", "t", "two")),
		toolStep(llm.ToolResultMessage("c", "t", "three")),
	}}
	turn, err := NewTracer(&scriptedEngine{stream: steps}, "t", nil).TraceTurn(context.Background(), "q")
	require.NoError(t, err)
	got, err := collect(t, turn)
	require.NoError(t, err)

	want := []Message{
		{Type: TypeObservation, Content: "one"},
		{Type: TypeObservation, Content: "two"},
		{Type: TypeObservation, Content: "three"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("trace mismatch (-want +got):\n%s", diff)
	}
	for _, m := range got {
		assert.NotEqual(t, TypeFinalAnswer, m.Type)
	}
	assert.Equal(t, 1, steps.closed)
}

func TestTurn_UsesOnlyLastMessageAndSkipsEmptySteps(t *testing.T) {
	steps := &scriptedSteps{steps: []agent.Step{
		{Node: agent.NodeUsage, Usage: &llm.Usage{InputTokens: 10, OutputTokens: 2}},
		agentStep(llm.UserText("earlier history"), toolCallMsg("", "list_namespaces", `{}`)),
		{Node: agent.NodeTools},
		toolStep(llm.ToolResultMessage("a", "list_namespaces", `[["1","memories"]]`)),
	}}
	turn, err := NewTracer(&scriptedEngine{stream: steps}, "t", nil).TraceTurn(context.Background(), "q")
	require.NoError(t, err)
	got, err := collect(t, turn)
	require.NoError(t, err)

	want := []Message{
		{Type: TypeAction, Content: "list_namespaces: {}"},
		{Type: TypeObservation, Content: `[["1","memories"]]`},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestTurn_ActionsKeepRequestOrder(t *testing.T) {
	msg := llm.Message{Role: llm.RoleAssistant, Parts: []llm.Part{
		{Type: llm.PartText, Text: "Two searches."},
		{Type: llm.PartToolCall, ToolCall: &llm.ToolCall{Name: "search_web", Arguments: json.RawMessage(`{"query":"a"}`)}},
		{Type: llm.PartToolCall, ToolCall: &llm.ToolCall{Name: "search_wikipedia", Arguments: json.RawMessage(`{"query":"b"}`)}},
	}}
	steps := &scriptedSteps{steps: []agent.Step{agentStep(msg)}}
	turn, err := NewTracer(&scriptedEngine{stream: steps}, "t", nil).TraceTurn(context.Background(), "q")
	require.NoError(t, err)
	got, err := collect(t, turn)
	require.NoError(t, err)

	want := []Message{
		{Type: TypeThought, Content: "Two searches."},
		{Type: TypeAction, Content: "search_web: {query: a}"},
		{Type: TypeAction, Content: "search_wikipedia: {query: b}"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestTurn_EngineErrorPropagates(t *testing.T) {
	boom := errors.New("provider unavailable")
	steps := &scriptedSteps{
		steps: []agent.Step{toolStep(llm.ToolResultMessage("a", "t", "partial"))},
		err:   boom,
	}
	turn, err := NewTracer(&scriptedEngine{stream: steps}, "t", nil).TraceTurn(context.Background(), "q")
	require.NoError(t, err)

	got, err := collect(t, turn)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Message{{Type: TypeObservation, Content: "partial"}}, got)
	assert.Equal(t, 1, steps.closed)

	_, err = turn.Recv()
	assert.ErrorIs(t, err, boom)
}

func TestTraceTurn_StartError(t *testing.T) {
	boom := errors.New("empty question")
	_, err := NewTracer(&scriptedEngine{startErr: boom}, "t", nil).TraceTurn(context.Background(), "")
	assert.ErrorIs(t, err, boom)
}

func TestTurn_CloseBeforeEnd(t *testing.T) {
	steps := &scriptedSteps{steps: []agent.Step{
		toolStep(llm.ToolResultMessage("a", "t", "one")),
		toolStep(llm.ToolResultMessage("b", "t", "two")),
	}}
	turn, err := NewTracer(&scriptedEngine{stream: steps}, "t", nil).TraceTurn(context.Background(), "q")
	require.NoError(t, err)

	msg, err := turn.Recv()
	require.NoError(t, err)
	assert.Equal(t, "one", msg.Content)

	require.NoError(t, turn.Close())
	require.NoError(t, turn.Close())
	assert.Equal(t, 1, steps.closed)

	_, err = turn.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

// Runs a real engine against a scripted model to check the whole path from
// model reply to classified trace.
func TestTracer_WithEngine(t *testing.T) {
	provider := llm.NewMockProvider("mock").
		AddToolCall("I should use the calculator.", "call_1", "calc", map[string]any{"expression": "2+2"}).
		AddToolCall("", "call_2", agent.FinalAnswerToolName, map[string]any{"final_answer": "4"})

	calc := testutil.NewMockTool("calc", "4")
	registry := llm.NewToolRegistry()
	registry.Register(calc)

	engine := agent.New(provider, registry, agent.Options{Model: "mock-model", MaxTurns: 5})
	tracer := NewTracer(engine, agent.NewThreadID(), nil)

	turn, err := tracer.TraceTurn(context.Background(), "What is 2+2?")
	require.NoError(t, err)
	defer turn.Close()

	got, err := collect(t, turn)
	require.NoError(t, err)

	want := []Message{
		{Type: TypeThought, Content: "I should use the calculator."},
		{Type: TypeAction, Content: "calc: {expression: 2+2}"},
		{Type: TypeObservation, Content: "4"},
		{Type: TypeFinalAnswer, Content: "4"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("trace mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, calc.InvocationCount())
}

func TestTracer_WithEngine_PlainTextAnswerKeepsThought(t *testing.T) {
	provider := llm.NewMockProvider("mock").
		AddTextResponse("Thought: I know this.\nFinal Answer: Paris")

	engine := agent.New(provider, nil, agent.Options{Model: "mock-model"})
	turn, err := NewTracer(engine, agent.NewThreadID(), nil).TraceTurn(context.Background(), "Capital of France?")
	require.NoError(t, err)
	defer turn.Close()

	got, err := collect(t, turn)
	require.NoError(t, err)

	want := []Message{
		{Type: TypeThought, Content: "Thought: I know this.\nFinal Answer: Paris"},
		{Type: TypeFinalAnswer, Content: "Paris"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("trace mismatch (-want +got):\n%s", diff)
	}
}
