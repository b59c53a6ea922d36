package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samsaffron/term-agent/internal/llm"
	"go.uber.org/zap"
)

// ErrMaxTurns is returned when the loop runs out of turns without an answer.
var ErrMaxTurns = errors.New("agent exceeded max turns without a final answer")

const defaultMaxTurns = 20

// ToolObserver is notified after every tool execution.
type ToolObserver interface {
	ObserveToolCall(name string, failed bool)
}

// Options configures an Engine.
type Options struct {
	Model        string
	Temperature  float32
	MaxTurns     int
	SystemPrompt string
	Logger       *zap.Logger
	Observer     ToolObserver
}

// Engine runs the ReAct loop: call the model, execute the tools it asks for,
// feed the observations back, until it delivers a final answer.
// Conversation history is kept per thread for the life of the process.
type Engine struct {
	provider llm.Provider
	tools    *llm.ToolRegistry
	opts     Options
	logger   *zap.Logger

	mu      sync.Mutex
	threads map[string][]llm.Message
}

// New builds an engine over the given provider and tools. The final_answer
// tool is registered automatically.
func New(provider llm.Provider, tools *llm.ToolRegistry, opts Options) *Engine {
	if tools == nil {
		tools = llm.NewToolRegistry()
	}
	tools.Register(finalAnswerTool{})
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = defaultMaxTurns
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		provider: provider,
		tools:    tools,
		opts:     opts,
		logger:   logger,
		threads:  make(map[string][]llm.Message),
	}
}

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *llm.ToolRegistry {
	return e.tools
}

// NewThreadID returns a fresh conversation id.
func NewThreadID() string {
	return "thread-" + uuid.NewString()
}

// History returns a copy of the conversation recorded for a thread.
func (e *Engine) History(threadID string) []llm.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]llm.Message(nil), e.threads[threadID]...)
}

func (e *Engine) saveHistory(threadID string, history []llm.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threads[threadID] = history
}

// Stream answers one question on a thread, emitting a step per model reply,
// one per tool result, and a terminal structured step with the final answer.
func (e *Engine) Stream(ctx context.Context, threadID, question string) (StepStream, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("empty question")
	}
	history := append(e.History(threadID), llm.UserText(question))

	return newStepStream(ctx, func(ctx context.Context, emit func(Step) error) error {
		// The user message and anything that completed is kept even if the
		// turn fails, so the thread stays consistent for the next question.
		defer func() { e.saveHistory(threadID, history) }()
		var err error
		history, err = e.runLoop(ctx, history, emit)
		return err
	}), nil
}

func (e *Engine) runLoop(ctx context.Context, history []llm.Message, emit func(Step) error) ([]llm.Message, error) {
	log := e.logger.With(zap.String("provider", e.provider.Name()))

	for turn := 0; turn < e.opts.MaxTurns; turn++ {
		req := llm.Request{
			Model:       e.opts.Model,
			Messages:    e.requestMessages(history, turn == e.opts.MaxTurns-1),
			Tools:       e.tools.AllSpecs(),
			ToolChoice:  llm.ToolChoice{Mode: llm.ToolChoiceAuto},
			Temperature: e.opts.Temperature,
		}
		if turn == e.opts.MaxTurns-1 {
			req.ToolChoice = llm.ToolChoice{Mode: llm.ToolChoiceName, Name: FinalAnswerToolName}
		}

		log.Debug("model turn", zap.Int("turn", turn), zap.Int("messages", len(req.Messages)))
		text, calls, usage, err := e.callModel(ctx, req)
		if err != nil {
			return history, err
		}
		if usage != nil {
			if err := emit(Step{Node: NodeUsage, Usage: usage}); err != nil {
				return history, err
			}
		}

		assistant := buildAssistantMessage(text, calls)
		history = append(history, assistant)

		if len(calls) == 0 {
			answer := extractFinalAnswer(text)
			if answer == "" {
				log.Warn("model returned an empty reply")
				continue
			}
			// The reply is the agent's last step; the answer extracted from
			// it follows as the terminal step.
			if err := emit(Step{Node: NodeAgent, Messages: []llm.Message{assistant}}); err != nil {
				return history, err
			}
			return history, emit(Step{
				Node:       NodeStructuredResponse,
				Messages:   []llm.Message{assistant},
				Structured: &StructuredResponse{FinalAnswer: answer},
			})
		}

		// Everything except the finishing call is shown as the agent's step.
		visible := assistantWithout(assistant, FinalAnswerToolName)
		if len(visible.Parts) > 0 {
			if err := emit(Step{Node: NodeAgent, Messages: []llm.Message{visible}}); err != nil {
				return history, err
			}
		}

		for i, call := range calls {
			result, failed := e.executeToolCall(ctx, call)
			if e.tools.IsFinishingTool(call.Name) && !failed {
				history = append(history, llm.ToolResultMessage(call.ID, call.Name, "Answer delivered."))
				// Every tool call needs a result before the next request.
				for _, rest := range calls[i+1:] {
					history = append(history, llm.ToolResultMessage(rest.ID, rest.Name, "Skipped: the question was already answered."))
				}
				return history, emit(Step{
					Node:       NodeStructuredResponse,
					Messages:   []llm.Message{assistant},
					Structured: &StructuredResponse{FinalAnswer: result},
				})
			}

			var msg llm.Message
			if failed {
				msg = llm.ToolErrorMessage(call.ID, call.Name, result)
			} else {
				msg = llm.ToolResultMessage(call.ID, call.Name, result)
			}
			history = append(history, msg)
			if err := emit(Step{Node: NodeTools, Messages: []llm.Message{msg}}); err != nil {
				return history, err
			}
		}
	}

	return history, fmt.Errorf("%w (%d)", ErrMaxTurns, e.opts.MaxTurns)
}

func (e *Engine) requestMessages(history []llm.Message, lastTurn bool) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	if e.opts.SystemPrompt != "" {
		msgs = append(msgs, llm.SystemText(e.opts.SystemPrompt))
	}
	msgs = append(msgs, history...)
	if lastTurn {
		msgs = append(msgs, llm.UserText(stopHint))
	}
	return msgs
}

// callModel runs one provider request and collects its text and tool calls.
func (e *Engine) callModel(ctx context.Context, req llm.Request) (string, []llm.ToolCall, *llm.Usage, error) {
	stream, err := e.provider.Stream(ctx, req)
	if err != nil {
		return "", nil, nil, err
	}
	defer stream.Close()

	var text strings.Builder
	var calls []llm.ToolCall
	var usage *llm.Usage
	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, nil, err
		}
		switch event.Type {
		case llm.EventTextDelta:
			text.WriteString(event.Text)
		case llm.EventToolCall:
			if event.Tool != nil {
				call := *event.Tool
				if call.ID == "" {
					call.ID = "call_" + uuid.NewString()
				}
				calls = append(calls, call)
			}
		case llm.EventUsage:
			usage = event.Use
		case llm.EventRetry:
			e.logger.Info("provider retry",
				zap.Int("attempt", event.RetryAttempt),
				zap.Int("max_attempts", event.RetryMaxAttempts),
				zap.Float64("wait_secs", event.RetryWaitSecs))
		case llm.EventError:
			if event.Err != nil {
				return "", nil, nil, event.Err
			}
		}
	}
	return text.String(), calls, usage, nil
}

// executeToolCall runs a tool and returns its output and whether it failed.
func (e *Engine) executeToolCall(ctx context.Context, call llm.ToolCall) (string, bool) {
	log := e.logger.With(zap.String("tool", call.Name), zap.String("call_id", call.ID))

	tool, ok := e.tools.Get(call.Name)
	if !ok {
		log.Warn("tool not registered")
		e.observe(call.Name, true)
		return fmt.Sprintf("Error: tool not registered: %s", call.Name), true
	}

	output, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		log.Warn("tool failed", zap.Error(err))
		e.observe(call.Name, true)
		return fmt.Sprintf("Error: %v", err), true
	}
	log.Debug("tool executed", zap.Int("output_len", len(output)))
	e.observe(call.Name, false)
	return output, false
}

func (e *Engine) observe(name string, failed bool) {
	if e.opts.Observer != nil {
		e.opts.Observer.ObserveToolCall(name, failed)
	}
}

func buildAssistantMessage(text string, calls []llm.ToolCall) llm.Message {
	msg := llm.Message{Role: llm.RoleAssistant}
	if strings.TrimSpace(text) != "" {
		msg.Parts = append(msg.Parts, llm.Part{Type: llm.PartText, Text: text})
	}
	for i := range calls {
		call := calls[i]
		msg.Parts = append(msg.Parts, llm.Part{Type: llm.PartToolCall, ToolCall: &call})
	}
	return msg
}

func assistantWithout(msg llm.Message, toolName string) llm.Message {
	out := llm.Message{Role: msg.Role}
	for _, part := range msg.Parts {
		if part.Type == llm.PartToolCall && part.ToolCall != nil && part.ToolCall.Name == toolName {
			continue
		}
		out.Parts = append(out.Parts, part)
	}
	return out
}

// extractFinalAnswer returns the text after the last "Final Answer:" marker,
// or the whole reply when there is none.
func extractFinalAnswer(text string) string {
	const marker = "Final Answer:"
	if idx := strings.LastIndex(text, marker); idx >= 0 {
		return strings.TrimSpace(text[idx+len(marker):])
	}
	return strings.TrimSpace(text)
}
