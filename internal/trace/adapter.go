package trace

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/samsaffron/term-agent/internal/agent"
	"go.uber.org/zap"
)

// Engine is the reasoning engine a Tracer drives.
type Engine interface {
	Stream(ctx context.Context, threadID, question string) (agent.StepStream, error)
}

// Tracer runs questions through an engine on one conversation thread.
type Tracer struct {
	engine   Engine
	threadID string
	logger   *zap.Logger
}

func NewTracer(engine Engine, threadID string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{engine: engine, threadID: threadID, logger: logger}
}

// ThreadID returns the conversation thread questions are sent on.
func (t *Tracer) ThreadID() string {
	return t.threadID
}

// TraceTurn starts the engine on a question and returns the classified trace
// of that single turn. The turn is read once with Recv until io.EOF.
func (t *Tracer) TraceTurn(ctx context.Context, question string) (*Turn, error) {
	steps, err := t.engine.Stream(ctx, t.threadID, question)
	if err != nil {
		return nil, fmt.Errorf("start turn: %w", err)
	}
	return &Turn{steps: steps, logger: t.logger}, nil
}

// Turn is a lazy, single-pass sequence of classified messages.
type Turn struct {
	steps   agent.StepStream
	logger  *zap.Logger
	pending []Message
	done    bool
	err     error
}

// Recv returns the next message. It returns io.EOF after a final answer or
// when the engine finishes without one, and the engine's error if it failed.
func (t *Turn) Recv() (Message, error) {
	for len(t.pending) == 0 {
		if t.done {
			if t.err != nil {
				return Message{}, t.err
			}
			return Message{}, io.EOF
		}

		step, err := t.steps.Recv()
		if errors.Is(err, io.EOF) {
			t.finish(nil)
			continue
		}
		if err != nil {
			t.finish(err)
			continue
		}

		// The terminal step ends the turn at once. Anything else carried in
		// the same step is dropped and the engine is not drained.
		if step.Structured != nil {
			t.finish(nil)
			return Message{Type: TypeFinalAnswer, Content: step.Structured.FinalAnswer}, nil
		}

		if len(step.Messages) == 0 {
			t.logger.Debug("skipping step without messages", zap.String("node", string(step.Node)))
			continue
		}

		last := step.Messages[len(step.Messages)-1]
		t.pending = Classify(FromMessage(last))
	}

	msg := t.pending[0]
	t.pending = t.pending[1:]
	return msg, nil
}

// Close releases the engine stream. It is safe to call more than once.
func (t *Turn) Close() error {
	if !t.done {
		t.finish(nil)
	}
	return nil
}

func (t *Turn) finish(err error) {
	t.done = true
	t.err = err
	t.pending = nil
	if cerr := t.steps.Close(); cerr != nil {
		t.logger.Debug("closing step stream", zap.Error(cerr))
	}
}
