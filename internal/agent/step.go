package agent

import (
	"context"
	"io"
	"sync"

	"github.com/samsaffron/term-agent/internal/llm"
)

// Node names a stage of the agent graph that produced a step.
type Node string

const (
	NodeAgent              Node = "agent"
	NodeTools              Node = "tools"
	NodeStructuredResponse Node = "generate_structured_response"
	NodeUsage              Node = "usage"
)

// StructuredResponse is the terminal result of a turn.
type StructuredResponse struct {
	FinalAnswer string `json:"final_answer"`
}

// Step is one update emitted while the engine answers a question.
// Bookkeeping steps (NodeUsage) carry no messages.
type Step struct {
	Node       Node
	Messages   []llm.Message
	Structured *StructuredResponse
	Usage      *llm.Usage
}

// StepStream yields steps until io.EOF.
type StepStream interface {
	Recv() (Step, error)
	Close() error
}

type stepStream struct {
	steps  <-chan Step
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func newStepStream(ctx context.Context, produce func(ctx context.Context, emit func(Step) error) error) StepStream {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Step)
	s := &stepStream{steps: ch, cancel: cancel, done: make(chan struct{})}

	emit := func(step Step) error {
		select {
		case ch <- step:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(s.done)
		defer close(ch)
		if err := produce(ctx, emit); err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

func (s *stepStream) Recv() (Step, error) {
	step, ok := <-s.steps
	if ok {
		return step, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Step{}, s.err
	}
	return Step{}, io.EOF
}

// Close stops the engine for this turn and waits for it to exit.
func (s *stepStream) Close() error {
	s.cancel()
	for range s.steps {
	}
	<-s.done
	return nil
}
