package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream adapts a producer goroutine to the Stream interface.
type eventStream struct {
	events <-chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// newEventStream runs produce in a goroutine and exposes its events as a Stream.
// A nil return from produce ends the stream with io.EOF; an error is returned
// from Recv after all buffered events are drained.
func newEventStream(ctx context.Context, produce func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, 16)
	s := &eventStream{events: ch, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer close(ch)
		if err := produce(ctx, ch); err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	event, ok := <-s.events
	if ok {
		return event, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Event{}, s.err
	}
	return Event{}, io.EOF
}

// Close cancels the producer and waits for it to exit.
func (s *eventStream) Close() error {
	s.cancel()
	for range s.events {
	}
	<-s.done
	return nil
}

// send delivers an event unless ctx is cancelled first.
func send(ctx context.Context, events chan<- Event, event Event) error {
	select {
	case events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
