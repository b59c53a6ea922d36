package llm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect(t *testing.T, stream Stream) ([]Event, error) {
	t.Helper()
	defer stream.Close()
	var events []Event
	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

func TestEventStream_DrainsThenEOF(t *testing.T) {
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		if err := send(ctx, events, Event{Type: EventTextDelta, Text: "a"}); err != nil {
			return err
		}
		return send(ctx, events, Event{Type: EventDone})
	})

	events, err := collect(t, stream)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Text)
	assert.Equal(t, EventDone, events[1].Type)
}

func TestEventStream_ErrorAfterEvents(t *testing.T) {
	boom := errors.New("boom")
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		_ = send(ctx, events, Event{Type: EventTextDelta, Text: "partial"})
		return boom
	})

	events, err := collect(t, stream)
	require.ErrorIs(t, err, boom)
	require.Len(t, events, 1)
}

func TestEventStream_CloseStopsProducer(t *testing.T) {
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		for {
			if err := send(ctx, events, Event{Type: EventTextDelta, Text: "x"}); err != nil {
				return err
			}
		}
	})

	_, err := stream.Recv()
	require.NoError(t, err)
	require.NoError(t, stream.Close())
}

func TestRetryProvider_RetriesTransientFailure(t *testing.T) {
	mock := NewMockProvider("mock").
		AddError(errors.New("429 too many requests")).
		AddTextResponse("ok")
	p := WrapWithRetry(mock, RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, nil)

	stream, err := p.Stream(context.Background(), Request{Messages: []Message{UserText("hi")}})
	require.NoError(t, err)
	events, err := collect(t, stream)
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, EventRetry, events[0].Type)
	assert.Equal(t, 1, events[0].RetryAttempt)
	assert.Equal(t, "ok", events[1].Text)
	assert.Equal(t, 0, mock.Remaining())
}

func TestRetryProvider_PermanentFailure(t *testing.T) {
	mock := NewMockProvider("mock").
		AddError(errors.New("invalid api key")).
		AddTextResponse("never")
	p := WrapWithRetry(mock, RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, nil)

	stream, err := p.Stream(context.Background(), Request{})
	require.NoError(t, err)
	_, err = collect(t, stream)
	require.EqualError(t, err, "invalid api key")
	assert.Equal(t, 1, mock.Remaining())
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("Error 429, RESOURCE_EXHAUSTED"), true},
		{errors.New("overloaded_error"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("400 bad request"), false},
	}
	for _, tc := range cases {
		if got := isRetryable(tc.err); got != tc.want {
			t.Errorf("isRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestCalculateBackoff_RetryAfter(t *testing.T) {
	r := &RetryProvider{config: RetryConfig{BaseBackoff: time.Second, MaxBackoff: 30 * time.Second}}
	got := r.calculateBackoff(1, errors.New("rate limited, retry-after: 7"))
	assert.Equal(t, 7*time.Second, got)

	got = r.calculateBackoff(1, errors.New("retry after 120"))
	assert.Equal(t, 30*time.Second, got)

	got = r.calculateBackoff(10, errors.New("503"))
	assert.LessOrEqual(t, got, 30*time.Second)
}
