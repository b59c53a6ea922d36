package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samsaffron/term-agent/internal/metrics"
	"github.com/samsaffron/term-agent/internal/trace"
	"go.uber.org/zap"
)

const (
	SessionBanner      = "You are now in a chat session with the AI agent.\nType exit or quit to return to the main menu."
	NoAnswerNotice     = "No answer was produced for this question."
	UnexpectedNotice   = "Sorry, something went wrong!"
	turnErrorNoticeFmt = "Error: %v"
)

// Tracer starts one traced turn per question.
type Tracer interface {
	TraceTurn(ctx context.Context, question string) (*trace.Turn, error)
}

// Recorder receives per-message and per-turn measurements.
type Recorder interface {
	RecordMessage(messageType string)
	RecordTurn(outcome string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordMessage(string)              {}
func (nopRecorder) RecordTurn(string, time.Duration) {}

// SessionOptions configures a Session.
type SessionOptions struct {
	Logger   *zap.Logger
	Recorder Recorder
	// Debug logs every classified message.
	Debug bool
}

// Session is the question/answer loop. One turn is in flight at a time and
// exit keywords are only honoured while waiting for input.
type Session struct {
	surface  Surface
	tracer   Tracer
	logger   *zap.Logger
	recorder Recorder
	debug    bool
}

func NewSession(surface Surface, tracer Tracer, opts SessionOptions) *Session {
	s := &Session{
		surface:  surface,
		tracer:   tracer,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		debug:    opts.Debug,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	return s
}

// IsExitCommand reports whether input asks to leave the session.
func IsExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit":
		return true
	}
	return false
}

// Run prompts for questions until the operator exits or input ends. It
// returns nil on exit or io.EOF, and ctx.Err() when cancelled.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		input, err := s.surface.PromptQuestion(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if IsExitCommand(input) {
			return nil
		}
		question := strings.TrimSpace(input)
		if question == "" {
			continue
		}

		if err := s.runTurn(ctx, question); err != nil {
			return err
		}
	}
}

// runTurn streams one question. Only cancellation of ctx is returned; turn
// failures are reported on the surface.
func (s *Session) runTurn(ctx context.Context, question string) error {
	s.surface.ShowUserEcho(question)
	start := time.Now()
	outcome := metrics.OutcomeNoAnswer
	defer func() {
		s.recorder.RecordTurn(outcome, time.Since(start))
		s.logger.Info("turn finished", zap.String("outcome", outcome), zap.Duration("duration", time.Since(start)))
	}()

	turn, err := s.tracer.TraceTurn(ctx, question)
	if err != nil {
		outcome = metrics.OutcomeError
		return s.turnFailed(ctx, err)
	}
	defer turn.Close()

	for {
		msg, err := turn.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			outcome = metrics.OutcomeError
			return s.turnFailed(ctx, err)
		}

		s.recorder.RecordMessage(msg.Type.String())
		if s.debug {
			s.logger.Debug("trace message", zap.Stringer("type", msg.Type), zap.String("content", msg.Content))
		}

		switch {
		case msg.Type.InProgress():
			s.surface.ShowProgress(msg.Type.String(), msg.Content)
		case msg.Type == trace.TypeFinalAnswer:
			s.surface.ShowFinalAnswer(msg.Content)
			outcome = metrics.OutcomeAnswered
			return nil
		default:
			s.logger.Warn("unexpected trace message", zap.Stringer("type", msg.Type))
			s.surface.ShowNotice(UnexpectedNotice)
		}
	}

	s.surface.ShowNotice(NoAnswerNotice)
	return nil
}

func (s *Session) turnFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.Error("turn failed", zap.Error(err))
	s.surface.ShowNotice(fmt.Sprintf(turnErrorNoticeFmt, err))
	s.surface.ShowNotice(NoAnswerNotice)
	return nil
}
