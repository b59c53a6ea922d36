package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Turn outcomes.
const (
	OutcomeAnswered = "answered"
	OutcomeNoAnswer = "no_answer"
	OutcomeError    = "error"
)

var (
	// MessagesTotal counts classified trace messages by type
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "term_agent_messages_total",
			Help: "Total number of classified trace messages",
		},
		[]string{"type"},
	)

	// TurnsTotal counts questions by how they ended
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "term_agent_turns_total",
			Help: "Total number of agent turns",
		},
		[]string{"outcome"},
	)

	// TurnDuration tracks how long a question takes to answer
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "term_agent_turn_duration_seconds",
			Help:    "Agent turn duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// ToolCalls tracks tool invocations
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "term_agent_tool_calls_total",
			Help: "Total number of tool calls",
		},
		[]string{"tool", "status"},
	)
)

// Recorder forwards session and engine events to the package collectors.
// The zero value is ready to use.
type Recorder struct{}

// RecordMessage counts one classified message.
func (Recorder) RecordMessage(messageType string) {
	MessagesTotal.WithLabelValues(messageType).Inc()
}

// RecordTurn records how a turn ended and how long it took.
func (Recorder) RecordTurn(outcome string, d time.Duration) {
	TurnsTotal.WithLabelValues(outcome).Inc()
	TurnDuration.Observe(d.Seconds())
}

// ObserveToolCall records a tool invocation.
func (Recorder) ObserveToolCall(name string, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	ToolCalls.WithLabelValues(name, status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
