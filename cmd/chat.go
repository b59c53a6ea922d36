package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/samsaffron/term-agent/internal/chat"
	"github.com/samsaffron/term-agent/internal/metrics"
	"github.com/samsaffron/term-agent/internal/signal"
	"github.com/samsaffron/term-agent/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a chat session without the main menu",
	Long: `Start a chat session with the agent. Each answer is preceded by the
agent's thoughts, tool calls and tool results.

Type exit or quit to leave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd, false)
	},
}

func runInteractive(cmd *cobra.Command, withMenu bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context())
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	surface := ui.NewTerminal(ui.ThemeFromConfig(cfg.Theme))
	session := chat.NewSession(surface, app.tracer, chat.SessionOptions{
		Logger:   logger,
		Recorder: metrics.Recorder{},
		Debug:    debugTrace,
	})

	if withMenu {
		err = chat.NewConsole(surface, session).Run(ctx)
	} else {
		surface.ShowNotice(chat.SessionBanner)
		err = session.Run(ctx)
	}

	if isInterrupt(ctx, err) {
		fmt.Fprintln(cmd.OutOrStdout(), "\n"+interruptedMessage)
		return nil
	}
	return err
}

// isInterrupt reports whether err came from the operator stopping the
// program, by signal or by aborting a prompt.
func isInterrupt(ctx context.Context, err error) bool {
	if errors.Is(err, chat.ErrInterrupted) {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}
