package cmd

import (
	"fmt"
	"os"

	"github.com/samsaffron/term-agent/internal/config"
	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/samsaffron/term-agent/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	providerFlag string
	modelFlag    string
	verbose      bool
	debugTrace   bool
	metricsAddr  string

	cfg    *config.Config
	logger = zap.NewNop()
)

const interruptedMessage = "Application interrupted by user. Exiting..."

var rootCmd = &cobra.Command{
	Use:   "term-agent",
	Short: "A terminal ReAct agent with tools and long-term memory",
	Long: `term-agent answers questions by reasoning step by step, calling tools
(calculator, web search, Wikipedia, page reader, memory) and showing every
thought, action and observation as it happens.

Examples:
  term-agent                            # main menu
  term-agent chat                       # straight into a chat session
  term-agent chat -p openai:gpt-4.1     # different provider and model
  term-agent memory search "movies"     # query long-term memory
  term-agent config show                # effective configuration`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyProviderOverrides(loaded, providerFlag, modelFlag); err != nil {
			return err
		}
		if metricsAddr != "" {
			loaded.Metrics.Addr = metricsAddr
		}
		cfg = loaded

		l, err := logging.New(cfg, verbose || debugTrace)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd, true)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "Override provider, optionally with model (e.g., openai:gpt-4.1)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Override model of the active provider")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Write debug-level logs")
	rootCmd.PersistentFlags().BoolVarP(&debugTrace, "debug", "d", false, "Log every trace message")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g., :9090)")
	if err := rootCmd.RegisterFlagCompletionFunc("provider", providerCompletion); err != nil {
		panic("failed to register provider completion: " + err.Error())
	}

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(configCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	loaded, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return loaded, nil
}

// applyProviderOverrides applies --provider, which may carry its own model
// as provider:model, then --model.
func applyProviderOverrides(c *config.Config, provider, model string) error {
	if provider != "" {
		p, m, err := llm.ParseProviderModel(provider)
		if err != nil {
			return err
		}
		c.ApplyOverrides(p, m)
	}
	c.ApplyOverrides("", model)
	return nil
}

func providerCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return llm.ProviderNames, cobra.ShellCompDirectiveNoFileComp
}
