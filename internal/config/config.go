package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const appName = "term-agent"

type Config struct {
	Provider  string          `mapstructure:"provider" yaml:"provider"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Anthropic AnthropicConfig `mapstructure:"anthropic" yaml:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai" yaml:"openai"`
	Gemini    GeminiConfig    `mapstructure:"gemini" yaml:"gemini"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Memory    MemoryConfig    `mapstructure:"memory" yaml:"memory"`
	Tools     ToolsConfig     `mapstructure:"tools" yaml:"tools"`
	MCP       MCPConfig       `mapstructure:"mcp" yaml:"mcp"`
	Theme     ThemeConfig     `mapstructure:"theme" yaml:"theme"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// AgentConfig tunes the reasoning loop.
type AgentConfig struct {
	Temperature  float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTurns     int     `mapstructure:"max_turns" yaml:"max_turns"`
	Instructions string  `mapstructure:"instructions" yaml:"instructions"` // appended to the system prompt
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"` // optional, for OpenAI-compatible servers
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

// EmbeddingConfig selects the embedding backend for memory search.
// Provider "none" falls back to keyword search.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // gemini, openai, none
	Model    string `mapstructure:"model" yaml:"model"`
}

type MemoryConfig struct {
	Path   string `mapstructure:"path" yaml:"path"`    // default: $XDG_DATA_HOME/term-agent/memory.db
	UserID string `mapstructure:"user_id" yaml:"user_id"` // first namespace segment
	Seed   bool   `mapstructure:"seed" yaml:"seed"`    // seed default memories into an empty namespace
}

type ToolsConfig struct {
	TavilyAPIKey       string        `mapstructure:"tavily_api_key" yaml:"tavily_api_key"`
	TavilyMaxResults   int           `mapstructure:"tavily_max_results" yaml:"tavily_max_results"`
	WikipediaLang      string        `mapstructure:"wikipedia_lang" yaml:"wikipedia_lang"`
	WikipediaSentences int           `mapstructure:"wikipedia_sentences" yaml:"wikipedia_sentences"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
	UserAgent          string        `mapstructure:"user_agent" yaml:"user_agent"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// MCPConfig lists stdio MCP servers whose tools are offered to the agent.
type MCPConfig struct {
	Servers map[string]MCPServerConfig `mapstructure:"servers" yaml:"servers"`
}

type MCPServerConfig struct {
	Command string            `mapstructure:"command" yaml:"command"`
	Args    []string          `mapstructure:"args" yaml:"args"`
	Env     map[string]string `mapstructure:"env" yaml:"env"`
}

// ThemeConfig allows customization of UI colors
// Colors can be ANSI color numbers (0-255) or hex codes (#RRGGBB)
type ThemeConfig struct {
	Primary   string `mapstructure:"primary" yaml:"primary"`
	Secondary string `mapstructure:"secondary" yaml:"secondary"`
	Error     string `mapstructure:"error" yaml:"error"`
	Warning   string `mapstructure:"warning" yaml:"warning"`
	Muted     string `mapstructure:"muted" yaml:"muted"`
}

type LogConfig struct {
	File  string `mapstructure:"file" yaml:"file"`  // default: $XDG_DATA_HOME/term-agent/term-agent.log
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"` // empty disables the /metrics listener
}

// Load reads config.yaml from the config directory, then the working
// directory. A missing file is not an error.
func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath, ".")
}

// LoadFrom reads config.yaml from the given directories in order.
func LoadFrom(dirs ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix("TERM_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveCredentials(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "gemini")
	v.SetDefault("agent.temperature", 0)
	v.SetDefault("agent.max_turns", 20)
	v.SetDefault("gemini.model", "gemini-2.5-pro")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("embedding.provider", "gemini")
	v.SetDefault("embedding.model", "text-embedding-004")
	v.SetDefault("memory.user_id", "1")
	v.SetDefault("memory.seed", true)
	v.SetDefault("tools.tavily_max_results", 5)
	v.SetDefault("tools.wikipedia_lang", "en")
	v.SetDefault("tools.wikipedia_sentences", 5)
	v.SetDefault("tools.http_timeout", 10*time.Second)
	v.SetDefault("tools.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("tools.requests_per_second", 2.0)
	v.SetDefault("log.level", "info")
}

// ApplyOverrides applies provider and model overrides to the config.
// If provider is non-empty, it overrides the global provider.
// If model is non-empty, it overrides the model for the active provider.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model != "" {
		switch c.Provider {
		case "anthropic":
			c.Anthropic.Model = model
		case "openai":
			c.OpenAI.Model = model
		case "gemini":
			c.Gemini.Model = model
		}
	}
}

// ActiveModel returns the configured model of the selected provider.
func (c *Config) ActiveModel() string {
	switch c.Provider {
	case "anthropic":
		return c.Anthropic.Model
	case "openai":
		return c.OpenAI.Model
	case "gemini":
		return c.Gemini.Model
	}
	return ""
}

func resolveCredentials(cfg *Config) {
	cfg.Anthropic.APIKey = firstNonEmpty(expandEnv(cfg.Anthropic.APIKey), os.Getenv("ANTHROPIC_API_KEY"))
	cfg.OpenAI.APIKey = firstNonEmpty(expandEnv(cfg.OpenAI.APIKey), os.Getenv("OPENAI_API_KEY"))
	cfg.OpenAI.BaseURL = expandEnv(cfg.OpenAI.BaseURL)
	cfg.Gemini.APIKey = firstNonEmpty(expandEnv(cfg.Gemini.APIKey), os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
	cfg.Tools.TavilyAPIKey = firstNonEmpty(expandEnv(cfg.Tools.TavilyAPIKey), os.Getenv("TAVILY_API_KEY"))
	for name, server := range cfg.MCP.Servers {
		for k, val := range server.Env {
			server.Env[k] = expandEnv(val)
		}
		cfg.MCP.Servers[name] = server
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for term-agent.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, appName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", appName), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDataDir returns the XDG data directory for term-agent.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func GetDataDir() (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".local", "share", appName), nil
}

// LogPath returns the configured log file or the default under the data dir.
func (c *Config) LogPath() (string, error) {
	if c.Log.File != "" {
		return c.Log.File, nil
	}
	dir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName+".log"), nil
}

// Redacted returns a copy of the config with secrets masked, for display.
func (c *Config) Redacted() Config {
	out := *c
	out.Anthropic.APIKey = mask(c.Anthropic.APIKey)
	out.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	out.Gemini.APIKey = mask(c.Gemini.APIKey)
	out.Tools.TavilyAPIKey = mask(c.Tools.TavilyAPIKey)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}
