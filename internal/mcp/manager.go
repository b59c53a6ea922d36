package mcp

import (
	"context"
	"fmt"
	"sort"

	"github.com/samsaffron/term-agent/internal/config"
	"github.com/samsaffron/term-agent/internal/llm"
	"go.uber.org/zap"
)

// Manager owns the configured MCP server connections.
type Manager struct {
	clients []*Client
	logger  *zap.Logger
}

// NewManager creates clients for every configured server, in name order.
func NewManager(cfg config.MCPConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	m := &Manager{logger: logger}
	for _, name := range names {
		m.clients = append(m.clients, NewClient(name, cfg.Servers[name]))
	}
	return m
}

// StartAll starts every server. A server that fails to start is logged and
// skipped so the agent still runs with the remaining tools.
func (m *Manager) StartAll(ctx context.Context) {
	for _, c := range m.clients {
		if err := c.Start(ctx); err != nil {
			m.logger.Warn("MCP server failed to start", zap.String("server", c.Name()), zap.Error(err))
			continue
		}
		m.logger.Info("MCP server started", zap.String("server", c.Name()), zap.Int("tools", len(c.Tools())))
	}
}

// Register adds the tools of every running server to registry. Tools are
// named "server__tool"; names already taken are skipped.
func (m *Manager) Register(registry *llm.ToolRegistry) int {
	added := 0
	for _, c := range m.clients {
		for _, spec := range c.Tools() {
			tool := NewMCPTool(c, spec)
			name := tool.Spec().Name
			if _, exists := registry.Get(name); exists {
				m.logger.Warn("skipping duplicate MCP tool", zap.String("tool", name))
				continue
			}
			registry.Register(tool)
			added++
		}
	}
	return added
}

// StopAll stops all running MCP servers.
func (m *Manager) StopAll() {
	for _, c := range m.clients {
		if err := c.Stop(); err != nil {
			m.logger.Debug("stopping MCP server", zap.String("server", c.Name()), zap.Error(err))
		}
	}
}

func qualifiedName(server, tool string) string {
	return fmt.Sprintf("%s__%s", server, tool)
}
