// Package mcp connects to Model Context Protocol servers over stdio and
// offers their tools to the agent.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/samsaffron/term-agent/internal/config"
)

// ToolSpec describes a tool available from an MCP server.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Client wraps an MCP server connection.
type Client struct {
	name    string
	config  config.MCPServerConfig
	client  *mcp.Client
	session *mcp.ClientSession
	tools   []ToolSpec
	mu      sync.RWMutex
	running bool
}

// NewClient creates a new MCP client for the given server configuration.
func NewClient(name string, cfg config.MCPServerConfig) *Client {
	return &Client{
		name:   name,
		config: cfg,
	}
}

// Name returns the server name.
func (c *Client) Name() string {
	return c.name
}

// Start launches the server process and initializes the session.
func (c *Client) Start(ctx context.Context) error {
	return c.connect(ctx, c.createStdioTransport(ctx))
}

func (c *Client) connect(ctx context.Context, transport mcp.Transport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	c.client = mcp.NewClient(&mcp.Implementation{
		Name:    "term-agent",
		Version: "1.0.0",
	}, nil)

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect to MCP server %s: %w", c.name, err)
	}
	c.session = session

	if err := c.refreshTools(ctx); err != nil {
		c.session.Close()
		c.session = nil
		return fmt.Errorf("list tools from %s: %w", c.name, err)
	}

	c.running = true
	return nil
}

// createStdioTransport builds the command for the server. Without custom
// env vars the child inherits the parent environment; with them, the
// parent environment is copied and the custom values appended.
func (c *Client) createStdioTransport(ctx context.Context) mcp.Transport {
	cmd := exec.CommandContext(ctx, c.config.Command, c.config.Args...)
	if len(c.config.Env) > 0 {
		keys := make([]string, 0, len(c.config.Env))
		for k := range c.config.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		cmd.Env = os.Environ()
		for _, k := range keys {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, c.config.Env[k]))
		}
	}
	return &mcp.CommandTransport{Command: cmd}
}

// Stop closes the MCP server connection.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	var err error
	if c.session != nil {
		err = c.session.Close()
		c.session = nil
	}
	c.running = false
	c.tools = nil
	return err
}

// Tools returns the available tools from this server.
func (c *Client) Tools() []ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

func (c *Client) refreshTools(ctx context.Context) error {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}

	c.tools = make([]ToolSpec, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema := map[string]any{"type": "object", "properties": map[string]any{}}
		if m, ok := t.InputSchema.(map[string]any); ok && len(m) > 0 {
			schema = m
		}
		c.tools = append(c.tools, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Schema:      schema,
		})
	}
	return nil
}

// CallTool invokes a tool on the MCP server. A tool-level failure is
// returned as "Error: ..." output, not as a Go error.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	c.mu.RLock()
	session := c.session
	running := c.running
	c.mu.RUnlock()

	if !running || session == nil {
		return "", fmt.Errorf("MCP server %s is not running", c.name)
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}

	if result.IsError {
		return "Error: " + formatContent(result.Content), nil
	}
	return formatContent(result.Content), nil
}

func formatContent(content []mcp.Content) string {
	var b strings.Builder
	for _, c := range content {
		switch v := c.(type) {
		case *mcp.TextContent:
			b.WriteString(v.Text)
		default:
			if data, err := json.Marshal(c); err == nil {
				b.Write(data)
			}
		}
	}
	return b.String()
}
