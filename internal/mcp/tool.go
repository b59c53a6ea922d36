package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samsaffron/term-agent/internal/llm"
)

// MCPTool wraps an MCP server tool as an llm.Tool.
type MCPTool struct {
	client   *Client
	toolSpec ToolSpec
}

// NewMCPTool creates a new MCP tool wrapper.
func NewMCPTool(client *Client, spec ToolSpec) *MCPTool {
	return &MCPTool{
		client:   client,
		toolSpec: spec,
	}
}

// Spec returns the tool specification for the LLM.
func (t *MCPTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        qualifiedName(t.client.Name(), t.toolSpec.Name),
		Description: fmt.Sprintf("[%s] %s", t.client.Name(), t.toolSpec.Description),
		Schema:      t.toolSpec.Schema,
	}
}

// Execute invokes the tool on the MCP server.
func (t *MCPTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.client.CallTool(ctx, t.toolSpec.Name, args)
}
