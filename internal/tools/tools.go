// Package tools implements the capabilities the agent can invoke: a
// calculator, web and Wikipedia lookups, a page reader and memory access.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/samsaffron/term-agent/internal/config"
	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/samsaffron/term-agent/internal/memory"
	"go.uber.org/zap"
)

// Tool names
const (
	CalculateToolName      = "calculate"
	SearchWebToolName      = "search_web"
	SearchWikipediaName    = "search_wikipedia"
	ReadWebPageToolName    = "read_web_page"
	PutMemoryToolName      = "put"
	GetMemoryToolName      = "get"
	SearchMemoryToolName   = "search"
	ListNamespacesToolName = "list_namespaces"
)

// Build registers every built-in tool. The memory tools are only added
// when a store is given.
func Build(cfg *config.Config, store *memory.Store, logger *zap.Logger) *llm.ToolRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	web := newWebClient(cfg.Tools)

	registry := llm.NewToolRegistry()
	registry.Register(NewCalculateTool())
	registry.Register(NewSearchWebTool(web, cfg.Tools.TavilyAPIKey, cfg.Tools.TavilyMaxResults))
	registry.Register(NewWikipediaTool(web, cfg.Tools.WikipediaLang, cfg.Tools.WikipediaSentences))
	registry.Register(NewReadWebPageTool(web))

	if store != nil {
		for _, t := range MemoryTools(store, logger) {
			registry.Register(t)
		}
	}
	return registry
}

// parseArgs decodes tool arguments, naming the tool on failure.
func parseArgs(tool string, args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("parse %s args: %w", tool, err)
	}
	return nil
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func namespaceProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}
