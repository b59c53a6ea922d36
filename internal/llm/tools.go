package llm

import (
	"context"
	"encoding/json"
	"sort"
)

// Tool describes a callable external tool.
type Tool interface {
	Spec() ToolSpec
	// Execute runs the tool. Failures the model should see are returned as
	// output text; a non-nil error means the tool could not run at all.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// FinishingTool is an optional interface for tools that signal agent completion.
// When a finishing tool is called, the agent loop stops after this turn.
type FinishingTool interface {
	IsFinishingTool() bool
}

// ToolRegistry stores tools by name for execution.
type ToolRegistry struct {
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

func (r *ToolRegistry) Register(tool Tool) {
	r.tools[tool.Spec().Name] = tool
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// IsFinishingTool returns true if the named tool is a finishing tool.
func (r *ToolRegistry) IsFinishingTool(name string) bool {
	tool, ok := r.tools[name]
	if !ok {
		return false
	}
	if ft, ok := tool.(FinishingTool); ok {
		return ft.IsFinishingTool()
	}
	return false
}

func (r *ToolRegistry) Unregister(name string) {
	delete(r.tools, name)
}

// AllSpecs returns the specs for all registered tools, sorted by name.
func (r *ToolRegistry) AllSpecs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, tool.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Len reports how many tools are registered.
func (r *ToolRegistry) Len() int {
	return len(r.tools)
}
