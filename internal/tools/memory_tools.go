package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/samsaffron/term-agent/internal/memory"
	"go.uber.org/zap"
)

// MemoryTools exposes the store to the agent as put, get, search and
// list_namespaces.
func MemoryTools(store *memory.Store, logger *zap.Logger) []llm.Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return []llm.Tool{
		&PutMemoryTool{store: store, logger: logger},
		&GetMemoryTool{store: store},
		&SearchMemoryTool{store: store},
		&ListNamespacesTool{store: store},
	}
}

const namespaceHint = "as a list of strings. Example: ['user_id', 'memories']"

// PutMemoryTool stores a value in the agent's memory.
type PutMemoryTool struct {
	store  *memory.Store
	logger *zap.Logger
}

func (t *PutMemoryTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name: PutMemoryToolName,
		Description: "Stores a key-value pair in a specific namespace. Use this to remember " +
			"information, facts, or user preferences for later retrieval.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"namespace": namespaceProp("The namespace to write to, " + namespaceHint),
				"key":       stringProp("A unique key for the value"),
				"value": map[string]interface{}{
					"type":        "object",
					"description": "The JSON object to store",
				},
			},
			"required": []string{"namespace", "key", "value"},
		},
	}
}

func (t *PutMemoryTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var payload struct {
		Namespace []string        `json:"namespace"`
		Key       string          `json:"key"`
		Value     json.RawMessage `json:"value"`
	}
	if err := parseArgs(PutMemoryToolName, args, &payload); err != nil {
		return "", err
	}
	value, err := objectValue(payload.Value)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	ns := memory.Namespace(payload.Namespace)
	if err := t.store.Put(ctx, ns, payload.Key, value); err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	t.logger.Debug("memory stored", zap.String("namespace", ns.String()), zap.String("key", payload.Key))
	return fmt.Sprintf("Stored %q in %s.", payload.Key, ns), nil
}

// objectValue decodes a stored value. Scalars and arrays are wrapped as
// {"value": v}.
func objectValue(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("value is required")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	if obj, ok := v.(map[string]any); ok {
		return obj, nil
	}
	return map[string]any{"value": v}, nil
}

// GetMemoryTool reads a value by exact key.
type GetMemoryTool struct {
	store *memory.Store
}

func (t *GetMemoryTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        GetMemoryToolName,
		Description: "Retrieves a specific value from a namespace using its exact key.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"namespace": namespaceProp("The namespace to read from, " + namespaceHint),
				"key":       stringProp("The exact key of the value"),
			},
			"required": []string{"namespace", "key"},
		},
	}
}

func (t *GetMemoryTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var payload struct {
		Namespace []string `json:"namespace"`
		Key       string   `json:"key"`
	}
	if err := parseArgs(GetMemoryToolName, args, &payload); err != nil {
		return "", err
	}
	ns := memory.Namespace(payload.Namespace)
	item, err := t.store.Get(ctx, ns, payload.Key)
	if errors.Is(err, memory.ErrNotFound) {
		return fmt.Sprintf("No value stored for %q in %s.", payload.Key, ns), nil
	}
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	return toJSON(item), nil
}

// SearchMemoryTool finds related memories by meaning.
type SearchMemoryTool struct {
	store *memory.Store
}

func (t *SearchMemoryTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name: SearchMemoryToolName,
		Description: "Searches for relevant information within a namespace based on a natural " +
			"language query. Searching for 'Pulp Fiction' in the memories namespace returns related stored information.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"namespace_prefix": namespaceProp("The namespace to search within, " + namespaceHint),
				"query":            stringProp("The query to search for"),
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum number of results (default %d)", memory.DefaultSearchLimit),
				},
			},
			"required": []string{"namespace_prefix", "query"},
		},
	}
}

func (t *SearchMemoryTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var payload struct {
		NamespacePrefix []string `json:"namespace_prefix"`
		Query           string   `json:"query"`
		Limit           int      `json:"limit"`
	}
	if err := parseArgs(SearchMemoryToolName, args, &payload); err != nil {
		return "", err
	}
	items, err := t.store.Search(ctx, memory.Namespace(payload.NamespacePrefix), payload.Query, payload.Limit)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	return toJSON(items), nil
}

// ListNamespacesTool lists the namespaces in memory.
type ListNamespacesTool struct {
	store *memory.Store
}

func (t *ListNamespacesTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name: ListNamespacesToolName,
		Description: "Lists all available namespaces in the store. Pass a prefix such as ['user_id'] " +
			"to see only the namespaces of one user.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"prefix": namespaceProp("Optional prefix to filter namespaces, " + namespaceHint),
			},
		},
	}
}

func (t *ListNamespacesTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var payload struct {
		Prefix []string `json:"prefix"`
	}
	if err := parseArgs(ListNamespacesToolName, args, &payload); err != nil {
		return "", err
	}
	namespaces, err := t.store.ListNamespaces(ctx, memory.Namespace(payload.Prefix))
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	return toJSON(namespaces), nil
}

func toJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("Error: encode result: %v", err)
	}
	return string(data)
}
