package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/samsaffron/term-agent/internal/config"
	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/samsaffron/term-agent/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.NewStore(memory.Config{Path: filepath.Join(t.TempDir(), "memory.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func memoryRegistry(t *testing.T, store *memory.Store) *llm.ToolRegistry {
	t.Helper()
	registry := llm.NewToolRegistry()
	for _, tool := range MemoryTools(store, nil) {
		registry.Register(tool)
	}
	return registry
}

func run(t *testing.T, registry *llm.ToolRegistry, name, args string) string {
	t.Helper()
	tool, ok := registry.Get(name)
	require.True(t, ok, "tool %s registered", name)
	out, err := tool.Execute(context.Background(), json.RawMessage(args))
	require.NoError(t, err)
	return out
}

func TestMemoryTools_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	registry := memoryRegistry(t, store)

	out := run(t, registry, PutMemoryToolName,
		`{"namespace":["1","memories"],"key":"q1","value":{"question":"What is 2+2?","answer":"4"}}`)
	assert.Equal(t, `Stored "q1" in (1, memories).`, out)

	out = run(t, registry, GetMemoryToolName, `{"namespace":["1","memories"],"key":"q1"}`)
	var item memory.Item
	require.NoError(t, json.Unmarshal([]byte(out), &item))
	assert.Equal(t, "4", item.Value["answer"])
	assert.Equal(t, memory.Namespace{"1", "memories"}, item.Namespace)

	out = run(t, registry, GetMemoryToolName, `{"namespace":["1","memories"],"key":"nope"}`)
	assert.Equal(t, `No value stored for "nope" in (1, memories).`, out)

	out = run(t, registry, SearchMemoryToolName, `{"namespace_prefix":["1","memories"],"query":"answer 2+2"}`)
	var found []memory.Item
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "q1", found[0].Key)

	out = run(t, registry, ListNamespacesToolName, `{}`)
	assert.Equal(t, `[["1","memories"]]`, out)

	out = run(t, registry, ListNamespacesToolName, `{"prefix":["2"]}`)
	assert.Equal(t, `[]`, out)
}

func TestMemoryTools_SearchDefaultLimit(t *testing.T) {
	store := newTestStore(t)
	_, err := memory.SeedIfEmpty(context.Background(), store, "1")
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), memory.UserNamespace("1"), "extra",
		map[string]any{"movie_preference": "Heat is a movie with a great heist"}))

	out := run(t, memoryRegistry(t, store), SearchMemoryToolName, `{"namespace_prefix":["1","memories"],"query":""}`)
	var found []memory.Item
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	assert.Len(t, found, memory.DefaultSearchLimit)
}

func TestPutMemoryTool_Values(t *testing.T) {
	store := newTestStore(t)
	registry := memoryRegistry(t, store)

	out := run(t, registry, PutMemoryToolName, `{"namespace":["1","memories"],"key":"k","value":"likes jazz"}`)
	assert.Equal(t, `Stored "k" in (1, memories).`, out)
	item, err := store.Get(context.Background(), memory.UserNamespace("1"), "k")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": "likes jazz"}, item.Value)

	out = run(t, registry, PutMemoryToolName, `{"namespace":["1","memories"],"key":"k"}`)
	assert.Equal(t, "Error: value is required", out)

	out = run(t, registry, PutMemoryToolName, `{"namespace":[],"key":"k","value":{"a":1}}`)
	assert.Equal(t, "Error: namespace is required", out)
}

func TestBuild(t *testing.T) {
	cfg := &config.Config{}
	registry := Build(cfg, nil, nil)
	for _, name := range []string{CalculateToolName, SearchWebToolName, SearchWikipediaName, ReadWebPageToolName} {
		_, ok := registry.Get(name)
		assert.True(t, ok, name)
	}
	_, ok := registry.Get(PutMemoryToolName)
	assert.False(t, ok)

	registry = Build(cfg, newTestStore(t), nil)
	assert.Equal(t, 8, registry.Len())
	for _, spec := range registry.AllSpecs() {
		assert.NotEmpty(t, spec.Description, spec.Name)
		assert.Equal(t, "object", spec.Schema["type"], spec.Name)
	}
}
