package llm

// geminiUnsupportedKeys are JSON Schema keywords the Gemini function
// declaration API rejects. MCP servers commonly emit several of them.
var geminiUnsupportedKeys = []string{
	"$schema",
	"$id",
	"additionalProperties",
	"const",
	"default",
	"examples",
	"exclusiveMaximum",
	"exclusiveMinimum",
	"format",
	"pattern",
	"title",
}

// cleanSchemaForGemini returns a copy of schema without keywords Gemini does
// not accept. The input is not modified.
func cleanSchemaForGemini(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = cleanSchemaValue(v)
	}
	for _, k := range geminiUnsupportedKeys {
		delete(out, k)
	}
	// Property names are data, not keywords: a property may be called "title".
	if props, ok := schema["properties"].(map[string]any); ok {
		cleaned := make(map[string]any, len(props))
		for name, prop := range props {
			cleaned[name] = cleanSchemaValue(prop)
		}
		out["properties"] = cleaned
	}
	return out
}

func cleanSchemaValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cleanSchemaForGemini(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = cleanSchemaValue(item)
		}
		return items
	default:
		return v
	}
}
