package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Classify maps one raw event to the messages it should be displayed as.
// It never fails: unrecognised shapes, and payloads that cannot be rendered,
// degrade to a single observation.
func Classify(ev RawEvent) (msgs []Message) {
	defer func() {
		if r := recover(); r != nil {
			msgs = []Message{{Type: TypeObservation, Content: fmt.Sprintf("unrenderable %T event: %v", ev, r)}}
		}
	}()

	switch e := ev.(type) {
	case UserEvent:
		return []Message{{Type: TypeUser, Content: e.Text}}
	case AgentEvent:
		var out []Message
		if text := strings.Join(nonEmpty(e.TextParts), "\n"); strings.TrimSpace(text) != "" {
			out = append(out, Message{Type: TypeThought, Content: text})
		}
		for _, inv := range e.Invocations {
			out = append(out, Message{Type: TypeAction, Content: RenderInvocation(inv)})
		}
		return out
	case ResultEvent:
		return []Message{{Type: TypeObservation, Content: stringify(e.Value)}}
	case TerminalEvent:
		return []Message{{Type: TypeFinalAnswer, Content: e.FinalAnswer}}
	case UnknownEvent:
		return []Message{{Type: TypeObservation, Content: stringify(e.Value)}}
	default:
		return []Message{{Type: TypeObservation, Content: stringify(ev)}}
	}
}

// RenderInvocation renders a tool call as "name: {arg: value, ...}" with
// arguments in key order.
func RenderInvocation(inv Invocation) string {
	raw := bytes.TrimSpace(inv.Arguments)
	if len(raw) == 0 {
		return inv.Name + ": {}"
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var args any
	if err := dec.Decode(&args); err != nil {
		return inv.Name + ": " + string(raw)
	}
	return inv.Name + ": " + renderValue(args)
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+renderValue(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, renderValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(val)
	}
}

// stringify renders any value as text, preferring its natural form.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%+v", v)
}

func nonEmpty(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
