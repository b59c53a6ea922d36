package llm

import "strings"

func collectTextParts(parts []Part) string {
	var b strings.Builder
	for _, part := range parts {
		if part.Type == PartText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// splitSystem separates system prompt text from the conversation.
// Providers that take the system prompt out of band use this.
func splitSystem(messages []Message) (string, []Message) {
	var systemParts []string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			systemParts = append(systemParts, collectTextParts(msg.Parts))
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(systemParts, "\n\n"), rest
}
