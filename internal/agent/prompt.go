package agent

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/samsaffron/term-agent/internal/llm"
)

var systemPromptTemplate = template.Must(template.New("system").Parse(`You are an agent that answers questions by following the ReAct (Reasoning and Acting) loop. Break the question into a sequence of thoughts and tool calls, and keep your reasoning visible.

Available tools:
{{- range .Tools}}
- {{.Name}}: {{.Description}}
{{- end}}

Format:
- Thought: your reasoning about what is missing and what the next step is. Always write a thought before calling a tool.
- Action: one tool call, using the exact tool name.
- Observation: the tool result. Use it to decide the next thought.
Repeat Thought/Action/Observation until you have enough information.
- Final Answer: deliver it by calling {{.FinalTool}} with the complete answer.

Rules:
1. Call tools by their exact names. Do not add prefixes.
2. Start every response with "Thought:".
3. Check memory first: use list_namespaces and search in namespace ["{{.UserID}}", "memories"] before other tools.
4. If a tool returns an error or an unhelpful result, think about why and try a different approach. Do not repeat a failed call.
5. Before the final answer, store a short summary of the question and answer with put in namespace ["{{.UserID}}", "memories"].
6. Only give the final answer once you have gathered enough information.
{{- if .Instructions}}

{{.Instructions}}
{{- end}}
`))

type promptData struct {
	Tools        []llm.ToolSpec
	FinalTool    string
	UserID       string
	Instructions string
}

// BuildSystemPrompt renders the ReAct system prompt for the given tools.
func BuildSystemPrompt(tools []llm.ToolSpec, userID, instructions string) (string, error) {
	var b strings.Builder
	err := systemPromptTemplate.Execute(&b, promptData{
		Tools:        tools,
		FinalTool:    FinalAnswerToolName,
		UserID:       userID,
		Instructions: strings.TrimSpace(instructions),
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return b.String(), nil
}

// stopHint is appended on the last allowed turn.
const stopHint = "IMPORTANT: You are out of steps. Do not call any more tools except " + FinalAnswerToolName + ". Answer with the information already gathered."
