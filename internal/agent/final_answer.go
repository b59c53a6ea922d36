package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samsaffron/term-agent/internal/llm"
)

const FinalAnswerToolName = "final_answer"

// finalAnswerTool captures the structured answer that ends a turn.
type finalAnswerTool struct{}

func (finalAnswerTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        FinalAnswerToolName,
		Description: "Deliver the Final Answer to the user's question. Call this exactly once, after you have gathered enough information and stored a summary in memory.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"final_answer": map[string]interface{}{
					"type":        "string",
					"description": "The conclusive, well-supported answer to the user's question.",
				},
			},
			"required": []string{"final_answer"},
		},
	}
}

func (finalAnswerTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var resp StructuredResponse
	if err := json.Unmarshal(args, &resp); err != nil {
		return "", fmt.Errorf("parse final answer: %w", err)
	}
	if strings.TrimSpace(resp.FinalAnswer) == "" {
		return "", fmt.Errorf("final_answer is empty")
	}
	return resp.FinalAnswer, nil
}

func (finalAnswerTool) IsFinishingTool() bool {
	return true
}
