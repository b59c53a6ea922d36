package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.5-pro"

// GeminiProvider implements Provider using the Google Gemini API.
type GeminiProvider struct {
	apiKey string
	model  string
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = geminiDefaultModel
	}
	return &GeminiProvider{apiKey: apiKey, model: model}
}

func (p *GeminiProvider) Name() string {
	return fmt.Sprintf("Gemini (%s)", p.model)
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: p.apiKey})
		if err != nil {
			return fmt.Errorf("failed to create gemini client: %w", err)
		}

		system, contents := buildGeminiContents(req.Messages)
		if len(contents) == 0 {
			return fmt.Errorf("no user content provided")
		}

		config := &genai.GenerateContentConfig{
			Temperature: genai.Ptr(req.Temperature),
		}
		if system != "" {
			config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
		}
		if req.MaxOutputTokens > 0 {
			config.MaxOutputTokens = int32(req.MaxOutputTokens)
		}
		if len(req.Tools) > 0 {
			config.Tools = buildGeminiTools(req.Tools)
			config.ToolConfig = buildGeminiToolConfig(req.ToolChoice)
		}

		// Tool calls have to be seen whole, so one non-streaming call per turn.
		resp, err := client.Models.GenerateContent(ctx, chooseModel(req.Model, p.model), contents, config)
		if err != nil {
			return fmt.Errorf("gemini API error: %w", err)
		}
		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text != "" && !part.Thought {
					if err := send(ctx, events, Event{Type: EventTextDelta, Text: part.Text}); err != nil {
						return err
					}
				}
				if part.FunctionCall != nil {
					argsJSON, _ := json.Marshal(part.FunctionCall.Args)
					call := &ToolCall{
						ID:        part.FunctionCall.ID,
						Name:      part.FunctionCall.Name,
						Arguments: argsJSON,
					}
					if err := send(ctx, events, Event{Type: EventToolCall, Tool: call}); err != nil {
						return err
					}
				}
			}
		}
		if resp.UsageMetadata != nil && resp.UsageMetadata.TotalTokenCount > 0 {
			if err := send(ctx, events, Event{Type: EventUsage, Use: &Usage{
				InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
				OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			}}); err != nil {
				return err
			}
		}
		return send(ctx, events, Event{Type: EventDone})
	}), nil
}

func buildGeminiTools(specs []ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 spec.Name,
			Description:          spec.Description,
			ParametersJsonSchema: cleanSchemaForGemini(spec.Schema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func buildGeminiContents(messages []Message) (string, []*genai.Content) {
	system, rest := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(rest))

	for _, msg := range rest {
		var content *genai.Content
		switch msg.Role {
		case RoleUser:
			content = buildGeminiContent(genai.RoleUser, msg.Parts)
		case RoleAssistant:
			content = buildGeminiContent(genai.RoleModel, msg.Parts)
		case RoleTool:
			content = buildGeminiToolResultContent(msg.Parts)
		}
		if content != nil {
			contents = append(contents, content)
		}
	}

	return system, contents
}

func buildGeminiContent(role string, parts []Part) *genai.Content {
	content := &genai.Content{Role: role}
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
			}
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   part.ToolCall.ID,
					Name: part.ToolCall.Name,
					Args: toolArgsToMap(part.ToolCall.Arguments),
				},
			})
		}
	}
	if len(content.Parts) == 0 {
		return nil
	}
	return content
}

func buildGeminiToolResultContent(parts []Part) *genai.Content {
	content := &genai.Content{Role: genai.RoleUser}
	for _, part := range parts {
		if part.Type != PartToolResult || part.ToolResult == nil {
			continue
		}
		key := "output"
		if part.ToolResult.IsError {
			key = "error"
		}
		content.Parts = append(content.Parts, &genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				ID:       part.ToolResult.ID,
				Name:     part.ToolResult.Name,
				Response: map[string]any{key: part.ToolResult.Content},
			},
		})
	}
	if len(content.Parts) == 0 {
		return nil
	}
	return content
}

func toolArgsToMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err == nil {
		return args
	}
	return map[string]any{"_raw": string(raw)}
}

func buildGeminiToolConfig(choice ToolChoice) *genai.ToolConfig {
	mode := genai.FunctionCallingConfigModeAuto
	var allowed []string

	switch choice.Mode {
	case ToolChoiceNone:
		mode = genai.FunctionCallingConfigModeNone
	case ToolChoiceRequired:
		mode = genai.FunctionCallingConfigModeAny
	case ToolChoiceName:
		if strings.TrimSpace(choice.Name) != "" {
			mode = genai.FunctionCallingConfigModeAny
			allowed = []string{choice.Name}
		}
	}

	return &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 mode,
			AllowedFunctionNames: allowed,
		},
	}
}

func chooseModel(requested, fallback string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	return fallback
}
