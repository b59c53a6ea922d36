package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const openaiDefaultModel = "gpt-4.1"

// OpenAIProvider implements Provider using the OpenAI chat completions API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. baseURL may be empty for api.openai.com;
// any OpenAI-compatible endpoint works.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	if model == "" {
		model = openaiDefaultModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: model}
}

func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("OpenAI (%s)", p.model)
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		params := openai.ChatCompletionNewParams{
			Model:       shared.ChatModel(chooseModel(req.Model, p.model)),
			Messages:    buildOpenAIMessages(req.Messages),
			Temperature: openai.Float(float64(req.Temperature)),
		}
		if req.MaxOutputTokens > 0 {
			params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
		}
		if len(req.Tools) > 0 {
			params.Tools = buildOpenAITools(req.Tools)
			params.ParallelToolCalls = openai.Bool(false)
		}

		resp, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return fmt.Errorf("openai API error: %w", err)
		}

		if len(resp.Choices) > 0 {
			msg := resp.Choices[0].Message
			if msg.Content != "" {
				if err := send(ctx, events, Event{Type: EventTextDelta, Text: msg.Content}); err != nil {
					return err
				}
			}
			for _, tc := range msg.ToolCalls {
				args := strings.TrimSpace(tc.Function.Arguments)
				if args == "" {
					args = "{}"
				}
				call := &ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: []byte(args)}
				if err := send(ctx, events, Event{Type: EventToolCall, Tool: call}); err != nil {
					return err
				}
			}
		}
		if err := send(ctx, events, Event{Type: EventUsage, Use: &Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		}}); err != nil {
			return err
		}
		return send(ctx, events, Event{Type: EventDone})
	}), nil
}

func buildOpenAITools(specs []ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		fn := shared.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openai.String(spec.Description),
		}
		if spec.Schema != nil {
			fn.Parameters = shared.FunctionParameters(spec.Schema)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.TextContent()))
		case RoleUser:
			out = append(out, openai.UserMessage(msg.TextContent()))
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type == PartToolResult && part.ToolResult != nil {
					out = append(out, openai.ToolMessage(part.ToolResult.Content, part.ToolResult.ID))
				}
			}
		case RoleAssistant:
			calls := msg.ToolCalls()
			text := msg.TextContent()
			if len(calls) == 0 {
				out = append(out, openai.AssistantMessage(text))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(calls))
			for _, call := range calls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(call.Arguments),
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if text != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		}
	}
	return out
}
