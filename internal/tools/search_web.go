package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/samsaffron/term-agent/internal/llm"
)

const tavilySearchURL = "https://api.tavily.com/search"

// SearchWebTool searches the web through the Tavily API.
type SearchWebTool struct {
	web        *webClient
	apiKey     string
	endpoint   string
	maxResults int
}

func NewSearchWebTool(web *webClient, apiKey string, maxResults int) *SearchWebTool {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &SearchWebTool{web: web, apiKey: apiKey, endpoint: tavilySearchURL, maxResults: maxResults}
}

func (t *SearchWebTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name: SearchWebToolName,
		Description: "Searches the web for a given query. Use this for general-purpose questions " +
			"and to find up-to-date information.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": stringProp("The search query"),
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
	}
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

func (t *SearchWebTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var payload struct {
		Query string `json:"query"`
	}
	if err := parseArgs(SearchWebToolName, args, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.Query) == "" {
		return "Error: query is required.", nil
	}
	if t.apiKey == "" {
		return "Error: web search is not configured. Set TAVILY_API_KEY.", nil
	}

	results, err := t.search(ctx, payload.Query)
	if err != nil {
		return fmt.Sprintf("Error: web search failed. %v", err), nil
	}
	if len(results) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for _, r := range results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		b.WriteString("- [")
		b.WriteString(r.Title)
		b.WriteString("](")
		b.WriteString(r.URL)
		b.WriteString(")")
		if r.Content != "" {
			b.WriteString(" - ")
			b.WriteString(strings.Join(strings.Fields(r.Content), " "))
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

func (t *SearchWebTool) search(ctx context.Context, query string) ([]tavilyResult, error) {
	body, err := json.Marshal(map[string]any{
		"query":        query,
		"max_results":  t.maxResults,
		"search_depth": "basic",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.web.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Results []tavilyResult `json:"results"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}
	return parsed.Results, nil
}
