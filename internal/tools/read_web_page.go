package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samsaffron/term-agent/internal/llm"
	"golang.org/x/net/html"
)

const maxPageChars = 50000

// ReadWebPageTool fetches a page and returns its visible text.
type ReadWebPageTool struct {
	web *webClient
}

func NewReadWebPageTool(web *webClient) *ReadWebPageTool {
	return &ReadWebPageTool{web: web}
}

func (t *ReadWebPageTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name: ReadWebPageToolName,
		Description: "Reads the textual content of a web page from a given URL. Useful for reading " +
			"pages found through search, such as archive.org entries.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": stringProp("The URL of the web page to read"),
			},
			"required":             []string{"url"},
			"additionalProperties": false,
		},
	}
}

func (t *ReadWebPageTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var payload struct {
		URL string `json:"url"`
	}
	if err := parseArgs(ReadWebPageToolName, args, &payload); err != nil {
		return "", err
	}

	body, err := t.web.get(ctx, strings.TrimSpace(payload.URL))
	if err != nil {
		return fmt.Sprintf("Error: Could not fetch the web page. %v", err), nil
	}

	text, err := extractText(body)
	if err != nil {
		return fmt.Sprintf("An unexpected error occurred while reading the web page: %v", err), nil
	}
	if text == "" {
		return "Error: Could not extract any text from the page.", nil
	}
	if len(text) > maxPageChars {
		text = text[:maxPageChars] + "\n\n[Content truncated at 50,000 characters]"
	}
	return text, nil
}

// extractText returns the visible text of an HTML document, dropping script
// and style content. Each line is trimmed, split on runs of two spaces, and
// empty chunks are removed.
func extractText(doc []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var raw strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", err
			}
			return cleanText(raw.String()), nil
		case html.StartTagToken:
			name, _ := z.TagName()
			if isHiddenTag(string(name)) {
				skip++
			} else if isBlockTag(string(name)) {
				raw.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isHiddenTag(string(name)) {
				if skip > 0 {
					skip--
				}
			} else if isBlockTag(string(name)) {
				raw.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" {
				raw.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				raw.Write(z.Text())
			}
		}
	}
}

func cleanText(text string) string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, "\n")
}

func isHiddenTag(name string) bool {
	return name == "script" || name == "style" || name == "noscript"
}

func isBlockTag(name string) bool {
	switch name {
	case "p", "div", "br", "li", "ul", "ol", "tr", "table", "section", "article",
		"header", "footer", "h1", "h2", "h3", "h4", "h5", "h6", "title", "pre", "blockquote":
		return true
	}
	return false
}
