package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/samsaffron/term-agent/internal/llm"
)

const maxDisambiguationOptions = 5

// WikipediaTool returns the lead of the best matching Wikipedia article.
type WikipediaTool struct {
	web       *webClient
	baseURL   string // e.g. https://en.wikipedia.org
	sentences int
}

func NewWikipediaTool(web *webClient, lang string, sentences int) *WikipediaTool {
	if lang == "" {
		lang = "en"
	}
	if sentences <= 0 {
		sentences = 5
	}
	return &WikipediaTool{
		web:       web,
		baseURL:   "https://" + lang + ".wikipedia.org",
		sentences: sentences,
	}
}

func (t *WikipediaTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name: SearchWikipediaName,
		Description: "Searches Wikipedia and returns a summary of the top article. Useful for well " +
			"established concepts, terms, geographical places and historical events.",
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

func (t *WikipediaTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var payload struct {
		Query string `json:"query"`
	}
	if err := parseArgs(SearchWikipediaName, args, &payload); err != nil {
		return "", err
	}
	query := strings.TrimSpace(payload.Query)
	notFound := fmt.Sprintf("Error: Could not find a Wikipedia page for '%s'.", query)
	if query == "" {
		return notFound, nil
	}

	title, err := t.topTitle(ctx, query)
	if err != nil {
		return fmt.Sprintf("An unexpected error occurred: %v", err), nil
	}
	if title == "" {
		return notFound, nil
	}

	page, err := t.page(ctx, title)
	if err != nil {
		return fmt.Sprintf("An unexpected error occurred: %v", err), nil
	}
	switch {
	case page == nil:
		return notFound, nil
	case page.disambiguation:
		options, err := t.options(ctx, page.title)
		if err != nil {
			return fmt.Sprintf("An unexpected error occurred: %v", err), nil
		}
		return fmt.Sprintf("Error: '%s' is ambiguous. Did you mean one of these: %s?", query, strings.Join(options, ", ")), nil
	}

	summary := firstSentences(page.extract, t.sentences)
	if summary == "" {
		return notFound, nil
	}
	return summary, nil
}

type wikiPage struct {
	title          string
	extract        string
	disambiguation bool
}

func (t *WikipediaTool) api(ctx context.Context, params url.Values, out any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	body, err := t.web.get(ctx, t.baseURL+"/w/api.php?"+params.Encode())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode wikipedia response: %w", err)
	}
	return nil
}

func (t *WikipediaTool) topTitle(ctx context.Context, query string) (string, error) {
	var resp struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	err := t.api(ctx, url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {"1"},
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Query.Search) == 0 {
		return "", nil
	}
	return resp.Query.Search[0].Title, nil
}

func (t *WikipediaTool) page(ctx context.Context, title string) (*wikiPage, error) {
	var resp struct {
		Query struct {
			Pages []struct {
				Title     string            `json:"title"`
				Missing   bool              `json:"missing"`
				Extract   string            `json:"extract"`
				PageProps map[string]string `json:"pageprops"`
			} `json:"pages"`
		} `json:"query"`
	}
	err := t.api(ctx, url.Values{
		"action":      {"query"},
		"prop":        {"extracts|pageprops"},
		"ppprop":      {"disambiguation"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"redirects":   {"1"},
		"titles":      {title},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing {
		return nil, nil
	}
	p := resp.Query.Pages[0]
	_, disambiguation := p.PageProps["disambiguation"]
	return &wikiPage{title: p.Title, extract: p.Extract, disambiguation: disambiguation}, nil
}

func (t *WikipediaTool) options(ctx context.Context, title string) ([]string, error) {
	var resp struct {
		Query struct {
			Pages []struct {
				Links []struct {
					Title string `json:"title"`
				} `json:"links"`
			} `json:"pages"`
		} `json:"query"`
	}
	err := t.api(ctx, url.Values{
		"action":      {"query"},
		"prop":        {"links"},
		"plnamespace": {"0"},
		"pllimit":     {"50"},
		"titles":      {title},
	}, &resp)
	if err != nil {
		return nil, err
	}
	var options []string
	for _, p := range resp.Query.Pages {
		for _, l := range p.Links {
			if len(options) == maxDisambiguationOptions {
				return options, nil
			}
			options = append(options, l.Title)
		}
	}
	return options, nil
}

// firstSentences returns the first n sentences of text. A sentence ends at
// '.', '!' or '?' followed by whitespace or the end of the text.
func firstSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	count := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		count++
		if count == n {
			return string(runes[:i+1])
		}
	}
	return text
}
