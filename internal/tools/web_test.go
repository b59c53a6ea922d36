package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/samsaffron/term-agent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWebClient() *webClient {
	return newWebClient(config.ToolsConfig{HTTPTimeout: 2 * time.Second, UserAgent: "term-agent-test"})
}

func TestReadWebPageTool(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head><title>Archive</title>
<style>body { color: red }</style><script>var x = "hidden";</script></head>
<body><h1>  Heading  </h1><p>First   paragraph  with  gaps.</p>
<div>Second<br>line</div></body></html>`))
		case "/empty":
			_, _ = w.Write([]byte(`<html><script>only()</script></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tool := NewReadWebPageTool(testWebClient())
	ctx := context.Background()

	out, err := tool.Execute(ctx, json.RawMessage(`{"url":"`+srv.URL+`/page"}`))
	require.NoError(t, err)
	assert.Equal(t, "Archive\nHeading\nFirst\nparagraph\nwith\ngaps.\nSecond\nline", out)
	assert.Equal(t, "term-agent-test", gotUA)
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "color")

	out, err = tool.Execute(ctx, json.RawMessage(`{"url":"`+srv.URL+`/empty"}`))
	require.NoError(t, err)
	assert.Equal(t, "Error: Could not extract any text from the page.", out)

	out, err = tool.Execute(ctx, json.RawMessage(`{"url":"`+srv.URL+`/missing"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error: Could not fetch the web page. HTTP 404"), out)

	out, err = tool.Execute(ctx, json.RawMessage(`{"url":"not a url"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error: Could not fetch the web page."), out)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a\nb c\nd", cleanText("  a  \n\n b c  d \n"))
	assert.Equal(t, "", cleanText(" \n\t\n"))
}

func wikiServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/w/api.php", r.URL.Path)
		assert.Equal(t, "json", q.Get("format"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case q.Get("list") == "search":
			switch q.Get("srsearch") {
			case "Colorado orogeny":
				_, _ = w.Write([]byte(`{"query":{"search":[{"title":"Colorado orogeny"}]}}`))
			case "Mercury":
				_, _ = w.Write([]byte(`{"query":{"search":[{"title":"Mercury"}]}}`))
			case "Deleted":
				_, _ = w.Write([]byte(`{"query":{"search":[{"title":"Deleted page"}]}}`))
			default:
				_, _ = w.Write([]byte(`{"query":{"search":[]}}`))
			}
		case q.Get("prop") == "extracts|pageprops":
			switch q.Get("titles") {
			case "Colorado orogeny":
				_, _ = w.Write([]byte(`{"query":{"pages":[{"title":"Colorado orogeny","extract":"One. Two! Three? Four. Five. Six. Seven."}]}}`))
			case "Mercury":
				_, _ = w.Write([]byte(`{"query":{"pages":[{"title":"Mercury","extract":"Mercury may refer to:","pageprops":{"disambiguation":""}}]}}`))
			default:
				_, _ = w.Write([]byte(`{"query":{"pages":[{"title":"Deleted page","missing":true}]}}`))
			}
		case q.Get("prop") == "links":
			_, _ = w.Write([]byte(`{"query":{"pages":[{"links":[
				{"title":"Mercury (planet)"},{"title":"Mercury (element)"},{"title":"Mercury (mythology)"},
				{"title":"Freddie Mercury"},{"title":"Mercury Records"},{"title":"Mercury program"}]}]}}`))
		default:
			http.Error(w, "unexpected request", http.StatusBadRequest)
		}
	}))
}

func TestWikipediaTool(t *testing.T) {
	srv := wikiServer(t)
	defer srv.Close()

	tool := NewWikipediaTool(testWebClient(), "en", 5)
	tool.baseURL = srv.URL
	ctx := context.Background()

	out, err := tool.Execute(ctx, json.RawMessage(`{"query":"Colorado orogeny"}`))
	require.NoError(t, err)
	assert.Equal(t, "One. Two! Three? Four. Five.", out)

	out, err = tool.Execute(ctx, json.RawMessage(`{"query":"Mercury"}`))
	require.NoError(t, err)
	assert.Equal(t, "Error: 'Mercury' is ambiguous. Did you mean one of these: Mercury (planet), Mercury (element), Mercury (mythology), Freddie Mercury, Mercury Records?", out)

	out, err = tool.Execute(ctx, json.RawMessage(`{"query":"zzzz"}`))
	require.NoError(t, err)
	assert.Equal(t, "Error: Could not find a Wikipedia page for 'zzzz'.", out)

	out, err = tool.Execute(ctx, json.RawMessage(`{"query":"Deleted"}`))
	require.NoError(t, err)
	assert.Equal(t, "Error: Could not find a Wikipedia page for 'Deleted'.", out)

	tool.baseURL = "http://127.0.0.1:1"
	out, err = tool.Execute(ctx, json.RawMessage(`{"query":"Colorado orogeny"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "An unexpected error occurred: "), out)
}

func TestFirstSentences(t *testing.T) {
	assert.Equal(t, "A. B.", firstSentences("A. B. C.", 2))
	assert.Equal(t, "Version 2.5 is out.", firstSentences("Version 2.5 is out. More text.", 1))
	assert.Equal(t, "No terminator", firstSentences("No terminator", 3))
}

func TestSearchWebTool(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		if gotBody["query"] == "fail" {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			return
		}
		if gotBody["query"] == "nothing" {
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Go","url":"https://go.dev","content":"The Go\nprogramming  language","score":0.9},
			{"title":"","url":"https://untitled.example","content":"skip me"}
		]}`))
	}))
	defer srv.Close()

	tool := NewSearchWebTool(testWebClient(), "tvly-key", 3)
	tool.endpoint = srv.URL
	ctx := context.Background()

	out, err := tool.Execute(ctx, json.RawMessage(`{"query":"golang"}`))
	require.NoError(t, err)
	assert.Equal(t, "- [Go](https://go.dev) - The Go programming language", out)
	assert.Equal(t, "Bearer tvly-key", gotAuth)
	assert.Equal(t, float64(3), gotBody["max_results"])

	out, err = tool.Execute(ctx, json.RawMessage(`{"query":"nothing"}`))
	require.NoError(t, err)
	assert.Equal(t, "No results found.", out)

	out, err = tool.Execute(ctx, json.RawMessage(`{"query":"fail"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error: web search failed. HTTP 429"), out)

	unconfigured := NewSearchWebTool(testWebClient(), "", 0)
	out, err = unconfigured.Execute(ctx, json.RawMessage(`{"query":"golang"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "TAVILY_API_KEY")
}

func TestWebClient_RateLimitHonoursContext(t *testing.T) {
	c := newWebClient(config.ToolsConfig{RequestsPerSecond: 0.001})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	_, err := c.get(context.Background(), srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.get(ctx, srv.URL)
	assert.Error(t, err, "second request must wait for a token")
}
