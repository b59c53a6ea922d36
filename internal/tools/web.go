package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/samsaffron/term-agent/internal/config"
	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	defaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxResponseBytes   = 4 << 20
)

// webClient is the HTTP client shared by the network tools. Requests are
// paced by a token bucket so a looping agent cannot hammer an API.
type webClient struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func newWebClient(cfg config.ToolsConfig) *webClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &webClient{
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: ua,
	}
}

// do waits for a token and sends the request with the client's User-Agent.
func (c *webClient) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.http.Do(req.WithContext(ctx))
}

// get fetches url and returns the body of a 2xx response.
func (c *webClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readBody(resp)
}

func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, fmt.Errorf("HTTP %d %s for url: %s", resp.StatusCode, http.StatusText(resp.StatusCode), resp.Request.URL)
	}
	return body, nil
}
