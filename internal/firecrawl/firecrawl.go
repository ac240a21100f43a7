// Package firecrawl is the client for the remote markdown-returning fetch
// service. The service does the rendering; we only see final markdown.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperifyio/webpipe/internal/fetch"
	"github.com/hyperifyio/webpipe/internal/usage"
)

// Client talks to a Firecrawl-compatible /v1/scrape endpoint.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Ledger     *usage.Ledger
}

// Configured reports whether the client can be used at all.
func (c *Client) Configured() bool {
	return c != nil && c.BaseURL != ""
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			SourceURL  string `json:"sourceURL"`
			StatusCode int    `json:"statusCode"`
		} `json:"metadata"`
	} `json:"data"`
	Error string `json:"error"`
}

// Fetch implements fetch.MarkdownFetcher.
func (c *Client) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (fetch.MarkdownResult, error) {
	if !c.Configured() {
		return fetch.MarkdownResult{}, fmt.Errorf("firecrawl: missing base url")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(scrapeRequest{URL: rawURL, Formats: []string{"markdown"}})
	if err != nil {
		return fetch.MarkdownResult{}, err
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/v1/scrape"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fetch.MarkdownResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fetch.MarkdownResult{}, err
	}
	defer resp.Body.Close()
	c.Ledger.Increment("firecrawl", 1)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fetch.MarkdownResult{}, fmt.Errorf("firecrawl status: %d", resp.StatusCode)
	}
	var sr scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return fetch.MarkdownResult{}, err
	}
	if !sr.Success {
		return fetch.MarkdownResult{}, fmt.Errorf("firecrawl: %s", sr.Error)
	}
	status := sr.Data.Metadata.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return fetch.MarkdownResult{
		FinalURL: sr.Data.Metadata.SourceURL,
		Status:   status,
		Markdown: sr.Data.Markdown,
	}, nil
}
