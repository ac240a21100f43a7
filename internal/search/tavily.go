package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperifyio/webpipe/internal/usage"
)

// Tavily queries the Tavily search API. Calls may consume paid credits, so
// every use is reported through the tavily_used warning upstream.
type Tavily struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Ledger     *usage.Ledger
}

func (t *Tavily) Name() string  { return "tavily" }
func (t *Tavily) Keyless() bool { return false }

func (t *Tavily) Search(ctx context.Context, q Query) (Response, error) {
	if t.APIKey == "" {
		return Response{}, fmt.Errorf("tavily: missing api key")
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = 10
	}
	base := t.BaseURL
	if base == "" {
		base = "https://api.tavily.com"
	}
	payload, err := json.Marshal(map[string]any{
		"query":       q.Text,
		"max_results": limit,
	})
	if err != nil {
		return Response{}, err
	}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/search", bytes.NewReader(payload))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)
	hc := t.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeoutOr(q.Timeout, 12*time.Second)}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	t.Ledger.Increment("tavily", 1)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, fmt.Errorf("tavily status: %d", resp.StatusCode)
	}
	var tr struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Response{}, err
	}
	out := Response{Provider: t.Name(), CostUnits: 1, TimingsMS: time.Since(start).Milliseconds()}
	for _, r := range tr.Results {
		if r.URL == "" {
			continue
		}
		out.Results = append(out.Results, Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Snippet: strings.TrimSpace(r.Content),
			Source:  t.Name(),
		})
		if len(out.Results) >= limit {
			break
		}
	}
	return out, nil
}
