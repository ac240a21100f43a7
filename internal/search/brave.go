package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/webpipe/internal/usage"
)

// Brave queries the Brave Search REST API.
type Brave struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Ledger     *usage.Ledger
}

func (b *Brave) Name() string  { return "brave" }
func (b *Brave) Keyless() bool { return false }

func (b *Brave) Search(ctx context.Context, q Query) (Response, error) {
	if b.APIKey == "" {
		return Response{}, fmt.Errorf("brave: missing api key")
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = 10
	}
	base := b.BaseURL
	if base == "" {
		base = "https://api.search.brave.com/res/v1/web/search"
	}
	u, err := url.Parse(base)
	if err != nil {
		return Response{}, err
	}
	params := u.Query()
	params.Set("q", q.Text)
	params.Set("count", strconv.Itoa(limit))
	if q.Country != "" {
		params.Set("country", q.Country)
	}
	if q.Language != "" {
		params.Set("search_lang", q.Language)
	}
	u.RawQuery = params.Encode()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)
	hc := b.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeoutOr(q.Timeout, 10*time.Second)}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	b.Ledger.Increment("brave", 1)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, fmt.Errorf("brave status: %d", resp.StatusCode)
	}
	var br struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return Response{}, err
	}
	out := Response{Provider: b.Name(), CostUnits: 1, TimingsMS: time.Since(start).Milliseconds()}
	for _, r := range br.Web.Results {
		if r.URL == "" {
			continue
		}
		out.Results = append(out.Results, Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Snippet: strings.TrimSpace(r.Description),
			Source:  b.Name(),
		})
		if len(out.Results) >= limit {
			break
		}
	}
	return out, nil
}
