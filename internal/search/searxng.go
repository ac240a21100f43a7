package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperifyio/webpipe/internal/usage"
)

// SearxNG queries a SearxNG instance's /search endpoint. It is keyless when
// the instance requires no API key.
type SearxNG struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	UserAgent  string
	Ledger     *usage.Ledger
}

func (s *SearxNG) Name() string  { return "searxng" }
func (s *SearxNG) Keyless() bool { return s.APIKey == "" }

func (s *SearxNG) Search(ctx context.Context, q Query) (Response, error) {
	if s.BaseURL == "" {
		return Response{}, fmt.Errorf("searxng: missing base url")
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = 10
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return Response{}, err
	}
	if !strings.HasSuffix(u.Path, "/search") {
		u.Path = strings.TrimRight(u.Path, "/") + "/search"
	}
	params := u.Query()
	params.Set("q", q.Text)
	params.Set("format", "json")
	params.Set("safesearch", "1")
	params.Set("categories", "general")
	if q.Language != "" {
		params.Set("language", q.Language)
	} else {
		params.Set("language", "auto")
	}
	if s.APIKey != "" {
		params.Set("apikey", s.APIKey)
	}
	u.RawQuery = params.Encode()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Response{}, err
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	hc := s.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeoutOr(q.Timeout, 10*time.Second)}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	s.Ledger.Increment("searxng", 0)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, fmt.Errorf("searxng status: %d", resp.StatusCode)
	}
	var sr struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Response{}, err
	}
	out := Response{Provider: s.Name(), TimingsMS: time.Since(start).Milliseconds()}
	for _, r := range sr.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		out.Results = append(out.Results, Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Snippet: strings.TrimSpace(r.Content),
			Source:  s.Name(),
		})
		if len(out.Results) >= limit {
			break
		}
	}
	return out, nil
}

func timeoutOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
