package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/webpipe/internal/usage"
)

// DuckDuckGo scrapes the keyless HTML endpoint. Best-effort: markup changes
// degrade to zero results rather than errors.
type DuckDuckGo struct {
	HTTPClient *http.Client
	UserAgent  string
	Ledger     *usage.Ledger
}

func (d *DuckDuckGo) Name() string  { return "duckduckgo" }
func (d *DuckDuckGo) Keyless() bool { return true }

func (d *DuckDuckGo) Search(ctx context.Context, q Query) (Response, error) {
	limit := q.MaxResults
	if limit <= 0 {
		limit = 10
	}
	endpoint := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(q.Text)
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Response{}, err
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}
	hc := d.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeoutOr(q.Timeout, 10*time.Second)}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	d.Ledger.Increment("duckduckgo", 0)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, fmt.Errorf("duckduckgo status: %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Response{}, err
	}
	out := Response{Provider: d.Name(), TimingsMS: time.Since(start).Milliseconds()}
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		href, _ := link.Attr("href")
		href = resolveRedirect(href)
		if href == "" {
			return true
		}
		out.Results = append(out.Results, Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     href,
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").Text()),
			Source:  d.Name(),
		})
		return len(out.Results) < limit
	})
	return out, nil
}

// resolveRedirect unwraps the uddg redirect parameter the HTML endpoint
// wraps around outbound links.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
		return target
	}
	if u.Scheme == "" {
		return ""
	}
	return href
}
