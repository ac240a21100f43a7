// Package links implements bounded, deduplicated absolute-link extraction
// from HTML and Markdown with base-URL resolution.
package links

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// MaxLinks caps how many links any extraction may return.
const MaxLinks = 500

// DefaultTimeout bounds one extraction run.
const DefaultTimeout = 2 * time.Second

var markdownLink = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)

// FromHTML extracts anchors from an HTML document, resolves relatives
// against base, drops javascript:/mailto: and fragments, dedupes, and
// returns the result in sorted order. The context bounds the run; on expiry
// the returned timedOut flag is set and the list is empty.
func FromHTML(ctx context.Context, htmlSrc string, base string, maxLinks int) (out []string, timedOut bool) {
	done := make(chan []string, 1)
	go func() {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
		if err != nil {
			done <- nil
			return
		}
		var raw []string
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			if href, ok := sel.Attr("href"); ok {
				raw = append(raw, href)
			}
		})
		done <- raw
	}()
	select {
	case raw := <-done:
		return finish(raw, base, maxLinks), false
	case <-ctx.Done():
		return nil, true
	}
}

// FromMarkdown extracts inline [text](url) links with the same filtering and
// resolution rules as FromHTML.
func FromMarkdown(markdown string, base string, maxLinks int) []string {
	var raw []string
	for _, m := range markdownLink.FindAllStringSubmatch(markdown, -1) {
		raw = append(raw, m[1])
	}
	return finish(raw, base, maxLinks)
}

func finish(raw []string, base string, maxLinks int) []string {
	if maxLinks <= 0 || maxLinks > MaxLinks {
		maxLinks = MaxLinks
	}
	var baseURL *url.URL
	if base != "" {
		if u, err := url.Parse(base); err == nil {
			baseURL = u
		}
	}
	seen := map[string]struct{}{}
	for _, href := range raw {
		href = strings.TrimSpace(href)
		if href == "" {
			continue
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(href, "#") {
			continue
		}
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		if baseURL != nil {
			u = baseURL.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		if u.Host == "" {
			continue
		}
		u.Fragment = ""
		seen[u.String()] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	if len(out) > maxLinks {
		out = out[:maxLinks]
	}
	return out
}
