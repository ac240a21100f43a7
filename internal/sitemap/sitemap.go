// Package sitemap harvests URLs from sitemap.xml documents (plain and
// index), bounded, feeding the scheduler. Gzip payloads are transparently
// decompressed.
package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/hyperifyio/webpipe/internal/fetch"
)

// MaxURLs caps harvested URLs per call.
const MaxURLs = 100

type urlSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Harvester fetches and parses sitemaps through the shared fetcher.
type Harvester struct {
	Fetcher *fetch.Fetcher
}

// Harvest loads the sitemap at rawURL and returns up to maxURLs page URLs.
// Index files are followed one level deep.
func (h *Harvester) Harvest(ctx context.Context, rawURL string, maxURLs int) ([]string, error) {
	if maxURLs <= 0 || maxURLs > MaxURLs {
		maxURLs = MaxURLs
	}
	body, err := h.fetchBody(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	urls, children, err := parse(body)
	if err != nil {
		return nil, err
	}
	out := filterHTTP(urls, maxURLs)
	for _, child := range children {
		if len(out) >= maxURLs {
			break
		}
		childBody, err := h.fetchBody(ctx, child)
		if err != nil {
			continue
		}
		childURLs, _, err := parse(childBody)
		if err != nil {
			continue
		}
		for _, u := range filterHTTP(childURLs, maxURLs-len(out)) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (h *Harvester) fetchBody(ctx context.Context, rawURL string) ([]byte, error) {
	limit := int64(4 << 20)
	resp, err := h.Fetcher.Do(ctx, fetch.Request{
		URL:        rawURL,
		MaxBytes:   &limit,
		CacheRead:  true,
		CacheWrite: true,
	}, fetch.BackendLocal)
	if err != nil {
		return nil, err
	}
	if resp.Status >= 400 {
		return nil, fmt.Errorf("sitemap status: %d", resp.Status)
	}
	body := resp.Bytes
	if isGzip(body) || strings.HasSuffix(strings.ToLower(strings.SplitN(rawURL, "?", 2)[0]), ".gz") {
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		if body, err = io.ReadAll(io.LimitReader(gz, 16<<20)); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func isGzip(body []byte) bool {
	return len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b
}

// parse returns page URLs for a urlset, or child sitemap URLs for an index.
func parse(body []byte) (pages []string, children []string, err error) {
	var set urlSet
	if err := xml.Unmarshal(body, &set); err == nil && len(set.URLs) > 0 {
		for _, u := range set.URLs {
			pages = append(pages, strings.TrimSpace(u.Loc))
		}
		return pages, nil, nil
	}
	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err == nil && len(idx.Sitemaps) > 0 {
		for _, s := range idx.Sitemaps {
			children = append(children, strings.TrimSpace(s.Loc))
		}
		return nil, children, nil
	}
	return nil, nil, fmt.Errorf("sitemap: not a urlset or index")
}

func filterHTTP(urls []string, max int) []string {
	var out []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		out = append(out, raw)
		if len(out) >= max {
			break
		}
	}
	return out
}
