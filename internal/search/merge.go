package search

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MergeAndNormalize merges result groups from multiple providers or queries,
// canonicalizes URLs, strips common tracking parameters, and de-duplicates
// exact URLs. Group order is preserved, so earlier providers win ties.
func MergeAndNormalize(groups [][]Result) []Result {
	seen := map[string]struct{}{}
	out := make([]Result, 0, 64)
	for _, g := range groups {
		for _, r := range g {
			if r.URL == "" {
				continue
			}
			u, err := url.Parse(r.URL)
			if err != nil {
				continue
			}
			normalizeURL(u)
			key := u.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			r.URL = key
			out = append(out, r)
		}
	}
	return out
}

func normalizeURL(u *url.URL) {
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	q := u.Query()
	for _, p := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id", "gclid", "fbclid"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
}

// SearchAll fans the query out to every registered provider concurrently and
// merges the results. Provider errors degrade to empty groups; the call only
// fails when every provider fails.
func (r *Registry) SearchAll(ctx context.Context, q Query) (Response, error) {
	if len(r.Providers) == 0 {
		return Response{}, errNoProviders
	}
	start := time.Now()
	groups := make([][]Result, len(r.Providers))
	var costUnits float64
	var firstErr error
	succeeded := 0
	var warnings []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, p := range r.Providers {
		wg.Add(1)
		go func(idx int, provider Provider) {
			defer wg.Done()
			resp, err := provider.Search(ctx, q)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			succeeded++
			if provider.Name() == "tavily" {
				warnings = append(warnings, "tavily_used")
			}
			groups[idx] = resp.Results
			costUnits += resp.CostUnits
		}(i, p)
	}
	wg.Wait()

	merged := MergeAndNormalize(groups)
	if succeeded == 0 {
		return Response{}, firstErr
	}
	if q.MaxResults > 0 && len(merged) > q.MaxResults {
		merged = merged[:q.MaxResults]
	}
	return Response{
		Results:   merged,
		Provider:  "merge",
		CostUnits: costUnits,
		TimingsMS: time.Since(start).Milliseconds(),
		Warnings:  warnings,
	}, nil
}

var errNoProviders = &noProvidersError{}

type noProvidersError struct{}

func (*noProvidersError) Error() string { return "search: no providers configured" }
