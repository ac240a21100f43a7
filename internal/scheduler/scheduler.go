// Package scheduler drives bounded parallel hydration of a URL set under a
// hard deadline, applies the fallback/rewrite ladder per URL, and fans
// results back in input order. Per-URL failures never abort the aggregate.
package scheduler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webpipe/internal/chunk"
	"github.com/hyperifyio/webpipe/internal/fetch"
	"github.com/hyperifyio/webpipe/internal/pipeline"
	"github.com/hyperifyio/webpipe/internal/rewrite"
	"github.com/hyperifyio/webpipe/internal/textprep"
)

// Flags are the per-call fallback toggles.
type Flags struct {
	RetryOnTruncation            bool
	TruncationRetryMaxBytes      int64
	RenderFallbackOnLowSignal    bool
	RenderFallbackOnEmpty        bool
	FirecrawlFallbackOnLowSignal bool
	Agentic                      bool
	AgenticSelector              string
}

// Input configures one hydration run.
type Input struct {
	URLs        []string
	Query       string
	Params      pipeline.Params // template; URL is filled per task
	MaxURLs     int
	MaxParallel int
	DeadlineMS  int
	TopChunks   int
	Flags       Flags
}

// TopChunk is one aggregate evidence chunk attributed to its source URL.
type TopChunk struct {
	URL       string `json:"url"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	Score     int    `json:"score"`
	Text      string `json:"text"`
}

// Attempt records one pipeline invocation made on behalf of a URL.
type Attempt struct {
	URL     string `json:"url"`
	Backend string `json:"backend"`
	Reason  string `json:"reason,omitempty"`
}

// Aggregate is the fan-in result.
type Aggregate struct {
	Results   []pipeline.Result
	TopChunks []TopChunk
	Attempts  []Attempt
	Warnings  []string
}

// Scheduler owns the collaborators shared across hydrations.
type Scheduler struct {
	Runner *pipeline.Runner
	Rules  rewrite.Rules
	// RenderOK means a render backend is wired and usable right now.
	RenderOK bool
	// RenderDisabled distinguishes "explicitly turned off" from "missing".
	RenderDisabled bool
	// RenderSupported is false when the privacy posture forbids rendering
	// (offline, or anonymous with a socks proxy).
	RenderSupported bool
	FirecrawlOK     bool
	DefaultParallel int
	DefaultDeadline time.Duration
}

const (
	maxURLsCap      = 16
	defaultTopK     = 8
	truncRetryCap   = int64(8 << 20)
	defaultDeadline = 45 * time.Second
)

// Hydrate runs the full urls-mode (or agentic) hydration.
func (s *Scheduler) Hydrate(ctx context.Context, in Input) Aggregate {
	urls := dedupe(in.URLs)
	maxURLs := in.MaxURLs
	if maxURLs <= 0 || maxURLs > maxURLsCap {
		maxURLs = maxURLsCap
	}
	if len(urls) > maxURLs {
		urls = urls[:maxURLs]
	}

	deadline := time.Duration(in.DeadlineMS) * time.Millisecond
	if deadline <= 0 {
		if s.DefaultDeadline > 0 {
			deadline = s.DefaultDeadline
		} else {
			deadline = defaultDeadline
		}
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if in.Flags.Agentic && strings.ToLower(in.Flags.AgenticSelector) != "lexical" {
		return s.finish(s.hydrateAgentic(ctx, in, urls, maxURLs), in)
	}
	return s.finish(s.hydrateParallel(ctx, in, urls), in)
}

// hydrateParallel fans URLs out under the semaphore; results land at their
// input index regardless of completion order.
func (s *Scheduler) hydrateParallel(ctx context.Context, in Input, urls []string) Aggregate {
	agg := Aggregate{Results: make([]pipeline.Result, len(urls))}
	width := in.MaxParallel
	if width <= 0 {
		if s.DefaultParallel > 0 {
			width = s.DefaultParallel
		} else {
			width = 4
		}
	}
	sem := make(chan struct{}, width)
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := make([]bool, len(urls))

	for i, u := range urls {
		wg.Add(1)
		go func(idx int, rawURL string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			res, attempts := s.hydrateOne(ctx, in, rawURL)
			mu.Lock()
			agg.Results[idx] = res
			agg.Attempts = append(agg.Attempts, attempts...)
			completed[idx] = true
			mu.Unlock()
		}(i, u)
	}

	waitDone := make(chan struct{})
	go func() { wg.Wait(); close(waitDone) }()
	partial := false
	select {
	case <-waitDone:
	case <-ctx.Done():
		partial = true
		// Give in-flight tasks a beat to publish what they have, then take
		// whatever is complete.
		select {
		case <-waitDone:
		case <-time.After(250 * time.Millisecond):
		}
	}

	// Snapshot under the lock: an abandoned task finishing late must not
	// mutate what the caller is reading.
	mu.Lock()
	out := Aggregate{
		Results:  make([]pipeline.Result, len(agg.Results)),
		Attempts: append([]Attempt(nil), agg.Attempts...),
	}
	copy(out.Results, agg.Results)
	for i := range out.Results {
		if !completed[i] {
			out.Results[i] = pipeline.Result{URL: urls[i], Chunks: []chunk.Scored{}}
			partial = true
		}
	}
	mu.Unlock()
	if partial {
		out.Warnings = append(out.Warnings, "deadline_exceeded_partial")
	}
	return out
}

// hydrateAgentic runs sequentially, re-selecting the next URL from the union
// of candidate links discovered so far.
func (s *Scheduler) hydrateAgentic(ctx context.Context, in Input, seeds []string, maxURLs int) Aggregate {
	var agg Aggregate
	queue := append([]string{}, seeds...)
	seen := map[string]struct{}{}
	tokens := textprep.Tokenize(in.Query)

	for len(agg.Results) < maxURLs && len(queue) > 0 {
		if ctx.Err() != nil {
			agg.Warnings = append(agg.Warnings, "deadline_exceeded_partial")
			break
		}
		next := pickBest(queue, tokens)
		queue = remove(queue, next)
		if _, dup := seen[next]; dup {
			continue
		}
		seen[next] = struct{}{}
		res, attempts := s.hydrateOne(ctx, in, next)
		agg.Results = append(agg.Results, res)
		agg.Attempts = append(agg.Attempts, attempts...)
		for _, l := range res.Links {
			if _, dup := seen[l]; !dup {
				queue = append(queue, l)
			}
		}
	}
	return agg
}

// pickBest scores candidate URLs lexically against the query tokens.
func pickBest(queue []string, tokens []string) string {
	best := queue[0]
	bestScore := -1
	for _, u := range queue {
		normalized := textprep.NormalizeForMatch(u)
		score := 0
		for _, t := range tokens {
			if strings.Contains(normalized, t) {
				score++
			}
		}
		if score > bestScore {
			best = u
			bestScore = score
		}
	}
	return best
}

func remove(list []string, item string) []string {
	out := list[:0]
	for _, s := range list {
		if s != item {
			out = append(out, s)
		}
	}
	return out
}

// hydrateOne runs the pipeline for a single URL with the full fallback
// ladder: primary rewrite, truncation retry, render/firecrawl fallbacks,
// and the paper/README rewrite ladder.
func (s *Scheduler) hydrateOne(ctx context.Context, in Input, rawURL string) (pipeline.Result, []Attempt) {
	p := in.Params
	p.URL = rawURL
	p.Query = in.Query
	if p.Backend == "" {
		p.Backend = fetch.BackendLocal
	}
	var attempts []Attempt
	var rewriteWarnings []string

	// Pure upgrades (blob→raw, abs→pdf, …) replace the fetched URL before
	// the first attempt; the result keeps the caller's URL.
	if cand, ok := s.Rules.PrimaryRewrites(rawURL); ok && len(cand.URLs) > 0 {
		p.URL = cand.URLs[0]
		rewriteWarnings = append(rewriteWarnings, cand.Warning)
	}

	res := s.Runner.ExtractOne(ctx, p)
	attempts = append(attempts, Attempt{URL: p.URL, Backend: string(p.Backend)})

	res = s.maybeRetryTruncation(ctx, in, p, res, &attempts)
	res = s.maybeBackendFallback(ctx, in, p, res, &attempts)
	res = s.maybeRewriteFallback(ctx, in, p, rawURL, res, &attempts)

	res.URL = rawURL
	res.Warnings = append(rewriteWarnings, res.Warnings...)
	if res.Status >= 400 {
		res.Warnings = append(res.Warnings, "http_status_error")
		if res.Status == 429 {
			res.Warnings = append(res.Warnings, "http_rate_limited")
		}
	}
	pipeline.LogResult(res)
	return res, attempts
}

func (s *Scheduler) maybeRetryTruncation(ctx context.Context, in Input, p pipeline.Params, res pipeline.Result, attempts *[]Attempt) pipeline.Result {
	if !res.Truncated || !in.Flags.RetryOnTruncation || ctx.Err() != nil {
		return res
	}
	bigger := truncRetryCap
	if in.Flags.TruncationRetryMaxBytes > 0 && in.Flags.TruncationRetryMaxBytes < bigger {
		bigger = in.Flags.TruncationRetryMaxBytes
	}
	if p.MaxBytes != nil && *p.MaxBytes >= bigger {
		return res
	}
	retry := p
	retry.MaxBytes = &bigger
	*attempts = append(*attempts, Attempt{URL: p.URL, Backend: string(p.Backend), Reason: "truncation_retry"})
	second := s.Runner.ExtractOne(ctx, retry)
	if second.Err == nil && !second.Truncated && strings.TrimSpace(second.Text) != "" {
		second.Warnings = append(second.Warnings, "truncation_retry_used", "retried_due_to_truncation")
		return second
	}
	res.Warnings = append(res.Warnings, "truncation_retry_failed")
	return res
}

func (s *Scheduler) maybeBackendFallback(ctx context.Context, in Input, p pipeline.Params, res pipeline.Result, attempts *[]Attempt) pipeline.Result {
	if ctx.Err() != nil || p.Backend != fetch.BackendLocal {
		return res
	}
	empty := res.Err == nil && strings.TrimSpace(res.Text) == ""
	lowSignal := res.Quality.HasLowSignal || res.Quality.BundleGunk

	tryBackend := func(backend fetch.Backend, warning string) (pipeline.Result, bool) {
		retry := p
		retry.Backend = backend
		*attempts = append(*attempts, Attempt{URL: p.URL, Backend: string(backend), Reason: warning})
		second := s.Runner.ExtractOne(ctx, retry)
		if second.Err == nil && strings.TrimSpace(second.Text) != "" {
			second.Warnings = append(second.Warnings, warning)
			return second, true
		}
		return res, false
	}

	if lowSignal && in.Flags.RenderFallbackOnLowSignal {
		if warning, usable := s.renderUsable(); !usable {
			res.Warnings = append(res.Warnings, warning)
		} else if out, ok := tryBackend(fetch.BackendRender, "render_fallback_on_low_signal"); ok {
			return out
		} else {
			res.Warnings = append(res.Warnings, "render_fallback_failed")
		}
	}
	if lowSignal && in.Flags.FirecrawlFallbackOnLowSignal && s.FirecrawlOK {
		if out, ok := tryBackend(fetch.BackendFirecrawl, "firecrawl_fallback_on_low_signal"); ok {
			return out
		}
	}
	if empty && in.Flags.RenderFallbackOnEmpty {
		if warning, usable := s.renderUsable(); !usable {
			res.Warnings = append(res.Warnings, warning)
		} else if out, ok := tryBackend(fetch.BackendRender, "render_fallback_on_empty_extraction"); ok {
			return out
		} else {
			res.Warnings = append(res.Warnings, "render_fallback_failed")
		}
	}
	return res
}

// renderUsable classifies why render fallback cannot run, if it cannot.
func (s *Scheduler) renderUsable() (warning string, usable bool) {
	switch {
	case s.RenderDisabled:
		return "render_fallback_disabled", false
	case !s.RenderSupported:
		return "render_fallback_not_supported", false
	case !s.RenderOK:
		return "render_fallback_not_configured", false
	}
	return "", true
}

// maybeRewriteFallback applies the paper/forum/README rewrite ladder when
// extraction came up empty, low-signal, or a PDF degraded.
func (s *Scheduler) maybeRewriteFallback(ctx context.Context, in Input, p pipeline.Params, rawURL string, res pipeline.Result, attempts *[]Attempt) pipeline.Result {
	if ctx.Err() != nil {
		return res
	}
	pdfDegraded := strings.HasPrefix(res.Engine, "pdf") &&
		(strings.TrimSpace(res.Text) == "" || hasWarning(res.Warnings, "pdf_extract_failed"))
	hintOnly := res.Engine == "html_hint"
	empty := res.Err == nil && strings.TrimSpace(res.Text) == ""
	lowSignal := res.Quality.HasLowSignal
	if !pdfDegraded && !empty && !lowSignal && !hintOnly {
		return res
	}
	for _, cand := range s.Rules.FallbackRewrites(p.URL) {
		for _, candidate := range cand.URLs {
			if ctx.Err() != nil {
				return res
			}
			retry := p
			retry.URL = candidate
			*attempts = append(*attempts, Attempt{URL: candidate, Backend: string(p.Backend), Reason: cand.Warning})
			second := s.Runner.ExtractOne(ctx, retry)
			if second.Err == nil && second.Status < 400 && strings.TrimSpace(second.Text) != "" {
				second.Warnings = append(second.Warnings, cand.Warning)
				return second
			}
		}
	}
	// The original caller URL (pre primary-rewrite) may have its own ladder,
	// e.g. a repo root whose blob rewrite already fired.
	if p.URL != rawURL {
		for _, cand := range s.Rules.FallbackRewrites(rawURL) {
			for _, candidate := range cand.URLs {
				if ctx.Err() != nil {
					return res
				}
				retry := p
				retry.URL = candidate
				*attempts = append(*attempts, Attempt{URL: candidate, Backend: string(p.Backend), Reason: cand.Warning})
				second := s.Runner.ExtractOne(ctx, retry)
				if second.Err == nil && second.Status < 400 && strings.TrimSpace(second.Text) != "" {
					second.Warnings = append(second.Warnings, cand.Warning)
					return second
				}
			}
		}
	}
	return res
}

// finish computes the aggregate top_chunks ordering and cross-URL warnings.
func (s *Scheduler) finish(agg Aggregate, in Input) Aggregate {
	topN := in.TopChunks
	if topN <= 0 {
		topN = defaultTopK
	}
	type keyed struct {
		TopChunk
		urlIndex int
	}
	var flat []keyed
	anyOverlap := false
	anyChunks := false
	for i, res := range agg.Results {
		if res.Status >= 400 {
			continue
		}
		if len(res.Chunks) > 0 {
			anyChunks = true
		}
		if !hasWarning(res.Warnings, "no_query_overlap_doc") && len(res.Chunks) > 0 {
			anyOverlap = true
		}
		for _, c := range res.Chunks {
			flat = append(flat, keyed{
				TopChunk: TopChunk{
					URL:       firstNonEmpty(res.FinalURL, res.URL),
					StartChar: c.StartChar,
					EndChar:   c.EndChar,
					Score:     c.Score,
					Text:      c.Text,
				},
				urlIndex: i,
			})
		}
	}
	sort.SliceStable(flat, func(i, j int) bool {
		if flat[i].Score != flat[j].Score {
			return flat[i].Score > flat[j].Score
		}
		if flat[i].urlIndex != flat[j].urlIndex {
			return flat[i].urlIndex < flat[j].urlIndex
		}
		return flat[i].StartChar < flat[j].StartChar
	})
	if len(flat) > topN {
		flat = flat[:topN]
	}
	agg.TopChunks = make([]TopChunk, 0, len(flat))
	for _, k := range flat {
		agg.TopChunks = append(agg.TopChunks, k.TopChunk)
	}
	if in.Query != "" && anyChunks && !anyOverlap {
		agg.Warnings = append(agg.Warnings, "no_query_overlap_any_url")
	}
	log.Debug().Int("results", len(agg.Results)).Int("top_chunks", len(agg.TopChunks)).Msg("hydration complete")
	return agg
}

func hasWarning(warnings []string, code string) bool {
	for _, w := range warnings {
		if w == code {
			return true
		}
	}
	return false
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func dedupe(urls []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
