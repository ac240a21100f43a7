package tools

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webpipe/internal/envelope"
	"github.com/hyperifyio/webpipe/internal/fetch"
	"github.com/hyperifyio/webpipe/internal/pipeline"
	"github.com/hyperifyio/webpipe/internal/scheduler"
	"github.com/hyperifyio/webpipe/internal/search"
	"github.com/hyperifyio/webpipe/internal/seeds"
)

// SearchIn is the argument shape for web_search.
type SearchIn struct {
	Query      string `json:"query" jsonschema:"search query"`
	Provider   string `json:"provider,omitempty" jsonschema:"provider name, auto, or merge"`
	MaxResults int    `json:"max_results,omitempty"`
	Language   string `json:"language,omitempty"`
	Country    string `json:"country,omitempty"`
	TimeoutMS  int    `json:"timeout_ms,omitempty"`
	// SearchMode is forwarded to answer-style providers; "off" asks them
	// not to browse on their side.
	SearchMode string `json:"search_mode,omitempty"`
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, in SearchIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	env := envelope.New("web_search")
	if in.Query == "" {
		env.Fail(envelope.NewError(envelope.CodeInvalidParams, "query is required", "Pass query=\"…\"."))
		return s.reply(env, started, envelope.ShapeVerbose)
	}
	resp, perr := s.runSearch(ctx, in)
	if perr != nil {
		env.Fail(perr)
		return s.reply(env, started, envelope.ShapeVerbose)
	}
	if resp.Provider == "tavily" {
		env.AddWarnings("tavily_used")
	}
	env.AddWarnings(resp.Warnings...)
	env.Request = map[string]any{"query": in.Query, "provider": resp.Provider}
	env.Set("results", resp.Results)
	env.Set("provider", resp.Provider)
	env.Set("cost_units", resp.CostUnits)
	env.Set("timings_ms", resp.TimingsMS)
	if resp.Answer != "" {
		env.Set("answer", resp.Answer)
	}
	return s.reply(env, started, envelope.ShapeVerbose)
}

func (s *Server) runSearch(ctx context.Context, in SearchIn) (search.Response, *envelope.Error) {
	q := search.Query{
		Text:       in.Query,
		MaxResults: in.MaxResults,
		Language:   in.Language,
		Country:    in.Country,
		Timeout:    time.Duration(in.TimeoutMS) * time.Millisecond,
		SearchMode: in.SearchMode,
	}
	// provider "merge" fans out to every configured provider for recall.
	if strings.EqualFold(in.Provider, "merge") {
		resp, err := s.Registry.SearchAll(ctx, q)
		if err != nil {
			log.Warn().Err(err).Msg("merge search failed")
			return search.Response{}, envelope.NewError(envelope.CodeSearchFailed, err.Error(), "Retry, or pick a single provider.")
		}
		return resp, nil
	}
	provider := s.Registry.Resolve(in.Provider)
	if provider == nil {
		return search.Response{}, envelope.NewError(envelope.CodeNotConfigured,
			"no search provider configured", "Set WEBPIPE_SEARX_URL, WEBPIPE_BRAVE_API_KEY or WEBPIPE_TAVILY_API_KEY.")
	}
	resp, err := provider.Search(ctx, q)
	if err != nil {
		log.Warn().Err(err).Str("provider", provider.Name()).Msg("search failed")
		return search.Response{}, envelope.NewError(envelope.CodeSearchFailed, err.Error(), "Retry, or pick another provider.")
	}
	return resp, nil
}

// SearchExtractIn is the argument shape for web_search_extract /
// search_evidence.
type SearchExtractIn struct {
	Query            string   `json:"query,omitempty" jsonschema:"query used for search and chunk scoring"`
	URLs             []string `json:"urls,omitempty" jsonschema:"explicit URL set; skips the search step"`
	SeedIDs          []string `json:"seed_ids,omitempty" jsonschema:"ids from web_seed_urls to include"`
	Provider         string   `json:"provider,omitempty"`
	MaxURLs          int      `json:"max_urls,omitempty"`
	MaxParallelURLs  int      `json:"max_parallel_urls,omitempty"`
	DeadlineMS       int      `json:"deadline_ms,omitempty"`
	TimeoutMS        int      `json:"timeout_ms,omitempty"`
	MaxBytes         *int64   `json:"max_bytes,omitempty"`
	MaxChars         int      `json:"max_chars,omitempty"`
	TopChunks        int      `json:"top_chunks,omitempty"`
	TopK             int      `json:"top_k,omitempty"`
	MaxChunkChars    int      `json:"max_chunk_chars,omitempty"`
	IncludeStructure bool     `json:"include_structure,omitempty"`
	IncludeLinks     bool     `json:"include_links,omitempty"`
	IncludeText      bool     `json:"include_text,omitempty"`
	SearchMode       string   `json:"search_mode,omitempty" jsonschema:"forwarded to answer-style providers; off disables provider-side browsing"`
	URLSelectionMode string   `json:"url_selection_mode,omitempty" jsonschema:"preserve keeps input URL order"`
	Agentic          bool     `json:"agentic,omitempty"`
	AgenticSelector  string   `json:"agentic_selector,omitempty" jsonschema:"lexical (default) keeps urls-mode parallelism"`

	RetryOnTruncation            bool   `json:"retry_on_truncation,omitempty"`
	TruncationRetryMaxBytes      int64  `json:"truncation_retry_max_bytes,omitempty"`
	RenderFallbackOnLowSignal    bool   `json:"render_fallback_on_low_signal,omitempty"`
	RenderFallbackOnEmpty        bool   `json:"render_fallback_on_empty_extraction,omitempty"`
	FirecrawlFallbackOnLowSignal bool   `json:"firecrawl_fallback_on_low_signal,omitempty"`
	SemanticRerank               bool   `json:"semantic_rerank,omitempty"`
	SemanticAutoFallback         *bool  `json:"semantic_auto_fallback,omitempty"`
	NoNetwork                    bool   `json:"no_network,omitempty"`
	Backend                      string `json:"fetch_backend,omitempty"`
	Shape                        string `json:"output_mode,omitempty" jsonschema:"verbose | compact | minimal"`
}

func (s *Server) handleSearchExtract(ctx context.Context, req *mcp.CallToolRequest, in SearchExtractIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	kind := "web_search_extract"
	env := envelope.New(kind)
	shape := envelope.ParseShape(in.Shape)

	urls := append([]string{}, in.URLs...)
	if len(in.SeedIDs) > 0 {
		seedURLs, unknown := seeds.Lookup(in.SeedIDs)
		urls = append(urls, seedURLs...)
		if len(unknown) > 0 {
			env.AddWarnings("unknown_seed_id")
			env.Set("unknown_seed_ids", unknown)
		}
	}
	if len(urls) == 0 && in.Query == "" {
		env.Fail(envelope.NewError(envelope.CodeInvalidParams,
			"either query or urls is required", "Pass query=\"…\" or urls=[…]."))
		return s.reply(env, started, shape)
	}

	provider := ""
	if len(urls) == 0 {
		resp, perr := s.runSearch(ctx, SearchIn{
			Query: in.Query, Provider: in.Provider, MaxResults: in.MaxURLs,
			SearchMode: in.SearchMode,
		})
		if perr != nil {
			env.Fail(perr)
			return s.reply(env, started, shape)
		}
		if resp.Provider == "tavily" {
			env.AddWarnings("tavily_used")
		}
		env.AddWarnings(resp.Warnings...)
		provider = resp.Provider
		for _, r := range resp.Results {
			urls = append(urls, r.URL)
		}
	}

	backend := fetch.Backend(in.Backend)
	if backend == "" {
		backend = fetch.BackendLocal
	}
	if in.NoNetwork {
		backend = fetch.BackendCache
	}

	agg := s.Sched.Hydrate(ctx, scheduler.Input{
		URLs:  urls,
		Query: in.Query,
		Params: pipeline.Params{
			Backend:          backend,
			TimeoutMS:        in.TimeoutMS,
			MaxBytes:         in.MaxBytes,
			CacheRead:        true,
			CacheWrite:       !in.NoNetwork,
			MaxChars:         in.MaxChars,
			TopK:             in.TopK,
			MaxChunkChars:    in.MaxChunkChars,
			IncludeStructure: in.IncludeStructure,
			IncludeLinks:     in.IncludeLinks || in.Agentic,
			MaxLinks:         50,
		},
		MaxURLs:     in.MaxURLs,
		MaxParallel: in.MaxParallelURLs,
		DeadlineMS:  in.DeadlineMS,
		TopChunks:   in.TopChunks,
		Flags: scheduler.Flags{
			RetryOnTruncation:            in.RetryOnTruncation,
			TruncationRetryMaxBytes:      in.TruncationRetryMaxBytes,
			RenderFallbackOnLowSignal:    in.RenderFallbackOnLowSignal,
			RenderFallbackOnEmpty:        in.RenderFallbackOnEmpty,
			FirecrawlFallbackOnLowSignal: in.FirecrawlFallbackOnLowSignal,
			Agentic:                      in.Agentic,
			AgenticSelector:              in.AgenticSelector,
		},
	})
	collectWarnings(env, agg)
	env.Attempts = agg.Attempts
	env.Request = map[string]any{
		"query":              in.Query,
		"urls":               urls,
		"provider":           provider,
		"url_selection_mode": defaultStr(in.URLSelectionMode, "preserve"),
	}

	topChunks := agg.TopChunks
	if in.SemanticRerank || (boolOr(in.SemanticAutoFallback, true) && s.Reranker.ShouldAutoFallback(topChunks) && s.Reranker.Configured() && in.Query != "") {
		if !in.SemanticRerank {
			env.AddWarnings("semantic_auto_fallback_used")
		}
		reranked, warning := s.Reranker.Rerank(ctx, in.Query, topChunks, in.TopChunks)
		topChunks = reranked
		if warning != "" {
			env.AddWarnings(warning)
		}
	}

	if allFailed(agg) && len(topChunks) == 0 {
		env.Fail(envelope.NewError(envelope.CodeFetchFailed,
			"all URLs failed to hydrate", "Check the per-result errors; retry or choose different URLs."))
	}
	env.Set("results", resultMaps(agg.Results, in.IncludeText))
	env.Set("top_chunks", topChunks)
	return s.reply(env, started, shape)
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
