package tools

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hyperifyio/webpipe/internal/envelope"
	"github.com/hyperifyio/webpipe/internal/fetch"
	"github.com/hyperifyio/webpipe/internal/pipeline"
	"github.com/hyperifyio/webpipe/internal/scheduler"
	"github.com/hyperifyio/webpipe/internal/sniff"
)

// FetchIn is the argument shape for web_fetch.
type FetchIn struct {
	URL        string            `json:"url" jsonschema:"absolute http(s) URL to fetch"`
	TimeoutMS  int               `json:"timeout_ms,omitempty" jsonschema:"per-request timeout in milliseconds"`
	MaxBytes   *int64            `json:"max_bytes,omitempty" jsonschema:"cap on body bytes; body is truncated at this size"`
	Headers    map[string]string `json:"headers,omitempty" jsonschema:"extra request headers; sensitive ones are dropped unless the unsafe opt-in is set"`
	Backend    string            `json:"fetch_backend,omitempty" jsonschema:"local | cache | render | firecrawl"`
	CacheRead  *bool             `json:"cache_read,omitempty" jsonschema:"serve from cache when possible (default true)"`
	CacheWrite *bool             `json:"cache_write,omitempty" jsonschema:"persist the response to cache (default true)"`
	NoNetwork  bool              `json:"no_network,omitempty" jsonschema:"cache-only; never touch the network"`
}

func (s *Server) handleFetch(ctx context.Context, req *mcp.CallToolRequest, in FetchIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	env := envelope.New("web_fetch")
	if in.URL == "" {
		env.Fail(envelope.NewError(envelope.CodeInvalidParams, "url is required", "Pass url=\"https://…\"."))
		return s.reply(env, started, envelope.ShapeVerbose)
	}
	backend := fetch.Backend(in.Backend)
	if backend == "" {
		backend = fetch.BackendLocal
	}
	if in.NoNetwork {
		backend = fetch.BackendCache
	}
	freq := fetch.Request{
		URL:        in.URL,
		TimeoutMS:  in.TimeoutMS,
		MaxBytes:   in.MaxBytes,
		Headers:    in.Headers,
		CacheRead:  boolOr(in.CacheRead, true),
		CacheWrite: boolOr(in.CacheWrite, true),
	}
	env.Request = map[string]any{"url": in.URL, "fetch_backend": string(backend)}

	resp, err := s.Fetcher.Do(ctx, freq, backend)
	if err != nil {
		env.Fail(envelope.FromErr(err))
		if backend == fetch.BackendCache {
			env.AddWarnings("no_network_may_require_warm_cache")
		}
		return s.reply(env, started, envelope.ShapeVerbose)
	}
	env.AddWarnings(resp.Warnings...)
	if resp.Truncated {
		env.AddWarnings("body_truncated_by_max_bytes")
	}
	if len(resp.DroppedRequestHeaders) > 0 {
		env.Set("dropped_request_headers", resp.DroppedRequestHeaders)
	}

	kind := sniff.Detect(resp.Bytes, resp.ContentType, resp.FinalURL)
	env.Set("url", resp.URL)
	env.Set("final_url", resp.FinalURL)
	env.Set("status", resp.Status)
	env.Set("content_type", resp.ContentType)
	env.Set("headers", resp.Headers)
	env.Set("bytes", len(resp.Bytes))
	env.Set("truncated", resp.Truncated)
	env.Set("source", resp.Source)
	env.Set("timings", resp.Timings)
	env.Set("detected_kind", string(kind))
	switch kind {
	case sniff.KindPDF:
		env.AddWarnings("text_unavailable_for_pdf")
	case sniff.KindHTML, sniff.KindText, sniff.KindMarkdown, sniff.KindJSON, sniff.KindXML:
		env.Set("text", previewText(string(resp.Bytes), 20_000))
	}
	return s.reply(env, started, envelope.ShapeVerbose)
}

// ExtractIn is the argument shape for web_extract.
type ExtractIn struct {
	URL              string            `json:"url" jsonschema:"absolute http(s) URL to extract"`
	Query            string            `json:"query,omitempty" jsonschema:"query used to score evidence chunks"`
	TimeoutMS        int               `json:"timeout_ms,omitempty"`
	MaxBytes         *int64            `json:"max_bytes,omitempty"`
	MaxChars         int               `json:"max_chars,omitempty" jsonschema:"cap on extracted text codepoints"`
	TopK             int               `json:"top_k,omitempty" jsonschema:"number of chunks to keep (1-50)"`
	MaxChunkChars    int               `json:"max_chunk_chars,omitempty" jsonschema:"cap per chunk (50-5000 codepoints)"`
	IncludeStructure bool              `json:"include_structure,omitempty"`
	IncludeLinks     bool              `json:"include_links,omitempty"`
	MaxLinks         int               `json:"max_links,omitempty"`
	IncludeText      bool              `json:"include_text,omitempty" jsonschema:"include the full extracted text in the result"`
	Headers          map[string]string `json:"headers,omitempty"`
	Backend          string            `json:"fetch_backend,omitempty"`
	NoNetwork        bool              `json:"no_network,omitempty"`
	Shape            string            `json:"output_mode,omitempty" jsonschema:"verbose | compact | minimal"`
}

func (s *Server) handleExtract(ctx context.Context, req *mcp.CallToolRequest, in ExtractIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	env := envelope.New("web_extract")
	if in.URL == "" {
		env.Fail(envelope.NewError(envelope.CodeInvalidParams, "url is required", "Pass url=\"https://…\"."))
		return s.reply(env, started, envelope.ParseShape(in.Shape))
	}
	backend := fetch.Backend(in.Backend)
	if backend == "" {
		backend = fetch.BackendLocal
	}
	if in.NoNetwork {
		backend = fetch.BackendCache
	}
	env.Request = map[string]any{"url": in.URL, "query": in.Query, "fetch_backend": string(backend)}

	agg := s.Sched.Hydrate(ctx, scheduler.Input{
		URLs:  []string{in.URL},
		Query: in.Query,
		Params: pipeline.Params{
			Backend:          backend,
			TimeoutMS:        in.TimeoutMS,
			MaxBytes:         in.MaxBytes,
			Headers:          in.Headers,
			CacheRead:        true,
			CacheWrite:       !in.NoNetwork,
			MaxChars:         in.MaxChars,
			TopK:             in.TopK,
			MaxChunkChars:    in.MaxChunkChars,
			IncludeStructure: in.IncludeStructure,
			IncludeLinks:     in.IncludeLinks,
			MaxLinks:         in.MaxLinks,
		},
		MaxURLs:   1,
		TopChunks: clampInt(in.TopK, 8, 1, 50),
	})
	collectWarnings(env, agg)
	env.Attempts = agg.Attempts
	if allFailed(agg) {
		env.Fail(envelope.FromErr(agg.Results[0].Err))
		return s.reply(env, started, envelope.ParseShape(in.Shape))
	}
	res := agg.Results[0]
	env.Set("results", resultMaps(agg.Results, in.IncludeText))
	env.Set("top_chunks", agg.TopChunks)
	env.Set("final_url", res.FinalURL)
	env.Set("engine", res.Engine)
	env.Set("text_chars", utf8.RuneCountInString(res.Text))
	return s.reply(env, started, envelope.ParseShape(in.Shape))
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
