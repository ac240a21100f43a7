package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hyperifyio/webpipe/internal/cachesearch"
	"github.com/hyperifyio/webpipe/internal/envelope"
	"github.com/hyperifyio/webpipe/internal/fetch"
	"github.com/hyperifyio/webpipe/internal/llm"
	"github.com/hyperifyio/webpipe/internal/pipeline"
	"github.com/hyperifyio/webpipe/internal/repoingest"
	"github.com/hyperifyio/webpipe/internal/scheduler"
)

// CacheSearchIn is the argument shape for web_cache_search_extract.
type CacheSearchIn struct {
	Query            string `json:"query" jsonschema:"query scored against cached documents"`
	MaxDocs          int    `json:"max_docs,omitempty"`
	MaxScanEntries   int    `json:"max_scan_entries,omitempty"`
	TopK             int    `json:"top_k,omitempty"`
	MaxChunkChars    int    `json:"max_chunk_chars,omitempty"`
	IncludeStructure bool   `json:"include_structure,omitempty"`
	Shape            string `json:"output_mode,omitempty"`
}

func (s *Server) handleCacheSearchExtract(ctx context.Context, req *mcp.CallToolRequest, in CacheSearchIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	env := envelope.New("web_cache_search_extract")
	shape := envelope.ParseShape(in.Shape)
	if in.Query == "" {
		env.Fail(envelope.NewError(envelope.CodeInvalidParams, "query is required", "Pass query=\"…\"."))
		return s.reply(env, started, shape)
	}
	if s.CacheFind == nil {
		env.Fail(envelope.NewError(envelope.CodeNotConfigured,
			"cache is not configured", "Set WEBPIPE_CACHE_DIR and warm it with web_fetch."))
		return s.reply(env, started, shape)
	}
	docs, warnings := s.CacheFind.Search(ctx, cachesearch.Params{
		Query:            in.Query,
		MaxDocs:          in.MaxDocs,
		MaxScanEntries:   in.MaxScanEntries,
		TopK:             in.TopK,
		MaxChunkChars:    in.MaxChunkChars,
		IncludeStructure: in.IncludeStructure,
		Timeout:          time.Duration(s.Cfg.CacheSearchTimeoutMS) * time.Millisecond,
	})
	env.AddWarnings(warnings...)
	env.Request = map[string]any{"query": in.Query, "max_docs": in.MaxDocs}

	var top []scheduler.TopChunk
	for _, d := range docs {
		for _, c := range d.Chunks {
			top = append(top, scheduler.TopChunk{
				URL: d.FinalURL, StartChar: c.StartChar, EndChar: c.EndChar,
				Score: c.Score, Text: c.Text,
			})
		}
	}
	limit := clampInt(in.TopK, 8, 1, 50)
	if len(top) > limit {
		top = top[:limit]
	}
	if top == nil {
		top = []scheduler.TopChunk{}
	}
	env.Set("results", docs)
	env.Set("top_chunks", top)
	return s.reply(env, started, shape)
}

// ExploreIn is the argument shape for web_explore_extract.
type ExploreIn struct {
	URL              string `json:"url" jsonschema:"seed URL to explore from"`
	Query            string `json:"query,omitempty"`
	MaxURLs          int    `json:"max_urls,omitempty"`
	DeadlineMS       int    `json:"deadline_ms,omitempty"`
	TopChunks        int    `json:"top_chunks,omitempty"`
	IncludeText      bool   `json:"include_text,omitempty"`
	Shape            string `json:"output_mode,omitempty"`
	IncludeStructure bool   `json:"include_structure,omitempty"`
	// Synthesize asks the configured chat backend for a short grounded
	// summary of the gathered evidence.
	Synthesize bool `json:"synthesize,omitempty"`
}

func (s *Server) handleExploreExtract(ctx context.Context, req *mcp.CallToolRequest, in ExploreIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	env := envelope.New("web_explore_extract")
	shape := envelope.ParseShape(in.Shape)
	if in.URL == "" {
		env.Fail(envelope.NewError(envelope.CodeInvalidParams, "url is required", "Pass url=\"https://…\"."))
		return s.reply(env, started, shape)
	}
	agg := s.Sched.Hydrate(ctx, scheduler.Input{
		URLs:  []string{in.URL},
		Query: in.Query,
		Params: pipeline.Params{
			Backend:          fetch.BackendLocal,
			CacheRead:        true,
			CacheWrite:       true,
			IncludeLinks:     true,
			MaxLinks:         100,
			IncludeStructure: in.IncludeStructure,
		},
		MaxURLs:    clampInt(in.MaxURLs, 4, 1, 16),
		DeadlineMS: in.DeadlineMS,
		TopChunks:  in.TopChunks,
		Flags: scheduler.Flags{
			Agentic:         true,
			AgenticSelector: "links",
		},
	})
	collectWarnings(env, agg)
	env.Attempts = agg.Attempts
	env.Request = map[string]any{"url": in.URL, "query": in.Query}
	env.Set("results", resultMaps(agg.Results, in.IncludeText))
	env.Set("top_chunks", agg.TopChunks)
	if in.Synthesize {
		if summary, serr := s.synthesize(ctx, in.Query, agg.TopChunks); serr != nil {
			env.AddWarnings(serr.warning)
		} else {
			env.Set("synthesis", summary)
		}
	}
	return s.reply(env, started, shape)
}

type synthErr struct{ warning string }

func (e *synthErr) Error() string { return e.warning }

// synthesize asks the chat backend for a short evidence-grounded summary.
func (s *Server) synthesize(ctx context.Context, query string, chunks []scheduler.TopChunk) (map[string]any, *synthErr) {
	if s.Chat == nil {
		return nil, &synthErr{warning: "synthesis_not_configured"}
	}
	var b strings.Builder
	b.WriteString("Summarize the evidence below in at most five sentences, grounded strictly in the quoted text.\n")
	if query != "" {
		b.WriteString("Question: " + query + "\n")
	}
	for i, c := range chunks {
		if i >= 8 {
			break
		}
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n", i+1, c.URL, c.Text)
	}
	reply, err := s.Chat.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You are a careful research assistant. Cite sources as [n]."},
		{Role: "user", Content: b.String()},
	}, 400, 0.2, 30*time.Second)
	if err != nil {
		return nil, &synthErr{warning: "synthesis_failed"}
	}
	return map[string]any{
		"text":          reply.Text,
		"model":         reply.Model,
		"finish_reason": reply.FinishReason,
	}, nil
}

// SitemapIn is the argument shape for web_sitemap_extract.
type SitemapIn struct {
	SitemapURL  string `json:"sitemap_url" jsonschema:"URL of the sitemap.xml or sitemap index"`
	Query       string `json:"query,omitempty"`
	MaxURLs     int    `json:"max_urls,omitempty"`
	DeadlineMS  int    `json:"deadline_ms,omitempty"`
	TopChunks   int    `json:"top_chunks,omitempty"`
	IncludeText bool   `json:"include_text,omitempty"`
	Shape       string `json:"output_mode,omitempty"`
}

func (s *Server) handleSitemapExtract(ctx context.Context, req *mcp.CallToolRequest, in SitemapIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	env := envelope.New("web_sitemap_extract")
	shape := envelope.ParseShape(in.Shape)
	if in.SitemapURL == "" {
		env.Fail(envelope.NewError(envelope.CodeInvalidParams, "sitemap_url is required", "Pass sitemap_url=\"https://…/sitemap.xml\"."))
		return s.reply(env, started, shape)
	}
	harvested, err := s.Harvester.Harvest(ctx, in.SitemapURL, in.MaxURLs*4)
	if err != nil {
		env.Fail(envelope.FromErr(err))
		return s.reply(env, started, shape)
	}
	urls := rankByQuery(harvested, in.Query, clampInt(in.MaxURLs, 4, 1, 16))
	agg := s.Sched.Hydrate(ctx, scheduler.Input{
		URLs:  urls,
		Query: in.Query,
		Params: pipeline.Params{
			Backend:    fetch.BackendLocal,
			CacheRead:  true,
			CacheWrite: true,
		},
		MaxURLs:    len(urls),
		DeadlineMS: in.DeadlineMS,
		TopChunks:  in.TopChunks,
	})
	collectWarnings(env, agg)
	env.Attempts = agg.Attempts
	env.Request = map[string]any{"sitemap_url": in.SitemapURL, "query": in.Query}
	env.Set("harvested_urls", harvested)
	env.Set("results", resultMaps(agg.Results, in.IncludeText))
	env.Set("top_chunks", agg.TopChunks)
	return s.reply(env, started, shape)
}

// RepoIngestIn is the argument shape for repo_ingest.
type RepoIngestIn struct {
	RepoURL      string `json:"repo_url" jsonschema:"repository page URL (https://github.com/owner/repo)"`
	Query        string `json:"query,omitempty"`
	MaxFiles     int    `json:"max_files,omitempty"`
	MaxFileBytes int64  `json:"max_file_bytes,omitempty"`
	Shape        string `json:"output_mode,omitempty"`
}

func (s *Server) handleRepoIngest(ctx context.Context, req *mcp.CallToolRequest, in RepoIngestIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	env := envelope.New("repo_ingest")
	shape := envelope.ParseShape(in.Shape)
	if in.RepoURL == "" {
		env.Fail(envelope.NewError(envelope.CodeInvalidParams, "repo_url is required", "Pass repo_url=\"https://github.com/owner/repo\"."))
		return s.reply(env, started, shape)
	}
	res, err := s.Ingester.Ingest(ctx, in.RepoURL, in.Query, repoingest.Limits{
		MaxFiles:     in.MaxFiles,
		MaxFileBytes: in.MaxFileBytes,
	})
	if err != nil {
		env.Fail(envelope.FromErr(err))
		return s.reply(env, started, shape)
	}
	env.Request = map[string]any{"repo_url": in.RepoURL, "query": in.Query}
	env.Set("repo", res.Repo)
	env.Set("default_branch", res.DefaultBranch)
	env.Set("tree_paths", res.TreePaths)
	env.Set("files", res.Files)
	env.Set("truncated_tree", res.TruncatedTree)
	return s.reply(env, started, shape)
}
