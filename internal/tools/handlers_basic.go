package tools

import (
	"context"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hyperifyio/webpipe/internal/config"
	"github.com/hyperifyio/webpipe/internal/envelope"
	"github.com/hyperifyio/webpipe/internal/seeds"
)

// EmptyIn is the argument shape for tools that take no (or all-optional)
// input; a null arguments object is accepted.
type EmptyIn struct{}

func (s *Server) handleMeta(ctx context.Context, req *mcp.CallToolRequest, in EmptyIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	env := envelope.New("webpipe_meta")
	backends := []string{"local", "cache"}
	if !s.Cfg.RenderDisable {
		backends = append(backends, "render")
	}
	if s.Cfg.FirecrawlBaseURL != "" {
		backends = append(backends, "firecrawl")
	}
	env.Set("backends", backends)
	env.Set("providers", s.Registry.Names())
	env.Set("knobs", config.KnownKeys())
	env.Set("toolset", s.Cfg.Toolset)
	env.Set("privacy_mode", string(s.Cfg.Privacy))
	env.Set("cache_enabled", s.Cfg.CacheDir != "")
	env.Set("defaults", map[string]any{
		"max_parallel_urls": s.Cfg.MaxParallelURLs,
		"deadline_ms":       s.Cfg.DeadlineMS,
		"max_chars":         20_000,
		"top_chunks":        8,
	})
	return s.reply(env, started, envelope.ShapeVerbose)
}

func (s *Server) handleUsage(ctx context.Context, req *mcp.CallToolRequest, in EmptyIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	env := envelope.New("webpipe_usage")
	env.Set("providers", s.Ledger.Snapshot())
	return s.reply(env, started, envelope.ShapeVerbose)
}

func (s *Server) handleUsageReset(ctx context.Context, req *mcp.CallToolRequest, in EmptyIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	s.Ledger.Reset()
	env := envelope.New("webpipe_usage_reset")
	env.Set("reset", true)
	return s.reply(env, started, envelope.ShapeVerbose)
}

func (s *Server) handleSeedURLs(ctx context.Context, req *mcp.CallToolRequest, in EmptyIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	env := envelope.New("web_seed_urls")
	env.Set("seeds", seeds.All())
	return s.reply(env, started, envelope.ShapeVerbose)
}

func (s *Server) handleWarnings(ctx context.Context, req *mcp.CallToolRequest, in EmptyIn) (*mcp.CallToolResult, map[string]any, error) {
	started := time.Now()
	env := envelope.New("webpipe_warnings")
	codes := envelope.KnownWarningCodes()
	sort.Strings(codes)
	table := map[string]string{}
	for _, c := range codes {
		table[c] = envelope.WarningHint(c)
	}
	env.Set("codes", codes)
	env.Set("hints", table)
	return s.reply(env, started, envelope.ShapeVerbose)
}
