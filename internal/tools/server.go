// Package tools exposes the webpipe tool surface over MCP stdio: argument
// parsing, defaults, toolset visibility, delegation into the evidence
// pipeline, and envelope assembly.
package tools

import (
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/webpipe/internal/cache"
	"github.com/hyperifyio/webpipe/internal/cachesearch"
	"github.com/hyperifyio/webpipe/internal/config"
	"github.com/hyperifyio/webpipe/internal/extract"
	"github.com/hyperifyio/webpipe/internal/fetch"
	"github.com/hyperifyio/webpipe/internal/firecrawl"
	"github.com/hyperifyio/webpipe/internal/llm"
	"github.com/hyperifyio/webpipe/internal/pipeline"
	"github.com/hyperifyio/webpipe/internal/render"
	"github.com/hyperifyio/webpipe/internal/repoingest"
	"github.com/hyperifyio/webpipe/internal/scheduler"
	"github.com/hyperifyio/webpipe/internal/search"
	"github.com/hyperifyio/webpipe/internal/semantic"
	"github.com/hyperifyio/webpipe/internal/shellout"
	"github.com/hyperifyio/webpipe/internal/sitemap"
	"github.com/hyperifyio/webpipe/internal/usage"
	"github.com/hyperifyio/webpipe/internal/youtube"
)

// Version is the server version advertised over MCP.
const Version = "2.0.0"

// Server wires every component behind the tool surface.
type Server struct {
	Cfg       config.Config
	Fetcher   *fetch.Fetcher
	Runner    *pipeline.Runner
	Sched     *scheduler.Scheduler
	Registry  *search.Registry
	CacheFind *cachesearch.Searcher
	Reranker  *semantic.Reranker
	Ledger    *usage.Ledger
	Chat      llm.Backend
	Ingester  *repoingest.Ingester
	Harvester *sitemap.Harvester
}

// NewServer assembles the full dependency graph from configuration.
func NewServer(cfg config.Config) *Server {
	ledger := usage.NewLedger()

	var fc *cache.FetchCache
	if cfg.CacheDir != "" {
		fc = &cache.FetchCache{
			Dir:       cfg.CacheDir,
			TTL:       cfg.CacheTTL,
			IOTimeout: time.Duration(cfg.CacheIOTimeoutMS) * time.Millisecond,
		}
	}

	fetcher := fetch.New(cfg, fc)
	runner := &shellout.Runner{}
	if !cfg.RenderDisable {
		fetcher.Render = &render.Chromedp{Proxy: anonProxy(cfg)}
	}
	if cfg.FirecrawlBaseURL != "" {
		fetcher.Firecrawl = &firecrawl.Client{
			BaseURL: cfg.FirecrawlBaseURL,
			APIKey:  cfg.FirecrawlAPIKey,
			Ledger:  ledger,
		}
	}
	if cfg.YoutubeTranscripts {
		fetcher.Transcript = &youtube.Extractor{Runner: runner, MaxStdoutBytes: cfg.ShelloutMaxStdoutBytes}
	}

	pr := &pipeline.Runner{Cfg: cfg, Fetcher: fetcher, Shellout: runner}
	renderSupported := cfg.Privacy != config.PrivacyOffline &&
		!(cfg.Privacy == config.PrivacyAnonymous && strings.HasPrefix(cfg.AnonProxy, "socks5h://"))
	sched := &scheduler.Scheduler{
		Runner:          pr,
		Rules:           cfg.RewriteRules(),
		RenderOK:        fetcher.Render != nil && renderSupported,
		RenderDisabled:  cfg.RenderDisable,
		RenderSupported: renderSupported,
		FirecrawlOK:     cfg.FirecrawlBaseURL != "",
		DefaultParallel: cfg.MaxParallelURLs,
		DefaultDeadline: time.Duration(cfg.DeadlineMS) * time.Millisecond,
	}

	registry := &search.Registry{}
	if cfg.SearxURL != "" {
		registry.Providers = append(registry.Providers, &search.SearxNG{
			BaseURL: cfg.SearxURL, APIKey: cfg.SearxKey,
			HTTPClient: fetcher.HTTPClient, UserAgent: cfg.UserAgent, Ledger: ledger,
		})
	}
	if cfg.BraveAPIKey != "" {
		registry.Providers = append(registry.Providers, &search.Brave{
			APIKey: cfg.BraveAPIKey, HTTPClient: fetcher.HTTPClient, Ledger: ledger,
		})
	}
	if cfg.TavilyAPIKey != "" {
		registry.Providers = append(registry.Providers, &search.Tavily{
			APIKey: cfg.TavilyAPIKey, HTTPClient: fetcher.HTTPClient, Ledger: ledger,
		})
	}
	if cfg.PerplexityAPIKey != "" {
		registry.Providers = append(registry.Providers, &search.Perplexity{
			APIKey:     cfg.PerplexityAPIKey,
			Endpoint:   cfg.PerplexityEndpoint,
			Model:      cfg.PerplexityModel,
			HTTPClient: fetcher.HTTPClient,
			Ledger:     ledger,
		})
	}
	registry.Providers = append(registry.Providers, &search.DuckDuckGo{
		HTTPClient: fetcher.HTTPClient, UserAgent: cfg.UserAgent, Ledger: ledger,
	})

	s := &Server{
		Cfg:      cfg,
		Fetcher:  fetcher,
		Runner:   pr,
		Sched:    sched,
		Registry: registry,
		Ledger:   ledger,
	}
	if fc != nil {
		s.CacheFind = &cachesearch.Searcher{
			Cache: fc,
			ExtractOpt: extract.Options{
				MaxInputBytes: cfg.ExtractMaxBytes,
				PDFShellout:   cfg.PDFShellout,
				Runner:        runner,
			},
		}
	}
	s.Reranker = &semantic.Reranker{
		Timeout: time.Duration(cfg.SemanticTimeoutMS) * time.Millisecond,
	}
	if cfg.EmbeddingsAPIKey != "" || cfg.EmbeddingsBaseURL != "" {
		s.Reranker.Embedder = &semantic.OpenAIEmbedder{
			Client: newOpenAIClient(cfg.EmbeddingsAPIKey, cfg.EmbeddingsBaseURL),
			Model:  cfg.EmbeddingsModel,
			Ledger: ledger,
		}
	}
	if cfg.LLMAPIKey != "" || cfg.LLMBaseURL != "" {
		s.Chat = &llm.OpenAI{
			Client: newOpenAIClient(cfg.LLMAPIKey, cfg.LLMBaseURL),
			Model:  cfg.LLMModel,
			Ledger: ledger,
		}
	}
	s.Ingester = &repoingest.Ingester{
		Fetcher: fetcher,
		APIBase: cfg.GithubAPIBase,
		RawHost: cfg.GithubRawHost,
	}
	s.Harvester = &sitemap.Harvester{Fetcher: fetcher}
	return s
}

func newOpenAIClient(apiKey, baseURL string) *openai.Client {
	oc := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		oc.BaseURL = baseURL
	}
	oc.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	return openai.NewClientWithConfig(oc)
}

func anonProxy(cfg config.Config) string {
	if cfg.Privacy == config.PrivacyAnonymous {
		return cfg.AnonProxy
	}
	return ""
}

// Register adds every visible tool to the MCP server per the configured
// toolset.
func (s *Server) Register(m *mcp.Server) {
	debug := s.Cfg.Toolset == "debug"

	mcp.AddTool(m, &mcp.Tool{
		Name:        "webpipe_meta",
		Description: "Advertise supported backends, search providers, recognized environment knob names (names only), and defaults.",
	}, s.handleMeta)
	mcp.AddTool(m, &mcp.Tool{
		Name:        "webpipe_usage",
		Description: "Report per-provider call counters and cost units for this process.",
	}, s.handleUsage)
	mcp.AddTool(m, &mcp.Tool{
		Name:        "webpipe_usage_reset",
		Description: "Reset the usage counters.",
	}, s.handleUsageReset)
	mcp.AddTool(m, &mcp.Tool{
		Name:        "web_seed_urls",
		Description: "Return the canned seed URL list with stable ids, usable as seed_ids in search_evidence.",
	}, s.handleSeedURLs)
	mcp.AddTool(m, &mcp.Tool{
		Name:        "web_fetch",
		Description: "Fetch one URL with bounded bytes and timeouts; returns status, headers and raw/text body info. No extraction.",
	}, s.handleFetch)
	mcp.AddTool(m, &mcp.Tool{
		Name:        "web_extract",
		Description: "Fetch one URL and extract high-signal text, chunks scored against the query, optional structure and links.",
	}, s.handleExtract)

	// web_search is left out of the normal toolset when no keyed provider and
	// no searx URL is configured; the debug toolset always registers it.
	if debug || s.Registry.HasKeyed() || s.Cfg.SearxURL != "" {
		mcp.AddTool(m, &mcp.Tool{
			Name:        "web_search",
			Description: "Run a provider web search and return result URLs with titles and snippets.",
		}, s.handleSearch)
	}

	mcp.AddTool(m, &mcp.Tool{
		Name:        "web_search_extract",
		Description: "Primary evidence tool: search (or take urls), hydrate pages in parallel under a deadline, and return scored evidence chunks.",
	}, s.handleSearchExtract)
	mcp.AddTool(m, &mcp.Tool{
		Name:        "search_evidence",
		Description: "Alias of web_search_extract.",
	}, s.handleSearchExtract)
	mcp.AddTool(m, &mcp.Tool{
		Name:        "web_cache_search_extract",
		Description: "Offline evidence: scan the local fetch cache, score cached documents against the query, no network.",
	}, s.handleCacheSearchExtract)
	mcp.AddTool(m, &mcp.Tool{
		Name:        "web_explore_extract",
		Description: "Explore from a seed URL by following the most query-relevant links, hydrating each page.",
	}, s.handleExploreExtract)
	mcp.AddTool(m, &mcp.Tool{
		Name:        "web_sitemap_extract",
		Description: "Harvest URLs from a sitemap.xml (or index) and hydrate the most query-relevant pages.",
	}, s.handleSitemapExtract)
	mcp.AddTool(m, &mcp.Tool{
		Name:        "repo_ingest",
		Description: "Bounded repository ingest over the code-host API: tree listing, README and top files.",
	}, s.handleRepoIngest)

	if debug {
		mcp.AddTool(m, &mcp.Tool{
			Name:        "webpipe_warnings",
			Description: "List the closed warning-code vocabulary with hints (debug toolset).",
		}, s.handleWarnings)
	}
	log.Info().Str("toolset", s.Cfg.Toolset).Msg("tools registered")
}
