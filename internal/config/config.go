// Package config assembles the process-wide knob registry from the
// environment once at startup; the rest of the system consumes the resulting
// Config by reference and never reads the environment directly.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webpipe/internal/rewrite"
)

// PrivacyMode selects the network posture.
type PrivacyMode string

const (
	PrivacyNormal    PrivacyMode = "normal"
	PrivacyAnonymous PrivacyMode = "anonymous"
	PrivacyOffline   PrivacyMode = "offline"
)

// Config is the process-wide knob registry.
type Config struct {
	CacheDir           string
	CacheTTL           time.Duration
	AllowUnsafeHeaders bool
	Privacy            PrivacyMode
	AnonProxy          string
	OfflineOnly        bool
	LogLevel           string
	Toolset            string
	UserAgent          string

	RateLimitPerSec float64
	MaxParallelURLs int
	DeadlineMS      int

	ExtractMaxBytes          int
	ExtractPipelineTimeoutMS int
	LinksTimeoutMS           int
	SemanticTimeoutMS        int
	CacheIOTimeoutMS         int
	CacheSearchTimeoutMS     int
	ShelloutTimeoutMS        int
	ShelloutMaxStdoutBytes   int

	PDFShellout        string
	OCREnable          bool
	PandocEnable       bool
	FFmpegEnable       bool
	YoutubeTranscripts bool
	RenderDisable      bool

	FirecrawlBaseURL string
	FirecrawlAPIKey  string

	SearxURL           string
	SearxKey           string
	BraveAPIKey        string
	TavilyAPIKey       string
	PerplexityAPIKey   string
	PerplexityEndpoint string
	PerplexityModel    string

	EmbeddingsBaseURL string
	EmbeddingsAPIKey  string
	EmbeddingsModel   string
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string

	GithubRewriteHosts    []string
	GithubRawHost         string
	GithubRewriteBranches []string
	GithubAPIBase         string
	GistRewriteHosts      []string
	GistRawHost           string
	ArxivRewriteHosts     []string
	ArxivPDFFallbackBase  string
	OpenreviewHosts       []string
	OpenreviewAPIBase     string

	MarkdownIncludeJSON bool
}

// Defaults returns the baseline configuration before the environment is
// applied.
func Defaults() Config {
	return Config{
		Privacy:                  PrivacyNormal,
		LogLevel:                 "info",
		Toolset:                  "normal",
		UserAgent:                "webpipe/2 (+https://github.com/hyperifyio/webpipe)",
		MaxParallelURLs:          4,
		DeadlineMS:               45_000,
		ExtractMaxBytes:          4 << 20,
		ExtractPipelineTimeoutMS: 20_000,
		LinksTimeoutMS:           2_000,
		SemanticTimeoutMS:        8_000,
		CacheIOTimeoutMS:         2_000,
		CacheSearchTimeoutMS:     10_000,
		ShelloutTimeoutMS:        20_000,
		ShelloutMaxStdoutBytes:   8 << 20,
		PDFShellout:              "auto",
		EmbeddingsModel:          "text-embedding-3-small",
	}
}

// Load builds the effective Config: optional .env autoload, then defaults,
// then environment overrides.
func Load() Config {
	if isTrue(os.Getenv("WEBPIPE_AUTOLOAD_DOTENV")) {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("dotenv autoload failed; continuing")
		}
	}
	cfg := Defaults()
	ApplyEnv(&cfg)
	return cfg
}

// ApplyEnv overrides cfg fields from the environment when the corresponding
// variables are set.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(dst *bool, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = isTrue(v)
		}
	}
	setCSV := func(dst *[]string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			var parts []string
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					parts = append(parts, p)
				}
			}
			*dst = parts
		}
	}

	setStr(&cfg.CacheDir, "WEBPIPE_CACHE_DIR")
	if v := strings.TrimSpace(os.Getenv("WEBPIPE_CACHE_TTL_S")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTL = time.Duration(n) * time.Second
		}
	}
	setBool(&cfg.AllowUnsafeHeaders, "WEBPIPE_ALLOW_UNSAFE_HEADERS")
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("WEBPIPE_PRIVACY_MODE"))); v != "" {
		switch PrivacyMode(v) {
		case PrivacyNormal, PrivacyAnonymous, PrivacyOffline:
			cfg.Privacy = PrivacyMode(v)
		default:
			log.Warn().Str("value", v).Msg("unknown privacy mode; keeping current")
		}
	}
	setStr(&cfg.AnonProxy, "WEBPIPE_ANON_PROXY")
	setBool(&cfg.OfflineOnly, "WEBPIPE_OFFLINE_ONLY")
	if cfg.OfflineOnly {
		cfg.Privacy = PrivacyOffline
	}
	setStr(&cfg.LogLevel, "WEBPIPE_LOG_LEVEL")
	setStr(&cfg.Toolset, "WEBPIPE_TOOLSET")
	setStr(&cfg.UserAgent, "WEBPIPE_USER_AGENT")

	if v := strings.TrimSpace(os.Getenv("WEBPIPE_RATE_LIMIT")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateLimitPerSec = f
		}
	}
	setInt(&cfg.MaxParallelURLs, "WEBPIPE_MAX_PARALLEL_URLS")
	setInt(&cfg.DeadlineMS, "WEBPIPE_DEADLINE_MS")

	setInt(&cfg.ExtractMaxBytes, "WEBPIPE_EXTRACT_MAX_BYTES")
	setInt(&cfg.ExtractPipelineTimeoutMS, "WEBPIPE_EXTRACT_PIPELINE_TIMEOUT_MS")
	setInt(&cfg.LinksTimeoutMS, "WEBPIPE_LINKS_TIMEOUT_MS")
	setInt(&cfg.SemanticTimeoutMS, "WEBPIPE_SEMANTIC_TIMEOUT_MS")
	setInt(&cfg.CacheIOTimeoutMS, "WEBPIPE_CACHE_IO_TIMEOUT_MS")
	setInt(&cfg.CacheSearchTimeoutMS, "WEBPIPE_CACHE_SEARCH_TIMEOUT_MS")
	setInt(&cfg.ShelloutTimeoutMS, "WEBPIPE_SHELLOUT_TIMEOUT_MS")
	setInt(&cfg.ShelloutMaxStdoutBytes, "WEBPIPE_SHELLOUT_MAX_STDOUT_BYTES")

	setStr(&cfg.PDFShellout, "WEBPIPE_PDF_SHELLOUT")
	setBool(&cfg.OCREnable, "WEBPIPE_OCR_ENABLE")
	setBool(&cfg.PandocEnable, "WEBPIPE_PANDOC_ENABLE")
	setBool(&cfg.FFmpegEnable, "WEBPIPE_FFMPEG_ENABLE")
	setBool(&cfg.YoutubeTranscripts, "WEBPIPE_YOUTUBE_TRANSCRIPTS")
	setBool(&cfg.RenderDisable, "WEBPIPE_RENDER_DISABLE")

	setStr(&cfg.FirecrawlBaseURL, "WEBPIPE_FIRECRAWL_BASE_URL")
	setStr(&cfg.FirecrawlAPIKey, "WEBPIPE_FIRECRAWL_API_KEY")

	setStr(&cfg.SearxURL, "WEBPIPE_SEARX_URL")
	setStr(&cfg.SearxKey, "WEBPIPE_SEARX_KEY")
	setStr(&cfg.BraveAPIKey, "WEBPIPE_BRAVE_API_KEY")
	setStr(&cfg.TavilyAPIKey, "WEBPIPE_TAVILY_API_KEY")
	setStr(&cfg.PerplexityAPIKey, "WEBPIPE_PERPLEXITY_API_KEY")
	if cfg.PerplexityAPIKey == "" {
		setStr(&cfg.PerplexityAPIKey, "PERPLEXITY_API_KEY")
	}
	setStr(&cfg.PerplexityEndpoint, "WEBPIPE_PERPLEXITY_ENDPOINT")
	setStr(&cfg.PerplexityModel, "WEBPIPE_PERPLEXITY_MODEL")

	setStr(&cfg.EmbeddingsBaseURL, "WEBPIPE_EMBEDDINGS_BASE_URL")
	setStr(&cfg.EmbeddingsAPIKey, "WEBPIPE_EMBEDDINGS_API_KEY")
	setStr(&cfg.EmbeddingsModel, "WEBPIPE_EMBEDDINGS_MODEL")
	setStr(&cfg.LLMBaseURL, "WEBPIPE_LLM_BASE_URL")
	setStr(&cfg.LLMAPIKey, "WEBPIPE_LLM_API_KEY")
	setStr(&cfg.LLMModel, "WEBPIPE_LLM_MODEL")

	setCSV(&cfg.GithubRewriteHosts, "WEBPIPE_GITHUB_REWRITE_HOSTS")
	setStr(&cfg.GithubRawHost, "WEBPIPE_GITHUB_RAW_HOST")
	setCSV(&cfg.GithubRewriteBranches, "WEBPIPE_GITHUB_REWRITE_BRANCHES")
	setStr(&cfg.GithubAPIBase, "WEBPIPE_GITHUB_API_BASE")
	setCSV(&cfg.GistRewriteHosts, "WEBPIPE_GIST_REWRITE_HOSTS")
	setStr(&cfg.GistRawHost, "WEBPIPE_GIST_RAW_HOST")
	setCSV(&cfg.ArxivRewriteHosts, "WEBPIPE_ARXIV_REWRITE_HOSTS")
	setStr(&cfg.ArxivPDFFallbackBase, "WEBPIPE_ARXIV_PDF_FALLBACK_BASE")
	setCSV(&cfg.OpenreviewHosts, "WEBPIPE_OPENREVIEW_REWRITE_HOSTS")
	setStr(&cfg.OpenreviewAPIBase, "WEBPIPE_OPENREVIEW_API_BASE")

	setBool(&cfg.MarkdownIncludeJSON, "WEBPIPE_MARKDOWN_INCLUDE_JSON")
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// KnownKeys enumerates every recognized environment variable, names only.
// webpipe_meta advertises this list; values never leave the process.
func KnownKeys() []string {
	return []string{
		"WEBPIPE_CACHE_DIR", "WEBPIPE_CACHE_TTL_S", "WEBPIPE_ALLOW_UNSAFE_HEADERS",
		"WEBPIPE_PRIVACY_MODE", "WEBPIPE_ANON_PROXY", "WEBPIPE_OFFLINE_ONLY",
		"WEBPIPE_LOG_LEVEL", "WEBPIPE_AUTOLOAD_DOTENV", "WEBPIPE_TOOLSET",
		"WEBPIPE_USER_AGENT", "WEBPIPE_RATE_LIMIT", "WEBPIPE_MAX_PARALLEL_URLS",
		"WEBPIPE_DEADLINE_MS", "WEBPIPE_EXTRACT_MAX_BYTES",
		"WEBPIPE_EXTRACT_PIPELINE_TIMEOUT_MS", "WEBPIPE_LINKS_TIMEOUT_MS",
		"WEBPIPE_SEMANTIC_TIMEOUT_MS", "WEBPIPE_CACHE_IO_TIMEOUT_MS",
		"WEBPIPE_CACHE_SEARCH_TIMEOUT_MS", "WEBPIPE_SHELLOUT_TIMEOUT_MS",
		"WEBPIPE_SHELLOUT_MAX_STDOUT_BYTES", "WEBPIPE_PDF_SHELLOUT",
		"WEBPIPE_OCR_ENABLE", "WEBPIPE_PANDOC_ENABLE", "WEBPIPE_FFMPEG_ENABLE",
		"WEBPIPE_YOUTUBE_TRANSCRIPTS", "WEBPIPE_RENDER_DISABLE",
		"WEBPIPE_FIRECRAWL_BASE_URL", "WEBPIPE_FIRECRAWL_API_KEY",
		"WEBPIPE_SEARX_URL", "WEBPIPE_SEARX_KEY", "WEBPIPE_BRAVE_API_KEY",
		"WEBPIPE_TAVILY_API_KEY", "WEBPIPE_PERPLEXITY_API_KEY",
		"WEBPIPE_PERPLEXITY_ENDPOINT", "WEBPIPE_PERPLEXITY_MODEL",
		"WEBPIPE_EMBEDDINGS_BASE_URL",
		"WEBPIPE_EMBEDDINGS_API_KEY", "WEBPIPE_EMBEDDINGS_MODEL",
		"WEBPIPE_LLM_BASE_URL", "WEBPIPE_LLM_API_KEY", "WEBPIPE_LLM_MODEL",
		"WEBPIPE_GITHUB_REWRITE_HOSTS", "WEBPIPE_GITHUB_RAW_HOST",
		"WEBPIPE_GITHUB_REWRITE_BRANCHES", "WEBPIPE_GITHUB_API_BASE",
		"WEBPIPE_GIST_REWRITE_HOSTS", "WEBPIPE_GIST_RAW_HOST",
		"WEBPIPE_ARXIV_REWRITE_HOSTS", "WEBPIPE_ARXIV_PDF_FALLBACK_BASE",
		"WEBPIPE_OPENREVIEW_REWRITE_HOSTS", "WEBPIPE_OPENREVIEW_API_BASE",
		"WEBPIPE_MARKDOWN_INCLUDE_JSON",
	}
}

// RewriteRules materializes the configured URL-rewrite host lists over the
// package defaults.
func (c Config) RewriteRules() rewrite.Rules {
	r := rewrite.Defaults()
	if len(c.GithubRewriteHosts) > 0 {
		r.GithubHosts = c.GithubRewriteHosts
	}
	if c.GithubRawHost != "" {
		r.GithubRawHost = c.GithubRawHost
	}
	if len(c.GithubRewriteBranches) > 0 {
		r.GithubBranches = c.GithubRewriteBranches
	}
	if c.GithubAPIBase != "" {
		r.GithubAPIBase = c.GithubAPIBase
	}
	if len(c.GistRewriteHosts) > 0 {
		r.GistHosts = c.GistRewriteHosts
	}
	if c.GistRawHost != "" {
		r.GistRawHost = c.GistRawHost
	}
	if len(c.ArxivRewriteHosts) > 0 {
		r.ArxivHosts = c.ArxivRewriteHosts
	}
	if c.ArxivPDFFallbackBase != "" {
		r.ArxivHTMLBase = c.ArxivPDFFallbackBase
	}
	if len(c.OpenreviewHosts) > 0 {
		r.OpenreviewHosts = c.OpenreviewHosts
	}
	if c.OpenreviewAPIBase != "" {
		r.OpenreviewAPI = c.OpenreviewAPIBase
	}
	return r
}
