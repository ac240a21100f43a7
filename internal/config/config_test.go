package config

import (
	"testing"
	"time"
)

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("WEBPIPE_CACHE_DIR", "/tmp/wpcache")
	t.Setenv("WEBPIPE_CACHE_TTL_S", "3600")
	t.Setenv("WEBPIPE_ALLOW_UNSAFE_HEADERS", "true")
	t.Setenv("WEBPIPE_PRIVACY_MODE", "anonymous")
	t.Setenv("WEBPIPE_MAX_PARALLEL_URLS", "7")
	t.Setenv("WEBPIPE_RATE_LIMIT", "2.5")
	t.Setenv("WEBPIPE_GITHUB_REWRITE_BRANCHES", "main, develop")
	t.Setenv("WEBPIPE_TOOLSET", "debug")

	cfg := Defaults()
	ApplyEnv(&cfg)
	if cfg.CacheDir != "/tmp/wpcache" || cfg.CacheTTL != time.Hour {
		t.Fatalf("cache: %+v", cfg)
	}
	if !cfg.AllowUnsafeHeaders || cfg.Privacy != PrivacyAnonymous {
		t.Fatalf("policy: %+v", cfg)
	}
	if cfg.MaxParallelURLs != 7 || cfg.RateLimitPerSec != 2.5 {
		t.Fatalf("limits: %+v", cfg)
	}
	if len(cfg.GithubRewriteBranches) != 2 || cfg.GithubRewriteBranches[1] != "develop" {
		t.Fatalf("branches: %v", cfg.GithubRewriteBranches)
	}
	if cfg.Toolset != "debug" {
		t.Fatalf("toolset: %q", cfg.Toolset)
	}
}

func TestApplyEnv_UnknownPrivacyKept(t *testing.T) {
	t.Setenv("WEBPIPE_PRIVACY_MODE", "bogus")
	cfg := Defaults()
	ApplyEnv(&cfg)
	if cfg.Privacy != PrivacyNormal {
		t.Fatalf("privacy=%q", cfg.Privacy)
	}
}

func TestOfflineOnlyForcesOfflinePrivacy(t *testing.T) {
	t.Setenv("WEBPIPE_OFFLINE_ONLY", "1")
	cfg := Defaults()
	ApplyEnv(&cfg)
	if cfg.Privacy != PrivacyOffline || !cfg.OfflineOnly {
		t.Fatalf("%+v", cfg)
	}
}

func TestKnownKeys_CoverCoreKnobs(t *testing.T) {
	keys := map[string]bool{}
	for _, k := range KnownKeys() {
		keys[k] = true
	}
	for _, want := range []string{
		"WEBPIPE_CACHE_DIR", "WEBPIPE_ALLOW_UNSAFE_HEADERS", "WEBPIPE_PRIVACY_MODE",
		"WEBPIPE_EXTRACT_PIPELINE_TIMEOUT_MS", "WEBPIPE_CACHE_IO_TIMEOUT_MS",
		"WEBPIPE_SEMANTIC_TIMEOUT_MS", "WEBPIPE_TOOLSET", "WEBPIPE_RENDER_DISABLE",
	} {
		if !keys[want] {
			t.Fatalf("KnownKeys missing %s", want)
		}
	}
}

func TestRewriteRules_EnvOverlay(t *testing.T) {
	t.Setenv("WEBPIPE_GITHUB_REWRITE_HOSTS", "127.0.0.1")
	t.Setenv("WEBPIPE_GITHUB_REWRITE_BRANCHES", "main")
	t.Setenv("WEBPIPE_ARXIV_PDF_FALLBACK_BASE", "http://127.0.0.1:9/html/")
	cfg := Defaults()
	ApplyEnv(&cfg)
	rules := cfg.RewriteRules()
	if len(rules.GithubHosts) != 1 || rules.GithubHosts[0] != "127.0.0.1" {
		t.Fatalf("hosts=%v", rules.GithubHosts)
	}
	if rules.ArxivHTMLBase != "http://127.0.0.1:9/html/" {
		t.Fatalf("base=%q", rules.ArxivHTMLBase)
	}
	// Unset knobs keep defaults.
	if rules.GithubRawHost != "raw.githubusercontent.com" {
		t.Fatalf("raw host=%q", rules.GithubRawHost)
	}
}
