package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/webpipe/internal/config"
	"github.com/hyperifyio/webpipe/internal/fetch"
	"github.com/hyperifyio/webpipe/internal/pipeline"
	"github.com/hyperifyio/webpipe/internal/rewrite"
)

func newScheduler(cfg config.Config, rules rewrite.Rules) *Scheduler {
	return &Scheduler{
		Runner: &pipeline.Runner{Cfg: cfg, Fetcher: fetch.New(cfg, nil)},
		Rules:  rules,
	}
}

func hostOf(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return u.Hostname()
}

func TestHydrate_PreservesInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>page " + r.URL.Path + " content that is long enough to count as substantive text.</p></body></html>"))
	}))
	defer srv.Close()

	s := newScheduler(config.Defaults(), rewrite.Rules{})
	urls := []string{srv.URL + "/c", srv.URL + "/a", srv.URL + "/b", srv.URL + "/a"}
	agg := s.Hydrate(context.Background(), Input{URLs: urls, MaxParallel: 3})
	if len(agg.Results) != 3 {
		t.Fatalf("dedupe failed: %d results", len(agg.Results))
	}
	want := []string{srv.URL + "/c", srv.URL + "/a", srv.URL + "/b"}
	for i, res := range agg.Results {
		if res.URL != want[i] {
			t.Fatalf("order broken at %d: %q want %q", i, res.URL, want[i])
		}
	}
}

func TestHydrate_ParallelismAndElapsed(t *testing.T) {
	const delay = 250 * time.Millisecond
	var inflight, peak int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&inflight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(delay)
		atomic.AddInt64(&inflight, -1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>slow page body with enough words to be substantive for selection.</p></body></html>"))
	}))
	defer srv.Close()

	s := newScheduler(config.Defaults(), rewrite.Rules{})
	started := time.Now()
	agg := s.Hydrate(context.Background(), Input{
		URLs:        []string{srv.URL + "/one", srv.URL + "/two"},
		MaxParallel: 2,
	})
	elapsed := time.Since(started)
	if len(agg.Results) != 2 {
		t.Fatalf("results=%d", len(agg.Results))
	}
	if atomic.LoadInt64(&peak) < 2 {
		t.Fatalf("max concurrent handlers=%d, want >=2", peak)
	}
	if elapsed > delay*2-50*time.Millisecond {
		t.Fatalf("elapsed %v suggests sequential execution", elapsed)
	}
}

func TestHydrate_HTTPErrorExcludedFromTopChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusTooManyRequests)
		}
		_, _ = w.Write([]byte("<main><h1>Ok</h1><p>NEEDLE_123 good content with enough additional words to form a real paragraph.</p></main>"))
	}))
	defer srv.Close()

	s := newScheduler(config.Defaults(), rewrite.Rules{})
	agg := s.Hydrate(context.Background(), Input{
		URLs:  []string{srv.URL + "/bad", srv.URL + "/ok"},
		Query: "NEEDLE_123",
	})
	if len(agg.Results) != 2 {
		t.Fatalf("results=%d", len(agg.Results))
	}
	bad := agg.Results[0]
	if bad.URL != srv.URL+"/bad" {
		t.Fatalf("order: %q", bad.URL)
	}
	if !hasWarning(bad.Warnings, "http_status_error") || !hasWarning(bad.Warnings, "http_rate_limited") {
		t.Fatalf("bad warnings=%v", bad.Warnings)
	}
	if len(agg.TopChunks) == 0 {
		t.Fatalf("expected chunks from /ok")
	}
	for _, c := range agg.TopChunks {
		if strings.Contains(c.URL, "/bad") {
			t.Fatalf("429 page leaked into top_chunks: %+v", c)
		}
	}
}

func TestHydrate_DeadlinePartial(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			select {
			case <-release:
			case <-time.After(5 * time.Second):
			}
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>fast page body with plenty of words for the default selection.</p></body></html>"))
	}))
	defer srv.Close()
	defer close(release)

	cfg := config.Defaults()
	cfg.ExtractPipelineTimeoutMS = 10_000
	s := newScheduler(cfg, rewrite.Rules{})
	started := time.Now()
	agg := s.Hydrate(context.Background(), Input{
		URLs:        []string{srv.URL + "/fast", srv.URL + "/slow"},
		MaxParallel: 2,
		DeadlineMS:  500,
	})
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("deadline not enforced: %v", elapsed)
	}
	if !hasWarning(agg.Warnings, "deadline_exceeded_partial") {
		t.Fatalf("warnings=%v", agg.Warnings)
	}
	if len(agg.Results) != 2 {
		t.Fatalf("placeholder missing: %d", len(agg.Results))
	}
	if agg.Results[1].URL != srv.URL+"/slow" {
		t.Fatalf("placeholder order: %+v", agg.Results[1])
	}
}

func TestHydrate_RepoRootRewritesToReadme(t *testing.T) {
	var mu sync.Mutex
	paths := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/owner/repo":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><head><title>repo shell</title></head><body></body></html>"))
		case "/owner/repo/main/README.md":
			w.Header().Set("Content-Type", "text/markdown")
			_, _ = w.Write([]byte("# Hello README\n\nReal content with a fully substantive paragraph of text inside it."))
		default:
			w.WriteHeader(404)
		}
	}))
	defer srv.Close()

	host := hostOf(t, srv)
	rules := rewrite.Defaults()
	rules.GithubHosts = []string{host}
	rules.GithubRawHost = ""
	rules.GithubBranches = []string{"main"}

	s := newScheduler(config.Defaults(), rules)
	agg := s.Hydrate(context.Background(), Input{
		URLs:  []string{srv.URL + "/owner/repo"},
		Query: "Hello README",
	})
	res := agg.Results[0]
	if res.Err != nil {
		t.Fatalf("err=%v", res.Err)
	}
	if !strings.Contains(res.FinalURL, "/main/README.md") {
		t.Fatalf("final_url=%q (paths=%v)", res.FinalURL, paths)
	}
	if !hasWarning(res.Warnings, "github_repo_rewritten_to_raw_readme") {
		t.Fatalf("warnings=%v", res.Warnings)
	}
	if len(agg.TopChunks) == 0 || !strings.Contains(agg.TopChunks[0].Text, "Hello README") {
		t.Fatalf("top_chunks=%+v", agg.TopChunks)
	}
	if !strings.Contains(res.Text, "Real content") {
		t.Fatalf("text=%q", res.Text)
	}
}

func TestHydrate_ArxivPDFFallsBackToHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/pdf/"):
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.1\nnot a real pdf"))
		case strings.HasPrefix(r.URL.Path, "/html/"):
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body><h1>Sparse Structured Prediction with Fenchel-Young Losses</h1><p>Abstract text long enough to chunk properly for evidence purposes.</p></body></html>"))
		default:
			w.WriteHeader(404)
		}
	}))
	defer srv.Close()

	host := hostOf(t, srv)
	rules := rewrite.Defaults()
	rules.ArxivHosts = []string{host}
	rules.ArxivHTMLBase = srv.URL + "/html/"

	s := newScheduler(config.Defaults(), rules)
	agg := s.Hydrate(context.Background(), Input{
		URLs:  []string{srv.URL + "/pdf/1234.5678.pdf"},
		Query: "Fenchel-Young",
	})
	res := agg.Results[0]
	if res.Err != nil {
		t.Fatalf("err=%v", res.Err)
	}
	if strings.HasPrefix(res.Engine, "pdf") {
		t.Fatalf("engine=%q, expected a non-pdf fallback engine", res.Engine)
	}
	if !strings.Contains(res.FinalURL, "/html/") {
		t.Fatalf("final_url=%q", res.FinalURL)
	}
	if !hasWarning(res.Warnings, "arxiv_pdf_fallback_to_html") {
		t.Fatalf("warnings=%v", res.Warnings)
	}
}

func TestHydrate_TruncationRetry(t *testing.T) {
	body := "<html><body><p>" + strings.Repeat("tail recovery words ", 200) + "END_TOKEN</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	small := int64(512)
	s := newScheduler(config.Defaults(), rewrite.Rules{})
	agg := s.Hydrate(context.Background(), Input{
		URLs:   []string{srv.URL},
		Params: pipeline.Params{MaxBytes: &small},
		Flags:  Flags{RetryOnTruncation: true},
	})
	res := agg.Results[0]
	if !hasWarning(res.Warnings, "truncation_retry_used") {
		t.Fatalf("warnings=%v", res.Warnings)
	}
	if res.Truncated {
		t.Fatalf("retry result still truncated")
	}
	if !strings.Contains(res.Text, "END_TOKEN") {
		t.Fatalf("tail not recovered")
	}
	if len(agg.Attempts) < 2 {
		t.Fatalf("attempts=%+v", agg.Attempts)
	}
}

func TestHydrate_NoQueryOverlapAnyURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>completely unrelated prose that is long enough for the default fallback selection.</p></body></html>"))
	}))
	defer srv.Close()

	s := newScheduler(config.Defaults(), rewrite.Rules{})
	agg := s.Hydrate(context.Background(), Input{
		URLs:  []string{srv.URL},
		Query: "qqqzzz_token_absent",
	})
	if !hasWarning(agg.Warnings, "no_query_overlap_any_url") {
		t.Fatalf("warnings=%v", agg.Warnings)
	}
}

func TestTopChunks_TotalOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>alpha paragraph one with plenty of words to pass the substantive threshold.</p><p>alpha paragraph two with plenty of words to pass the substantive threshold.</p></body></html>"))
	}))
	defer srv.Close()

	s := newScheduler(config.Defaults(), rewrite.Rules{})
	agg := s.Hydrate(context.Background(), Input{
		URLs:      []string{srv.URL + "/x", srv.URL + "/y"},
		Query:     "alpha",
		TopChunks: 10,
	})
	for i := 1; i < len(agg.TopChunks); i++ {
		prev, cur := agg.TopChunks[i-1], agg.TopChunks[i]
		if prev.Score < cur.Score {
			t.Fatalf("not score-desc at %d", i)
		}
		if prev.Score == cur.Score && prev.URL == cur.URL && prev.StartChar > cur.StartChar {
			t.Fatalf("tie-break broken at %d", i)
		}
	}
}
