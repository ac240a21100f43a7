// Package fetch performs one bounded HTTP GET per request with optional
// cache integration and alternate backends (headless render, remote markdown
// fetcher, cache-only). The client owns redirect and byte limits; sensitive
// request headers are dropped under a single policy shared with the cache
// fingerprint.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/webpipe/internal/cache"
	"github.com/hyperifyio/webpipe/internal/config"
)

// Backend selects how the body is obtained.
type Backend string

const (
	BackendLocal     Backend = "local"
	BackendCache     Backend = "cache"
	BackendRender    Backend = "render"
	BackendFirecrawl Backend = "firecrawl"
)

// Sentinel errors; the envelope layer maps them onto the closed code
// taxonomy.
var (
	ErrInvalidURL    = errors.New("fetch: invalid url")
	ErrNotConfigured = errors.New("fetch: not configured")
	ErrNotSupported  = errors.New("fetch: not supported")
	ErrCacheMiss     = errors.New("fetch: cache miss")
)

// Request describes one fetch. It is immutable once constructed.
type Request struct {
	URL        string
	TimeoutMS  int
	MaxBytes   *int64
	Headers    map[string]string
	CacheRead  bool
	CacheWrite bool
}

// Response is the outcome of one fetch.
type Response struct {
	URL         string
	FinalURL    string
	Status      int
	ContentType string
	Headers     map[string]string
	Bytes       []byte
	Truncated   bool
	// Source is "cache" or "network"; render/firecrawl count as network.
	Source                string
	Timings               map[string]int64
	DroppedRequestHeaders []string
	Warnings              []string
}

// RenderResult is the contract consumed from the external render backend.
type RenderResult struct {
	FinalURL          string
	Status            int
	HTML              string
	ElapsedMS         int64
	ConsoleErrorCount int
	Mode              string
}

// RenderBackend hands a URL to a headless browser and returns synthesized
// HTML.
type RenderBackend interface {
	Render(ctx context.Context, rawURL string, timeout time.Duration) (RenderResult, error)
}

// MarkdownResult is the contract consumed from the remote markdown fetcher.
type MarkdownResult struct {
	FinalURL string
	Status   int
	Markdown string
}

// MarkdownFetcher fetches a URL through a remote service that returns
// markdown.
type MarkdownFetcher interface {
	Fetch(ctx context.Context, rawURL string, timeout time.Duration) (MarkdownResult, error)
}

// TranscriptFetcher resolves a video URL into transcript text.
type TranscriptFetcher interface {
	Transcript(ctx context.Context, rawURL string, timeout time.Duration) (string, error)
}

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBodyTimeout    = 25 * time.Second
	redirectMaxHops       = 10
	defaultMaxBytes       = int64(2 << 20)
)

// Fetcher owns the HTTP client and optionally a cache plus alternate
// backends. The HTTP connection pool is shared process-wide.
type Fetcher struct {
	Cfg        config.Config
	HTTPClient *http.Client
	Cache      *cache.FetchCache
	Limiter    *rate.Limiter
	Render     RenderBackend
	Firecrawl  MarkdownFetcher
	Transcript TranscriptFetcher
}

// New builds a Fetcher with the shared high-throughput client.
func New(cfg config.Config, fc *cache.FetchCache) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	if cfg.Privacy == config.PrivacyAnonymous && cfg.AnonProxy != "" {
		if proxyURL, err := url.Parse(cfg.AnonProxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	f := &Fetcher{
		Cfg:   cfg,
		Cache: fc,
		HTTPClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= redirectMaxHops {
					return fmt.Errorf("stopped after %d redirects", redirectMaxHops)
				}
				return nil
			},
		},
	}
	if cfg.RateLimitPerSec > 0 {
		f.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1)
	}
	return f
}

func (f *Fetcher) maxBytes(req Request) int64 {
	if req.MaxBytes != nil {
		return *req.MaxBytes
	}
	return defaultMaxBytes
}

func (f *Fetcher) timeout(req Request) time.Duration {
	if req.TimeoutMS > 0 {
		return time.Duration(req.TimeoutMS) * time.Millisecond
	}
	return defaultBodyTimeout
}

func (f *Fetcher) keyInput(req Request) cache.KeyInput {
	return cache.KeyInput{
		URL:                req.URL,
		MaxBytes:           req.MaxBytes,
		Headers:            req.Headers,
		AllowUnsafeHeaders: f.Cfg.AllowUnsafeHeaders,
	}
}

// Do performs the fetch through the selected backend. An empty backend
// means local.
func (f *Fetcher) Do(ctx context.Context, req Request, backend Backend) (*Response, error) {
	if backend == "" {
		backend = BackendLocal
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrInvalidURL
	}

	var warnings []string

	// Cache read applies to the local and cache-only backends.
	if req.CacheRead && (backend == BackendLocal || backend == BackendCache) && f.Cache != nil {
		rec, cerr := f.Cache.Get(ctx, f.keyInput(req))
		switch {
		case cerr == nil:
			return cachedResponse(req, rec, warnings), nil
		case errors.Is(cerr, cache.ErrTimeout):
			warnings = append(warnings, "cache_io_timeout")
		case errors.Is(cerr, cache.ErrMiss):
		default:
			log.Warn().Err(cerr).Str("url", req.URL).Msg("cache read failed")
		}
	}

	if backend == BackendCache {
		return nil, ErrCacheMiss
	}

	if err := f.networkAllowed(backend); err != nil {
		return nil, err
	}

	start := time.Now()
	var resp *Response
	switch backend {
	case BackendLocal:
		resp, err = f.doLocal(ctx, req, u, &warnings)
	case BackendRender:
		resp, err = f.doRender(ctx, req)
	case BackendFirecrawl:
		resp, err = f.doFirecrawl(ctx, req)
	default:
		return nil, ErrNotSupported
	}
	if err != nil {
		return nil, err
	}
	resp.Timings["total_ms"] = time.Since(start).Milliseconds()
	resp.Warnings = append(warnings, resp.Warnings...)

	if req.CacheWrite && f.Cache != nil && resp.Status < 500 {
		putErr := f.Cache.Put(ctx, f.keyInput(req), cache.Record{
			Meta: cache.Meta{
				URL:         req.URL,
				FinalURL:    resp.FinalURL,
				Status:      resp.Status,
				ContentType: resp.ContentType,
				Headers:     resp.Headers,
				Truncated:   resp.Truncated,
			},
			Body: resp.Bytes,
		})
		if errors.Is(putErr, cache.ErrTimeout) {
			resp.Warnings = append(resp.Warnings, "cache_io_timeout")
		} else if putErr != nil {
			log.Warn().Err(putErr).Str("url", req.URL).Msg("cache write failed")
		}
	}
	return resp, nil
}

// networkAllowed enforces the privacy posture before any IO is attempted.
func (f *Fetcher) networkAllowed(backend Backend) error {
	switch f.Cfg.Privacy {
	case config.PrivacyOffline:
		return fmt.Errorf("%w: offline_only is set", ErrNotConfigured)
	case config.PrivacyAnonymous:
		if f.Cfg.AnonProxy == "" {
			return fmt.Errorf("%w: anonymous mode requires WEBPIPE_ANON_PROXY", ErrNotConfigured)
		}
		if backend == BackendRender && strings.HasPrefix(f.Cfg.AnonProxy, "socks5h://") {
			return fmt.Errorf("%w: anonymous render requires an HTTP proxy", ErrNotSupported)
		}
	}
	return nil
}

func cachedResponse(req Request, rec *cache.Record, warnings []string) *Response {
	return &Response{
		URL:         req.URL,
		FinalURL:    rec.Meta.FinalURL,
		Status:      rec.Meta.Status,
		ContentType: rec.Meta.ContentType,
		Headers:     rec.Meta.Headers,
		Bytes:       rec.Body,
		Truncated:   rec.Meta.Truncated,
		Source:      "cache",
		Timings:     map[string]int64{"total_ms": 0},
		Warnings:    append(warnings, "cache_only"),
	}
}

func (f *Fetcher) doLocal(ctx context.Context, req Request, u *url.URL, warnings *[]string) (*Response, error) {
	if f.Cfg.YoutubeTranscripts && f.Transcript != nil && isYoutubeHost(u.Hostname()) {
		return f.doTranscript(ctx, req)
	}
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout(req))
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, ErrInvalidURL
	}
	httpReq.Header.Set("User-Agent", f.Cfg.UserAgent)

	var dropped []string
	for k, v := range req.Headers {
		if !f.Cfg.AllowUnsafeHeaders && cache.IsSensitiveHeader(k) {
			dropped = append(dropped, strings.ToLower(strings.TrimSpace(k)))
			continue
		}
		httpReq.Header.Set(k, v)
	}
	sort.Strings(dropped)
	if len(dropped) > 0 {
		*warnings = append(*warnings, "unsafe_request_headers_dropped")
	}

	httpResp, err := f.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer httpResp.Body.Close()

	limit := f.maxBytes(req)
	body, truncated, err := readBounded(httpResp.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", req.URL, err)
	}

	headers := map[string]string{}
	for k := range httpResp.Header {
		headers[strings.ToLower(k)] = httpResp.Header.Get(k)
	}
	return &Response{
		URL:                   req.URL,
		FinalURL:              httpResp.Request.URL.String(),
		Status:                httpResp.StatusCode,
		ContentType:           httpResp.Header.Get("Content-Type"),
		Headers:               headers,
		Bytes:                 body,
		Truncated:             truncated,
		Source:                "network",
		Timings:               map[string]int64{},
		DroppedRequestHeaders: dropped,
	}, nil
}

// readBounded streams at most limit bytes; one extra byte is probed to set
// the truncated flag, the remainder is discarded without error.
func readBounded(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		// Probe a single byte so limit=0 still reports truncation when a
		// body exists.
		var probe [1]byte
		n, err := r.Read(probe[:])
		if err != nil && err != io.EOF {
			return nil, false, err
		}
		return []byte{}, n > 0, nil
	}
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) < limit {
		return body, false, nil
	}
	var probe [1]byte
	n, err := r.Read(probe[:])
	if err != nil && err != io.EOF {
		return body, false, err
	}
	return body, n > 0, nil
}

func (f *Fetcher) doRender(ctx context.Context, req Request) (*Response, error) {
	if f.Render == nil || f.Cfg.RenderDisable {
		return nil, fmt.Errorf("%w: render backend unavailable", ErrNotConfigured)
	}
	res, err := f.Render.Render(ctx, req.URL, f.timeout(req))
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", req.URL, err)
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	body := []byte(res.HTML)
	truncated := false
	if limit := f.maxBytes(req); int64(len(body)) > limit {
		body = body[:limit]
		truncated = true
	}
	return &Response{
		URL:         req.URL,
		FinalURL:    nonEmpty(res.FinalURL, req.URL),
		Status:      status,
		ContentType: "text/html; charset=utf-8",
		Headers:     map[string]string{"content-type": "text/html; charset=utf-8"},
		Bytes:       body,
		Truncated:   truncated,
		Source:      "network",
		Timings:     map[string]int64{"render_ms": res.ElapsedMS},
		Warnings:    []string{"headers_unavailable"},
	}, nil
}

func (f *Fetcher) doFirecrawl(ctx context.Context, req Request) (*Response, error) {
	if f.Firecrawl == nil {
		return nil, fmt.Errorf("%w: firecrawl backend unavailable", ErrNotConfigured)
	}
	res, err := f.Firecrawl.Fetch(ctx, req.URL, f.timeout(req))
	if err != nil {
		return nil, fmt.Errorf("firecrawl %s: %w", req.URL, err)
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{
		URL:         req.URL,
		FinalURL:    nonEmpty(res.FinalURL, req.URL),
		Status:      status,
		ContentType: "text/markdown; charset=utf-8",
		Headers:     map[string]string{"content-type": "text/markdown; charset=utf-8"},
		Bytes:       []byte(res.Markdown),
		Truncated:   false,
		Source:      "network",
		Timings:     map[string]int64{},
		Warnings:    []string{"headers_unavailable"},
	}, nil
}

func (f *Fetcher) doTranscript(ctx context.Context, req Request) (*Response, error) {
	text, err := f.Transcript.Transcript(ctx, req.URL, f.timeout(req))
	if err != nil {
		return nil, fmt.Errorf("youtube transcript %s: %w", req.URL, err)
	}
	return &Response{
		URL:         req.URL,
		FinalURL:    req.URL,
		Status:      http.StatusOK,
		ContentType: "text/x-youtube-transcript",
		Headers:     map[string]string{"content-type": "text/x-youtube-transcript"},
		Bytes:       []byte(text),
		Source:      "network",
		Timings:     map[string]int64{},
	}, nil
}

func isYoutubeHost(host string) bool {
	host = strings.ToLower(host)
	return host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") || host == "youtu.be"
}

func nonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
