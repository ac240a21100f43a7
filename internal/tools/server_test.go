package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/webpipe/internal/config"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.CacheDir = t.TempDir()
	cfg.RenderDisable = true
	cfg.UserAgent = "webpipe-test"
	return NewServer(cfg)
}

func TestHandleMeta_NullArgs(t *testing.T) {
	s := testServer(t)
	result, value, err := s.handleMeta(context.Background(), nil, EmptyIn{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "webpipe_meta", value["kind"])
	assert.Equal(t, true, value["ok"])
	knobs, ok := value["knobs"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, knobs)
	for _, k := range knobs {
		assert.NotContains(t, k.(string), "=", "meta must expose names only, never values")
	}
}

func TestHandleFetch_MissingURL(t *testing.T) {
	s := testServer(t)
	_, value, err := s.handleFetch(context.Background(), nil, FetchIn{})
	require.NoError(t, err)
	assert.Equal(t, false, value["ok"])
	errObj := value["error"].(map[string]any)
	assert.Equal(t, "invalid_params", errObj["code"])
	assert.Equal(t, false, errObj["retryable"])
}

func TestHandleFetch_HTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>fetch body</p></body></html>"))
	}))
	defer srv.Close()

	s := testServer(t)
	result, value, err := s.handleFetch(context.Background(), nil, FetchIn{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, true, value["ok"])
	assert.EqualValues(t, 200, value["status"])
	assert.Equal(t, "html", value["detected_kind"])
	assert.Contains(t, value["text"], "fetch body")

	require.NotEmpty(t, result.Content)
	text := contentText(t, result)
	assert.True(t, strings.HasPrefix(text, "## web_fetch"), "markdown view must start with a heading: %q", text)
}

func TestHandleFetch_CacheOnlyMissWarns(t *testing.T) {
	s := testServer(t)
	_, value, err := s.handleFetch(context.Background(), nil, FetchIn{URL: "http://127.0.0.1:9/never", NoNetwork: true})
	require.NoError(t, err)
	assert.Equal(t, false, value["ok"])
	codes := warningCodes(value)
	assert.Contains(t, codes, "no_network_may_require_warm_cache")
}

func TestHandleExtract_MissingURL(t *testing.T) {
	s := testServer(t)
	_, value, err := s.handleExtract(context.Background(), nil, ExtractIn{})
	require.NoError(t, err)
	errObj := value["error"].(map[string]any)
	assert.Equal(t, "invalid_params", errObj["code"])
}

func TestHandleSearchExtract_URLsMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusTooManyRequests)
		}
		_, _ = w.Write([]byte("<main><h1>Ok</h1><p>NEEDLE_123 good content with several more words to pass thresholds.</p></main>"))
	}))
	defer srv.Close()

	s := testServer(t)
	_, value, err := s.handleSearchExtract(context.Background(), nil, SearchExtractIn{
		Query:            "NEEDLE_123",
		URLs:             []string{srv.URL + "/bad", srv.URL + "/ok"},
		URLSelectionMode: "preserve",
	})
	require.NoError(t, err)
	assert.Equal(t, true, value["ok"])

	results := value["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, srv.URL+"/bad", first["url"])
	assert.Contains(t, first["warning_codes"], "http_status_error")

	for _, c := range value["top_chunks"].([]any) {
		chunk := c.(map[string]any)
		assert.Contains(t, chunk["url"], "/ok")
	}
	codes := warningCodes(value)
	assert.Contains(t, codes, "http_status_error")
}

func TestHandleSearchExtract_RequiresQueryOrURLs(t *testing.T) {
	s := testServer(t)
	_, value, err := s.handleSearchExtract(context.Background(), nil, SearchExtractIn{})
	require.NoError(t, err)
	errObj := value["error"].(map[string]any)
	assert.Equal(t, "invalid_params", errObj["code"])
}

func TestHandleSearchExtract_MinimalShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>alpha content paragraph long enough for default selection rules.</p></body></html>"))
	}))
	defer srv.Close()

	s := testServer(t)
	_, value, err := s.handleSearchExtract(context.Background(), nil, SearchExtractIn{
		URLs:  []string{srv.URL},
		Query: "alpha",
		Shape: "minimal",
	})
	require.NoError(t, err)
	for key := range value {
		switch key {
		case "ok", "kind", "schema_version", "elapsed_ms", "top_chunks", "warning_codes", "warning_hints", "error":
		default:
			t.Fatalf("minimal shape leaked %q", key)
		}
	}
}

func TestHandleCacheSearchExtract_Offline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><h1>Doc</h1><p>quuxword unique token paragraph with enough words to matter.</p></body></html>"))
	}))
	defer srv.Close()

	s := testServer(t)
	// Warm the cache through web_fetch.
	_, fetched, err := s.handleFetch(context.Background(), nil, FetchIn{URL: srv.URL + "/doc"})
	require.NoError(t, err)
	require.Equal(t, true, fetched["ok"])

	_, value, err := s.handleCacheSearchExtract(context.Background(), nil, CacheSearchIn{
		Query: "quuxword", MaxDocs: 50, IncludeStructure: true,
	})
	require.NoError(t, err)
	assert.Equal(t, true, value["ok"])
	results := value["results"].([]any)
	require.NotEmpty(t, results)
	doc := results[0].(map[string]any)
	assert.Contains(t, doc["final_url"], "/doc")
	top := value["top_chunks"].([]any)
	require.NotEmpty(t, top)
	assert.Contains(t, top[0].(map[string]any)["text"], "quuxword")
}

func TestHandleUsage_Cycle(t *testing.T) {
	s := testServer(t)
	s.Ledger.Increment("brave", 2)
	_, value, err := s.handleUsage(context.Background(), nil, EmptyIn{})
	require.NoError(t, err)
	providers := value["providers"].(map[string]any)
	assert.Contains(t, providers, "brave")

	_, value, err = s.handleUsageReset(context.Background(), nil, EmptyIn{})
	require.NoError(t, err)
	assert.Equal(t, true, value["reset"])

	_, value, err = s.handleUsage(context.Background(), nil, EmptyIn{})
	require.NoError(t, err)
	assert.Empty(t, value["providers"])
}

func TestHandleSeedURLs(t *testing.T) {
	s := testServer(t)
	_, value, err := s.handleSeedURLs(context.Background(), nil, EmptyIn{})
	require.NoError(t, err)
	seeds := value["seeds"].([]any)
	assert.NotEmpty(t, seeds)
	first := seeds[0].(map[string]any)
	assert.NotEmpty(t, first["id"])
	assert.NotEmpty(t, first["url"])
}

func warningCodes(value map[string]any) []string {
	raw, _ := value["warning_codes"].([]any)
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		if s, ok := c.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func contentText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content[0] must be the markdown text item")
	return tc.Text
}
