package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperifyio/webpipe/internal/usage"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/scrape" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("auth=%q", r.Header.Get("Authorization"))
		}
		var req scrapeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.URL != "https://example.com/page" {
			t.Errorf("url=%q", req.URL)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":"# Title\n\nBody.","metadata":{"sourceURL":"https://example.com/page","statusCode":200}}}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, APIKey: "key", Ledger: usage.NewLedger()}
	res, err := c.Fetch(context.Background(), "https://example.com/page", 5*time.Second)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Markdown == "" || res.Status != 200 || res.FinalURL != "https://example.com/page" {
		t.Fatalf("%+v", res)
	}
	if c.Ledger.Snapshot()["firecrawl"].Calls != 1 {
		t.Fatalf("ledger not incremented")
	}
}

func TestFetch_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"error":"denied"}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	if _, err := c.Fetch(context.Background(), "https://x", time.Second); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFetch_NotConfigured(t *testing.T) {
	var c *Client
	if c.Configured() {
		t.Fatalf("nil client configured")
	}
	c = &Client{}
	if _, err := c.Fetch(context.Background(), "https://x", time.Second); err == nil {
		t.Fatalf("expected missing base url error")
	}
}
