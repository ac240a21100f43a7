package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func perplexityFixture(t *testing.T, rejectSearchMode bool) (*httptest.Server, *int) {
	t.Helper()
	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("auth=%q", r.Header.Get("Authorization"))
		}
		var req perplexityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(400)
			return
		}
		if rejectSearchMode && req.SearchMode == "off" {
			w.WriteHeader(400)
			_, _ = w.Write([]byte(`{"error":"search_mode is not supported for this model"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "sonar",
			"choices": [{"message":{"role":"assistant","content":"The answer [1]."},"finish_reason":"stop"}],
			"citations": ["https://example.com/source", "https://example.com/other", ""]
		}`))
	}))
	return srv, calls
}

func TestPerplexity_Search(t *testing.T) {
	srv, calls := perplexityFixture(t, false)
	defer srv.Close()

	p := &Perplexity{APIKey: "key", Endpoint: srv.URL}
	resp, err := p.Search(context.Background(), Query{Text: "question", MaxResults: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Provider != "perplexity" || resp.CostUnits != 1 {
		t.Fatalf("%+v", resp)
	}
	if len(resp.Results) != 2 || resp.Results[0].URL != "https://example.com/source" {
		t.Fatalf("results=%v", resp.Results)
	}
	if resp.Answer == "" {
		t.Fatalf("answer missing")
	}
	if len(resp.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", resp.Warnings)
	}
	if *calls != 1 {
		t.Fatalf("calls=%d", *calls)
	}
}

func TestPerplexity_SearchModeOffRejectedRetries(t *testing.T) {
	srv, calls := perplexityFixture(t, true)
	defer srv.Close()

	p := &Perplexity{APIKey: "key", Endpoint: srv.URL}
	resp, err := p.Search(context.Background(), Query{Text: "question", SearchMode: "off"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if *calls != 2 {
		t.Fatalf("expected reject-then-retry, calls=%d", *calls)
	}
	found := false
	for _, w := range resp.Warnings {
		if w == "perplexity_search_mode_off_rejected" {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings=%v", resp.Warnings)
	}
	if len(resp.Results) == 0 {
		t.Fatalf("retry result lost")
	}
}

func TestPerplexity_SearchModeOffAcceptedNoWarning(t *testing.T) {
	srv, calls := perplexityFixture(t, false)
	defer srv.Close()

	p := &Perplexity{APIKey: "key", Endpoint: srv.URL}
	resp, err := p.Search(context.Background(), Query{Text: "question", SearchMode: "off"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if *calls != 1 || len(resp.Warnings) != 0 {
		t.Fatalf("calls=%d warnings=%v", *calls, resp.Warnings)
	}
}

func TestPerplexity_RequiresKey(t *testing.T) {
	p := &Perplexity{}
	if _, err := p.Search(context.Background(), Query{Text: "x"}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestPerplexity_GenericRejectionNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
	}))
	defer srv.Close()

	p := &Perplexity{APIKey: "bad", Endpoint: srv.URL}
	// No search_mode in play: a 4xx is a hard error, not a retry trigger.
	if _, err := p.Search(context.Background(), Query{Text: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}
