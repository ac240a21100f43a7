package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearxNG_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path=%q", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "golang" || r.URL.Query().Get("format") != "json" {
			t.Errorf("query=%v", r.URL.Query())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Go","url":"https://go.dev","content":"The Go site"},
			{"title":"","url":"https://skip.me","content":"no title"},
			{"title":"Blog","url":"https://go.dev/blog","content":"posts"}
		]}`))
	}))
	defer srv.Close()

	p := &SearxNG{BaseURL: srv.URL}
	resp, err := p.Search(context.Background(), Query{Text: "golang", MaxResults: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Provider != "searxng" || len(resp.Results) != 2 {
		t.Fatalf("%+v", resp)
	}
	if resp.Results[0].URL != "https://go.dev" || resp.Results[0].Source != "searxng" {
		t.Fatalf("%+v", resp.Results[0])
	}
}

func TestSearxNG_Limit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"title":"a","url":"https://a"},{"title":"b","url":"https://b"},{"title":"c","url":"https://c"}
		]}`))
	}))
	defer srv.Close()
	p := &SearxNG{BaseURL: srv.URL}
	resp, err := p.Search(context.Background(), Query{Text: "x", MaxResults: 2})
	if err != nil || len(resp.Results) != 2 {
		t.Fatalf("%+v err=%v", resp, err)
	}
}

func TestBrave_RequiresKey(t *testing.T) {
	p := &Brave{}
	if _, err := p.Search(context.Background(), Query{Text: "x"}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestTavily_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search" {
			t.Errorf("method=%s path=%s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") == "" {
			t.Errorf("missing auth header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"T","url":"https://t.example","content":"snippet"}]}`))
	}))
	defer srv.Close()

	p := &Tavily{APIKey: "k", BaseURL: srv.URL}
	resp, err := p.Search(context.Background(), Query{Text: "x"})
	if err != nil || len(resp.Results) != 1 || resp.CostUnits != 1 {
		t.Fatalf("%+v err=%v", resp, err)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := &Registry{Providers: []Provider{&DuckDuckGo{}, &Brave{APIKey: "k"}}}
	if r.Resolve("auto").Name() != "duckduckgo" {
		t.Fatalf("auto should pick first provider")
	}
	if r.Resolve("brave").Name() != "brave" {
		t.Fatalf("named resolve failed")
	}
	if r.Resolve("nope") != nil {
		t.Fatalf("unknown provider should resolve nil")
	}
	if !r.HasKeyed() {
		t.Fatalf("brave is keyed")
	}
	keyless := &Registry{Providers: []Provider{&DuckDuckGo{}}}
	if keyless.HasKeyed() {
		t.Fatalf("duckduckgo is keyless")
	}
}

func TestDuckDuckGo_RedirectUnwrap(t *testing.T) {
	got := resolveRedirect("https://duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage&rut=x")
	if got != "https://example.com/page" {
		t.Fatalf("got %q", got)
	}
	if resolveRedirect("//duckduckgo.com/relative") != "" {
		t.Fatalf("scheme-relative should be dropped")
	}
}
