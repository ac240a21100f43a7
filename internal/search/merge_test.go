package search

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMergeAndNormalize(t *testing.T) {
	groups := [][]Result{
		{
			{URL: "https://Example.com/a?utm_source=x&id=1", Title: "A", Source: "p1"},
			{URL: "https://example.com/b#frag", Title: "B", Source: "p1"},
		},
		{
			{URL: "https://example.com/a?id=1", Title: "A dup", Source: "p2"},
			{URL: "", Title: "empty"},
		},
	}
	got := MergeAndNormalize(groups)
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	if got[0].Title != "A" {
		t.Fatalf("earlier group should win ties: %+v", got[0])
	}
	for _, r := range got {
		if r.URL == "" || containsAnyOf(r.URL, "utm_", "#") {
			t.Fatalf("normalization failed: %q", r.URL)
		}
	}
}

type fixedProvider struct {
	name    string
	results []Result
	err     error
}

func (f *fixedProvider) Name() string  { return f.name }
func (f *fixedProvider) Keyless() bool { return true }
func (f *fixedProvider) Search(ctx context.Context, q Query) (Response, error) {
	if f.err != nil {
		return Response{}, f.err
	}
	return Response{Results: f.results, Provider: f.name, CostUnits: 1}, nil
}

func TestSearchAll_MergesAndSurvivesPartialFailure(t *testing.T) {
	r := &Registry{Providers: []Provider{
		&fixedProvider{name: "a", results: []Result{{URL: "https://x/1", Title: "one", Source: "a"}}},
		&fixedProvider{name: "b", err: errors.New("boom")},
		&fixedProvider{name: "c", results: []Result{{URL: "https://x/1", Title: "dup", Source: "c"}, {URL: "https://x/2", Title: "two", Source: "c"}}},
	}}
	resp, err := r.SearchAll(context.Background(), Query{Text: "q", MaxResults: 10})
	if err != nil {
		t.Fatalf("searchall: %v", err)
	}
	if resp.Provider != "merge" || len(resp.Results) != 2 {
		t.Fatalf("%+v", resp)
	}
}

func TestSearchAll_AllFail(t *testing.T) {
	r := &Registry{Providers: []Provider{&fixedProvider{name: "a", err: errors.New("boom")}}}
	if _, err := r.SearchAll(context.Background(), Query{Text: "q"}); err == nil {
		t.Fatalf("expected error when every provider fails")
	}
}

func containsAnyOf(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
