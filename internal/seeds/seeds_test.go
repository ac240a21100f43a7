package seeds

import "testing"

func TestAll_StableAndCopied(t *testing.T) {
	first := All()
	if len(first) == 0 {
		t.Fatalf("seed list empty")
	}
	first[0].URL = "mutated"
	if All()[0].URL == "mutated" {
		t.Fatalf("All leaks internal slice")
	}
	seen := map[string]bool{}
	for _, s := range All() {
		if s.ID == "" || s.URL == "" {
			t.Fatalf("incomplete seed: %+v", s)
		}
		if seen[s.ID] {
			t.Fatalf("duplicate id %q", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestLookup(t *testing.T) {
	urls, unknown := Lookup([]string{"go-docs", "nope", "hn"})
	if len(urls) != 2 {
		t.Fatalf("urls=%v", urls)
	}
	if len(unknown) != 1 || unknown[0] != "nope" {
		t.Fatalf("unknown=%v", unknown)
	}
}
