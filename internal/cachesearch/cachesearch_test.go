package cachesearch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hyperifyio/webpipe/internal/cache"
)

func warm(t *testing.T, fc *cache.FetchCache, url, contentType, body string, fetchedAt int64) {
	t.Helper()
	err := fc.Put(context.Background(), cache.KeyInput{URL: url}, cache.Record{
		Meta: cache.Meta{
			URL: url, FinalURL: url, Status: 200,
			ContentType: contentType, FetchedAtEpoch: fetchedAt,
		},
		Body: []byte(body),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSearch_OfflineReplay(t *testing.T) {
	fc := &cache.FetchCache{Dir: t.TempDir(), IOTimeout: 5 * time.Second}
	warm(t, fc, "http://fixture/doc", "text/html",
		"<html><body><h1>Doc</h1><p>quuxword unique token appears in this paragraph body.</p></body></html>", 2000)
	warm(t, fc, "http://fixture/other", "text/html",
		"<html><body><p>entirely unrelated content with plenty of words in it for chunking.</p></body></html>", 1000)

	s := &Searcher{Cache: fc}
	docs, warnings := s.Search(context.Background(), Params{Query: "quuxword", MaxDocs: 50, IncludeStructure: true})
	if len(warnings) != 0 {
		t.Logf("warnings: %v", warnings)
	}
	if len(docs) != 1 {
		t.Fatalf("docs=%d", len(docs))
	}
	d := docs[0]
	if !strings.HasSuffix(d.FinalURL, "/doc") {
		t.Fatalf("final_url=%q", d.FinalURL)
	}
	if len(d.Chunks) == 0 || !strings.Contains(d.Chunks[0].Text, "quuxword") {
		t.Fatalf("chunks=%+v", d.Chunks)
	}
	if d.Score < 1 {
		t.Fatalf("score=%d", d.Score)
	}
	if d.Structure == nil {
		t.Fatalf("structure missing")
	}
}

func TestSearch_StableOrder(t *testing.T) {
	fc := &cache.FetchCache{Dir: t.TempDir(), IOTimeout: 5 * time.Second}
	warm(t, fc, "http://a/one", "text/plain", "needle alpha plus plenty of additional words in the body here.", 1000)
	warm(t, fc, "http://b/two", "text/plain", "needle alpha plus plenty of additional words in the body here.", 2000)

	s := &Searcher{Cache: fc}
	docs, _ := s.Search(context.Background(), Params{Query: "needle"})
	if len(docs) != 2 {
		t.Fatalf("docs=%d", len(docs))
	}
	// Equal score: newer fetched_at first.
	if docs[0].FetchedAtEpoch < docs[1].FetchedAtEpoch {
		t.Fatalf("order: %+v", docs)
	}
}

func TestSearch_MaxDocs(t *testing.T) {
	fc := &cache.FetchCache{Dir: t.TempDir(), IOTimeout: 5 * time.Second}
	for i, u := range []string{"http://x/1", "http://x/2", "http://x/3"} {
		warm(t, fc, u, "text/plain", "needle content with enough words to pass every selection threshold easily.", int64(1000+i))
	}
	s := &Searcher{Cache: fc}
	docs, _ := s.Search(context.Background(), Params{Query: "needle", MaxDocs: 2})
	if len(docs) != 2 {
		t.Fatalf("max_docs ignored: %d", len(docs))
	}
}

func TestSearch_CorpusReuse(t *testing.T) {
	fc := &cache.FetchCache{Dir: t.TempDir(), IOTimeout: 5 * time.Second}
	warm(t, fc, "http://x/doc", "text/plain", "needle content with enough words to pass the selection threshold.", 1000)
	s := &Searcher{Cache: fc}
	if docs, _ := s.Search(context.Background(), Params{Query: "needle"}); len(docs) != 1 {
		t.Fatalf("first scan failed")
	}
	// Second run hits the in-memory corpus; results identical.
	docs, _ := s.Search(context.Background(), Params{Query: "needle"})
	if len(docs) != 1 || docs[0].Engine == "" {
		t.Fatalf("corpus reuse broke results: %+v", docs)
	}
}
