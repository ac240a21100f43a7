// Package cachesearch runs the offline evidence pass: scan the fetch cache,
// extract each document, score its chunks against the query and return the
// best documents without touching the network. A best-effort in-memory
// corpus avoids repeated extraction; it is reconstructible from disk and
// never authoritative.
package cachesearch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webpipe/internal/cache"
	"github.com/hyperifyio/webpipe/internal/chunk"
	"github.com/hyperifyio/webpipe/internal/extract"
	"github.com/hyperifyio/webpipe/internal/sniff"
	"github.com/hyperifyio/webpipe/internal/textprep"
)

// Doc is one scored cached document.
type Doc struct {
	FinalURL       string             `json:"final_url"`
	FetchedAtEpoch int64              `json:"fetched_at_epoch_s"`
	Status         int                `json:"status"`
	ContentType    string             `json:"content_type,omitempty"`
	Bytes          int                `json:"bytes"`
	Engine         string             `json:"extracted_engine"`
	Chunks         []chunk.Scored     `json:"chunks"`
	Structure      *extract.Structure `json:"structure,omitempty"`
	Score          int                `json:"score"`
}

// Params bounds one search run.
type Params struct {
	Query            string
	MaxDocs          int
	MaxScanEntries   int
	TopK             int
	MaxChunkChars    int
	IncludeStructure bool
	Timeout          time.Duration
}

// corpusEntry caches the extraction work for one cache key.
type corpusEntry struct {
	fetchedAt int64
	text      string
	engine    string
	isHTML    bool
	body      []byte
}

// Searcher owns the cache handle and the in-memory corpus.
type Searcher struct {
	Cache      *cache.FetchCache
	ExtractOpt extract.Options

	mu     sync.Mutex
	corpus map[string]corpusEntry
}

// Search scans the cache and returns scored docs plus run-level warnings.
func (s *Searcher) Search(ctx context.Context, p Params) ([]Doc, []string) {
	if p.MaxDocs <= 0 {
		p.MaxDocs = 10
	}
	if p.MaxScanEntries <= 0 {
		p.MaxScanEntries = 200
	}
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var warnings []string
	entries, err := s.Cache.Scan(ctx, p.MaxScanEntries)
	if err != nil {
		if ctx.Err() != nil {
			return nil, []string{"cache_search_timeout"}
		}
		log.Warn().Err(err).Msg("cache scan failed")
	}

	var docs []Doc
	dropped := 0
	seenURL := map[string]int{}
	for _, entry := range entries {
		if ctx.Err() != nil {
			warnings = append(warnings, "cache_search_timeout")
			break
		}
		doc, ok := s.scoreEntry(ctx, entry, p)
		if !ok {
			continue
		}
		if doc.Score == 0 && p.Query != "" {
			dropped++
			continue
		}
		// Multiple cache entries can map to one URL (different max_bytes or
		// headers); keep the best-scoring one.
		if prev, dup := seenURL[doc.FinalURL]; dup {
			if docs[prev].Score >= doc.Score {
				continue
			}
			docs[prev] = doc
			continue
		}
		seenURL[doc.FinalURL] = len(docs)
		docs = append(docs, doc)
	}
	if dropped > 0 && len(docs) < dropped {
		warnings = append(warnings, "no_query_overlap_docs_dropped")
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		if docs[i].FetchedAtEpoch != docs[j].FetchedAtEpoch {
			return docs[i].FetchedAtEpoch > docs[j].FetchedAtEpoch
		}
		return docs[i].FinalURL < docs[j].FinalURL
	})
	if len(docs) > p.MaxDocs {
		docs = docs[:p.MaxDocs]
	}
	return docs, warnings
}

func (s *Searcher) scoreEntry(ctx context.Context, entry cache.Entry, p Params) (Doc, bool) {
	ce, body, ok := s.materialize(ctx, entry)
	if !ok || strings.TrimSpace(ce.text) == "" {
		return Doc{}, false
	}
	opts := chunk.Options{TopK: p.TopK, MaxChunkChars: p.MaxChunkChars}
	chunks, matched := chunk.ScoreText(ce.text, p.Query, opts)
	score := 0
	if matched || p.Query == "" {
		for _, c := range chunks {
			score += c.Score
		}
	} else {
		chunks = []chunk.Scored{}
	}
	doc := Doc{
		FinalURL:       entry.Meta.FinalURL,
		FetchedAtEpoch: entry.Meta.FetchedAtEpoch,
		Status:         entry.Meta.Status,
		ContentType:    entry.Meta.ContentType,
		Bytes:          len(body),
		Engine:         ce.engine,
		Chunks:         chunks,
		Score:          score,
	}
	if p.IncludeStructure && score > 0 {
		st := extract.BuildStructure(body, extract.Extracted{Engine: ce.engine, Text: ce.text}, ce.isHTML, extract.StructureOptions{})
		doc.Structure = &st
	}
	return doc, true
}

// materialize returns the corpus entry for key, extracting on first touch.
func (s *Searcher) materialize(ctx context.Context, entry cache.Entry) (corpusEntry, []byte, bool) {
	s.mu.Lock()
	ce, hit := s.corpus[entry.Key]
	s.mu.Unlock()
	if hit && ce.fetchedAt == entry.Meta.FetchedAtEpoch {
		return ce, ce.body, true
	}
	body, err := s.Cache.ReadBody(entry.Key)
	if err != nil {
		return corpusEntry{}, nil, false
	}
	kind := sniff.Detect(body, entry.Meta.ContentType, entry.Meta.FinalURL)
	extracted := extract.Extract(ctx, body, entry.Meta.ContentType, entry.Meta.FinalURL, s.ExtractOpt)
	ce = corpusEntry{
		fetchedAt: entry.Meta.FetchedAtEpoch,
		text:      textprep.TruncateChars(extracted.Text, 60_000),
		engine:    extracted.Engine,
		isHTML:    kind == sniff.KindHTML,
		body:      body,
	}
	s.mu.Lock()
	if s.corpus == nil {
		s.corpus = map[string]corpusEntry{}
	}
	s.corpus[entry.Key] = ce
	s.mu.Unlock()
	return ce, body, true
}
