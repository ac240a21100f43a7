// Package pipeline composes one URL's hydration: fetch → sniff → extract →
// truncate → structure → chunk → links, under a single wall-clock guard.
// Recoverable conditions accumulate as warnings on the result; only a failed
// fetch yields an error.
package pipeline

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webpipe/internal/chunk"
	"github.com/hyperifyio/webpipe/internal/config"
	"github.com/hyperifyio/webpipe/internal/extract"
	"github.com/hyperifyio/webpipe/internal/fetch"
	"github.com/hyperifyio/webpipe/internal/links"
	"github.com/hyperifyio/webpipe/internal/shellout"
	"github.com/hyperifyio/webpipe/internal/sniff"
	"github.com/hyperifyio/webpipe/internal/textprep"
)

// Params configures one pipeline run.
type Params struct {
	URL              string
	Query            string
	Backend          fetch.Backend
	TimeoutMS        int
	MaxBytes         *int64
	Headers          map[string]string
	CacheRead        bool
	CacheWrite       bool
	MaxChars         int
	TopK             int
	MaxChunkChars    int
	IncludeStructure bool
	IncludeLinks     bool
	MaxLinks         int
}

// Result is the per-URL envelope payload.
type Result struct {
	URL         string                 `json:"url"`
	FinalURL    string                 `json:"final_url,omitempty"`
	Status      int                    `json:"status,omitempty"`
	ContentType string                 `json:"content_type,omitempty"`
	Source      string                 `json:"source,omitempty"`
	Truncated   bool                   `json:"truncated,omitempty"`
	Engine      string                 `json:"engine,omitempty"`
	Text        string                 `json:"text,omitempty"`
	TextChars   int                    `json:"text_chars"`
	Chunks      []chunk.Scored         `json:"chunks"`
	Structure   *extract.Structure     `json:"structure,omitempty"`
	Links       []string               `json:"links,omitempty"`
	Quality     extract.QualitySignals `json:"quality"`
	Warnings    []string               `json:"-"`
	// TextPreview is a short deterministic excerpt: the top chunk when the
	// query matched, otherwise the first substantive paragraph.
	TextPreview       string `json:"text_preview,omitempty"`
	TextPreviewSource string `json:"text_preview_source,omitempty"`
	Err               error  `json:"-"`
}

// Runner carries the fixed collaborators for pipeline runs.
type Runner struct {
	Cfg      config.Config
	Fetcher  *fetch.Fetcher
	Shellout *shellout.Runner
}

const defaultMaxChars = 20_000

func (r *Runner) pipelineTimeout() time.Duration {
	if r.Cfg.ExtractPipelineTimeoutMS > 0 {
		return time.Duration(r.Cfg.ExtractPipelineTimeoutMS) * time.Millisecond
	}
	return 20 * time.Second
}

// ExtractOne hydrates a single URL. The wall-clock guard races the composed
// operation; on expiry a minimal empty result carrying
// extract_pipeline_timeout is returned.
func (r *Runner) ExtractOne(ctx context.Context, p Params) Result {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan Result, 1)
	go func() { done <- r.run(runCtx, p) }()

	timer := time.NewTimer(r.pipelineTimeout())
	defer timer.Stop()
	select {
	case res := <-done:
		return res
	case <-timer.C:
	case <-ctx.Done():
	}
	cancel()
	return Result{
		URL:      p.URL,
		Chunks:   []chunk.Scored{},
		Warnings: []string{"extract_pipeline_timeout"},
	}
}

func (r *Runner) run(ctx context.Context, p Params) Result {
	res := Result{URL: p.URL, Chunks: []chunk.Scored{}}

	resp, err := r.Fetcher.Do(ctx, fetch.Request{
		URL:        p.URL,
		TimeoutMS:  p.TimeoutMS,
		MaxBytes:   p.MaxBytes,
		Headers:    p.Headers,
		CacheRead:  p.CacheRead,
		CacheWrite: p.CacheWrite,
	}, p.Backend)
	if err != nil {
		res.Err = err
		return res
	}

	res.FinalURL = resp.FinalURL
	res.Status = resp.Status
	res.ContentType = resp.ContentType
	res.Source = resp.Source
	res.Truncated = resp.Truncated
	res.Warnings = append(res.Warnings, resp.Warnings...)
	if resp.Truncated {
		res.Warnings = append(res.Warnings, "body_truncated_by_max_bytes")
	}

	kind := sniff.Detect(resp.Bytes, resp.ContentType, resp.FinalURL)

	extracted := extract.Extract(ctx, resp.Bytes, resp.ContentType, resp.FinalURL, extract.Options{
		MaxInputBytes: r.Cfg.ExtractMaxBytes,
		PDFShellout:   r.Cfg.PDFShellout,
		OCREnable:     r.Cfg.OCREnable,
		PandocOK:      r.Cfg.PandocEnable,
		FFmpegOK:      r.Cfg.FFmpegEnable,
		Runner:        r.Shellout,
	})
	res.Engine = extracted.Engine
	res.Warnings = append(res.Warnings, extracted.Warnings...)

	maxChars := p.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	text := extracted.Text
	if utf8.RuneCountInString(text) > maxChars {
		text = textprep.TruncateChars(text, maxChars)
		res.Warnings = append(res.Warnings, "text_truncated_by_max_chars")
	}
	res.Text = text
	res.TextChars = utf8.RuneCountInString(text)
	if strings.TrimSpace(text) == "" && len(resp.Bytes) > 0 {
		res.Warnings = append(res.Warnings, "empty_extraction")
	}

	if p.IncludeStructure && strings.TrimSpace(text) != "" {
		s := extract.BuildStructure(resp.Bytes, extracted, kind == sniff.KindHTML, extract.StructureOptions{})
		res.Warnings = append(res.Warnings, s.Warnings...)
		res.Structure = &s
	}

	opts := chunk.Options{TopK: p.TopK, MaxChunkChars: p.MaxChunkChars}
	res.Chunks = r.scoreChunks(&res, text, p.Query, opts)
	res.Chunks = filterLowSignalChunks(&res, res.Chunks)

	if p.IncludeLinks {
		res.Links = r.extractLinks(ctx, &res, resp, kind, p.MaxLinks)
	}

	res.Quality = extract.AssessQuality(text)
	if res.Quality.HasLowSignal {
		res.Warnings = append(res.Warnings, "main_content_low_signal")
	}
	res.Warnings = append(res.Warnings, extract.DetectInterstitial(resp.Bytes, text, resp.Status)...)
	r.preview(&res, p.Query)
	return res
}

// filterLowSignalChunks drops bundle-gunk chunks from the evidence set. If
// nothing survives, the chunks are kept (better audited gunk than silence)
// and all_chunks_low_signal is raised instead.
func filterLowSignalChunks(res *Result, chunks []chunk.Scored) []chunk.Scored {
	if len(chunks) == 0 {
		return chunks
	}
	kept := make([]chunk.Scored, 0, len(chunks))
	for _, c := range chunks {
		if extract.FilterLowSignalChunkText(c.Text) {
			continue
		}
		kept = append(kept, c)
	}
	switch {
	case len(kept) == 0:
		res.Warnings = append(res.Warnings, "all_chunks_low_signal")
		return chunks
	case len(kept) < len(chunks):
		res.Warnings = append(res.Warnings, "chunks_filtered_low_signal")
	}
	return kept
}

// scoreChunks prefers the structure-aware variant and falls back to text
// scoring, then to the query-less default selection.
func (r *Runner) scoreChunks(res *Result, text, query string, opts chunk.Options) []chunk.Scored {
	if strings.TrimSpace(text) == "" {
		return []chunk.Scored{}
	}
	if res.Structure != nil && query != "" {
		if chunks, ok := chunk.ScoreBlocks(res.Structure.ChunkBlocks(), query, opts); ok {
			return chunks
		}
	}
	chunks, matched := chunk.ScoreText(text, query, opts)
	if query != "" && !matched {
		res.Warnings = append(res.Warnings, "no_query_overlap_doc")
	}
	return chunks
}

func (r *Runner) extractLinks(ctx context.Context, res *Result, resp *fetch.Response, kind sniff.Kind, maxLinks int) []string {
	switch kind {
	case sniff.KindHTML:
		timeout := time.Duration(r.Cfg.LinksTimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = links.DefaultTimeout
		}
		linkCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		out, timedOut := links.FromHTML(linkCtx, string(resp.Bytes), resp.FinalURL, maxLinks)
		if timedOut {
			res.Warnings = append(res.Warnings, "links_timeout")
			return []string{}
		}
		return out
	case sniff.KindMarkdown:
		return links.FromMarkdown(string(resp.Bytes), resp.FinalURL, maxLinks)
	default:
		res.Warnings = append(res.Warnings, "links_unavailable")
		return []string{}
	}
}

// preview fills the deterministic text preview fields.
func (r *Runner) preview(res *Result, query string) {
	if len(res.Chunks) == 0 {
		return
	}
	top := res.Chunks[0]
	if query != "" && top.Score > 1 || (query != "" && chunkMatchesQuery(top.Text, query)) {
		res.TextPreview = textprep.TruncateChars(top.Text, 400)
		res.TextPreviewSource = "top_chunk"
		return
	}
	res.TextPreview = textprep.TruncateChars(top.Text, 400)
	res.TextPreviewSource = "top_chunk_fallback"
}

func chunkMatchesQuery(text, query string) bool {
	tokens := textprep.Tokenize(query)
	normalized := textprep.NormalizeForMatch(text)
	for _, tok := range tokens {
		if strings.Contains(normalized, tok) {
			return true
		}
	}
	return false
}

// LogResult emits the per-URL debug line.
func LogResult(res Result) {
	log.Debug().
		Str("url", res.URL).
		Str("engine", res.Engine).
		Int("status", res.Status).
		Int("chunks", len(res.Chunks)).
		Int("text_chars", res.TextChars).
		Msg("hydrated")
}
