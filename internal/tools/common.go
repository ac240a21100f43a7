package tools

import (
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hyperifyio/webpipe/internal/envelope"
	"github.com/hyperifyio/webpipe/internal/pipeline"
	"github.com/hyperifyio/webpipe/internal/scheduler"
	"github.com/hyperifyio/webpipe/internal/textprep"
)

// reply shapes the envelope, renders the Markdown view and pairs both into
// the tool result. Content item 0 is always the human Markdown; the
// structured payload is the canonical machine-readable form.
func (s *Server) reply(env *envelope.Envelope, started time.Time, shape envelope.Shape) (*mcp.CallToolResult, map[string]any, error) {
	env.ElapsedMS = time.Since(started).Milliseconds()
	value, err := env.Value()
	if err != nil {
		fallback := envelope.New(env.Kind)
		fallback.ElapsedMS = time.Since(started).Milliseconds()
		fallback.Fail(envelope.NewError(envelope.CodeUnexpectedError, err.Error(), ""))
		value, _ = fallback.Value()
	}
	value = envelope.Apply(value, shape)
	md := envelope.RenderMarkdown(value, envelope.MarkdownOptions{IncludeJSON: s.Cfg.MarkdownIncludeJSON})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: md}},
	}, value, nil
}

// resultMap converts one per-URL pipeline result into its envelope form.
// Chunks live both at the result top level (verbose) and are relocated under
// extract by the compact shaping pass.
func resultMap(res pipeline.Result, includeText bool) map[string]any {
	codes := dedupeStrings(res.Warnings)
	ext := map[string]any{
		"engine":     res.Engine,
		"text_chars": res.TextChars,
	}
	if includeText {
		ext["text"] = res.Text
	}
	if res.TextPreview != "" {
		ext["text_preview"] = res.TextPreview
		ext["text_preview_source"] = res.TextPreviewSource
	}
	if res.Structure != nil {
		ext["structure"] = res.Structure
	}
	out := map[string]any{
		"url":           res.URL,
		"final_url":     res.FinalURL,
		"status":        res.Status,
		"content_type":  res.ContentType,
		"source":        res.Source,
		"truncated":     res.Truncated,
		"chunks":        res.Chunks,
		"extract":       ext,
		"quality":       res.Quality,
		"warning_codes": codes,
	}
	if res.Links != nil {
		out["links"] = res.Links
	}
	if res.Err != nil {
		out["error"] = envelope.FromErr(res.Err)
	}
	return out
}

func resultMaps(results []pipeline.Result, includeText bool) []any {
	out := make([]any, 0, len(results))
	for _, r := range results {
		out = append(out, resultMap(r, includeText))
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// collectWarnings merges aggregate- and result-level recoverable conditions
// onto the envelope.
func collectWarnings(env *envelope.Envelope, agg scheduler.Aggregate) {
	env.AddWarnings(agg.Warnings...)
	for _, res := range agg.Results {
		env.AddWarnings(res.Warnings...)
	}
}

// allFailed reports whether the hydration produced nothing usable at all.
func allFailed(agg scheduler.Aggregate) bool {
	for _, res := range agg.Results {
		if res.Err == nil {
			return false
		}
	}
	return len(agg.Results) > 0
}

func clampInt(v, def, min, max int) int {
	if v == 0 {
		v = def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func previewText(s string, max int) string {
	return textprep.TruncateChars(s, max)
}

// rankByQuery orders candidate URLs by lexical overlap with the query
// tokens, keeping the harvest order among ties, and caps the result.
func rankByQuery(urls []string, query string, max int) []string {
	if max <= 0 {
		max = len(urls)
	}
	tokens := textprep.Tokenize(query)
	type scored struct {
		url   string
		score int
	}
	out := make([]scored, 0, len(urls))
	for _, u := range urls {
		normalized := textprep.NormalizeForMatch(u)
		score := 0
		for _, t := range tokens {
			if strings.Contains(normalized, t) {
				score++
			}
		}
		out = append(out, scored{url: u, score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	var result []string
	for _, s := range out {
		result = append(result, s.url)
		if len(result) >= max {
			break
		}
	}
	return result
}
