package envelope

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperifyio/webpipe/internal/textprep"
)

// MarkdownOptions tunes the human rendering.
type MarkdownOptions struct {
	// IncludeJSON appends the canonical JSON payload in a fenced block.
	// Off by default: the structured content item already carries it.
	IncludeJSON bool
}

// RenderMarkdown produces the human view of a shaped envelope value. The
// output always starts with a "## " heading, so it can never parse as JSON.
func RenderMarkdown(value map[string]any, opts MarkdownOptions) string {
	var b strings.Builder
	kind, _ := value["kind"].(string)
	ok, _ := value["ok"].(bool)
	status := "ok"
	if !ok {
		status = "error"
	}
	fmt.Fprintf(&b, "## %s (%s)\n\n", kind, status)

	if errObj, present := value["error"].(map[string]any); present {
		code, _ := errObj["code"].(string)
		msg, _ := errObj["message"].(string)
		hint, _ := errObj["hint"].(string)
		fmt.Fprintf(&b, "- error: `%s` %s\n", code, msg)
		if hint != "" {
			fmt.Fprintf(&b, "- hint: %s\n", hint)
		}
		b.WriteString("\n")
	}

	if warnings, present := value["warning_codes"].([]any); present && len(warnings) > 0 {
		b.WriteString("### Warnings\n\n")
		hints, _ := value["warning_hints"].(map[string]any)
		for _, w := range warnings {
			code, _ := w.(string)
			hint, _ := hints[code].(string)
			if hint != "" {
				fmt.Fprintf(&b, "- `%s` — %s\n", code, hint)
			} else {
				fmt.Fprintf(&b, "- `%s`\n", code)
			}
		}
		b.WriteString("\n")
	}

	renderResults(&b, value)
	renderTopChunks(&b, value)
	renderScalarSummary(&b, value)

	if opts.IncludeJSON {
		if raw, err := json.MarshalIndent(value, "", "  "); err == nil {
			b.WriteString("### JSON\n\n```json\n")
			b.Write(raw)
			b.WriteString("\n```\n")
		}
	}
	return b.String()
}

func renderResults(b *strings.Builder, value map[string]any) {
	results, ok := value["results"].([]any)
	if !ok || len(results) == 0 {
		return
	}
	b.WriteString("### Results\n\n")
	for i, r := range results {
		res, ok := r.(map[string]any)
		if !ok {
			continue
		}
		u := firstString(res, "final_url", "url")
		fmt.Fprintf(b, "%d. %s", i+1, u)
		if eng := nestedString(res, "extract", "engine"); eng != "" {
			fmt.Fprintf(b, " _(engine: %s)_", eng)
		}
		if status, present := res["status"]; present {
			fmt.Fprintf(b, " [status %v]", status)
		}
		b.WriteString("\n")
		if preview := nestedString(res, "extract", "text_preview"); preview != "" {
			fmt.Fprintf(b, "   > %s\n", oneLine(preview, 300))
		}
	}
	b.WriteString("\n")
}

func renderTopChunks(b *strings.Builder, value map[string]any) {
	chunks, ok := value["top_chunks"].([]any)
	if !ok || len(chunks) == 0 {
		return
	}
	b.WriteString("### Top chunks\n\n")
	for _, c := range chunks {
		ch, ok := c.(map[string]any)
		if !ok {
			continue
		}
		u := firstString(ch, "url")
		text, _ := ch["text"].(string)
		score := ch["score"]
		fmt.Fprintf(b, "- (%v) %s\n  %s\n", score, u, oneLine(text, 500))
	}
	b.WriteString("\n")
}

// renderScalarSummary prints remaining simple top-level fields so small
// envelopes (meta, usage) read well without bespoke templates.
func renderScalarSummary(b *strings.Builder, value map[string]any) {
	skip := map[string]struct{}{
		"schema_version": {}, "kind": {}, "ok": {}, "elapsed_ms": {},
		"request": {}, "attempts": {}, "warning_codes": {}, "warning_hints": {},
		"error": {}, "results": {}, "top_chunks": {},
	}
	keys := make([]string, 0, len(value))
	for k := range value {
		if _, s := skip[k]; !s {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := value[k].(type) {
		case string:
			fmt.Fprintf(b, "- %s: %s\n", k, oneLine(v, 200))
		case float64, bool:
			fmt.Fprintf(b, "- %s: %v\n", k, v)
		case []any:
			fmt.Fprintf(b, "- %s: %d item(s)\n", k, len(v))
		case map[string]any:
			fmt.Fprintf(b, "- %s: %d field(s)\n", k, len(v))
		}
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func nestedString(m map[string]any, outer, inner string) string {
	o, ok := m[outer].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := o[inner].(string)
	return s
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if cut := textprep.TruncateChars(s, max); cut != s {
		return cut + "…"
	}
	return s
}
