package extract

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/webpipe/internal/chunk"
	"github.com/hyperifyio/webpipe/internal/textprep"
)

// StructuredBlock is one structural unit; offsets index into the parent
// structure_text in Unicode scalar values.
type StructuredBlock struct {
	Kind      chunk.BlockKind `json:"kind"`
	StartChar int             `json:"start_char"`
	EndChar   int             `json:"end_char"`
	Text      string          `json:"text"`
}

// Structure is the structural view of an extracted document.
type Structure struct {
	Engine        string            `json:"engine"`
	Title         string            `json:"title,omitempty"`
	Outline       []string          `json:"outline"`
	Blocks        []StructuredBlock `json:"blocks"`
	StructureText string            `json:"structure_text"`
	TextChars     int               `json:"text_chars"`
	Warnings      []string          `json:"-"`
}

// StructureOptions bounds structure extraction output.
type StructureOptions struct {
	MaxOutlineItems int
	MaxBlocks       int
	MaxBlockChars   int
}

func (o StructureOptions) clamped() StructureOptions {
	if o.MaxOutlineItems <= 0 {
		o.MaxOutlineItems = 40
	}
	if o.MaxBlocks <= 0 {
		o.MaxBlocks = 200
	}
	if o.MaxBlockChars <= 0 {
		o.MaxBlockChars = 2000
	}
	return o
}

// longTokenLimit guards HTML structure parsing against pathological inputs
// such as inlined base64 blobs and minified bundles.
const longTokenLimit = 8192

// BuildStructure derives the structural view for a document. For HTML inputs
// the raw body is walked; for everything else the extracted text is
// segmented.
func BuildStructure(body []byte, extracted Extracted, isHTML bool, opts StructureOptions) Structure {
	opts = opts.clamped()
	if isHTML {
		if hasLongToken(body) {
			s := structureFromText(extracted.Text, extracted.Engine, opts)
			s.Warnings = append(s.Warnings, "structure_html_skipped_long_token")
			return s
		}
		if s, ok := structureFromHTML(body, extracted.Engine, opts); ok {
			return s
		}
	}
	if extracted.Engine == EngineJSON {
		return structureFromJSON(extracted.Text, opts)
	}
	text := extracted.Text
	if strings.HasPrefix(extracted.Engine, "pdf") {
		text = unwrapPDFText(text)
	}
	return structureFromText(text, extracted.Engine, opts)
}

func hasLongToken(body []byte) bool {
	run := 0
	for _, c := range body {
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' || c == '>' || c == '<' {
			run = 0
			continue
		}
		run++
		if run > longTokenLimit {
			return true
		}
	}
	return false
}

type pendingBlock struct {
	kind chunk.BlockKind
	text string
}

func structureFromHTML(body []byte, engine string, opts StructureOptions) (Structure, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Structure{}, false
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	var pending []pendingBlock
	doc.Find("h1, h2, h3, p, li, pre").Each(func(_ int, sel *goquery.Selection) {
		name := goquery.NodeName(sel)
		var kind chunk.BlockKind
		var text string
		switch name {
		case "h1", "h2", "h3":
			kind = chunk.BlockHeading
			text = strings.TrimSpace(sel.Text())
		case "p":
			kind = chunk.BlockParagraph
			text = strings.TrimSpace(sel.Text())
		case "li":
			kind = chunk.BlockListItem
			text = strings.TrimSpace(sel.Text())
		case "pre":
			kind = chunk.BlockCode
			// Code keeps its internal newlines.
			text = strings.Trim(sel.Text(), "\n")
		}
		if text == "" {
			return
		}
		pending = append(pending, pendingBlock{kind: kind, text: text})
	})
	if len(pending) == 0 {
		return Structure{}, false
	}
	s := assemble(pending, engine, opts)
	s.Title = title
	return s, true
}

func structureFromText(text, engine string, opts StructureOptions) Structure {
	var pending []pendingBlock
	for _, para := range strings.Split(text, "\n\n") {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			continue
		}
		kind := chunk.BlockParagraph
		if strings.HasPrefix(trimmed, "#") {
			kind = chunk.BlockHeading
			trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, "# "))
			if trimmed == "" {
				continue
			}
		}
		pending = append(pending, pendingBlock{kind: kind, text: trimmed})
	}
	return assemble(pending, engine, opts)
}

func structureFromJSON(pretty string, opts StructureOptions) Structure {
	var top map[string]json.RawMessage
	outline := []string{}
	if err := json.Unmarshal([]byte(pretty), &top); err == nil {
		for k := range top {
			outline = append(outline, k)
		}
		sort.Strings(outline)
		if len(outline) > opts.MaxOutlineItems {
			outline = outline[:opts.MaxOutlineItems]
		}
	}
	s := assemble([]pendingBlock{{kind: chunk.BlockCode, text: strings.TrimSpace(pretty)}}, EngineJSON, opts)
	s.Outline = outline
	return s
}

// unwrapPDFText joins single-newline wrapped lines into paragraphs while
// preserving blank lines as paragraph breaks.
func unwrapPDFText(text string) string {
	paras := strings.Split(text, "\n\n")
	for i, p := range paras {
		lines := strings.Split(p, "\n")
		for j, l := range lines {
			lines[j] = strings.TrimSpace(l)
		}
		paras[i] = strings.TrimSpace(strings.Join(lines, " "))
	}
	var kept []string
	for _, p := range paras {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// assemble applies bounds, computes rune offsets and builds structure_text.
func assemble(pending []pendingBlock, engine string, opts StructureOptions) Structure {
	if len(pending) > opts.MaxBlocks {
		pending = pending[:opts.MaxBlocks]
	}
	var outline []string
	var blocks []StructuredBlock
	var sb strings.Builder
	offset := 0
	for _, p := range pending {
		text := textprep.TruncateChars(strings.TrimSpace(p.text), opts.MaxBlockChars)
		if text == "" {
			continue
		}
		if p.kind == chunk.BlockHeading && len(outline) < opts.MaxOutlineItems {
			outline = append(outline, text)
		}
		if offset > 0 {
			sb.WriteString("\n\n")
			offset += 2
		}
		n := utf8.RuneCountInString(text)
		blocks = append(blocks, StructuredBlock{Kind: p.kind, StartChar: offset, EndChar: offset + n, Text: text})
		sb.WriteString(text)
		offset += n
	}
	if outline == nil {
		outline = []string{}
	}
	return Structure{
		Engine:        engine,
		Outline:       outline,
		Blocks:        blocks,
		StructureText: sb.String(),
		TextChars:     offset,
	}
}

// ChunkBlocks adapts structured blocks to the chunker's input type.
func (s Structure) ChunkBlocks() []chunk.Block {
	out := make([]chunk.Block, 0, len(s.Blocks))
	for _, b := range s.Blocks {
		out = append(out, chunk.Block{Kind: b.Kind, StartChar: b.StartChar, EndChar: b.EndChar, Text: b.Text})
	}
	return out
}
