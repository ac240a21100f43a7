// Package chunk implements query-aware paragraph and block scoring. Offsets
// are counted in Unicode scalar values and always index into the source text
// the chunks were derived from.
package chunk

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hyperifyio/webpipe/internal/textprep"
)

// Scored is one contiguous text span with a non-negative lexical score.
type Scored struct {
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	Score     int    `json:"score"`
	Text      string `json:"text"`
}

// Options bounds chunk selection. Zero values take the defaults; all values
// are clamped to the documented ranges.
type Options struct {
	TopK          int
	MaxChunkChars int
}

const (
	minTopK          = 1
	maxTopK          = 50
	minChunkChars    = 50
	maxChunkChars    = 5000
	defaultTopK      = 5
	defaultMaxChars  = 700
	substantiveChars = 60
	headingBonus     = 2
	headingLookback  = 8
)

func (o Options) clamped() Options {
	if o.TopK == 0 {
		o.TopK = defaultTopK
	}
	if o.TopK < minTopK {
		o.TopK = minTopK
	}
	if o.TopK > maxTopK {
		o.TopK = maxTopK
	}
	if o.MaxChunkChars == 0 {
		o.MaxChunkChars = defaultMaxChars
	}
	if o.MaxChunkChars < minChunkChars {
		o.MaxChunkChars = minChunkChars
	}
	if o.MaxChunkChars > maxChunkChars {
		o.MaxChunkChars = maxChunkChars
	}
	return o
}

// span is a candidate region in rune offsets.
type span struct {
	start int
	end   int
	text  string
}

// paragraphSpans splits text on runs of two or more newlines, tracking rune
// offsets.
func paragraphSpans(text string) []span {
	var spans []span
	runeOffset := 0
	byteOffset := 0
	for byteOffset < len(text) {
		next := strings.Index(text[byteOffset:], "\n\n")
		var segment string
		if next < 0 {
			segment = text[byteOffset:]
		} else {
			segment = text[byteOffset : byteOffset+next]
		}
		segRunes := utf8.RuneCountInString(segment)
		if strings.TrimSpace(segment) != "" {
			spans = append(spans, span{start: runeOffset, end: runeOffset + segRunes, text: segment})
		}
		if next < 0 {
			break
		}
		// Consume the separator run of newlines.
		sepEnd := byteOffset + next
		for sepEnd < len(text) && text[sepEnd] == '\n' {
			sepEnd++
		}
		runeOffset += segRunes + utf8.RuneCountInString(text[byteOffset+next:sepEnd])
		byteOffset = sepEnd
	}
	return spans
}

// scoreSpan counts distinct query tokens present in the normalized span.
func scoreSpan(text string, tokens []string) int {
	if len(tokens) == 0 {
		return 0
	}
	normalized := textprep.NormalizeForMatch(text)
	score := 0
	for _, tok := range tokens {
		if strings.Contains(normalized, tok) {
			score++
		}
	}
	return score
}

// ScoreText selects the best query-matching paragraphs of text. When the
// query has no overlap (or is empty) the deterministic fallback selection is
// returned and the second result is false.
func ScoreText(text, query string, opts Options) ([]Scored, bool) {
	opts = opts.clamped()
	tokens := textprep.Tokenize(query)
	spans := paragraphSpans(text)
	var out []Scored
	for _, sp := range spans {
		score := scoreSpan(sp.text, tokens)
		if score == 0 {
			continue
		}
		out = append(out, Scored{StartChar: sp.start, EndChar: sp.end, Score: score, Text: sp.text})
	}
	if len(out) == 0 {
		return DefaultSelection(text, opts), false
	}
	sortChunks(out)
	return truncate(out, opts), true
}

// DefaultSelection is the query-less fallback: the first paragraphs whose
// trimmed length is at least 60 codepoints and that are not nav-like runs of
// short lines, each with score 1. It guarantees
// non-empty output whenever the text is non-empty.
func DefaultSelection(text string, opts Options) []Scored {
	opts = opts.clamped()
	spans := paragraphSpans(text)
	var out []Scored
	for _, sp := range spans {
		if utf8.RuneCountInString(strings.TrimSpace(sp.text)) < substantiveChars {
			continue
		}
		if navLike(sp.text) {
			continue
		}
		out = append(out, Scored{StartChar: sp.start, EndChar: sp.end, Score: 1, Text: sp.text})
		if len(out) >= opts.TopK {
			break
		}
	}
	if len(out) == 0 && strings.TrimSpace(text) != "" {
		// Nothing substantive; fall back to the first non-empty paragraph.
		for _, sp := range spans {
			out = append(out, Scored{StartChar: sp.start, EndChar: sp.end, Score: 1, Text: sp.text})
			break
		}
	}
	return truncate(out, opts)
}

// navLike reports whether a paragraph is a run of short lines (menus, link
// lists); those are poor default evidence even when long in aggregate.
func navLike(text string) bool {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) < 3 {
		return false
	}
	short := 0
	for _, l := range lines {
		if utf8.RuneCountInString(strings.TrimSpace(l)) < 25 {
			short++
		}
	}
	return short*2 > len(lines)
}

// BlockKind mirrors the structural block kinds produced by extraction.
type BlockKind string

const (
	BlockHeading   BlockKind = "heading"
	BlockParagraph BlockKind = "paragraph"
	BlockListItem  BlockKind = "list_item"
	BlockCode      BlockKind = "code"
	BlockOther     BlockKind = "other"
)

// Block is the structure-aware scoring input: one structural unit with its
// offsets into the structure text.
type Block struct {
	Kind      BlockKind
	StartChar int
	EndChar   int
	Text      string
}

// ScoreBlocks runs the structure-aware variant: a matching block expands
// backward to the nearest preceding heading (bounded lookback) and forward
// through its neighborhood until twice the chunk budget is approached. A
// matching heading contributes a small bonus to the whole group.
func ScoreBlocks(blocks []Block, query string, opts Options) ([]Scored, bool) {
	opts = opts.clamped()
	tokens := textprep.Tokenize(query)
	if len(tokens) == 0 || len(blocks) == 0 {
		return nil, false
	}
	used := make([]bool, len(blocks))
	var out []Scored
	for i, b := range blocks {
		if used[i] {
			continue
		}
		// Headings join groups as context; they never anchor one themselves.
		if b.Kind == BlockHeading {
			continue
		}
		score := scoreSpan(b.Text, tokens)
		if score == 0 {
			continue
		}
		start := i
		bonus := 0
		// Expand back to the nearest heading within the lookback window.
		for back := i - 1; back >= 0 && back >= i-headingLookback; back-- {
			if blocks[back].Kind == BlockHeading {
				start = back
				if scoreSpan(blocks[back].Text, tokens) > 0 {
					bonus = headingBonus
				}
				break
			}
		}
		// Expand forward while the group stays under twice the chunk budget.
		budget := 2 * opts.MaxChunkChars
		end := i
		total := 0
		for j := start; j < len(blocks); j++ {
			blockChars := utf8.RuneCountInString(blocks[j].Text)
			if j > i && total+blockChars > budget {
				break
			}
			total += blockChars
			if j >= i {
				end = j
			}
			if j > i && blocks[j].Kind == BlockHeading {
				end = j - 1
				break
			}
		}
		for j := start; j <= end; j++ {
			used[j] = true
		}
		var parts []string
		for j := start; j <= end; j++ {
			parts = append(parts, blocks[j].Text)
		}
		out = append(out, Scored{
			StartChar: blocks[start].StartChar,
			EndChar:   blocks[end].EndChar,
			Score:     score + bonus,
			Text:      strings.Join(parts, "\n\n"),
		})
	}
	if len(out) == 0 {
		return nil, false
	}
	sortChunks(out)
	return truncate(out, opts), true
}

func sortChunks(chunks []Scored) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].StartChar < chunks[j].StartChar
	})
}

func truncate(chunks []Scored, opts Options) []Scored {
	if len(chunks) > opts.TopK {
		chunks = chunks[:opts.TopK]
	}
	for i := range chunks {
		chunks[i].Text = textprep.TruncateChars(chunks[i].Text, opts.MaxChunkChars)
	}
	return chunks
}
