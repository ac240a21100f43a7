package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"
)

const doc = "Navigation\n\nThe quick brown fox jumps over the lazy dog in a fairly long paragraph about animals and fences that easily passes sixty characters.\n\nA second paragraph mentions gradient descent and Fenchel-Young losses for structured prediction, which is also comfortably long enough.\n\nshort\n\nClosing remarks that are long enough to be substantive on their own, with plenty of words to pass the selection threshold."

func TestScoreText_QueryMatch(t *testing.T) {
	chunks, matched := ScoreText(doc, "Fenchel-Young losses", Options{TopK: 3, MaxChunkChars: 500})
	if !matched {
		t.Fatalf("expected overlap")
	}
	if len(chunks) == 0 || !strings.Contains(chunks[0].Text, "Fenchel-Young") {
		t.Fatalf("top chunk %+v", chunks)
	}
	if chunks[0].Score < 2 {
		t.Fatalf("distinct-token score too low: %d", chunks[0].Score)
	}
}

func TestScoreText_NoOverlapFallsBack(t *testing.T) {
	chunks, matched := ScoreText(doc, "zzzznonexistent", Options{})
	if matched {
		t.Fatalf("unexpected overlap")
	}
	if len(chunks) == 0 {
		t.Fatalf("fallback must be non-empty for non-empty text")
	}
	for _, c := range chunks {
		if c.Score != 1 {
			t.Fatalf("fallback score must be 1, got %d", c.Score)
		}
		if utf8.RuneCountInString(strings.TrimSpace(c.Text)) < 60 {
			t.Fatalf("fallback selected a short paragraph: %q", c.Text)
		}
	}
}

func TestScoreText_Invariants(t *testing.T) {
	total := utf8.RuneCountInString(doc)
	chunks, _ := ScoreText(doc, "paragraph animals", Options{TopK: 50, MaxChunkChars: 120})
	for _, c := range chunks {
		if c.StartChar > c.EndChar || c.EndChar > total {
			t.Fatalf("bad offsets: %+v (total %d)", c, total)
		}
		if utf8.RuneCountInString(c.Text) > 120 {
			t.Fatalf("chunk text exceeds max_chunk_chars: %d", utf8.RuneCountInString(c.Text))
		}
		if c.Score < 0 {
			t.Fatalf("negative score")
		}
	}
}

func TestOptionsClamped(t *testing.T) {
	o := Options{TopK: 500, MaxChunkChars: 1}.clamped()
	if o.TopK != 50 || o.MaxChunkChars != 50 {
		t.Fatalf("clamp failed: %+v", o)
	}
	o = Options{TopK: -3, MaxChunkChars: 99999}.clamped()
	if o.TopK != 1 || o.MaxChunkChars != 5000 {
		t.Fatalf("clamp failed: %+v", o)
	}
}

func TestScoreText_SortOrder(t *testing.T) {
	text := "alpha beta gamma words words words words words words words words words\n\nalpha only paragraph with enough words to be a candidate for matching\n\nalpha beta paragraph with enough words to be a candidate for matching"
	chunks, matched := ScoreText(text, "alpha beta gamma", Options{TopK: 10, MaxChunkChars: 500})
	if !matched {
		t.Fatalf("expected match")
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if prev.Score < cur.Score {
			t.Fatalf("not score-desc: %+v then %+v", prev, cur)
		}
		if prev.Score == cur.Score && prev.StartChar > cur.StartChar {
			t.Fatalf("tie not start-asc: %+v then %+v", prev, cur)
		}
	}
}

func TestScoreBlocks_HeadingContext(t *testing.T) {
	blocks := []Block{
		{Kind: BlockHeading, StartChar: 0, EndChar: 12, Text: "Optimization"},
		{Kind: BlockParagraph, StartChar: 14, EndChar: 80, Text: "Unrelated filler paragraph that says nothing of interest at all."},
		{Kind: BlockHeading, StartChar: 82, EndChar: 100, Text: "Fenchel duality"},
		{Kind: BlockParagraph, StartChar: 102, EndChar: 200, Text: "The Fenchel conjugate underlies these losses in structured prediction."},
	}
	chunks, ok := ScoreBlocks(blocks, "Fenchel losses", Options{TopK: 5, MaxChunkChars: 500})
	if !ok || len(chunks) == 0 {
		t.Fatalf("expected block match")
	}
	top := chunks[0]
	if !strings.Contains(top.Text, "Fenchel duality") {
		t.Fatalf("heading context not included: %q", top.Text)
	}
	// Matching heading adds the bonus on top of the two token hits.
	if top.Score < 3 {
		t.Fatalf("heading bonus missing: score=%d", top.Score)
	}
	if top.StartChar != 82 {
		t.Fatalf("group should start at the heading offset, got %d", top.StartChar)
	}
}

func TestDefaultSelection_TinyText(t *testing.T) {
	chunks := DefaultSelection("tiny", Options{})
	if len(chunks) != 1 || chunks[0].Text != "tiny" {
		t.Fatalf("tiny text should still yield one chunk: %+v", chunks)
	}
}
