package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hyperifyio/webpipe/internal/textprep"
)

// extractHTML computes three candidate texts — full page, main-element
// scored, and readability-like — and keeps the best by quality score. A
// main-like candidate must beat the full page by a minimum gap, otherwise
// trimming nav chrome is not worth losing body text.
func extractHTML(body []byte) Extracted {
	stripped := stripRawBlocks(body)

	full := htmlToText(stripped)
	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(stripped))

	var mainText, readableText string
	if docErr == nil {
		mainText = mainElementText(doc)
		readableText = readabilityText(doc)
	}

	fullScore := qualityScore(full)
	type candidate struct {
		engine string
		text   string
		score  int
	}
	best := candidate{engine: EngineHTML2Text, text: full, score: fullScore}
	// Prefer a trimmed candidate only when it clearly wins.
	const minGap = 40
	if s := qualityScore(mainText); mainText != "" && s > best.score+minGap {
		best = candidate{engine: EngineHTMLMain, text: mainText, score: s}
	}
	if s := qualityScore(readableText); readableText != "" && s > best.score+minGap {
		best = candidate{engine: EngineReadability, text: readableText, score: s}
	}

	var warnings []string
	if best.engine != EngineHTML2Text {
		warnings = append(warnings, "boilerplate_reduced")
	}
	if strings.TrimSpace(best.text) == "" {
		if hint := hintText(doc, docErr == nil); strings.TrimSpace(hint) != "" {
			return Extracted{Engine: EngineHTMLHint, Text: hint, Warnings: append(warnings, "hint_text_fallback")}
		}
	}
	return Extracted{Engine: best.engine, Text: textprep.CollapseWhitespace(best.text), Warnings: warnings}
}

var rawBlockRe = regexp.MustCompile(`(?is)<(script|style|noscript)[\s>].*?</\s*(script|style|noscript)\s*>|<(script|style|noscript)>.*?</\s*(script|style|noscript)\s*>`)

// stripRawBlocks removes script/style/noscript blocks before parsing; on
// pathological inputs the parser then has far less to chew on.
func stripRawBlocks(body []byte) []byte {
	return rawBlockRe.ReplaceAll(body, nil)
}

// htmlToText walks the whole document, preserving headings, paragraphs,
// list items and pre blocks while skipping obvious boilerplate containers.
func htmlToText(input []byte) string {
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil || node == nil {
		return ""
	}
	content := findFirst(node, "body")
	if content == nil {
		content = node
	}
	var b strings.Builder
	collectText(&b, content, false)
	return textprep.CollapseWhitespace(b.String())
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if res := findFirst(c, tag); res != nil {
			return res
		}
	}
	return nil
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
	if n.Type == html.ElementNode {
		name := strings.ToLower(n.Data)
		switch name {
		case "script", "style", "noscript", "iframe", "svg", "template":
			return
		case "pre", "code":
			inPre = true
		case "br", "hr":
			b.WriteString("\n")
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "tr", "div", "section", "article":
			b.WriteString("\n")
		}
	}
	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
			data = strings.ReplaceAll(data, "\n", " ")
		}
		b.WriteString(data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre)
	}
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "pre":
			b.WriteString("\n\n")
		case "li", "tr":
			b.WriteString("\n")
		}
	}
}

// mainElementText extracts from the best content root among main/article and
// role=main, scored by text mass.
func mainElementText(doc *goquery.Document) string {
	var best *goquery.Selection
	bestLen := 0
	doc.Find("main, article, [role=main], #content, .content, #main").Each(func(_ int, sel *goquery.Selection) {
		l := len(strings.TrimSpace(sel.Text()))
		if l > bestLen {
			best = sel
			bestLen = l
		}
	})
	if best == nil {
		return ""
	}
	return selectionToText(best)
}

// readabilityText scores block elements by paragraph density and keeps the
// densest container, a light version of the readability algorithm.
func readabilityText(doc *goquery.Document) string {
	var best *goquery.Selection
	bestScore := 0
	doc.Find("div, section, article, td").Each(func(_ int, sel *goquery.Selection) {
		score := 0
		sel.ChildrenFiltered("p").Each(func(_ int, p *goquery.Selection) {
			t := strings.TrimSpace(p.Text())
			score += len(t)
			score += strings.Count(t, ",") * 10
		})
		if score > bestScore {
			best = sel
			bestScore = score
		}
	})
	if best == nil || bestScore < 200 {
		return ""
	}
	return selectionToText(best)
}

func selectionToText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Find("h1, h2, h3, h4, h5, h6, p, li, pre, td").Each(func(_ int, el *goquery.Selection) {
		t := strings.TrimSpace(el.Text())
		if t == "" {
			return
		}
		b.WriteString(t)
		b.WriteString("\n\n")
	})
	out := textprep.CollapseWhitespace(b.String())
	if out == "" {
		out = textprep.CollapseWhitespace(sel.Text())
	}
	return out
}

var boilerplateTokens = []string{
	"cookie", "subscribe", "newsletter", "sign in", "log in", "accept all",
	"privacy policy", "terms of service", "all rights reserved",
}

var urlMention = regexp.MustCompile(`https?://\S+`)

// qualityScore rewards non-link prose and penalizes URL mentions, short nav
// lines and boilerplate tokens.
func qualityScore(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	score := 0
	urlChars := 0
	for _, m := range urlMention.FindAllString(text, -1) {
		urlChars += len(m)
	}
	lower := strings.ToLower(text)
	for _, tok := range boilerplateTokens {
		score -= strings.Count(lower, tok) * 20
	}
	shortLines := 0
	total := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		total += len(trimmed)
		if len(trimmed) < 20 {
			shortLines++
		}
	}
	score += total - urlChars - shortLines*10
	return score
}

// hintText builds the tiny fallback text from title, meta descriptions and
// the first headings when every candidate came out empty.
func hintText(doc *goquery.Document, ok bool) string {
	if !ok || doc == nil {
		return ""
	}
	var parts []string
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		parts = append(parts, t)
	}
	doc.Find(`meta[name=description], meta[property="og:description"]`).Each(func(_ int, sel *goquery.Selection) {
		if c, okAttr := sel.Attr("content"); okAttr {
			if c = strings.TrimSpace(c); c != "" {
				parts = append(parts, c)
			}
		}
	})
	count := 0
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			parts = append(parts, t)
			count++
		}
		return count < 5
	})
	return textprep.CollapseWhitespace(strings.Join(parts, "\n\n"))
}
