// Package sniff classifies fetched byte blobs into a small set of content
// kinds using magic bytes and prefix heuristics, with the Content-Type header
// as a tie-breaker.
package sniff

import (
	"bytes"
	"encoding/json"
	"mime"
	"strings"
	"unicode/utf8"
)

// Kind is the detected content class of a response body.
type Kind string

const (
	KindPDF      Kind = "pdf"
	KindHTML     Kind = "html"
	KindImage    Kind = "image"
	KindJSON     Kind = "json"
	KindXML      Kind = "xml"
	KindMarkdown Kind = "markdown"
	KindText     Kind = "text"
	KindVideo    Kind = "video"
	KindOther    Kind = "other"
)

var imageMagics = [][]byte{
	{0x89, 'P', 'N', 'G'},
	{0xff, 0xd8, 0xff},
	[]byte("GIF87a"),
	[]byte("GIF89a"),
	[]byte("BM"),
}

var videoSuffixes = []string{".mp4", ".mkv", ".webm", ".mov", ".avi", ".m4v"}

// Detect classifies body, preferring magic bytes over the declared
// contentType, and falling back to URL suffix hints for media.
func Detect(body []byte, contentType, finalURL string) Kind {
	mt := mediaType(contentType)

	if bytes.HasPrefix(body, []byte("%PDF-")) || mt == "application/pdf" {
		return KindPDF
	}
	for _, m := range imageMagics {
		if bytes.HasPrefix(body, m) {
			return KindImage
		}
	}
	if len(body) >= 12 && bytes.Equal(body[0:4], []byte("RIFF")) && bytes.Equal(body[8:12], []byte("WEBP")) {
		return KindImage
	}
	if strings.HasPrefix(mt, "image/") {
		return KindImage
	}
	if strings.HasPrefix(mt, "video/") || hasSuffixAny(finalURL, videoSuffixes) {
		return KindVideo
	}

	head := body
	if len(head) > 2048 {
		head = head[:2048]
	}
	lower := strings.ToLower(string(bytes.TrimLeft(head, " \t\r\n\ufeff")))

	switch {
	case strings.HasPrefix(lower, "<!doctype html"),
		strings.HasPrefix(lower, "<html"),
		mt == "text/html", mt == "application/xhtml+xml":
		return KindHTML
	}
	if looksJSON(body, mt) {
		return KindJSON
	}
	if strings.HasPrefix(lower, "<?xml") || mt == "text/xml" || mt == "application/xml" || strings.HasSuffix(mt, "+xml") {
		return KindXML
	}
	if mt == "text/markdown" || hasSuffixAny(finalURL, []string{".md", ".markdown"}) || looksMarkdown(lower) {
		return KindMarkdown
	}
	// Any body containing HTML-ish tags deeper in, declared as text.
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<body") {
		return KindHTML
	}
	if strings.HasPrefix(mt, "text/") {
		return KindText
	}
	if mt == "" && utf8.Valid(body) && len(bytes.TrimSpace(body)) > 0 {
		return KindText
	}
	return KindOther
}

func mediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return strings.ToLower(mt)
}

func looksJSON(body []byte, mt string) bool {
	if mt == "application/json" || strings.HasSuffix(mt, "+json") {
		return true
	}
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	return json.Valid(body)
}

func looksMarkdown(lower string) bool {
	return strings.HasPrefix(lower, "# ") || strings.HasPrefix(lower, "## ") ||
		strings.Contains(lower, "\n# ") || strings.Contains(lower, "\n## ")
}

func hasSuffixAny(s string, suffixes []string) bool {
	s = strings.ToLower(s)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
