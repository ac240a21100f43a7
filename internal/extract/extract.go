// Package extract converts fetched bytes into best-effort readable text and,
// on request, a structural view. Dispatch is driven by sniffed content kind
// with the declared Content-Type as a hint; every path emits a stable engine
// tag and recoverable conditions surface as warning codes, never errors.
package extract

import (
	"context"
	"strings"

	"github.com/hyperifyio/webpipe/internal/shellout"
	"github.com/hyperifyio/webpipe/internal/sniff"
	"github.com/hyperifyio/webpipe/internal/textprep"
)

// Engine tags identify which extractor produced a text.
const (
	EnginePDF            = "pdf-extract"
	EnginePDFToText      = "pdf-pdftotext"
	EnginePDFMutool      = "pdf-mutool"
	EngineHTML2Text      = "html2text"
	EngineHTMLMain       = "html_main"
	EngineReadability    = "readability"
	EngineHTMLHint       = "html_hint"
	EngineMarkdown       = "markdown"
	EngineJSON           = "json"
	EngineXML            = "xml"
	EngineText           = "text"
	EngineImage          = "image"
	EngineImageOCR       = "image_ocr"
	EngineMediaSubtitles = "media_subtitles"
	EngineYoutube        = "youtube_transcript"
	EnginePandoc         = "pandoc"
	EngineUnknown        = "unknown"
)

// YoutubeTranscriptContentType marks bodies produced by the transcript
// delegation path; they pass straight through extraction.
const YoutubeTranscriptContentType = "text/x-youtube-transcript"

// Extracted is the output of one extraction run.
type Extracted struct {
	Engine   string
	Text     string
	Warnings []string
}

// Options configures optional extractors and input bounds.
type Options struct {
	// MaxInputBytes caps how much of the body extraction will look at; zero
	// means 4 MiB.
	MaxInputBytes int
	// PDFShellout selects the shellout ladder: "auto", "pdftotext",
	// "mutool" or "off".
	PDFShellout string
	OCREnable   bool
	PandocOK    bool
	FFmpegOK    bool
	Runner      *shellout.Runner
}

const defaultMaxInputBytes = 4 << 20

func (o Options) maxInput() int {
	if o.MaxInputBytes > 0 {
		return o.MaxInputBytes
	}
	return defaultMaxInputBytes
}

func (o Options) runner() *shellout.Runner {
	if o.Runner != nil {
		return o.Runner
	}
	return &shellout.Runner{}
}

var docSuffixes = []string{".docx", ".doc", ".epub", ".rtf", ".odt"}
var docMIMEs = []string{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/msword",
	"application/epub+zip",
	"application/rtf",
	"application/vnd.oasis.opendocument.text",
}

// Extract dispatches on the sniffed kind of body and returns cleaned text.
func Extract(ctx context.Context, body []byte, contentType, finalURL string, opts Options) Extracted {
	var warnings []string
	if len(body) > opts.maxInput() {
		body = textprep.TruncateBytesSafe(body, opts.maxInput())
		warnings = append(warnings, "extract_input_truncated")
	}

	kind := sniff.Detect(body, contentType, finalURL)

	// PDF magic bytes win over everything, including doc-suffixed URLs that
	// actually serve a PDF.
	if kind == sniff.KindPDF {
		return finish(extractPDF(ctx, body, opts), warnings)
	}
	if strings.HasPrefix(strings.ToLower(contentType), YoutubeTranscriptContentType) {
		return finish(Extracted{Engine: EngineYoutube, Text: string(body)}, warnings)
	}
	if isDocCandidate(contentType, finalURL) {
		return finish(extractPandoc(ctx, body, finalURL, opts), warnings)
	}

	switch kind {
	case sniff.KindImage:
		return finish(extractImage(ctx, body, opts), warnings)
	case sniff.KindVideo:
		return finish(extractVideo(ctx, body, opts), warnings)
	case sniff.KindJSON:
		return finish(extractJSON(body), warnings)
	case sniff.KindXML:
		return finish(Extracted{Engine: EngineXML, Text: string(body)}, warnings)
	case sniff.KindMarkdown:
		return finish(Extracted{Engine: EngineMarkdown, Text: string(body)}, warnings)
	case sniff.KindText:
		return finish(Extracted{Engine: EngineText, Text: string(body)}, warnings)
	case sniff.KindHTML:
		return finish(extractHTML(body), warnings)
	}

	return finish(Extracted{
		Engine:   EngineUnknown,
		Warnings: []string{"unsupported_content_no_text"},
	}, warnings)
}

func isDocCandidate(contentType, finalURL string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "html") {
		return false
	}
	for _, m := range docMIMEs {
		if strings.HasPrefix(ct, m) {
			return true
		}
	}
	lower := strings.ToLower(finalURL)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, suf := range docSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}

// finish applies the shared cleaner and merges warnings accumulated before
// dispatch.
func finish(e Extracted, pre []string) Extracted {
	e.Text = textprep.CleanText(e.Text)
	if len(pre) > 0 {
		e.Warnings = append(pre, e.Warnings...)
	}
	return e
}

func extractPandoc(ctx context.Context, body []byte, finalURL string, opts Options) Extracted {
	if !opts.PandocOK || !opts.runner().Available("pandoc") {
		return Extracted{Engine: EngineUnknown, Warnings: []string{"unsupported_content_no_text"}}
	}
	out, err := opts.runner().Run(ctx, shellout.Request{
		Binary: "pandoc",
		Args:   []string{"-f", pandocFormat(finalURL), "-t", "plain", "-"},
		Stdin:  body,
	})
	if err != nil || len(strings.TrimSpace(string(out))) == 0 {
		return Extracted{Engine: EngineUnknown, Warnings: []string{"unsupported_content_no_text"}}
	}
	return Extracted{Engine: EnginePandoc, Text: string(out)}
}

func pandocFormat(finalURL string) string {
	lower := strings.ToLower(finalURL)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".epub"):
		return "epub"
	case strings.HasSuffix(lower, ".rtf"):
		return "rtf"
	case strings.HasSuffix(lower, ".odt"):
		return "odt"
	default:
		return "docx"
	}
}
