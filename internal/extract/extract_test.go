package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/hyperifyio/webpipe/internal/shellout"
)

// noTools simulates an environment without any shellout binaries.
var noTools = &shellout.Runner{Lookup: func(string) (string, error) {
	return "", shellout.ErrUnavailable
}}

func TestExtract_HTMLBody(t *testing.T) {
	html := `<html><head><title>T</title><script>var x=1;</script></head>
	<body><h1>Heading</h1><p>First paragraph with enough words to matter for extraction.</p>
	<p>Second paragraph, also with real sentence content inside it.</p></body></html>`
	got := Extract(context.Background(), []byte(html), "text/html", "https://x/page", Options{Runner: noTools})
	if !strings.HasPrefix(got.Engine, "html") {
		t.Fatalf("engine=%q", got.Engine)
	}
	if !strings.Contains(got.Text, "First paragraph") || !strings.Contains(got.Text, "Second paragraph") {
		t.Fatalf("text missing paragraphs: %q", got.Text)
	}
	if strings.Contains(got.Text, "var x=1") {
		t.Fatalf("script leaked into text")
	}
}

func TestExtract_HTMLHintFallback(t *testing.T) {
	html := `<html><head><title>Only A Title</title><meta name="description" content="Described here."></head><body></body></html>`
	got := Extract(context.Background(), []byte(html), "text/html", "https://x", Options{Runner: noTools})
	if got.Engine != EngineHTMLHint {
		t.Fatalf("engine=%q warnings=%v", got.Engine, got.Warnings)
	}
	if !strings.Contains(got.Text, "Only A Title") || !strings.Contains(got.Text, "Described here.") {
		t.Fatalf("hint text %q", got.Text)
	}
	if !hasWarning(got.Warnings, "hint_text_fallback") {
		t.Fatalf("missing hint_text_fallback: %v", got.Warnings)
	}
}

func TestExtract_JSONPrettyPrinted(t *testing.T) {
	got := Extract(context.Background(), []byte(`{"b":1,"a":{"c":2}}`), "application/json", "", Options{Runner: noTools})
	if got.Engine != EngineJSON {
		t.Fatalf("engine=%q", got.Engine)
	}
	if !strings.Contains(got.Text, "\n") {
		t.Fatalf("json was not pretty-printed: %q", got.Text)
	}
}

func TestExtract_YoutubeTranscriptPassThrough(t *testing.T) {
	got := Extract(context.Background(), []byte("line one\nline two"), YoutubeTranscriptContentType, "", Options{Runner: noTools})
	if got.Engine != EngineYoutube || got.Text != "line one\nline two" {
		t.Fatalf("%+v", got)
	}
}

func TestExtract_ImageWithoutOCR(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G'}, make([]byte, 16)...)
	got := Extract(context.Background(), png, "image/png", "", Options{Runner: noTools})
	if got.Engine != EngineImage || got.Text != "" {
		t.Fatalf("%+v", got)
	}
	if !hasWarning(got.Warnings, "image_no_text_extraction") {
		t.Fatalf("warnings=%v", got.Warnings)
	}
}

func TestExtract_FakePDFDegrades(t *testing.T) {
	got := Extract(context.Background(), []byte("%PDF-1.1\nnot a real pdf"), "application/pdf", "", Options{Runner: noTools, PDFShellout: "auto"})
	if got.Engine != EnginePDF {
		t.Fatalf("engine=%q", got.Engine)
	}
	if strings.TrimSpace(got.Text) != "" {
		t.Fatalf("expected empty text for fake pdf, got %q", got.Text)
	}
	if !hasWarning(got.Warnings, "pdf_extract_failed") {
		t.Fatalf("warnings=%v", got.Warnings)
	}
	if !hasWarning(got.Warnings, "pdf_shellout_unavailable") {
		t.Fatalf("warnings=%v", got.Warnings)
	}
}

func TestExtract_PDFMagicBeatsDocSuffix(t *testing.T) {
	// A body that is actually a PDF must hit the PDF ladder even when the
	// URL or declared type claims a pandoc-able document.
	got := Extract(context.Background(), []byte("%PDF-1.4\nstream"), "application/msword", "https://x/paper.doc", Options{Runner: noTools, PandocOK: true})
	if got.Engine != EnginePDF {
		t.Fatalf("engine=%q, want the pdf ladder", got.Engine)
	}
	if !hasWarning(got.Warnings, "pdf_extract_failed") {
		t.Fatalf("warnings=%v", got.Warnings)
	}
}

func TestExtract_UnknownBinary(t *testing.T) {
	got := Extract(context.Background(), []byte{0x00, 0x01, 0x02}, "application/octet-stream", "", Options{Runner: noTools})
	if got.Engine != EngineUnknown || got.Text != "" {
		t.Fatalf("%+v", got)
	}
	if !hasWarning(got.Warnings, "unsupported_content_no_text") {
		t.Fatalf("warnings=%v", got.Warnings)
	}
}

func TestExtract_InputCapWarns(t *testing.T) {
	big := strings.Repeat("<p>words and more words in this block</p>", 4000)
	got := Extract(context.Background(), []byte("<html><body>"+big+"</body></html>"), "text/html", "", Options{Runner: noTools, MaxInputBytes: 10_000})
	if !hasWarning(got.Warnings, "extract_input_truncated") {
		t.Fatalf("warnings=%v", got.Warnings)
	}
}

func TestExtract_TextIsClean(t *testing.T) {
	got := Extract(context.Background(), []byte("a\r\nb\x00c"), "text/plain", "", Options{Runner: noTools})
	if strings.Contains(got.Text, "\r") || strings.ContainsRune(got.Text, 0x00) {
		t.Fatalf("cleaner not applied: %q", got.Text)
	}
}

func hasWarning(warnings []string, code string) bool {
	for _, w := range warnings {
		if w == code {
			return true
		}
	}
	return false
}
