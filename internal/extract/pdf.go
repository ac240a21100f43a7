package extract

import (
	"bytes"
	"context"
	"strings"

	"github.com/dslipak/pdf"

	"github.com/hyperifyio/webpipe/internal/shellout"
)

// extractPDF runs the in-memory PDF extractor first, then walks the
// configured shellout ladder, then the low-fidelity strings fallback. Every
// degradation is reported as a warning, never an error: callers always get
// an Extracted back.
func extractPDF(ctx context.Context, body []byte, opts Options) Extracted {
	text, panicked := pdfPlainText(body)
	if strings.TrimSpace(text) != "" {
		return Extracted{Engine: EnginePDF, Text: text}
	}

	warnings := []string{"pdf_extract_failed"}
	if panicked {
		warnings = append(warnings, "pdf_extract_panicked")
	}

	engine, text, shellWarnings := pdfShellout(ctx, body, opts)
	warnings = append(warnings, shellWarnings...)
	if strings.TrimSpace(text) != "" {
		return Extracted{Engine: engine, Text: text, Warnings: warnings}
	}

	if text := pdfStringsFallback(body); strings.TrimSpace(text) != "" {
		warnings = append(warnings, "pdf_strings_fallback_used")
		return Extracted{Engine: EnginePDF, Text: text, Warnings: warnings}
	}

	return Extracted{Engine: EnginePDF, Warnings: warnings}
}

// pdfPlainText wraps the pure-Go parser with panic recovery: malformed PDFs
// routinely crash it and the pipeline must survive.
func pdfPlainText(body []byte) (text string, panicked bool) {
	defer func() {
		if recover() != nil {
			text = ""
			panicked = true
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", false
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", false
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", false
	}
	return buf.String(), false
}

func pdfShellout(ctx context.Context, body []byte, opts Options) (engine, text string, warnings []string) {
	mode := opts.PDFShellout
	if mode == "" {
		mode = "auto"
	}
	if mode == "off" {
		return "", "", nil
	}
	type tool struct {
		binary string
		args   []string
		engine string
	}
	var ladder []tool
	if mode == "auto" || mode == "pdftotext" {
		ladder = append(ladder, tool{"pdftotext", []string{"-layout", "-", "-"}, EnginePDFToText})
	}
	if mode == "auto" || mode == "mutool" {
		ladder = append(ladder, tool{"mutool", []string{"draw", "-F", "txt", "-"}, EnginePDFMutool})
	}
	runner := opts.runner()
	anyAvailable := false
	for _, t := range ladder {
		if !runner.Available(t.binary) {
			continue
		}
		anyAvailable = true
		out, err := runner.Run(ctx, shellout.Request{Binary: t.binary, Args: t.args, Stdin: body})
		if err == nil && len(bytes.TrimSpace(out)) > 0 {
			return t.engine, string(out), []string{"pdf_shellout_used"}
		}
	}
	if !anyAvailable {
		return "", "", []string{"pdf_shellout_unavailable"}
	}
	return "", "", nil
}

// pdfStringsFallback scans raw PDF bytes for printable ASCII runs. Low
// fidelity, but better than returning nothing for text-bearing PDFs when no
// tooling is available.
func pdfStringsFallback(body []byte) string {
	var b strings.Builder
	var run []byte
	flush := func() {
		if len(run) >= 6 {
			b.Write(run)
			b.WriteByte('\n')
		}
		run = run[:0]
	}
	for _, c := range body {
		if c >= 0x20 && c < 0x7f {
			run = append(run, c)
			continue
		}
		flush()
	}
	flush()
	out := b.String()
	// Pure structure noise (PDF operators) is not worth returning.
	if !strings.ContainsAny(out, "aeiou") || len(out) < 40 {
		return ""
	}
	return out
}
