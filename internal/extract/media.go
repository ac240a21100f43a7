package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/hyperifyio/webpipe/internal/shellout"
	"github.com/hyperifyio/webpipe/internal/textprep"
)

// extractImage runs the optional OCR shellout; without it, images yield no
// text by design.
func extractImage(ctx context.Context, body []byte, opts Options) Extracted {
	if opts.OCREnable && opts.runner().Available("tesseract") {
		out, err := opts.runner().Run(ctx, shellout.Request{
			Binary: "tesseract",
			Args:   []string{"stdin", "stdout"},
			Stdin:  body,
		})
		if err == nil && len(strings.TrimSpace(string(out))) > 0 {
			return Extracted{Engine: EngineImageOCR, Text: string(out)}
		}
	}
	return Extracted{Engine: EngineImage, Warnings: []string{"image_no_text_extraction"}}
}

// extractVideo pulls the first subtitle stream via ffmpeg and normalizes the
// VTT payload into plain dialogue text.
func extractVideo(ctx context.Context, body []byte, opts Options) Extracted {
	if !opts.FFmpegOK || !opts.runner().Available("ffmpeg") {
		return Extracted{Engine: EngineUnknown, Warnings: []string{"unsupported_content_no_text"}}
	}
	out, err := opts.runner().Run(ctx, shellout.Request{
		Binary: "ffmpeg",
		Args:   []string{"-i", "pipe:0", "-map", "0:s:0?", "-f", "webvtt", "pipe:1"},
		Stdin:  body,
	})
	if err != nil || len(strings.TrimSpace(string(out))) == 0 {
		return Extracted{Engine: EngineUnknown, Warnings: []string{"unsupported_content_no_text"}}
	}
	return Extracted{Engine: EngineMediaSubtitles, Text: NormalizeVTT(string(out))}
}

var vttTimestamp = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?[.,]\d{3}\s+-->`)
var vttTag = regexp.MustCompile(`</?[^>]+>`)

// NormalizeVTT strips WEBVTT headers, cue timestamps, cue settings and
// inline tags, deduplicating the rolling repeats common in auto captions.
func NormalizeVTT(vtt string) string {
	var lines []string
	var last string
	for _, line := range strings.Split(vtt, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "", trimmed == "WEBVTT",
			strings.HasPrefix(trimmed, "NOTE"),
			strings.HasPrefix(trimmed, "STYLE"),
			strings.HasPrefix(trimmed, "Kind:"),
			strings.HasPrefix(trimmed, "Language:"),
			vttTimestamp.MatchString(trimmed),
			isCueIdentifier(trimmed):
			continue
		}
		trimmed = vttTag.ReplaceAllString(trimmed, "")
		if trimmed == "" || trimmed == last {
			continue
		}
		last = trimmed
		lines = append(lines, trimmed)
	}
	return textprep.CollapseWhitespace(strings.Join(lines, "\n"))
}

func isCueIdentifier(line string) bool {
	for _, r := range line {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(line) > 0
}
