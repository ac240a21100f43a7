// Package youtube resolves video URLs into transcript text by shelling out
// to yt-dlp for the English caption track and normalizing the VTT payload.
package youtube

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/webpipe/internal/extract"
	"github.com/hyperifyio/webpipe/internal/shellout"
)

// Extractor implements fetch.TranscriptFetcher over a yt-dlp shellout.
type Extractor struct {
	Runner         *shellout.Runner
	MaxStdoutBytes int
}

func (e *Extractor) runner() *shellout.Runner {
	if e.Runner != nil {
		return e.Runner
	}
	return &shellout.Runner{}
}

// Transcript downloads the English subtitle track (uploaded or auto-generated)
// and returns it as plain dialogue text; other languages are not requested.
func (e *Extractor) Transcript(ctx context.Context, rawURL string, timeout time.Duration) (string, error) {
	r := e.runner()
	if !r.Available("yt-dlp") {
		return "", fmt.Errorf("youtube: yt-dlp unavailable")
	}
	out, err := r.Run(ctx, shellout.Request{
		Binary: "yt-dlp",
		Args: []string{
			"--skip-download",
			"--write-auto-subs", "--write-subs",
			"--sub-langs", "en.*,en",
			"--sub-format", "vtt",
			"-o", "-",
			"--quiet",
			rawURL,
		},
		Timeout:        timeout,
		MaxStdoutBytes: e.MaxStdoutBytes,
	})
	if err != nil {
		return "", fmt.Errorf("youtube transcript: %w", err)
	}
	text := extract.NormalizeVTT(string(out))
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("youtube: empty transcript")
	}
	return text, nil
}
