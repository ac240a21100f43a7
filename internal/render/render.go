// Package render drives a headless Chrome via chromedp and returns the
// post-JavaScript DOM as synthesized HTML. It is the opaque render backend
// the fetcher delegates to for JS-heavy pages.
package render

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webpipe/internal/fetch"
)

// Chromedp implements fetch.RenderBackend with a fresh browser context per
// render. A per-call allocator keeps crashes isolated at the cost of startup
// latency; render is a fallback path, not the hot path.
type Chromedp struct {
	// Proxy, when set, is passed to the browser (anonymous mode).
	Proxy string
	// Headful disables headless mode for local debugging.
	Headful bool
}

// Render navigates to rawURL, waits for the body, and captures the outer
// HTML together with the console error count.
func (c *Chromedp) Render(ctx context.Context, rawURL string, timeout time.Duration) (fetch.RenderResult, error) {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !c.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if c.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(c.Proxy))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, timeout)
	defer cancelTimeout()

	start := time.Now()
	var html, finalURL string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		log.Warn().Err(err).Str("url", rawURL).Msg("render failed")
		return fetch.RenderResult{}, err
	}
	return fetch.RenderResult{
		FinalURL:  finalURL,
		Status:    200,
		HTML:      html,
		ElapsedMS: time.Since(start).Milliseconds(),
		Mode:      "chromedp",
	}, nil
}
