package envelope

// warningHints is the single source of truth mapping warning code → one-line
// remediation. Every user-visible hint goes through this table.
var warningHints = map[string]string{
	"boilerplate_reduced":               "Boilerplate/navigation was reduced. If the remaining text is still noisy, try fetch_backend=\"firecrawl\" (if configured) or pass urls=[...] that point to a specific article/docs page.",
	"text_truncated_by_max_chars":       "Text was truncated by max_chars. Increase max_chars (bounded) or use top_chunks for a smaller, higher-signal evidence pack.",
	"body_truncated_by_max_bytes":       "The response body was truncated by max_bytes. Increase max_bytes, or enable retry_on_truncation=true (and optionally truncation_retry_max_bytes) to recover tail content.",
	"truncation_retry_used":             "The initial fetch was truncated by max_bytes, so we retried once with a larger max_bytes (bounded) to recover tail content.",
	"retried_due_to_truncation":         "The initial fetch was truncated by max_bytes, so we retried once with a larger max_bytes (bounded) to recover tail content.",
	"truncation_retry_failed":           "The initial fetch was truncated by max_bytes, and the bounded truncation retry failed. Consider increasing max_bytes or trying a different URL.",
	"cache_only":                        "This result was served from cache. To refresh, fetch with cache_read=false.",
	"no_network_may_require_warm_cache": "Cache-only mode: some URLs could not be served from cache. Pre-warm cache with web_fetch (cache_write=true), then retry.",
	"unknown_seed_id":                   "Some seed_ids were not recognized. Call web_seed_urls to see valid ids, or pass urls=[...] explicitly.",
	"empty_extraction":                  "The response had bytes but extracted text was empty. Consider switching fetch_backend (local vs firecrawl) or increasing max_bytes.",
	"image_no_text_extraction":          "This is an image and no OCR backend is enabled in this environment (WEBPIPE_OCR_ENABLE + tesseract).",
	"links_unavailable":                 "Link extraction is unavailable for this backend/content type (e.g. firecrawl or pdf).",
	"links_timeout":                     "Link extraction exceeded its bounded timeout and returned no links. Increase WEBPIPE_LINKS_TIMEOUT_MS or disable include_links.",
	"headers_unavailable":               "Headers are unavailable for this backend (e.g. render or firecrawl).",
	"text_unavailable_for_pdf":          "This looks like a PDF; use web_extract to extract text from PDFs (web_fetch is bytes/text-only).",
	"semantic_backend_not_configured":   "Semantic rerank requested but the embeddings backend is not configured. Set WEBPIPE_EMBEDDINGS_API_KEY or disable semantic_rerank.",
	"semantic_rerank_timeout":           "Semantic rerank exceeded its bounded timeout and was skipped. Increase WEBPIPE_SEMANTIC_TIMEOUT_MS or disable semantic_rerank/semantic_auto_fallback.",
	"semantic_auto_fallback_used":       "Semantic rerank ran automatically because lexical chunk scoring looked ineffective for this query. Set semantic_auto_fallback=false to avoid embeddings latency/cost.",
	"render_fallback_on_low_signal":     "Local extraction looked low-signal (likely JS/app-shell), so we retried this URL via headless render (bounded). If the page is highly dynamic, try increasing timeout_ms.",
	"render_fallback_on_empty_extraction": "Local extraction was empty, so we retried this URL via headless render (bounded). If this keeps happening, use fetch_backend=\"render\" directly for this workflow.",
	"render_fallback_disabled":          "Render fallback was requested but is disabled (WEBPIPE_RENDER_DISABLE=1). Unset it to enable render fallback, or disable render_fallback_* flags.",
	"render_fallback_failed":            "Render fallback failed for this URL. Try increasing timeout_ms, or use fetch_backend=\"render\" directly to debug. In anonymous mode, ensure WEBPIPE_ANON_PROXY points to an HTTP proxy (not socks5h://).",
	"render_fallback_not_supported":     "Render fallback is not supported in the current mode/config (e.g. privacy_mode=offline, or anonymous mode with a socks5h:// proxy).",
	"render_fallback_not_configured":    "Render fallback could not run (missing configuration). Ensure a Chrome/Chromium binary is available to the server.",
	"firecrawl_fallback_on_low_signal":  "Local extraction looked like low-signal app-shell/JS gunk, so we retried this URL via Firecrawl (bounded).",
	"deadline_exceeded_partial":         "Hard deadline hit; returned partial results. Increase deadline_ms (or reduce max_urls/timeout_ms) if you need more coverage.",
	"no_query_overlap_any_url":          "No extracted chunks matched the query tokens across the selected URLs. Try different URLs (or deeper links), increase max_chars, or enable render_fallback_on_low_signal for JS-heavy docs.",
	"no_query_overlap_doc":              "This document had no chunk-level overlap with the query, so default selection was used. Refine the query or pass urls=[...] that point at intended sources.",
	"no_query_overlap_docs_dropped":     "Most cached documents did not match the query and were dropped to keep output compact. Refine the query, increase max_docs/max_scan_entries, or warm cache with relevant URLs first.",
	"cache_search_timeout":              "Cache search+extract exceeded its bounded timeout and returned partial results. Increase WEBPIPE_CACHE_SEARCH_TIMEOUT_MS (or reduce max_scan_entries/max_docs).",
	"cache_io_timeout":                  "Cache filesystem IO exceeded its bounded timeout; cache was bypassed to keep the tool responsive. Check filesystem health or increase WEBPIPE_CACHE_IO_TIMEOUT_MS.",
	"extract_pipeline_timeout":          "Extraction exceeded its bounded pipeline timeout and returned a minimal empty result. Reduce max_bytes/max_chars, switch fetch_backend, or increase WEBPIPE_EXTRACT_PIPELINE_TIMEOUT_MS.",
	"extract_input_truncated":           "The fetched body was large; extraction only used the first WEBPIPE_EXTRACT_MAX_BYTES bytes. Lower max_bytes or raise WEBPIPE_EXTRACT_MAX_BYTES (server env).",
	"blocked_by_js_challenge":           "This looks like a JS/CAPTCHA/auth wall. Try fetch_backend=\"render\" or \"firecrawl\" (if configured), or choose a different URL.",
	"client_side_redirect":              "This page appears to be a client-side redirect/interstitial (meta refresh / JS). Use the redirect target URL directly so the tool can fetch the real content.",
	"silently_throttled":                "This looks like a throttling/interstitial page even though the HTTP status was OK. Try a different source URL, reduce request rate, or switch fetch_backend (render/firecrawl).",
	"http_rate_limited":                 "HTTP 429 (Too Many Requests): you are being rate-limited. Wait and retry, reduce request rate (e.g. set WEBPIPE_RATE_LIMIT), and prefer cache-first workflows once you have candidate URLs.",
	"http_status_error":                 "HTTP status was >= 400 (likely an error/challenge page). The result is shown for auditability, but its chunks are excluded from top_chunks.",
	"main_content_low_signal":           "Extraction appears dominated by navigation/boilerplate. Try fetch_backend=\"firecrawl\" (if configured) or increase max_chars.",
	"chunks_filtered_low_signal":        "Some extracted chunks looked like JS/app-shell gunk and were filtered. If you need raw output, use include_text=true or fetch_backend=\"firecrawl\".",
	"all_chunks_low_signal":             "All extracted chunks appear low-signal (likely app-shell/JS bundle/auth wall). Try fetch_backend=\"firecrawl\" (if configured) or pass urls=[...] that point to a specific article/docs page.",
	"structure_html_skipped_long_token": "HTML structure parsing was skipped because the page contained an extremely long unbroken token (often minified JS/base64 blobs). Structure was derived from extracted text instead.",
	"pdf_extract_failed":                "PDF text extraction failed. The PDF may be scanned/image-only or the environment may lack shellout tools. Install pdftotext/mutool or use an OCR backend for scanned PDFs.",
	"pdf_extract_panicked":              "The PDF parser crashed on malformed input. webpipe recovered, but the page has no usable extracted text. Try a different PDF URL or enable PDF shellout tools (pdftotext/mutool).",
	"pdf_shellout_unavailable":          "PDF shellout tools are unavailable here. Install `pdftotext` (poppler) or `mutool` (MuPDF) and set WEBPIPE_PDF_SHELLOUT=auto to enable higher-robustness PDF extraction.",
	"pdf_shellout_used":                 "The in-memory PDF extractor came up empty, so a shellout tool (pdftotext/mutool) produced this text.",
	"pdf_strings_fallback_used":         "PDF text extraction failed, so webpipe scanned raw PDF bytes for ASCII strings. Expect lower quality; install `pdftotext`/`mutool` for better results.",
	"unsupported_content_no_text":       "This content type has no text extraction path. Fetch the bytes with web_fetch if you need the raw payload.",
	"hint_text_fallback":                "Main extraction was empty; returned a minimal hint (title/meta/headings) instead. Try fetch_backend=\"render\" for JS-heavy pages.",
	"arxiv_abs_rewritten_to_pdf":        "This looks like an arXiv abstract page (/abs/...). We rewrote to fetch the corresponding PDF (/pdf/...pdf) for better full-text extraction.",
	"arxiv_pdf_fallback_to_html":        "PDF extraction for this paper was degraded, so webpipe fell back to the HTML rendition to extract higher-signal text evidence.",
	"openreview_pdf_fallback_to_forum":  "PDF extraction for this paper was degraded, so webpipe fell back to the forum page (/forum?id=...) for higher-signal metadata.",
	"openreview_pdf_fallback_to_api":    "PDF extraction for this paper was degraded, so webpipe fell back to the notes API for higher-signal metadata.",
	"github_repo_rewritten_to_raw_readme": "This looks like a repo root page (often low-signal). We rewrote to fetch the repo README from the raw host. For more than the README, use repo_ingest (bounded) or pass specific docs/code URLs.",
	"github_blob_rewritten_to_raw":      "This looks like a code-host file view URL (/blob/...). We rewrote to fetch the raw file.",
	"github_pr_rewritten_to_patch":      "This looks like a PR page (/pull/...). We rewrote to fetch the .patch artifact for higher-signal text.",
	"github_commit_rewritten_to_patch":  "This looks like a commit page (/commit/...). We rewrote to fetch the .patch artifact for higher-signal text.",
	"gist_rewritten_to_raw":             "This looks like a gist page. We rewrote to fetch the raw gist content for higher-signal text.",
	"github_issue_rewritten_to_api":     "This looks like an issue page. We rewrote to fetch issue JSON from the API for higher-signal text.",
	"github_release_rewritten_to_api":   "This looks like a release page. We rewrote to fetch release JSON from the API for higher-signal text.",
	"unsafe_request_headers_dropped":    "Some request headers were dropped by default for safety (Authorization/Cookie/Proxy-Authorization). Set WEBPIPE_ALLOW_UNSAFE_HEADERS=true to forward them (only for trusted endpoints).",
	"synthesis_not_configured":          "Synthesis requested but no chat backend is configured. Set WEBPIPE_LLM_API_KEY (or WEBPIPE_LLM_BASE_URL for a local endpoint) and WEBPIPE_LLM_MODEL.",
	"synthesis_failed":                  "The chat backend failed or timed out while summarizing evidence; the raw top_chunks are still present.",
	"tavily_used":                       "Tavily search may consume paid credits/quota. On a tight budget prefer provider=\"brave\" or provider=\"auto\" with small max_results.",
	"perplexity_search_mode_off_rejected": "Tried to disable provider-side browsing (search_mode=\"off\"), but the provider rejected it; we retried without search_mode.",
}

// WarningHint returns the remediation line for code, or "".
func WarningHint(code string) string {
	return warningHints[code]
}

// KnownWarningCodes lists the closed warning vocabulary.
func KnownWarningCodes() []string {
	out := make([]string, 0, len(warningHints))
	for k := range warningHints {
		out = append(out, k)
	}
	return out
}
