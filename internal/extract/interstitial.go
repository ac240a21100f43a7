package extract

import (
	"regexp"
	"strings"
)

var metaRefreshRe = regexp.MustCompile(`(?i)<meta[^>]+http-equiv\s*=\s*["']?refresh["']?`)

var challengeTokens = []string{
	"cf-challenge", "captcha", "_cf_chl_opt", "challenge-platform",
	"just a moment", "attention required", "enable javascript and cookies",
	"ddos protection by", "please verify you are a human",
}

var throttleTokens = []string{
	"rate limit exceeded", "too many requests", "temporarily blocked",
	"unusual traffic from your", "retry your request", "access denied",
}

// DetectInterstitial inspects raw HTML plus extracted text for challenge
// walls, client-side redirects and soft throttling pages that hide behind a
// 200 status. Returned codes feed the per-URL warning list.
func DetectInterstitial(body []byte, text string, status int) []string {
	var codes []string
	lowerBody := strings.ToLower(string(body))
	lowerText := strings.ToLower(text)

	for _, tok := range challengeTokens {
		if strings.Contains(lowerBody, tok) || strings.Contains(lowerText, tok) {
			codes = append(codes, "blocked_by_js_challenge")
			break
		}
	}
	if metaRefreshRe.Match(body) {
		codes = append(codes, "client_side_redirect")
	}
	if status < 400 {
		for _, tok := range throttleTokens {
			if strings.Contains(lowerText, tok) {
				codes = append(codes, "silently_throttled")
				break
			}
		}
	}
	return codes
}

// FilterLowSignalChunkText reports whether a chunk's text is app-shell or
// bundle gunk that should not be served as evidence.
func FilterLowSignalChunkText(text string) bool {
	for _, tok := range bundleTokens {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}
