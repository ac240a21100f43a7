package extract

import (
	"regexp"
	"strings"
)

// QualitySignals are the structural heuristics the scheduler consults when
// deciding whether a fallback fetch is worth attempting.
type QualitySignals struct {
	BundleGunk   bool     `json:"bundle_gunk"`
	HasLowSignal bool     `json:"has_low_signal"`
	Issues       []string `json:"issues,omitempty"`
}

var bundleTokens = []string{
	"webpack", "__NEXT_DATA__", "window.__", "sourceMappingURL",
	"chunk-", ".bundle.js", "self.__wb_", "hydrateRoot", "createElement(",
}

var navLine = regexp.MustCompile(`^(Home|About|Contact|Menu|Search|Login|Sign in|Sign up|Blog|Docs|Pricing)\b`)

// AssessQuality inspects extracted text for JS-bundle gunk and
// nav-dominated output.
func AssessQuality(text string) QualitySignals {
	var q QualitySignals
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return q
	}
	for _, tok := range bundleTokens {
		if strings.Contains(text, tok) {
			q.BundleGunk = true
			q.Issues = append(q.Issues, "gunk")
			break
		}
	}
	lines := strings.Split(trimmed, "\n")
	short, nav, total := 0, 0, 0
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if l == "" {
			continue
		}
		total++
		if len(l) < 25 {
			short++
		}
		if navLine.MatchString(l) {
			nav++
		}
	}
	if total > 0 {
		shortRatio := float64(short) / float64(total)
		navRatio := float64(nav) / float64(total)
		if (total >= 5 && shortRatio > 0.8) || navRatio > 0.4 {
			q.HasLowSignal = true
			q.Issues = append(q.Issues, "nav_dominant")
		}
	}
	if q.BundleGunk && len(trimmed) < 2000 {
		q.HasLowSignal = true
	}
	return q
}
