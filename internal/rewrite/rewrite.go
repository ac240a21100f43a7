// Package rewrite contains the deterministic low-signal→high-signal URL
// rewrites. Every rule is a pure function of the input URL and the
// configured host lists; no IO happens here. The scheduler decides whether
// and when a candidate is actually fetched.
package rewrite

import (
	"fmt"
	"net/url"
	"strings"
)

// Rules carries the configurable host/branch lists consumed by the rewrite
// functions. Zero values fall back to public defaults.
type Rules struct {
	GithubHosts     []string
	GithubRawHost   string
	GithubBranches  []string
	GithubAPIBase   string
	GistHosts       []string
	GistRawHost     string
	ArxivHosts      []string
	ArxivHTMLBase   string
	OpenreviewHosts []string
	OpenreviewAPI   string
}

// Defaults returns the public-host rule set.
func Defaults() Rules {
	return Rules{
		GithubHosts:    []string{"github.com"},
		GithubRawHost:  "raw.githubusercontent.com",
		GithubBranches: []string{"main", "master"},
		GithubAPIBase:  "https://api.github.com",
		GistHosts:      []string{"gist.github.com"},
		GistRawHost:    "gist.githubusercontent.com",
		ArxivHosts:     []string{"arxiv.org"},
		ArxivHTMLBase:  "https://ar5iv.labs.arxiv.org/html/",
		OpenreviewHosts: []string{
			"openreview.net",
		},
		OpenreviewAPI: "https://api.openreview.net",
	}
}

var readmeNames = []string{"README.md", "README.rst", "README.txt", "README"}

// hostMatches is case-insensitive and accepts subdomains of pat.
func hostMatches(host, pat string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	pat = strings.ToLower(strings.TrimSpace(pat))
	if host == "" || pat == "" {
		return false
	}
	return host == pat || strings.HasSuffix(host, "."+pat)
}

func matchesAny(host string, pats []string) bool {
	for _, p := range pats {
		if hostMatches(host, p) {
			return true
		}
	}
	return false
}

func parse(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, true
}

// hostWithPort preserves an explicit port so fixture servers keep working.
func hostWithPort(u *url.URL) string {
	return u.Host
}

func pathSegments(u *url.URL) []string {
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// GithubBlobRaw rewrites a code-host file view (/owner/repo/blob/ref/path)
// to the raw-host file URL.
func (r Rules) GithubBlobRaw(raw string) ([]string, bool) {
	u, ok := parse(raw)
	if !ok || !matchesAny(u.Hostname(), r.GithubHosts) {
		return nil, false
	}
	seg := pathSegments(u)
	if len(seg) < 5 || seg[2] != "blob" {
		return nil, false
	}
	rest := strings.Join(seg[3:], "/")
	return []string{fmt.Sprintf("%s://%s/%s/%s/%s", u.Scheme, r.rawHost(u), seg[0], seg[1], rest)}, true
}

func (r Rules) rawHost(u *url.URL) string {
	if r.GithubRawHost != "" {
		return r.GithubRawHost
	}
	return hostWithPort(u)
}

// GithubRepoReadme rewrites a repo root page (/owner/repo) to raw README
// candidates across the configured branches and README filenames.
func (r Rules) GithubRepoReadme(raw string) ([]string, bool) {
	u, ok := parse(raw)
	if !ok || !matchesAny(u.Hostname(), r.GithubHosts) {
		return nil, false
	}
	seg := pathSegments(u)
	if len(seg) != 2 {
		return nil, false
	}
	branches := r.GithubBranches
	if len(branches) == 0 {
		branches = []string{"main", "master"}
	}
	var out []string
	for _, branch := range branches {
		for _, name := range readmeNames {
			out = append(out, fmt.Sprintf("%s://%s/%s/%s/%s/%s", u.Scheme, r.rawHost(u), seg[0], seg[1], branch, name))
		}
	}
	return out, true
}

// GithubPRPatch rewrites a PR page (/owner/repo/pull/N) to patch/diff
// artifacts.
func (r Rules) GithubPRPatch(raw string) ([]string, bool) {
	return r.patchCandidates(raw, "pull")
}

// GithubCommitPatch rewrites a commit page (/owner/repo/commit/sha) to
// patch/diff artifacts.
func (r Rules) GithubCommitPatch(raw string) ([]string, bool) {
	return r.patchCandidates(raw, "commit")
}

func (r Rules) patchCandidates(raw, kind string) ([]string, bool) {
	u, ok := parse(raw)
	if !ok || !matchesAny(u.Hostname(), r.GithubHosts) {
		return nil, false
	}
	seg := pathSegments(u)
	if len(seg) != 4 || seg[2] != kind {
		return nil, false
	}
	base := fmt.Sprintf("%s://%s/%s/%s/%s/%s", u.Scheme, hostWithPort(u), seg[0], seg[1], kind, seg[3])
	return []string{base + ".patch", base + ".diff"}, true
}

// GithubIssueAPI rewrites an issue page (/owner/repo/issues/N) to the API
// JSON endpoint.
func (r Rules) GithubIssueAPI(raw string) ([]string, bool) {
	u, ok := parse(raw)
	if !ok || !matchesAny(u.Hostname(), r.GithubHosts) {
		return nil, false
	}
	seg := pathSegments(u)
	if len(seg) != 4 || seg[2] != "issues" {
		return nil, false
	}
	api := strings.TrimRight(r.apiBase(), "/")
	return []string{fmt.Sprintf("%s/repos/%s/%s/issues/%s", api, seg[0], seg[1], seg[3])}, true
}

// GithubReleaseAPI rewrites a release page (/owner/repo/releases/tag/v) to
// the API JSON endpoint.
func (r Rules) GithubReleaseAPI(raw string) ([]string, bool) {
	u, ok := parse(raw)
	if !ok || !matchesAny(u.Hostname(), r.GithubHosts) {
		return nil, false
	}
	seg := pathSegments(u)
	if len(seg) != 5 || seg[2] != "releases" || seg[3] != "tag" {
		return nil, false
	}
	api := strings.TrimRight(r.apiBase(), "/")
	return []string{fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", api, seg[0], seg[1], seg[4])}, true
}

func (r Rules) apiBase() string {
	if r.GithubAPIBase != "" {
		return r.GithubAPIBase
	}
	return "https://api.github.com"
}

// GistRaw rewrites a gist page (/user/id) to the raw gist content.
func (r Rules) GistRaw(raw string) ([]string, bool) {
	u, ok := parse(raw)
	if !ok || !matchesAny(u.Hostname(), r.GistHosts) {
		return nil, false
	}
	seg := pathSegments(u)
	if len(seg) != 2 {
		return nil, false
	}
	host := r.GistRawHost
	if host == "" {
		host = hostWithPort(u)
	}
	return []string{fmt.Sprintf("%s://%s/%s/%s/raw", u.Scheme, host, seg[0], seg[1])}, true
}

// ArxivAbsPDF rewrites an abstract page (/abs/ID) to the PDF (/pdf/ID.pdf).
func (r Rules) ArxivAbsPDF(raw string) ([]string, bool) {
	u, ok := parse(raw)
	if !ok || !matchesAny(u.Hostname(), r.ArxivHosts) {
		return nil, false
	}
	seg := pathSegments(u)
	if len(seg) < 2 || seg[0] != "abs" {
		return nil, false
	}
	id := strings.Join(seg[1:], "/")
	return []string{fmt.Sprintf("%s://%s/pdf/%s.pdf", u.Scheme, hostWithPort(u), id)}, true
}

// ArxivPDFHTML rewrites a PDF URL (/pdf/ID.pdf) to the configured
// HTML-conversion base, used as a fallback when PDF extraction degrades.
func (r Rules) ArxivPDFHTML(raw string) ([]string, bool) {
	u, ok := parse(raw)
	if !ok || !matchesAny(u.Hostname(), r.ArxivHosts) {
		return nil, false
	}
	seg := pathSegments(u)
	if len(seg) < 2 || seg[0] != "pdf" {
		return nil, false
	}
	id := strings.TrimSuffix(strings.Join(seg[1:], "/"), ".pdf")
	base := r.ArxivHTMLBase
	if base == "" {
		base = "https://ar5iv.labs.arxiv.org/html/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return []string{base + id}, true
}

// OpenreviewPDFForum rewrites a review-site PDF (/pdf?id=X) to the forum
// HTML page.
func (r Rules) OpenreviewPDFForum(raw string) ([]string, bool) {
	u, ok := parse(raw)
	if !ok || !matchesAny(u.Hostname(), r.OpenreviewHosts) {
		return nil, false
	}
	if strings.Trim(u.Path, "/") != "pdf" {
		return nil, false
	}
	id := u.Query().Get("id")
	if id == "" {
		return nil, false
	}
	return []string{fmt.Sprintf("%s://%s/forum?id=%s", u.Scheme, hostWithPort(u), url.QueryEscape(id))}, true
}

// OpenreviewPDFAPI rewrites a review-site PDF (/pdf?id=X) to the notes API
// JSON endpoint.
func (r Rules) OpenreviewPDFAPI(raw string) ([]string, bool) {
	u, ok := parse(raw)
	if !ok || !matchesAny(u.Hostname(), r.OpenreviewHosts) {
		return nil, false
	}
	if strings.Trim(u.Path, "/") != "pdf" {
		return nil, false
	}
	id := u.Query().Get("id")
	if id == "" {
		return nil, false
	}
	api := strings.TrimRight(r.OpenreviewAPI, "/")
	if api == "" {
		api = "https://api.openreview.net"
	}
	return []string{fmt.Sprintf("%s/notes?forum=%s", api, url.QueryEscape(id))}, true
}

// Candidate pairs a rewritten URL list with the warning code the scheduler
// attaches when the candidate is actually used.
type Candidate struct {
	URLs    []string
	Warning string
}

// PrimaryRewrites returns rewrites applied before the first fetch of a URL
// (pure upgrades that are almost always better than the original page).
func (r Rules) PrimaryRewrites(raw string) (Candidate, bool) {
	if urls, ok := r.GithubBlobRaw(raw); ok {
		return Candidate{URLs: urls, Warning: "github_blob_rewritten_to_raw"}, true
	}
	if urls, ok := r.GithubPRPatch(raw); ok {
		return Candidate{URLs: urls, Warning: "github_pr_rewritten_to_patch"}, true
	}
	if urls, ok := r.GithubCommitPatch(raw); ok {
		return Candidate{URLs: urls, Warning: "github_commit_rewritten_to_patch"}, true
	}
	if urls, ok := r.GithubIssueAPI(raw); ok {
		return Candidate{URLs: urls, Warning: "github_issue_rewritten_to_api"}, true
	}
	if urls, ok := r.GithubReleaseAPI(raw); ok {
		return Candidate{URLs: urls, Warning: "github_release_rewritten_to_api"}, true
	}
	if urls, ok := r.GistRaw(raw); ok {
		return Candidate{URLs: urls, Warning: "gist_rewritten_to_raw"}, true
	}
	if urls, ok := r.ArxivAbsPDF(raw); ok {
		return Candidate{URLs: urls, Warning: "arxiv_abs_rewritten_to_pdf"}, true
	}
	return Candidate{}, false
}

// FallbackRewrites returns rewrites tried only after a low-signal or failed
// primary attempt (repo README, paper HTML, forum/API metadata).
func (r Rules) FallbackRewrites(raw string) []Candidate {
	var out []Candidate
	if urls, ok := r.GithubRepoReadme(raw); ok {
		out = append(out, Candidate{URLs: urls, Warning: "github_repo_rewritten_to_raw_readme"})
	}
	if urls, ok := r.ArxivPDFHTML(raw); ok {
		out = append(out, Candidate{URLs: urls, Warning: "arxiv_pdf_fallback_to_html"})
	}
	if urls, ok := r.OpenreviewPDFForum(raw); ok {
		out = append(out, Candidate{URLs: urls, Warning: "openreview_pdf_fallback_to_forum"})
	}
	if urls, ok := r.OpenreviewPDFAPI(raw); ok {
		out = append(out, Candidate{URLs: urls, Warning: "openreview_pdf_fallback_to_api"})
	}
	return out
}
