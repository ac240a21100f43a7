// Package repoingest performs a bounded code-host repository ingest over the
// API: default-branch resolution, tree listing, README plus the highest-value
// text files, all under file-count and byte caps.
package repoingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/hyperifyio/webpipe/internal/fetch"
)

// Limits bounds one ingest.
type Limits struct {
	MaxFiles     int
	MaxFileBytes int64
	MaxTotal     int64
}

// File is one ingested file.
type File struct {
	Path  string `json:"path"`
	Size  int    `json:"size"`
	Text  string `json:"text"`
	Hit   bool   `json:"query_hit,omitempty"`
	Score int    `json:"score,omitempty"`
}

// Result is the ingest payload.
type Result struct {
	Repo          string   `json:"repo"`
	DefaultBranch string   `json:"default_branch"`
	TreePaths     []string `json:"tree_paths"`
	Files         []File   `json:"files"`
	TruncatedTree bool     `json:"truncated_tree"`
}

// Ingester talks to a GitHub-compatible REST API through the shared fetcher
// so cache, privacy and header policy all apply.
type Ingester struct {
	Fetcher *fetch.Fetcher
	APIBase string
	RawHost string
}

var preferredFiles = []string{
	"README.md", "README.rst", "README", "docs/index.md", "doc/index.md",
	"CHANGELOG.md", "ARCHITECTURE.md", "CONTRIBUTING.md",
}

var textSuffixes = []string{".md", ".rst", ".txt", ".go", ".py", ".rs", ".ts", ".js", ".toml", ".yaml", ".yml", ".json"}

// Ingest resolves owner/repo from repoURL and loads a bounded slice of it.
func (g *Ingester) Ingest(ctx context.Context, repoURL, query string, lim Limits) (*Result, error) {
	owner, repo, err := ownerRepo(repoURL)
	if err != nil {
		return nil, err
	}
	if lim.MaxFiles <= 0 {
		lim.MaxFiles = 8
	}
	if lim.MaxFileBytes <= 0 {
		lim.MaxFileBytes = 128 << 10
	}
	if lim.MaxTotal <= 0 {
		lim.MaxTotal = 512 << 10
	}
	api := strings.TrimRight(g.APIBase, "/")
	if api == "" {
		api = "https://api.github.com"
	}

	var meta struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := g.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s", api, owner, repo), &meta); err != nil {
		return nil, err
	}
	branch := meta.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	var tree struct {
		Truncated bool `json:"truncated"`
		Tree      []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			Size int    `json:"size"`
		} `json:"tree"`
	}
	if err := g.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", api, owner, repo, branch), &tree); err != nil {
		return nil, err
	}

	res := &Result{
		Repo:          owner + "/" + repo,
		DefaultBranch: branch,
		TruncatedTree: tree.Truncated,
	}
	type candidate struct {
		path  string
		size  int
		score int
	}
	var cands []candidate
	for _, t := range tree.Tree {
		if t.Type != "blob" {
			continue
		}
		res.TreePaths = append(res.TreePaths, t.Path)
		if !isTextPath(t.Path) || int64(t.Size) > lim.MaxFileBytes {
			continue
		}
		cands = append(cands, candidate{path: t.Path, size: t.Size, score: pathScore(t.Path, query)})
	}
	if len(res.TreePaths) > 500 {
		res.TreePaths = res.TreePaths[:500]
		res.TruncatedTree = true
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].path < cands[j].path
	})

	rawBase := g.RawHost
	if rawBase == "" {
		rawBase = "raw.githubusercontent.com"
	}
	// A full URL is accepted so fixture servers can stand in for the raw host.
	if !strings.Contains(rawBase, "://") {
		rawBase = "https://" + rawBase
	}
	var total int64
	for _, c := range cands {
		if len(res.Files) >= lim.MaxFiles || total >= lim.MaxTotal {
			break
		}
		rawURL := fmt.Sprintf("%s/%s/%s/%s/%s", strings.TrimRight(rawBase, "/"), owner, repo, branch, c.path)
		limit := lim.MaxFileBytes
		resp, err := g.Fetcher.Do(ctx, fetch.Request{URL: rawURL, MaxBytes: &limit, CacheRead: true, CacheWrite: true}, fetch.BackendLocal)
		if err != nil || resp.Status >= 400 {
			continue
		}
		text := string(resp.Bytes)
		total += int64(len(text))
		res.Files = append(res.Files, File{
			Path:  c.path,
			Size:  len(text),
			Text:  text,
			Hit:   query != "" && containsFold(text, query),
			Score: c.score,
		})
	}
	return res, nil
}

func (g *Ingester) getJSON(ctx context.Context, u string, out any) error {
	limit := int64(2 << 20)
	resp, err := g.Fetcher.Do(ctx, fetch.Request{URL: u, MaxBytes: &limit, CacheRead: true, CacheWrite: true}, fetch.BackendLocal)
	if err != nil {
		return err
	}
	if resp.Status >= 400 {
		return fmt.Errorf("repo ingest status %d for %s", resp.Status, u)
	}
	return json.Unmarshal(resp.Bytes, out)
}

func ownerRepo(repoURL string) (string, string, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("repo ingest: bad url: %w", err)
	}
	seg := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(seg) < 2 || seg[0] == "" || seg[1] == "" {
		return "", "", fmt.Errorf("repo ingest: expected /owner/repo in %q", repoURL)
	}
	return seg[0], strings.TrimSuffix(seg[1], ".git"), nil
}

func isTextPath(path string) bool {
	lower := strings.ToLower(path)
	for _, suf := range textSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}

// pathScore prefers READMEs and docs, then query-relevant paths.
func pathScore(path, query string) int {
	score := 0
	for i, p := range preferredFiles {
		if strings.EqualFold(path, p) {
			score += 100 - i
		}
	}
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "docs/") || strings.HasPrefix(lower, "doc/") {
		score += 20
	}
	if strings.Count(path, "/") == 0 {
		score += 5
	}
	if query != "" && containsFold(path, query) {
		score += 30
	}
	return score
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
