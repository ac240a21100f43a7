// Package seeds holds the canned seed-URL list served by web_seed_urls.
// Ids are stable contract: clients reference them across sessions.
package seeds

// Seed is one canned entry.
type Seed struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

var all = []Seed{
	{ID: "go-docs", URL: "https://go.dev/doc/", Title: "Go documentation"},
	{ID: "go-blog", URL: "https://go.dev/blog/", Title: "The Go Blog"},
	{ID: "mdn-http", URL: "https://developer.mozilla.org/en-US/docs/Web/HTTP", Title: "MDN HTTP reference"},
	{ID: "rfc-editor", URL: "https://www.rfc-editor.org/", Title: "RFC Editor"},
	{ID: "arxiv-cs", URL: "https://arxiv.org/list/cs/recent", Title: "arXiv CS recent"},
	{ID: "hn", URL: "https://news.ycombinator.com/", Title: "Hacker News front page"},
	{ID: "wikipedia", URL: "https://en.wikipedia.org/wiki/Main_Page", Title: "Wikipedia"},
	{ID: "pypi", URL: "https://pypi.org/", Title: "PyPI"},
}

// All returns the canned list in stable order.
func All() []Seed {
	out := make([]Seed, len(all))
	copy(out, all)
	return out
}

// Lookup resolves ids to URLs; unknown ids are returned separately so the
// caller can emit unknown_seed_id.
func Lookup(ids []string) (urls []string, unknown []string) {
	index := map[string]string{}
	for _, s := range all {
		index[s.ID] = s.URL
	}
	for _, id := range ids {
		if u, ok := index[id]; ok {
			urls = append(urls, u)
		} else {
			unknown = append(unknown, id)
		}
	}
	return urls, unknown
}
