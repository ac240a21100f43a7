package repoingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperifyio/webpipe/internal/config"
	"github.com/hyperifyio/webpipe/internal/fetch"
)

func fixture(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/owner/repo":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"default_branch":"trunk"}`))
		case "/repos/owner/repo/git/trees/trunk":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"truncated":false,"tree":[
				{"path":"README.md","type":"blob","size":40},
				{"path":"docs/guide.md","type":"blob","size":50},
				{"path":"big.bin","type":"blob","size":99999999},
				{"path":"src","type":"tree","size":0},
				{"path":"main.go","type":"blob","size":30}
			]}`))
		case "/owner/repo/trunk/README.md":
			_, _ = w.Write([]byte("# Repo\n\nReadme body with searchable needle inside."))
		case "/owner/repo/trunk/docs/guide.md":
			_, _ = w.Write([]byte("Guide body."))
		case "/owner/repo/trunk/main.go":
			_, _ = w.Write([]byte("package main"))
		default:
			w.WriteHeader(404)
		}
	}))
}

func TestIngest(t *testing.T) {
	srv := fixture(t)
	defer srv.Close()

	g := &Ingester{
		Fetcher: fetch.New(config.Defaults(), nil),
		APIBase: srv.URL,
		RawHost: srv.URL,
	}
	res, err := g.Ingest(context.Background(), "https://github.com/owner/repo", "needle", Limits{MaxFiles: 2})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Repo != "owner/repo" || res.DefaultBranch != "trunk" {
		t.Fatalf("%+v", res)
	}
	if len(res.TreePaths) != 4 {
		t.Fatalf("tree paths=%v", res.TreePaths)
	}
	if len(res.Files) != 2 {
		t.Fatalf("files=%d", len(res.Files))
	}
	if res.Files[0].Path != "README.md" {
		t.Fatalf("README not preferred: %+v", res.Files[0])
	}
	if !res.Files[0].Hit {
		t.Fatalf("query hit not flagged")
	}
	if !strings.Contains(res.Files[0].Text, "Readme body") {
		t.Fatalf("text=%q", res.Files[0].Text)
	}
}

func TestIngest_BadURL(t *testing.T) {
	g := &Ingester{Fetcher: fetch.New(config.Defaults(), nil)}
	if _, err := g.Ingest(context.Background(), "https://github.com/only-owner", "", Limits{}); err == nil {
		t.Fatalf("expected owner/repo error")
	}
}

func TestOwnerRepo(t *testing.T) {
	owner, repo, err := ownerRepo("https://github.com/a/b.git")
	if err != nil || owner != "a" || repo != "b" {
		t.Fatalf("%s %s %v", owner, repo, err)
	}
}
