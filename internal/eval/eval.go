// Package eval drives the fixture-based eval matrix: a YAML file of cases,
// each hydrating a URL through the full pipeline and asserting on the
// outcome. Results render as a console table and, optionally, a PDF report.
package eval

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/hyperifyio/webpipe/internal/scheduler"
)

// Case is one matrix entry.
type Case struct {
	Name             string   `yaml:"name"`
	URL              string   `yaml:"url"`
	Query            string   `yaml:"query"`
	Backend          string   `yaml:"fetch_backend"`
	ExpectOK         *bool    `yaml:"expect_ok"`
	ExpectEngine     string   `yaml:"expect_engine"`
	ExpectContains   string   `yaml:"expect_contains"`
	ExpectWarnings   []string `yaml:"expect_warnings"`
	ExpectFinalURL   string   `yaml:"expect_final_url_contains"`
	ExpectMinChunks  int      `yaml:"expect_min_chunks"`
	DeadlineMS       int      `yaml:"deadline_ms"`
	IncludeStructure bool     `yaml:"include_structure"`
}

// Matrix is the YAML document root.
type Matrix struct {
	Cases []Case `yaml:"cases"`
}

// Outcome is one executed case.
type Outcome struct {
	Case      Case
	Pass      bool
	Failures  []string
	ElapsedMS int64
}

// LoadMatrix reads and parses the fixture file.
func LoadMatrix(path string) (*Matrix, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eval matrix read: %w", err)
	}
	var m Matrix
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("eval matrix parse: %w", err)
	}
	if len(m.Cases) == 0 {
		return nil, fmt.Errorf("eval matrix: no cases in %s", path)
	}
	return &m, nil
}

// Runner executes matrix cases against a live scheduler.
type Runner struct {
	Sched *scheduler.Scheduler
}

// Run executes every case sequentially and reports outcomes.
func (r *Runner) Run(ctx context.Context, m *Matrix) []Outcome {
	outcomes := make([]Outcome, 0, len(m.Cases))
	for _, c := range m.Cases {
		started := time.Now()
		agg := r.Sched.Hydrate(ctx, scheduler.Input{
			URLs:       []string{c.URL},
			Query:      c.Query,
			MaxURLs:    1,
			DeadlineMS: c.DeadlineMS,
		})
		outcome := check(c, agg)
		outcome.ElapsedMS = time.Since(started).Milliseconds()
		outcomes = append(outcomes, outcome)
		log.Info().Str("case", c.Name).Bool("pass", outcome.Pass).Msg("eval case done")
	}
	return outcomes
}

func check(c Case, agg scheduler.Aggregate) Outcome {
	out := Outcome{Case: c, Pass: true}
	fail := func(format string, args ...any) {
		out.Pass = false
		out.Failures = append(out.Failures, fmt.Sprintf(format, args...))
	}
	if len(agg.Results) != 1 {
		fail("expected 1 result, got %d", len(agg.Results))
		return out
	}
	res := agg.Results[0]
	ok := res.Err == nil
	if c.ExpectOK != nil && ok != *c.ExpectOK {
		fail("ok=%v, want %v (err=%v)", ok, *c.ExpectOK, res.Err)
	}
	if c.ExpectEngine != "" && res.Engine != c.ExpectEngine {
		fail("engine=%q, want %q", res.Engine, c.ExpectEngine)
	}
	if c.ExpectContains != "" && !strings.Contains(res.Text, c.ExpectContains) {
		fail("text does not contain %q", c.ExpectContains)
	}
	if c.ExpectFinalURL != "" && !strings.Contains(res.FinalURL, c.ExpectFinalURL) {
		fail("final_url=%q does not contain %q", res.FinalURL, c.ExpectFinalURL)
	}
	if len(res.Chunks) < c.ExpectMinChunks {
		fail("chunks=%d, want >= %d", len(res.Chunks), c.ExpectMinChunks)
	}
	for _, w := range c.ExpectWarnings {
		found := false
		for _, have := range res.Warnings {
			if have == w {
				found = true
				break
			}
		}
		if !found {
			fail("missing warning %q (have %v)", w, res.Warnings)
		}
	}
	return out
}

// Summarize renders the console table and returns the failed-case count.
func Summarize(outcomes []Outcome, w *os.File) int {
	failed := 0
	fmt.Fprintf(w, "%-40s %-6s %8s\n", "CASE", "PASS", "MS")
	for _, o := range outcomes {
		status := "ok"
		if !o.Pass {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(w, "%-40s %-6s %8d\n", o.Case.Name, status, o.ElapsedMS)
		for _, f := range o.Failures {
			fmt.Fprintf(w, "    - %s\n", f)
		}
	}
	fmt.Fprintf(w, "\n%d/%d passed\n", len(outcomes)-failed, len(outcomes))
	return failed
}
