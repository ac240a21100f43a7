package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperifyio/webpipe/internal/scheduler"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	delay   time.Duration
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		v, ok := f.vectors[s]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func chunks(texts ...string) []scheduler.TopChunk {
	out := make([]scheduler.TopChunk, 0, len(texts))
	for i, t := range texts {
		out = append(out, scheduler.TopChunk{URL: "https://x", Score: len(texts) - i, Text: t})
	}
	return out
}

func TestRerank_NotConfigured(t *testing.T) {
	r := &Reranker{}
	in := chunks("a", "b")
	out, warning := r.Rerank(context.Background(), "q", in, 0)
	if warning != "semantic_backend_not_configured" {
		t.Fatalf("warning=%q", warning)
	}
	if len(out) != 2 || out[0].Text != "a" {
		t.Fatalf("input order changed: %+v", out)
	}
}

func TestRerank_ReordersByCosine(t *testing.T) {
	r := &Reranker{Embedder: &fakeEmbedder{vectors: map[string][]float32{
		"query":    {1, 0, 0},
		"relevant": {0.9, 0.1, 0},
		"other":    {0, 1, 0},
	}}}
	out, warning := r.Rerank(context.Background(), "query", chunks("other", "relevant"), 0)
	if warning != "" {
		t.Fatalf("warning=%q", warning)
	}
	if out[0].Text != "relevant" {
		t.Fatalf("rerank order: %+v", out)
	}
}

func TestRerank_TimeoutKeepsOrder(t *testing.T) {
	r := &Reranker{
		Embedder: &fakeEmbedder{delay: time.Second},
		Timeout:  50 * time.Millisecond,
	}
	in := chunks("first", "second")
	out, warning := r.Rerank(context.Background(), "q", in, 0)
	if warning != "semantic_rerank_timeout" {
		t.Fatalf("warning=%q", warning)
	}
	if out[0].Text != "first" {
		t.Fatalf("order changed on timeout: %+v", out)
	}
}

func TestRerank_ErrorKeepsOrder(t *testing.T) {
	r := &Reranker{Embedder: &fakeEmbedder{err: errors.New("boom")}}
	out, _ := r.Rerank(context.Background(), "q", chunks("first", "second"), 0)
	if out[0].Text != "first" {
		t.Fatalf("order changed on error: %+v", out)
	}
}

func TestShouldAutoFallback(t *testing.T) {
	r := &Reranker{}
	if r.ShouldAutoFallback(nil) {
		t.Fatalf("no chunks should not trigger fallback")
	}
	if !r.ShouldAutoFallback([]scheduler.TopChunk{{Score: 1}}) {
		t.Fatalf("score 1 should trigger fallback")
	}
	if r.ShouldAutoFallback([]scheduler.TopChunk{{Score: 5}}) {
		t.Fatalf("high score should not trigger fallback")
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("identical vectors: %f", got)
	}
	if got := cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors: %f", got)
	}
	if got := cosine([]float32{1}, []float32{1, 2}); got != 0 {
		t.Fatalf("mismatched lengths: %f", got)
	}
}
