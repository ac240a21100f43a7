// Package semantic optionally reranks candidate chunks by embedding cosine
// similarity. Failure modes degrade to the lexical order with a warning; the
// reranker never makes a result worse than its input.
package semantic

import (
	"context"
	"math"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webpipe/internal/scheduler"
	"github.com/hyperifyio/webpipe/internal/usage"
)

// Embedder is the minimal embeddings capability; the OpenAI-compatible
// client satisfies it through the adapter below.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// OpenAIEmbedder adapts an OpenAI-compatible client.
type OpenAIEmbedder struct {
	Client *openai.Client
	Model  string
	Ledger *usage.Ledger
}

// Embed requests one embedding per input string.
func (e *OpenAIEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := e.Client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: inputs,
		Model: openai.EmbeddingModel(e.Model),
	})
	if err != nil {
		return nil, err
	}
	e.Ledger.Increment("embeddings", float64(len(inputs)))
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Reranker applies the optional semantic pass.
type Reranker struct {
	Embedder Embedder
	Timeout  time.Duration
	// AutoThreshold triggers the auto-fallback when the top lexical score is
	// at or below it.
	AutoThreshold int
}

// Configured reports whether an embeddings backend is wired.
func (r *Reranker) Configured() bool {
	return r != nil && r.Embedder != nil
}

// ShouldAutoFallback reports whether lexical scoring looked ineffective.
func (r *Reranker) ShouldAutoFallback(chunks []scheduler.TopChunk) bool {
	if len(chunks) == 0 {
		return false
	}
	threshold := r.AutoThreshold
	if threshold <= 0 {
		threshold = 1
	}
	return chunks[0].Score <= threshold
}

// Rerank sorts chunks by cosine similarity to the query within the bounded
// timeout. The returned warning is one of "", semantic_backend_not_configured
// or semantic_rerank_timeout.
func (r *Reranker) Rerank(ctx context.Context, query string, chunks []scheduler.TopChunk, topK int) ([]scheduler.TopChunk, string) {
	if len(chunks) == 0 || query == "" {
		return chunks, ""
	}
	if !r.Configured() {
		return chunks, "semantic_backend_not_configured"
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inputs := make([]string, 0, len(chunks)+1)
	inputs = append(inputs, query)
	for _, c := range chunks {
		inputs = append(inputs, c.Text)
	}
	vectors, err := r.Embedder.Embed(ctx, inputs)
	if err != nil || len(vectors) != len(inputs) {
		if ctx.Err() != nil {
			return chunks, "semantic_rerank_timeout"
		}
		log.Warn().Err(err).Msg("semantic rerank failed; keeping lexical order")
		return chunks, "semantic_rerank_timeout"
	}
	queryVec := vectors[0]
	type scored struct {
		chunk scheduler.TopChunk
		sim   float64
	}
	out := make([]scored, 0, len(chunks))
	for i, c := range chunks {
		out = append(out, scored{chunk: c, sim: cosine(queryVec, vectors[i+1])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].sim > out[j].sim })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	reranked := make([]scheduler.TopChunk, 0, len(out))
	for _, s := range out {
		reranked = append(reranked, s.chunk)
	}
	return reranked, ""
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
