package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperifyio/webpipe/internal/usage"
)

// Perplexity is the answer-style provider backed by the chat-completions
// endpoint. Result URLs come from the response citations; the synthesized
// answer rides along for callers that want it. A search_mode="off" request
// the endpoint rejects is retried once without the field, surfacing
// perplexity_search_mode_off_rejected.
type Perplexity struct {
	APIKey     string
	Endpoint   string
	Model      string
	HTTPClient *http.Client
	Ledger     *usage.Ledger
}

func (p *Perplexity) Name() string  { return "perplexity" }
func (p *Perplexity) Keyless() bool { return false }

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model      string              `json:"model"`
	Messages   []perplexityMessage `json:"messages"`
	MaxTokens  int                 `json:"max_tokens,omitempty"`
	SearchMode string              `json:"search_mode,omitempty"`
}

type perplexityResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

func (p *Perplexity) endpoint() string {
	if p.Endpoint != "" {
		return p.Endpoint
	}
	return "https://api.perplexity.ai/chat/completions"
}

func (p *Perplexity) model() string {
	if p.Model != "" {
		return p.Model
	}
	return "sonar"
}

func (p *Perplexity) Search(ctx context.Context, q Query) (Response, error) {
	if p.APIKey == "" {
		return Response{}, fmt.Errorf("perplexity: missing api key")
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = 10
	}
	start := time.Now()

	var warnings []string
	parsed, err := p.call(ctx, q, q.SearchMode)
	// The endpoint rejects search_mode on some models; drop the field and
	// retry once so the caller still gets an answer.
	if err != nil && strings.EqualFold(q.SearchMode, "off") && isRejection(err) {
		warnings = append(warnings, "perplexity_search_mode_off_rejected")
		parsed, err = p.call(ctx, q, "")
	}
	if err != nil {
		return Response{}, err
	}

	out := Response{
		Provider:  p.Name(),
		CostUnits: 1,
		TimingsMS: time.Since(start).Milliseconds(),
		Warnings:  warnings,
	}
	if len(parsed.Choices) > 0 {
		out.Answer = strings.TrimSpace(parsed.Choices[0].Message.Content)
	}
	for _, c := range parsed.Citations {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		out.Results = append(out.Results, Result{URL: c, Source: p.Name()})
		if len(out.Results) >= limit {
			break
		}
	}
	return out, nil
}

// rejectionError marks a 4xx reply so the search_mode retry can tell it
// apart from transport failures.
type rejectionError struct {
	status int
	body   string
}

func (e *rejectionError) Error() string {
	return fmt.Sprintf("perplexity status %d: %s", e.status, e.body)
}

func isRejection(err error) bool {
	_, ok := err.(*rejectionError)
	return ok
}

func (p *Perplexity) call(ctx context.Context, q Query, searchMode string) (*perplexityResponse, error) {
	payload, err := json.Marshal(perplexityRequest{
		Model: p.model(),
		Messages: []perplexityMessage{
			{Role: "system", Content: "Answer concisely and cite sources."},
			{Role: "user", Content: q.Text},
		},
		SearchMode: searchMode,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	hc := p.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeoutOr(q.Timeout, 30*time.Second)}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	p.Ledger.Increment("perplexity", 1)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var snippet [256]byte
		n, _ := resp.Body.Read(snippet[:])
		return nil, &rejectionError{status: resp.StatusCode, body: string(snippet[:n])}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("perplexity status: %d", resp.StatusCode)
	}
	var parsed perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}
