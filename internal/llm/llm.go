// Package llm adapts an OpenAI-compatible chat backend to the minimal
// capability the tool layer consumes. Any local or hosted endpoint works as
// long as it speaks the chat-completions shape.
package llm

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/webpipe/internal/usage"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is the backend-independent completion result.
type Reply struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Backend is the minimal chat capability.
type Backend interface {
	Chat(ctx context.Context, messages []Message, maxTokens int, temperature float32, timeout time.Duration) (Reply, error)
}

// OpenAI adapts *openai.Client to Backend.
type OpenAI struct {
	Client *openai.Client
	Model  string
	Ledger *usage.Ledger
}

// Chat issues one chat completion with a bounded timeout.
func (o *OpenAI) Chat(ctx context.Context, messages []Message, maxTokens int, temperature float32, timeout time.Duration) (Reply, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		converted = append(converted, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	req := openai.ChatCompletionRequest{
		Model:       o.Model,
		Messages:    converted,
		Temperature: temperature,
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}
	resp, err := o.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	o.Ledger.Increment("llm", float64(resp.Usage.TotalTokens))
	out := Reply{
		Model:        resp.Model,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
		out.FinishReason = string(resp.Choices[0].FinishReason)
	}
	return out, nil
}
