// Package search defines the pluggable search-provider contract and its
// adapters. Providers are interchangeable; the dispatcher picks one by name
// or "auto" (first configured).
package search

import (
	"context"
	"strings"
	"time"
)

// Result is a single search hit from any provider.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Source  string `json:"source"`
}

// Response is the provider-level reply shape.
type Response struct {
	Results   []Result `json:"results"`
	Provider  string   `json:"provider"`
	CostUnits float64  `json:"cost_units"`
	TimingsMS int64    `json:"timings_ms"`
	// Answer carries the synthesized answer text for answer-style providers
	// (perplexity); empty for plain index providers.
	Answer string `json:"answer,omitempty"`
	// Warnings are provider-level recoverable conditions the caller merges
	// onto its envelope.
	Warnings []string `json:"-"`
}

// Query carries the provider-independent search parameters.
type Query struct {
	Text       string
	MaxResults int
	Language   string
	Country    string
	Timeout    time.Duration
	// SearchMode is passed through to providers that support it; "off"
	// asks an answer-style provider to skip its own browsing.
	SearchMode string
}

// Provider is the minimal search capability.
type Provider interface {
	Search(ctx context.Context, q Query) (Response, error)
	Name() string
	// Keyless reports whether the provider works without credentials; the
	// normal toolset lists web_search only when a keyed provider or a searx
	// URL is configured.
	Keyless() bool
}

// Registry resolves provider names, with "auto" picking the first entry.
type Registry struct {
	Providers []Provider
}

// Names lists registered provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.Providers))
	for _, p := range r.Providers {
		out = append(out, p.Name())
	}
	return out
}

// Resolve returns the provider for name, nil when unknown. Empty and "auto"
// take the first registered provider.
func (r *Registry) Resolve(name string) Provider {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "auto" {
		if len(r.Providers) > 0 {
			return r.Providers[0]
		}
		return nil
	}
	for _, p := range r.Providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// HasKeyed reports whether any registered provider requires (and has) keys.
func (r *Registry) HasKeyed() bool {
	for _, p := range r.Providers {
		if !p.Keyless() {
			return true
		}
	}
	return false
}
