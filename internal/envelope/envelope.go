// Package envelope defines the stable reply shape every tool returns: kind,
// schema_version, ok, elapsed_ms, warnings with hints, and the closed error
// code taxonomy. Shaping (verbose/compact/minimal) is a post-processing pass
// over the serialized value, never a second tree.
package envelope

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/hyperifyio/webpipe/internal/cache"
	"github.com/hyperifyio/webpipe/internal/fetch"
)

// SchemaVersion is carried by every reply.
const SchemaVersion = 2

// Code is one of the closed error codes.
type Code string

const (
	CodeInvalidParams       Code = "invalid_params"
	CodeInvalidURL          Code = "invalid_url"
	CodeNotConfigured       Code = "not_configured"
	CodeNotSupported        Code = "not_supported"
	CodeProviderUnavailable Code = "provider_unavailable"
	CodeFetchFailed         Code = "fetch_failed"
	CodeSearchFailed        Code = "search_failed"
	CodeCacheError          Code = "cache_error"
	CodeUnexpectedError     Code = "unexpected_error"
)

// Retryable reports whether the condition behind code is transient.
func (c Code) Retryable() bool {
	switch c {
	case CodeFetchFailed, CodeSearchFailed, CodeCacheError:
		return true
	}
	return false
}

// Error is the stable error object embedded in failed envelopes.
type Error struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Retryable bool   `json:"retryable"`
}

// NewError fills in retryability from the code.
func NewError(code Code, message, hint string) *Error {
	return &Error{Code: code, Message: message, Hint: hint, Retryable: code.Retryable()}
}

// FromErr maps component sentinel errors onto the closed taxonomy.
func FromErr(err error) *Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fetch.ErrInvalidURL):
		return NewError(CodeInvalidURL, err.Error(), "Pass an absolute http(s) URL.")
	case errors.Is(err, fetch.ErrNotConfigured):
		return NewError(CodeNotConfigured, err.Error(), "Check webpipe_meta for the knob names this deployment recognizes.")
	case errors.Is(err, fetch.ErrNotSupported):
		return NewError(CodeNotSupported, err.Error(), "")
	case errors.Is(err, fetch.ErrCacheMiss):
		return NewError(CodeFetchFailed, "not in cache", "Pre-warm cache with web_fetch (cache_write=true), then retry.")
	case errors.Is(err, cache.ErrTimeout):
		return NewError(CodeCacheError, err.Error(), WarningHint("cache_io_timeout"))
	default:
		return NewError(CodeFetchFailed, err.Error(), "")
	}
}

// Envelope is the outer reply object. Request and Attempts are always
// present, at least as null, so the shape is stable for clients.
type Envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Kind          string          `json:"kind"`
	OK            bool            `json:"ok"`
	ElapsedMS     int64           `json:"elapsed_ms"`
	Request       any             `json:"request"`
	Attempts      any             `json:"attempts"`
	WarningCodes  []string        `json:"warning_codes"`
	WarningHints  map[string]string `json:"warning_hints"`
	Error         *Error          `json:"error,omitempty"`
	// Fields holds the tool-specific payload merged into the top level on
	// serialization.
	Fields map[string]any `json:"-"`
}

// New starts an ok envelope of the given kind.
func New(kind string) *Envelope {
	return &Envelope{
		SchemaVersion: SchemaVersion,
		Kind:          kind,
		OK:            true,
		WarningCodes:  []string{},
		WarningHints:  map[string]string{},
		Fields:        map[string]any{},
	}
}

// Fail marks the envelope failed with the given error object.
func (e *Envelope) Fail(err *Error) *Envelope {
	e.OK = false
	e.Error = err
	return e
}

// AddWarnings merges codes, keeping the list sorted and unique and the hint
// map in sync.
func (e *Envelope) AddWarnings(codes ...string) *Envelope {
	for _, c := range codes {
		if c == "" {
			continue
		}
		if _, ok := e.WarningHints[c]; !ok {
			e.WarningCodes = append(e.WarningCodes, c)
			if h := WarningHint(c); h != "" {
				e.WarningHints[c] = h
			} else {
				e.WarningHints[c] = "See webpipe documentation for this warning code."
			}
		}
	}
	sort.Strings(e.WarningCodes)
	return e
}

// Set attaches a tool-specific top-level field.
func (e *Envelope) Set(key string, value any) *Envelope {
	e.Fields[key] = value
	return e
}

// MarshalJSON flattens Fields into the top-level object.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	type alias Envelope
	base, err := json.Marshal((*alias)(e))
	if err != nil {
		return nil, err
	}
	if len(e.Fields) == 0 {
		return base, nil
	}
	var m map[string]any
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range e.Fields {
		if _, reserved := m[k]; !reserved {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// Value serializes the envelope into a generic JSON value for shaping.
func (e *Envelope) Value() (map[string]any, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
