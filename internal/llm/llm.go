// Package llm provides the chat-completion clients the triage pipeline uses.
//
// Both the classifier and the vectorizer treat the model as a function from
// prompt to text. Clients here own transport, auth and per-call timeouts;
// callers own prompt construction and response parsing.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by Noop so callers can tell "no model" apart
// from a transport failure.
var ErrNotConfigured = errors.New("llm: no provider configured")

// DefaultTimeout bounds a single completion call when the caller does not set one.
const DefaultTimeout = 20 * time.Second

// Sampling settings shared by every provider. Triage wants stable, terse JSON.
const (
	temperature = 0.2
	maxTokens   = 500
)

// Client returns the model's raw text response for a prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Noop is the client used when no provider is configured.
type Noop struct{}

// Complete always fails with ErrNotConfigured.
func (Noop) Complete(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

// Configured reports whether c can reach a real model.
func Configured(c Client) bool {
	if c == nil {
		return false
	}
	_, noop := c.(Noop)
	return !noop
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}
