package docbox

import (
	"context"
	"net/http"
)

// LLM returns a model's raw text completion for a prompt.
// When provided via WithLLM, replaces the configured Ollama/OpenAI client.
// A failed call sends the classifier and vectorizer down their rule paths.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// MailFetcher loads one message from a connected mailbox.
// When provided via WithMailFetcher, replaces the configured Nylas/Gmail client.
type MailFetcher interface {
	Fetch(ctx context.Context, grantID, messageID string) (Email, error)
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Extra routes share the mux, auth chain and OTEL instrumentation with the
// built-in routes. The function is called once during New.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including /health.
type Middleware func(http.Handler) http.Handler
