// Package mailbox fetches message fields from connected mail providers and
// parses forwarded raw mail into the plain fields the triage core reads.
package mailbox

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("mailbox: no provider configured")

// ErrNotFound is returned when the provider has no such message.
var ErrNotFound = errors.New("mailbox: message not found")

// snippetRunes bounds the snippet derived from a body.
const snippetRunes = 200

// Fetcher loads one message from a mailbox connection.
type Fetcher interface {
	Fetch(ctx context.Context, grantID, messageID string) (model.EmailInput, error)
}

// Lister pulls the newest inbox messages of a mailbox connection, newest
// first. Implementations return at most limit messages.
type Lister interface {
	List(ctx context.Context, grantID string, limit int) ([]model.EmailInput, error)
}

// Disabled is the Fetcher and Lister used when no provider is configured.
type Disabled struct{}

// Fetch always fails with ErrNotConfigured.
func (Disabled) Fetch(context.Context, string, string) (model.EmailInput, error) {
	return model.EmailInput{}, ErrNotConfigured
}

// List always fails with ErrNotConfigured.
func (Disabled) List(context.Context, string, int) ([]model.EmailInput, error) {
	return nil, ErrNotConfigured
}

var (
	tagPattern   = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>|<[^>]+>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// plainText reduces an HTML or plain body to collapsed text.
func plainText(body string) string {
	if strings.Contains(body, "<") {
		body = tagPattern.ReplaceAllString(body, " ")
		body = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(body)
	}
	return strings.TrimSpace(spacePattern.ReplaceAllString(body, " "))
}

func snippetOf(body string) string {
	r := []rune(body)
	if len(r) <= snippetRunes {
		return body
	}
	return string(r[:snippetRunes])
}
