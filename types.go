package docbox

import (
	"net/mail"
	"strings"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

// Email is the public representation of a fetched message.
// Only plain fields; no internal types leak through it.
type Email struct {
	Sender  string
	Subject string
	// Body is plain text. Snippet is derived from it when left empty.
	Body    string
	Snippet string
}

// snippetRunes matches the snippet length mailbox parsers produce.
const snippetRunes = 200

func (e Email) toInput() model.EmailInput {
	sender := strings.TrimSpace(e.Sender)
	if addr, err := mail.ParseAddress(sender); err == nil {
		sender = addr.Address
	}
	snippet := e.Snippet
	if snippet == "" {
		snippet = strings.Join(strings.Fields(e.Body), " ")
		if r := []rune(snippet); len(r) > snippetRunes {
			snippet = string(r[:snippetRunes])
		}
	}
	return model.EmailInput{
		Sender:  sender,
		Subject: strings.TrimSpace(e.Subject),
		Body:    e.Body,
		Snippet: snippet,
	}
}
