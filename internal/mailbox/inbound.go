package mailbox

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/url"
	"strings"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

// maxRawBytes bounds how much of a raw message is read.
const maxRawBytes = 4 << 20

// InboundJSON maps a forwarding-service JSON payload to fields. Sender comes
// from "from", "sender" or envelope.from; the body from "text", "plain" or "body".
func InboundJSON(data map[string]any) model.EmailInput {
	in := model.EmailInput{
		Sender:  firstString(data, "from", "sender"),
		Subject: firstString(data, "subject"),
		Body:    firstString(data, "text", "plain", "body"),
	}
	if in.Sender == "" {
		if env, ok := data["envelope"].(map[string]any); ok {
			in.Sender = firstString(env, "from")
		}
	}
	if in.Subject == "" {
		if h, ok := data["headers"].(map[string]any); ok {
			in.Subject = firstString(h, "subject", "Subject")
		}
	}
	if raw := firstString(data, "raw", "email"); raw != "" && (in.Sender == "" || in.Subject == "") {
		if parsed, err := ParseRaw(strings.NewReader(raw)); err == nil {
			fill(&in, parsed)
		}
	}
	return finish(in)
}

// InboundForm maps form fields (Mailgun, SendGrid style). A raw message in
// the "email" field fills whatever the named fields left empty.
func InboundForm(form url.Values) model.EmailInput {
	in := model.EmailInput{
		Sender:  firstValue(form, "from", "sender"),
		Subject: firstValue(form, "subject"),
		Body:    firstValue(form, "stripped-text", "text", "body-plain"),
	}
	if raw := form.Get("email"); raw != "" {
		if parsed, err := ParseRaw(strings.NewReader(raw)); err == nil {
			fill(&in, parsed)
		}
	}
	return finish(in)
}

// ParseRaw reads an RFC 5322 message. The body is the first text/plain part,
// else the first text/html part reduced to text.
func ParseRaw(r io.Reader) (model.EmailInput, error) {
	msg, err := mail.ReadMessage(io.LimitReader(r, maxRawBytes))
	if err != nil {
		return model.EmailInput{}, fmt.Errorf("mailbox: parse raw message: %w", err)
	}

	dec := new(mime.WordDecoder)
	subject := msg.Header.Get("Subject")
	if d, err := dec.DecodeHeader(subject); err == nil {
		subject = d
	}
	sender := msg.Header.Get("From")
	if addr, err := mail.ParseAddress(sender); err == nil {
		sender = addr.Address
	}

	plain, html := readBody(msg.Header, msg.Body)
	body := plain
	if body == "" {
		body = plainText(html)
	}
	in := model.EmailInput{
		Sender:    sender,
		Subject:   strings.TrimSpace(subject),
		Body:      strings.TrimSpace(body),
		MessageID: strings.Trim(msg.Header.Get("Message-Id"), "<> "),
	}
	return finish(in), nil
}

// header is satisfied by mail.Header and textproto.MIMEHeader.
type header interface {
	Get(key string) string
}

// readBody walks a (possibly multipart) body and returns the first
// text/plain and text/html payloads found.
func readBody(h header, body io.Reader) (plain, html string) {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			pp, ph := readBody(part.Header, part)
			if plain == "" {
				plain = pp
			}
			if html == "" {
				html = ph
			}
			if plain != "" {
				break
			}
		}
		return plain, html
	}

	data, err := io.ReadAll(decodeTransfer(h.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return "", ""
	}
	switch mediaType {
	case "text/plain":
		return string(data), ""
	case "text/html":
		return "", string(data)
	}
	return "", ""
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		raw, err := io.ReadAll(r)
		if err != nil {
			return bytes.NewReader(nil)
		}
		clean := strings.Map(func(c rune) rune {
			if c == '\r' || c == '\n' || c == ' ' {
				return -1
			}
			return c
		}, string(raw))
		return base64.NewDecoder(base64.StdEncoding, strings.NewReader(clean))
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	}
	return r
}

// fill copies parsed values into the fields of in that are empty.
func fill(in *model.EmailInput, parsed model.EmailInput) {
	if in.Sender == "" {
		in.Sender = parsed.Sender
	}
	if in.Subject == "" {
		in.Subject = parsed.Subject
	}
	if in.Body == "" {
		in.Body = parsed.Body
	}
	if in.MessageID == "" {
		in.MessageID = parsed.MessageID
	}
}

// finish trims fields, normalizes a display-name sender to its address and
// derives the snippet from the body.
func finish(in model.EmailInput) model.EmailInput {
	in.Sender = strings.TrimSpace(in.Sender)
	if addr, err := mail.ParseAddress(in.Sender); err == nil {
		in.Sender = addr.Address
	}
	in.Subject = strings.TrimSpace(in.Subject)
	in.Body = strings.TrimSpace(in.Body)
	if in.Snippet == "" {
		in.Snippet = snippetOf(spacePattern.ReplaceAllString(in.Body, " "))
	}
	return in
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func firstValue(form url.Values, keys ...string) string {
	for _, k := range keys {
		if s := form.Get(k); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
