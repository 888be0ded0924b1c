package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

// GmailFetcher reads messages through the Gmail API. The grant id is used as
// the Gmail user id; an empty grant means the token's own mailbox.
type GmailFetcher struct {
	svc *gmail.Service
}

// NewGmailFetcher builds a fetcher from an OAuth client and a long-lived
// refresh token. Access tokens are refreshed automatically.
func NewGmailFetcher(ctx context.Context, clientID, clientSecret, refreshToken string) (*GmailFetcher, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("gmail: refresh token is required")
	}
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
	client := conf.Client(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return NewGmailFetcherWithClient(ctx, client)
}

// NewGmailFetcherWithClient builds a fetcher over an already authenticated
// HTTP client. Extra options (such as an endpoint override) are passed to the
// Gmail service.
func NewGmailFetcherWithClient(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*GmailFetcher, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail: create service: %w", err)
	}
	return &GmailFetcher{svc: svc}, nil
}

// Fetch loads one message in full format.
func (f *GmailFetcher) Fetch(ctx context.Context, grantID, messageID string) (model.EmailInput, error) {
	user := grantID
	if user == "" {
		user = "me"
	}
	msg, err := f.svc.Users.Messages.Get(user, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return model.EmailInput{}, fmt.Errorf("gmail: message %s: %w", messageID, ErrNotFound)
		}
		return model.EmailInput{}, fmt.Errorf("gmail: get message: %w", err)
	}
	in := gmailInput(msg)
	in.GrantID = grantID
	return in, nil
}

// List returns the newest limit messages labelled INBOX, each fetched in
// full format.
func (f *GmailFetcher) List(ctx context.Context, grantID string, limit int) ([]model.EmailInput, error) {
	user := grantID
	if user == "" {
		user = "me"
	}
	resp, err := f.svc.Users.Messages.List(user).
		LabelIds("INBOX").
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gmail: list messages: %w", err)
	}
	out := make([]model.EmailInput, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		if len(out) == limit {
			break
		}
		in, err := f.Fetch(ctx, grantID, ref.Id)
		if errors.Is(err, ErrNotFound) {
			continue // deleted between list and get
		}
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// gmailInput maps a full-format Gmail message to plain fields.
func gmailInput(msg *gmail.Message) model.EmailInput {
	in := model.EmailInput{MessageID: msg.Id, Snippet: msg.Snippet}
	if msg.Payload == nil {
		in.Body = msg.Snippet
		return in
	}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			in.Subject = h.Value
		case "from":
			in.Sender = h.Value
			if addr, err := mail.ParseAddress(h.Value); err == nil {
				in.Sender = addr.Address
			}
		}
	}
	in.Body = gmailText(msg.Payload, "text/plain")
	if in.Body == "" {
		in.Body = plainText(gmailText(msg.Payload, "text/html"))
	}
	if in.Body == "" {
		in.Body = msg.Snippet
	}
	return in
}

// gmailText returns the first decoded part of the given MIME type.
func gmailText(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(part.Body.Data, "=")); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	for _, p := range part.Parts {
		if s := gmailText(p, mimeType); s != "" {
			return s
		}
	}
	return ""
}
