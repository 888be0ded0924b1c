package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

// DefaultNylasURI is the US region API host.
const DefaultNylasURI = "https://api.us.nylas.com"

// NylasFetcher reads messages through the Nylas v3 REST API.
type NylasFetcher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewNylasFetcher creates a fetcher. An empty apiURI uses DefaultNylasURI.
func NewNylasFetcher(apiKey, apiURI string, timeout time.Duration) *NylasFetcher {
	if apiURI == "" {
		apiURI = DefaultNylasURI
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &NylasFetcher{
		baseURL:    strings.TrimRight(apiURI, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type nylasMessage struct {
	ID      string `json:"id"`
	GrantID string `json:"grant_id"`
	Subject string `json:"subject"`
	From    []struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"from"`
	Body    string `json:"body"`
	Snippet string `json:"snippet"`
}

// input maps the message to plain fields. The body falls back to the
// provider snippet.
func (m nylasMessage) input(grantID string) model.EmailInput {
	in := model.EmailInput{
		Subject:   m.Subject,
		Snippet:   m.Snippet,
		Body:      plainText(m.Body),
		MessageID: m.ID,
		GrantID:   grantID,
	}
	if len(m.From) > 0 {
		in.Sender = m.From[0].Email
	}
	if in.Body == "" {
		in.Body = m.Snippet
	}
	return in
}

// Fetch loads one message.
func (f *NylasFetcher) Fetch(ctx context.Context, grantID, messageID string) (model.EmailInput, error) {
	endpoint := fmt.Sprintf("%s/v3/grants/%s/messages/%s",
		f.baseURL, url.PathEscape(grantID), url.PathEscape(messageID))

	var result struct {
		Data nylasMessage `json:"data"`
	}
	if err := f.get(ctx, endpoint, &result); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.EmailInput{}, fmt.Errorf("nylas: message %s: %w", messageID, ErrNotFound)
		}
		return model.EmailInput{}, err
	}
	in := result.Data.input(grantID)
	in.MessageID = messageID
	return in, nil
}

// List returns the newest limit messages in the grant's inbox.
func (f *NylasFetcher) List(ctx context.Context, grantID string, limit int) ([]model.EmailInput, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("in", "INBOX")
	endpoint := fmt.Sprintf("%s/v3/grants/%s/messages?%s",
		f.baseURL, url.PathEscape(grantID), q.Encode())

	var result struct {
		Data []nylasMessage `json:"data"`
	}
	if err := f.get(ctx, endpoint, &result); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("nylas: grant %s: %w", grantID, ErrNotFound)
		}
		return nil, err
	}
	out := make([]model.EmailInput, 0, min(len(result.Data), limit))
	for _, m := range result.Data {
		if len(out) == limit {
			break
		}
		out = append(out, m.input(grantID))
	}
	return out, nil
}

func (f *NylasFetcher) get(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("nylas: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("nylas: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("nylas: status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("nylas: decode response: %w", err)
	}
	return nil
}
