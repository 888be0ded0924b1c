package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func TestNylasFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer nyk_test", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v3/grants/g1/messages/m1":
			_, _ = w.Write([]byte(`{"data":{"id":"m1","grant_id":"g1","subject":"Claim denied",
				"from":[{"name":"Billing","email":"billing@aetna.com"}],
				"body":"<html><body><p>Claim&nbsp;#12345 was <b>denied</b>.</p></body></html>",
				"snippet":"Claim #12345 was denied."}}`))
		case "/v3/grants/g1/messages/m2":
			_, _ = w.Write([]byte(`{"data":{"id":"m2","subject":"Hi","from":[],"body":"","snippet":"short"}}`))
		case "/v3/grants/g1/messages/boom":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewNylasFetcher("nyk_test", srv.URL+"/", 0)
	ctx := context.Background()

	in, err := f.Fetch(ctx, "g1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "billing@aetna.com", in.Sender)
	assert.Equal(t, "Claim denied", in.Subject)
	assert.Equal(t, "Claim #12345 was denied .", in.Body)
	assert.Equal(t, "m1", in.MessageID)
	assert.Equal(t, "g1", in.GrantID)

	in, err = f.Fetch(ctx, "g1", "m2")
	require.NoError(t, err)
	assert.Empty(t, in.Sender)
	assert.Equal(t, "short", in.Body)

	_, err = f.Fetch(ctx, "g1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.Fetch(ctx, "g1", "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestNylasList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer nyk_test", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v3/grants/g1/messages":
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			assert.Equal(t, "INBOX", r.URL.Query().Get("in"))
			_, _ = w.Write([]byte(`{"data":[
				{"id":"m1","subject":"Claim denied","from":[{"email":"billing@aetna.com"}],"body":"<p>Denied</p>"},
				{"id":"m2","subject":"Refill","from":[{"email":"refills@cvs.com"}],"body":"","snippet":"Metformin"},
				{"id":"m3","subject":"extra","from":[{"email":"x@y.com"}]}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewNylasFetcher("nyk_test", srv.URL, 0)
	ctx := context.Background()

	got, err := f.List(ctx, "g1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2, "never more than limit")
	assert.Equal(t, "m1", got[0].MessageID)
	assert.Equal(t, "g1", got[0].GrantID)
	assert.Equal(t, "billing@aetna.com", got[0].Sender)
	assert.Equal(t, "Denied", got[0].Body)
	assert.Equal(t, "Metformin", got[1].Body)

	_, err = f.List(ctx, "unknown", 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func b64url(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestGmailInput(t *testing.T) {
	msg := &gmail.Message{
		Id:      "abc",
		Snippet: "snippet text",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "LabCorp Results <results@labcorp.com>"},
				{Name: "Subject", Value: "Critical value"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64url("<p>html</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64url("Potassium 6.8 mEq/L")}},
			},
		},
	}
	in := gmailInput(msg)
	assert.Equal(t, "results@labcorp.com", in.Sender)
	assert.Equal(t, "Critical value", in.Subject)
	assert.Equal(t, "Potassium 6.8 mEq/L", in.Body)
	assert.Equal(t, "abc", in.MessageID)

	msg.Payload.Parts = msg.Payload.Parts[:1]
	assert.Equal(t, "html", gmailInput(msg).Body)

	msg.Payload.Parts = nil
	assert.Equal(t, "snippet text", gmailInput(msg).Body)

	assert.Equal(t, "snippet text", gmailInput(&gmail.Message{Snippet: "snippet text"}).Body)
}

func TestGmailFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/messages/m1") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
			return
		}
		assert.Equal(t, "full", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "m1",
			"snippet": "snip",
			"payload": map[string]any{
				"mimeType": "text/plain",
				"headers": []map[string]string{
					{"name": "From", "value": "refills@cvs.com"},
					{"name": "Subject", "value": "Refill request"},
				},
				"body": map[string]string{"data": b64url("Metformin 500mg")},
			},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	f, err := NewGmailFetcherWithClient(ctx, srv.Client(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	in, err := f.Fetch(ctx, "", "m1")
	require.NoError(t, err)
	assert.Equal(t, "refills@cvs.com", in.Sender)
	assert.Equal(t, "Refill request", in.Subject)
	assert.Equal(t, "Metformin 500mg", in.Body)

	_, err = f.Fetch(ctx, "", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGmailList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			assert.Equal(t, "INBOX", r.URL.Query().Get("labelIds"))
			assert.Equal(t, "5", r.URL.Query().Get("maxResults"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"messages": []map[string]string{{"id": "a"}, {"id": "gone"}, {"id": "b"}},
			})
		case strings.HasSuffix(r.URL.Path, "/users/me/messages/a"), strings.HasSuffix(r.URL.Path, "/users/me/messages/b"):
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      id,
				"snippet": "snippet " + id,
				"payload": map[string]any{
					"mimeType": "text/plain",
					"headers":  []map[string]string{{"name": "From", "value": "lab@quest.com"}, {"name": "Subject", "value": "Result " + id}},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	f, err := NewGmailFetcherWithClient(ctx, srv.Client(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	got, err := f.List(ctx, "", 5)
	require.NoError(t, err)
	require.Len(t, got, 2, "messages deleted after listing are skipped")
	assert.Equal(t, "a", got[0].MessageID)
	assert.Equal(t, "Result a", got[0].Subject)
	assert.Equal(t, "snippet a", got[0].Body)
	assert.Equal(t, "b", got[1].MessageID)
}

func TestNewGmailFetcher_RequiresRefreshToken(t *testing.T) {
	_, err := NewGmailFetcher(context.Background(), "id", "secret", "")
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Fetch(context.Background(), "g", "m")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = Disabled{}.List(context.Background(), "g", 10)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

const rawMultipart = "From: \"Quest Alerts\" <alerts@questdiagnostics.com>\r\n" +
	"Subject: =?UTF-8?Q?STAT=3A_Potassium_Alert?=\r\n" +
	"Message-Id: <abc123@quest.example>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>ignored when plain exists</p>\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Critical potassium level =3D 6.8\r\n" +
	"--XYZ--\r\n"

func TestParseRaw(t *testing.T) {
	in, err := ParseRaw(strings.NewReader(rawMultipart))
	require.NoError(t, err)
	assert.Equal(t, "alerts@questdiagnostics.com", in.Sender)
	assert.Equal(t, "STAT: Potassium Alert", in.Subject)
	assert.Equal(t, "Critical potassium level = 6.8", in.Body)
	assert.Equal(t, in.Body, in.Snippet)
	assert.Equal(t, "abc123@quest.example", in.MessageID)
}

func TestParseRaw_Base64HTML(t *testing.T) {
	raw := "From: billing@medicaid.gov\r\n" +
		"Subject: Claim Denial\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		base64.StdEncoding.EncodeToString([]byte("<div>Missing <i>documentation</i></div>")) + "\r\n"
	in, err := ParseRaw(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "billing@medicaid.gov", in.Sender)
	assert.Equal(t, "Missing documentation", in.Body)
}

func TestParseRaw_Garbage(t *testing.T) {
	_, err := ParseRaw(strings.NewReader("not a message"))
	assert.Error(t, err)
}

func TestInboundJSON(t *testing.T) {
	in := InboundJSON(map[string]any{
		"envelope": map[string]any{"from": "records@hospital.org"},
		"headers":  map[string]any{"subject": "Records request"},
		"plain":    "Please send   records.",
	})
	assert.Equal(t, "records@hospital.org", in.Sender)
	assert.Equal(t, "Records request", in.Subject)
	assert.Equal(t, "Please send   records.", in.Body)
	assert.Equal(t, "Please send records.", in.Snippet)

	in = InboundJSON(map[string]any{"from": "Doctor Who <who@clinic.test>", "subject": "x", "text": "a", "body": "b"})
	assert.Equal(t, "who@clinic.test", in.Sender)
	assert.Equal(t, "a", in.Body)

	in = InboundJSON(map[string]any{"raw": rawMultipart})
	assert.Equal(t, "alerts@questdiagnostics.com", in.Sender)
	assert.Equal(t, "STAT: Potassium Alert", in.Subject)
}

func TestInboundForm(t *testing.T) {
	form := url.Values{}
	form.Set("sender", "pharmacy@walgreens.com")
	form.Set("subject", "Refill")
	form.Set("body-plain", "full body")
	form.Set("stripped-text", "stripped")
	in := InboundForm(form)
	assert.Equal(t, "pharmacy@walgreens.com", in.Sender)
	assert.Equal(t, "stripped", in.Body)

	form = url.Values{}
	form.Set("subject", "Override subject")
	form.Set("email", rawMultipart)
	in = InboundForm(form)
	assert.Equal(t, "alerts@questdiagnostics.com", in.Sender)
	assert.Equal(t, "Override subject", in.Subject)
	assert.Equal(t, "Critical potassium level = 6.8", in.Body)

	assert.Empty(t, InboundForm(url.Values{}).Sender)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "a & b", plainText("<style>x{}</style><p>a &amp; b</p>"))
	assert.Equal(t, "no tags here", plainText("  no\ttags\n here "))
}
