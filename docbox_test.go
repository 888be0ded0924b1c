package docbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

type stubLLM struct{}

func (stubLLM) Complete(context.Context, string) (string, error) {
	return "", errors.New("offline")
}

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, _, messageID string) (Email, error) {
	return Email{
		Sender:  "Billing Dept <billing@payer.test>",
		Subject: "Claim " + messageID,
		Body:    "Claim   denied.\nPlease   resubmit.",
	}, nil
}

func TestEmailToInput(t *testing.T) {
	in := Email{
		Sender:  " Dr Lee <lee@clinic.test> ",
		Subject: "  Labs  ",
		Body:    "line one\n\nline   two",
	}.toInput()

	assert.Equal(t, "lee@clinic.test", in.Sender)
	assert.Equal(t, "Labs", in.Subject)
	assert.Equal(t, "line one line two", in.Snippet)

	long := Email{Sender: "a@b.test", Body: strings.Repeat("x", 300)}.toInput()
	assert.Len(t, long.Snippet, snippetRunes)

	kept := Email{Sender: "a@b.test", Body: "body", Snippet: "given"}.toInput()
	assert.Equal(t, "given", kept.Snippet)
}

func TestNewWiresExtensions(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var sawRequest bool
	app, err := New(ctx,
		WithSQLitePath(filepath.Join(t.TempDir(), "app.db")),
		WithLogger(logger),
		WithVersion("1.2.3"),
		WithLLM(stubLLM{}),
		WithMailFetcher(stubFetcher{}),
		WithExtraRoutes(func(mux *http.ServeMux) {
			mux.HandleFunc("GET /ext/ping", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("pong"))
			})
		}),
		WithMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sawRequest = true
				next.ServeHTTP(w, r)
			})
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sawRequest)

	var health struct {
		Data model.HealthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "1.2.3", health.Data.Version)
	assert.True(t, health.Data.LLMConfigured)

	// Extra routes sit behind the auth chain.
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ext/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The external fetcher feeds the Shadow Router; the failing model
	// leaves a degraded ADMIN vector for the front desk.
	res, err := app.shadow.ProcessRemote(ctx, "g-1", "m-1")
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "m-1", res.Vector.NylasMessageID)
	assert.Equal(t, "g-1", res.Vector.GrantID)
	assert.Equal(t, model.IntentAdmin, res.Vector.IntentLabel)
	require.NotNil(t, res.Vector.CurrentOwnerRole)
	assert.Equal(t, model.RoleFrontDesk, *res.Vector.CurrentOwnerRole)
}
