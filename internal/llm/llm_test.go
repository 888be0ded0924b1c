package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"zone":"STAT"}`, `{"zone":"STAT"}`},
		{"json fence", "```json\n{\"zone\":\"TODAY\"}\n```", `{"zone":"TODAY"}`},
		{"plain fence", "```\n{\"zone\":\"LATER\"}\n```", `{"zone":"LATER"}`},
		{"leading prose", "Here is the result:\n{\"a\":1}", `{"a":1}`},
		{"no object", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestDecodeJSON_Invalid(t *testing.T) {
	var v map[string]any
	err := DecodeJSON("the model refused", &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
}

func TestNoopIsNotConfigured(t *testing.T) {
	_, err := Noop{}.Complete(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, Configured(Noop{}))
	assert.False(t, Configured(nil))
	assert.True(t, Configured(NewOllamaClient("", "m", 0)))
}

func TestOllamaClient_Complete(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{\"zone\":\"STAT\"}"}}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.1", time.Second)
	out, err := c.Complete(context.Background(), "classify this")
	require.NoError(t, err)
	assert.Equal(t, `{"zone":"STAT"}`, out)
	assert.Equal(t, "llama3.1", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "classify this", got.Messages[0].Content)
}

func TestOllamaClient_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaClient(srv.URL, "missing", time.Second).Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "model not found")
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, maxTokens, req.MaxTokens)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "", time.Second).WithBaseURL(srv.URL)
	out, err := c.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient("k", "m", time.Second).WithBaseURL(srv.URL).Complete(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.True(t, Reachable(context.Background(), srv.URL))
	assert.False(t, Reachable(context.Background(), "http://127.0.0.1:1"))
}
