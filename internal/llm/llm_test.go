package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(provider, url string) Config {
	return Config{
		Provider:    provider,
		BaseURL:     url,
		APIKey:      "test-key",
		MaxRetries:  2,
		RateLimit:   1000,
		BaseBackoff: time.Millisecond,
	}
}

func TestAnthropicClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("Anthropic-Version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be terse", req.System)
		assert.Equal(t, 200, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"ok\":true}"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(testConfig("anthropic", srv.URL), nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "be terse", "hello", 200)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"yes"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(testConfig("openai", srv.URL), nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "sys", "user", 0)
	require.NoError(t, err)
	assert.Equal(t, "yes", out)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"done"}]}`))
		}
	}))
	defer srv.Close()

	c, err := NewClient(testConfig("anthropic", srv.URL), nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "", "hi", 10)
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCalls int32
		wantErr   string
	}{
		{"client error not retried", http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"bad prompt"}}`, 1, "bad prompt"},
		{"server errors exhaust retries", http.StatusInternalServerError, "boom", 3, "max retries exceeded"},
		{"empty content", http.StatusOK, `{"content":[]}`, 1, ErrEmptyResponse.Error()},
		{"unparseable body", http.StatusOK, `not json`, 1, "parsing response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewClient(testConfig("anthropic", srv.URL), nil)
			require.NoError(t, err)

			_, err = c.Complete(context.Background(), "", "hi", 10)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig("openai", srv.URL)
	cfg.BaseBackoff = time.Hour
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Complete(ctx, "", "hi", 10)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{Provider: "anthropic"}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(Config{Provider: "openai"}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(Config{Provider: "cohere", APIKey: "k"}, nil)
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"fence without language", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around", `Sure! {"a":{"b":2}} hope that helps`, `{"a":{"b":2}}`, false},
		{"no object", "I cannot help with that", "", true},
		{"reversed braces", "} nope {", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Belongs bool `json:"belongs"`
	}
	require.NoError(t, DecodeJSON("```json\n{\"belongs\": true}\n```", &v))
	assert.True(t, v.Belongs)

	assert.Error(t, DecodeJSON(`{"belongs": "maybe"`, &v))
}
