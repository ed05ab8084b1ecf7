package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTEIServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req struct {
			Inputs   any  `json:"inputs"`
			Truncate bool `json:"truncate"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		if status != http.StatusOK {
			http.Error(w, "model overloaded", status)
			return
		}

		n := 1
		if list, ok := req.Inputs.([]any); ok {
			n = len(list)
		}
		out := make([][]float32, n)
		for i := range out {
			out[i] = []float32{float32(i), 1, 0}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTEIProvider(t *testing.T) {
	srv := newTEIServer(t, http.StatusOK)
	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL + "/", Model: "bge", Dimension: 3})
	require.NoError(t, err)

	vec, err := p.EmbedQuery(context.Background(), "export is slow")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, vec)

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 3, p.Dimension())
	assert.NoError(t, p.Close())
}

func TestTEIProvider_Errors(t *testing.T) {
	srv := newTEIServer(t, http.StatusServiceUnavailable)
	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "503")

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = NewTEIProvider(TEIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{0.5, 0.5}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{
		BaseURL:   srv.URL,
		Model:     "text-embedding-3-small",
		APIKey:    "sk-test",
		Dimension: 2,
	})
	require.NoError(t, err)

	vec, err := p.EmbedQuery(context.Background(), "checkout button missing")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
	assert.Equal(t, 2, p.Dimension())
}

func TestOpenAIConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, OpenAIConfig{Model: "m"}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, OpenAIConfig{BaseURL: "http://x"}.Validate(), ErrInvalidConfig)
	assert.NoError(t, OpenAIConfig{BaseURL: "http://x", Model: "m"}.Validate())
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Provider: "tei", BaseURL: "http://localhost:8080", Model: "BAAI/bge-base-en-v1.5"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 768, p.Dimension())

	p, err = NewProvider(ProviderConfig{Provider: "openai", BaseURL: "http://localhost:8000/v1", Model: "text-embedding-3-small"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimension())

	p, err = NewProvider(ProviderConfig{Provider: "tei", BaseURL: "http://x", Model: "custom", Dimension: 99}, nil)
	require.NoError(t, err)
	assert.Equal(t, 99, p.Dimension())

	_, err = NewProvider(ProviderConfig{Provider: "word2vec"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDetectDimensionFromModel(t *testing.T) {
	tests := map[string]int{
		"BAAI/bge-small-en-v1.5": 384,
		"BAAI/bge-base-en-v1.5":  768,
		"intfloat/e5-large-v2":   1024,
		"text-embedding-3-large": 3072,
		"something-unknown":      384,
	}
	for model, want := range tests {
		assert.Equal(t, want, detectDimensionFromModel(model), model)
	}
}
