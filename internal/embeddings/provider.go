package embeddings

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Provider produces embeddings for text.
type Provider interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the configured model.
	Dimension() int
	Close() error
}

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	// Provider is "tei", "openai" or "fastembed".
	Provider string
	Model    string
	// BaseURL is used by tei and openai.
	BaseURL string
	// APIKey is used by openai.
	APIKey string
	// CacheDir holds downloaded fastembed models.
	CacheDir string
	// Dimension overrides the dimension inferred from the model name.
	Dimension int
}

// NewProvider creates the configured provider.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = detectDimensionFromModel(cfg.Model)
	}

	switch cfg.Provider {
	case "tei", "":
		return NewTEIProvider(TEIConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, Dimension: dim})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: dim,
		})
	case "fastembed":
		path, err := EnsureONNXRuntime(context.Background(), logger)
		if err != nil {
			return nil, err
		}
		logger.Info("onnx runtime ready", zap.String("path", path))
		return NewFastEmbedProvider(FastEmbedConfig{Model: cfg.Model, CacheDir: cfg.CacheDir})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// detectDimensionFromModel guesses the dimension from a model name, falling
// back to 384 (bge-small).
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "text-embedding-3-large"):
		return 3072
	case strings.Contains(m, "text-embedding-3-small"), strings.Contains(m, "ada-002"):
		return 1536
	case strings.Contains(m, "large"):
		return 1024
	case strings.Contains(m, "base"):
		return 768
	default:
		return 384
	}
}
