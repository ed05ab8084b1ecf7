package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Embedder is the capability the pipeline needs from this package.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service wraps a Provider with input validation and metrics.
type Service struct {
	provider Provider
	model    string
	metrics  *Metrics
	logger   *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics replaces the default global-meter metrics.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithModelName sets the model label recorded on metrics.
func WithModelName(model string) ServiceOption {
	return func(s *Service) { s.model = model }
}

// NewService wraps provider.
func NewService(provider Provider, logger *zap.Logger, opts ...ServiceOption) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{provider: provider, logger: logger, model: "unknown"}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil, logger)
	}
	return s, nil
}

// Embed returns the embedding of text. Failures are returned to the caller;
// there is no fallback vector.
func (s *Service) Embed(ctx context.Context, text string) (vec []float32, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordGeneration(ctx, s.model, "embed", time.Since(start), 1, err)
	}()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	vec, err = s.provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: provider returned an empty vector", ErrEmbeddingFailed)
	}
	return vec, nil
}

// EmbedBatch embeds several texts in one provider call.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) (vecs [][]float32, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordGeneration(ctx, s.model, "embed_batch", time.Since(start), len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vecs, err = s.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding batch: %w", err)
	}
	return vecs, nil
}

// Similarity is the cosine similarity used throughout the pipeline.
func (s *Service) Similarity(a, b []float32) float64 {
	return Similarity(a, b)
}

// Dimension returns the provider's dimension.
func (s *Service) Dimension() int {
	return s.provider.Dimension()
}

// Close releases the provider.
func (s *Service) Close() error {
	return s.provider.Close()
}
