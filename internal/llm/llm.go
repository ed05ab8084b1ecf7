// Package llm provides the text-completion capability used by extraction and
// classification verification.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/signald/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 1024
	defaultTimeout          = 60 * time.Second
	defaultMaxRetries       = 3
	defaultBaseBackoff      = 1 * time.Second

	// 50 requests per minute.
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

var (
	// ErrNotConfigured is returned when no API key is available.
	ErrNotConfigured = errors.New("llm not configured")

	// ErrEmptyResponse is returned when the API answers without text.
	ErrEmptyResponse = errors.New("empty response from API")

	// ErrNoJSON is returned by ExtractJSON when the text holds no object.
	ErrNoJSON = errors.New("no JSON object in response")
)

// Completer generates text for a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Config configures a Completer.
type Config struct {
	Provider    string
	BaseURL     string
	Model       string
	APIKey      string `json:"-"`
	Timeout     time.Duration
	MaxRetries  int
	RateLimit   float64
	Burst       int
	BaseBackoff time.Duration
}

// ConfigFrom converts the llm section of the daemon configuration.
func ConfigFrom(c config.LLMConfig) Config {
	return Config{
		Provider:   c.Provider,
		BaseURL:    c.BaseURL,
		Model:      c.Model,
		APIKey:     c.APIKey.Value(),
		Timeout:    c.Timeout.Duration(),
		MaxRetries: c.MaxRetries,
		RateLimit:  c.RateLimit,
	}
}

func (c *Config) applyDefaults(baseURL, model string) {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
}

// NewClient returns the Completer for cfg.Provider.
func NewClient(cfg Config, logger *zap.Logger) (Completer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "anthropic", "":
		return newAnthropicClient(cfg, logger)
	case "openai":
		return newOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

func newLimiter(cfg Config) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
}
