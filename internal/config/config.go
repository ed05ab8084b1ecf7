// Package config provides configuration loading for signald.
//
// Configuration comes from an optional YAML file, overridden by SIGNALD_*
// environment variables, on top of the values returned by Default.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config holds the complete signald configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Storage       StorageConfig       `koanf:"storage"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	LLM           LLMConfig           `koanf:"llm"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Queue         QueueConfig         `koanf:"queue"`
	Webhook       WebhookConfig       `koanf:"webhook"`
	Secrets       SecretsConfig       `koanf:"secrets"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds logging, metrics and OpenTelemetry settings.
type ObservabilityConfig struct {
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	OTLPProtocol    string `koanf:"otlp_protocol"`
	OTLPInsecure    bool   `koanf:"otlp_insecure"`
}

// StorageConfig holds the SQLite database location.
type StorageConfig struct {
	Path string `koanf:"path"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"` // tei, openai or fastembed
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
	APIKey    Secret `koanf:"api_key"`
	CacheDir  string `koanf:"cache_dir"`
	Dimension int    `koanf:"dimension"`
}

// LLMConfig configures the generative model used for extraction and
// classification verification.
type LLMConfig struct {
	Provider   string   `koanf:"provider"` // anthropic or openai
	BaseURL    string   `koanf:"base_url"`
	Model      string   `koanf:"model"`
	APIKey     Secret   `koanf:"api_key"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
	RateLimit  float64  `koanf:"rate_limit"`
}

// PipelineConfig tunes processing, classification and synthesis.
type PipelineConfig struct {
	BatchSize          int      `koanf:"batch_size"`
	BatchPause         Duration `koanf:"batch_pause"`
	ProcessTimeout     Duration `koanf:"process_timeout"`
	AutoLink           bool     `koanf:"auto_link"`
	DuplicateThreshold float64  `koanf:"duplicate_threshold"`
	ClusterThreshold   float64  `koanf:"cluster_threshold"`
	MinClusterSize     int      `koanf:"min_cluster_size"`
}

// NotificationsConfig holds the workspace notification thresholds.
type NotificationsConfig struct {
	MinClusterSize       int    `koanf:"min_cluster_size"`
	MinSeverity          string `koanf:"min_severity"`
	DuplicateSuppression bool   `koanf:"duplicate_suppression"`
	CooldownMinutes      int    `koanf:"cooldown_minutes"`
}

// QueueConfig selects the processing queue transport.
type QueueConfig struct {
	Driver     string `koanf:"driver"` // memory or nats
	Workers    int    `koanf:"workers"`
	Buffer     int    `koanf:"buffer"`
	NATSURL    string `koanf:"nats_url"`
	Subject    string `koanf:"subject"`
	QueueGroup string `koanf:"queue_group"`
}

// WebhookConfig protects the inbound webhook routes.
type WebhookConfig struct {
	GitHubSecret Secret  `koanf:"github_secret"`
	RateLimit    float64 `koanf:"rate_limit"`
	RateBurst    int     `koanf:"rate_burst"`
}

// SecretsConfig controls credential redaction before model calls.
type SecretsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:     "info",
			LogFormat:    "json",
			ServiceName:  "signald",
			OTLPEndpoint: "localhost:4317",
			OTLPProtocol: "grpc",
			OTLPInsecure: true,
		},
		Storage: StorageConfig{
			Path: "~/.local/share/signald/signald.db",
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "tei",
			BaseURL:   "http://localhost:8080",
			Model:     "BAAI/bge-small-en-v1.5",
			CacheDir:  "~/.cache/signald/models",
			Dimension: 384,
		},
		LLM: LLMConfig{
			Provider:   "anthropic",
			Timeout:    Duration(60 * time.Second),
			MaxRetries: 3,
			RateLimit:  50.0 / 60.0,
		},
		Pipeline: PipelineConfig{
			BatchSize:          10,
			BatchPause:         Duration(100 * time.Millisecond),
			ProcessTimeout:     Duration(2 * time.Minute),
			DuplicateThreshold: 0.85,
			ClusterThreshold:   0.8,
			MinClusterSize:     2,
		},
		Notifications: NotificationsConfig{
			MinClusterSize:       2,
			DuplicateSuppression: true,
			CooldownMinutes:      60,
		},
		Queue: QueueConfig{
			Driver:     "memory",
			Workers:    4,
			Buffer:     256,
			NATSURL:    "nats://127.0.0.1:4222",
			Subject:    "signald.signals.process",
			QueueGroup: "signald-workers",
		},
		Webhook: WebhookConfig{
			RateLimit: 1,
			RateBurst: 10,
		},
		Secrets: SecretsConfig{
			Enabled: true,
		},
	}
}

var (
	validEmbeddingProviders = []string{"tei", "openai", "fastembed"}
	validLLMProviders       = []string{"anthropic", "openai"}
	validQueueDrivers       = []string{"memory", "nats"}
	validSeverities         = []string{"critical", "high", "medium", "low"}
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Storage.Path == "" {
		return errors.New("storage path is required")
	}
	if !slices.Contains(validEmbeddingProviders, c.Embeddings.Provider) {
		return fmt.Errorf("unsupported embeddings provider %q", c.Embeddings.Provider)
	}
	if !slices.Contains(validLLMProviders, c.LLM.Provider) {
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm max_retries must be >= 0, got %d", c.LLM.MaxRetries)
	}
	if err := c.Pipeline.validate(); err != nil {
		return err
	}
	if s := c.Notifications.MinSeverity; s != "" && !slices.Contains(validSeverities, s) {
		return fmt.Errorf("notifications min_severity must be one of %s, got %q", strings.Join(validSeverities, ", "), s)
	}
	if c.Notifications.MinClusterSize < 1 {
		return fmt.Errorf("notifications min_cluster_size must be >= 1, got %d", c.Notifications.MinClusterSize)
	}
	if c.Notifications.CooldownMinutes < 0 {
		return fmt.Errorf("notifications cooldown_minutes must be >= 0, got %d", c.Notifications.CooldownMinutes)
	}
	if !slices.Contains(validQueueDrivers, c.Queue.Driver) {
		return fmt.Errorf("unsupported queue driver %q", c.Queue.Driver)
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue workers must be >= 1, got %d", c.Queue.Workers)
	}
	if c.Queue.Driver == "nats" && c.Queue.NATSURL == "" {
		return errors.New("queue nats_url required for nats driver")
	}
	return nil
}

func (p PipelineConfig) validate() error {
	if p.BatchSize < 1 {
		return fmt.Errorf("pipeline batch_size must be >= 1, got %d", p.BatchSize)
	}
	if p.MinClusterSize < 1 {
		return fmt.Errorf("pipeline min_cluster_size must be >= 1, got %d", p.MinClusterSize)
	}
	for name, v := range map[string]float64{
		"duplicate_threshold": p.DuplicateThreshold,
		"cluster_threshold":   p.ClusterThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("pipeline %s must be within [0,1], got %v", name, v)
		}
	}
	return nil
}
