package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/classification"
	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/dedup"
	"github.com/fyrsmithlabs/signald/internal/embeddings"
	"github.com/fyrsmithlabs/signald/internal/extraction"
	"github.com/fyrsmithlabs/signald/internal/ingest"
	"github.com/fyrsmithlabs/signald/internal/initiatives"
	"github.com/fyrsmithlabs/signald/internal/llm"
	"github.com/fyrsmithlabs/signald/internal/notify"
	"github.com/fyrsmithlabs/signald/internal/processor"
	"github.com/fyrsmithlabs/signald/internal/queue"
	"github.com/fyrsmithlabs/signald/internal/secrets"
	"github.com/fyrsmithlabs/signald/internal/services"
	"github.com/fyrsmithlabs/signald/internal/store"
	"github.com/fyrsmithlabs/signald/internal/synthesis"
)

// dependencies holds infrastructure clients.
type dependencies struct {
	store     *store.Store
	embedder  *embeddings.Service
	completer llm.Completer
	redactor  secrets.Redactor
	natsConn  *nats.Conn
	logger    *zap.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.embedder != nil {
		if err := d.embedder.Close(); err != nil {
			d.logger.Warn("closing embedder", zap.Error(err))
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("closing store", zap.Error(err))
		}
	}
}

// initDependencies opens storage and the model clients, and connects to
// NATS when that queue driver is selected. A missing LLM key degrades
// extraction and verification instead of failing startup.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *dependencies, err error) {
	deps := &dependencies{logger: logger}
	defer func() {
		if err != nil {
			deps.Close()
		}
	}()

	deps.store, err = store.Open(ctx, cfg.Storage.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		CacheDir:  cfg.Embeddings.CacheDir,
		Dimension: cfg.Embeddings.Dimension,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embeddings provider: %w", err)
	}
	deps.embedder, err = embeddings.NewService(provider, logger, embeddings.WithModelName(cfg.Embeddings.Model))
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}
	logger.Info("embedding service initialized",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", cfg.Embeddings.Model),
		zap.Int("dimension", deps.embedder.Dimension()))

	if cfg.LLM.APIKey.IsSet() {
		deps.completer, err = llm.NewClient(llm.ConfigFrom(cfg.LLM), logger)
		if err != nil {
			return nil, fmt.Errorf("creating llm client: %w", err)
		}
	} else {
		logger.Warn("no llm api key configured, extraction and verification disabled",
			zap.String("provider", cfg.LLM.Provider))
	}

	deps.redactor, err = secrets.New(cfg.Secrets, logger)
	if err != nil {
		return nil, fmt.Errorf("creating secret redactor: %w", err)
	}

	if cfg.Queue.Driver == "nats" {
		deps.natsConn, err = nats.Connect(cfg.Queue.NATSURL,
			nats.Name("signald"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Queue.NATSURL, err)
		}
		logger.Info("connected to NATS", zap.String("url", cfg.Queue.NATSURL))
	}

	return deps, nil
}

// application is the wired pipeline.
type application struct {
	registry services.Registry
	queue    queue.Queue
}

// initServices builds the pipeline on top of deps.
func initServices(cfg *config.Config, deps *dependencies, logger *zap.Logger) (*application, error) {
	var verifier classification.Verifier
	if deps.completer != nil {
		verifier = classification.NewLLMVerifier(deps.completer, deps.redactor, logger)
	}
	classifier := classification.New(deps.store, verifier, logger,
		classification.WithAutoLink(cfg.Pipeline.AutoLink))

	extractor := extraction.New(deps.completer, logger, extraction.WithRedactor(deps.redactor))
	proc := processor.New(deps.store, extractor, deps.embedder, logger,
		processor.WithClassifier(classifier),
		processor.WithBatchSize(cfg.Pipeline.BatchSize),
		processor.WithBatchPause(cfg.Pipeline.BatchPause.Duration()))

	q, err := newQueue(cfg, deps, proc, logger)
	if err != nil {
		return nil, err
	}

	reg := services.NewRegistry(services.Options{
		Store:      deps.store,
		Ingest:     ingest.New(deps.store, q, logger),
		Processor:  proc,
		Classifier: classifier,
		Dedup:      dedup.New(deps.store, logger, dedup.WithMinSimilarity(cfg.Pipeline.DuplicateThreshold)),
		Synthesis: synthesis.New(deps.store, logger,
			synthesis.WithThreshold(cfg.Pipeline.ClusterThreshold),
			synthesis.WithMinClusterSize(cfg.Pipeline.MinClusterSize)),
		Notifier:    notify.New(deps.store, notify.ThresholdsFrom(cfg.Notifications), logger),
		Initiatives: initiatives.New(deps.store, deps.embedder, logger),
		Redactor:    deps.redactor,
	})
	return &application{registry: reg, queue: q}, nil
}

// newQueue selects the processing transport. Both drivers run tasks on a
// local worker pool.
func newQueue(cfg *config.Config, deps *dependencies, proc *processor.Processor, logger *zap.Logger) (queue.Queue, error) {
	pool := queue.NewPool(proc.Process, queue.PoolConfig{
		Workers: cfg.Queue.Workers,
		Buffer:  cfg.Queue.Buffer,
		Timeout: cfg.Pipeline.ProcessTimeout.Duration(),
	}, logger)

	switch cfg.Queue.Driver {
	case "memory", "":
		return pool, nil
	case "nats":
		if deps.natsConn == nil {
			return nil, errors.New("nats queue selected without a connection")
		}
		return queue.NewNATS(deps.natsConn, queue.NATSConfig{
			Subject:    cfg.Queue.Subject,
			QueueGroup: cfg.Queue.QueueGroup,
		}, pool, logger)
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.Queue.Driver)
	}
}
