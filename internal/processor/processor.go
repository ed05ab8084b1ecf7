// Package processor enriches a signal with extracted fields and an
// embedding, exactly once per successful run.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/signald/internal/embeddings"
	"github.com/fyrsmithlabs/signald/internal/extraction"
	"github.com/fyrsmithlabs/signald/internal/logging"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/signald/internal/processor"

	// DefaultBatchSize is how many signals ProcessBatch runs at once.
	DefaultBatchSize = 10

	// DefaultBatchPause separates consecutive batch groups.
	DefaultBatchPause = 100 * time.Millisecond
)

// Store is the persistence the processor needs.
type Store interface {
	GetSignal(ctx context.Context, id string) (*signal.Signal, error)
	ClaimProcessing(ctx context.Context, id string, at time.Time) (bool, error)
	CompleteProcessing(ctx context.Context, id string, r store.ProcessingResult) error
	ReleaseProcessing(ctx context.Context, id string) error
}

// FieldExtractor extracts structured fields from verbatim text.
type FieldExtractor interface {
	Extract(ctx context.Context, verbatim string) extraction.Fields
}

// Classifier classifies a processed signal.
type Classifier interface {
	ClassifySignal(ctx context.Context, signalID string) (*signal.Classification, error)
}

// BatchResult counts ProcessBatch outcomes. Skipped ids were missing,
// already processed or claimed by another run; they count as neither
// processed nor failed.
type BatchResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Processor runs extraction and embedding for signals.
type Processor struct {
	store      Store
	extractor  FieldExtractor
	embedder   embeddings.Embedder
	classifier Classifier
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
	batchSize  int
	batchPause time.Duration
}

// Option configures a Processor.
type Option func(*Processor)

// WithClassifier classifies each signal after it is processed.
func WithClassifier(c Classifier) Option {
	return func(p *Processor) { p.classifier = c }
}

// WithBatchSize sets the ProcessBatch group size.
func WithBatchSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithBatchPause sets the pause between ProcessBatch groups.
func WithBatchPause(d time.Duration) Option {
	return func(p *Processor) {
		if d >= 0 {
			p.batchPause = d
		}
	}
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Processor) { p.tracer = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a Processor.
func New(st Store, extractor FieldExtractor, embedder embeddings.Embedder, logger *zap.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		store:      st,
		extractor:  extractor,
		embedder:   embedder,
		logger:     logger.Named("processor"),
		tracer:     otel.Tracer(instrumentationName),
		now:        time.Now,
		batchSize:  DefaultBatchSize,
		batchPause: DefaultBatchPause,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process enriches one signal. A missing or already processed signal is a
// no-op. On failure the processing claim is released, so a later call can
// retry, and the error is returned.
func (p *Processor) Process(ctx context.Context, signalID string) error {
	_, err := p.process(ctx, signalID)
	return err
}

// process reports whether it did the work; false with a nil error is a skip.
func (p *Processor) process(ctx context.Context, signalID string) (done bool, err error) {
	ctx = logging.WithSignalID(ctx, signalID)
	ctx, span := p.tracer.Start(ctx, "processor.Process",
		trace.WithAttributes(attribute.String("signal.id", signalID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	sig, err := p.store.GetSignal(ctx, signalID)
	if errors.Is(err, store.ErrNotFound) {
		p.logger.Info("signal not found, skipping", zap.String("signal.id", signalID))
		SignalsTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	if err != nil {
		SignalsTotal.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("loading signal %s: %w", signalID, err)
	}
	if sig.ProcessedAt != nil {
		p.logger.Debug("signal already processed", zap.String("signal.id", signalID))
		SignalsTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}

	claimed, err := p.store.ClaimProcessing(ctx, signalID, p.now())
	if err != nil {
		SignalsTotal.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("claiming signal %s: %w", signalID, err)
	}
	if !claimed {
		p.logger.Debug("signal claimed by another run", zap.String("signal.id", signalID))
		SignalsTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	span.SetAttributes(attribute.String("workspace.id", sig.WorkspaceID))

	start := time.Now()
	if stage, err := p.enrich(ctx, sig); err != nil {
		p.release(ctx, signalID)
		p.logger.Error("signal processing failed",
			zap.String("signal.id", signalID),
			zap.String("workspace.id", sig.WorkspaceID),
			zap.String("stage", stage),
			zap.Error(err))
		SignalsTotal.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("processing signal %s (%s): %w", signalID, stage, err)
	}
	ProcessingDuration.Observe(time.Since(start).Seconds())
	SignalsTotal.WithLabelValues("processed").Inc()

	p.logger.Info("signal processed",
		zap.String("signal.id", signalID),
		zap.Duration("took", time.Since(start)))

	if p.classifier != nil {
		if _, err := p.classifier.ClassifySignal(ctx, signalID); err != nil {
			p.logger.Warn("classification after processing failed",
				zap.String("signal.id", signalID),
				zap.Error(err))
		}
	}
	return true, nil
}

// enrich runs extraction and embedding concurrently and persists both. It
// returns the failing stage with the error.
func (p *Processor) enrich(ctx context.Context, sig *signal.Signal) (string, error) {
	var (
		fields extraction.Fields
		vec    []float32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fields = p.extractor.Extract(gctx, sig.Verbatim)
		return nil
	})
	g.Go(func() error {
		v, err := p.embedder.Embed(gctx, sig.Verbatim)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return "embedding", err
	}

	err := p.store.CompleteProcessing(ctx, sig.ID, store.ProcessingResult{
		Severity:         fields.Severity,
		Frequency:        fields.Frequency,
		UserSegment:      fields.UserSegment,
		AIInterpretation: fields.Interpretation,
		Embedding:        vec,
		ProcessedAt:      p.now(),
	})
	if err != nil {
		return "persist", err
	}
	return "", nil
}

// release clears the claim even when ctx is already cancelled.
func (p *Processor) release(ctx context.Context, signalID string) {
	if err := p.store.ReleaseProcessing(context.WithoutCancel(ctx), signalID); err != nil {
		p.logger.Error("failed to release processing claim",
			zap.String("signal.id", signalID),
			zap.Error(err))
	}
}

// ProcessBatch processes ids in groups, each group concurrently, pausing
// between groups. One failure never stops the rest of the batch; ids left
// when ctx is cancelled count as failed.
func (p *Processor) ProcessBatch(ctx context.Context, ids []string) BatchResult {
	var result BatchResult

	for start := 0; start < len(ids); start += p.batchSize {
		if start > 0 && p.batchPause > 0 {
			select {
			case <-time.After(p.batchPause):
			case <-ctx.Done():
				result.Failed += len(ids) - start
				return result
			}
		}
		if ctx.Err() != nil {
			result.Failed += len(ids) - start
			return result
		}

		end := min(start+p.batchSize, len(ids))
		group := ids[start:end]

		var (
			wg sync.WaitGroup
			mu sync.Mutex
		)
		for _, id := range group {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				done, err := p.process(ctx, id)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					result.Failed++
				case done:
					result.Processed++
				default:
					result.Skipped++
				}
			}(id)
		}
		wg.Wait()
	}

	p.logger.Info("batch processed",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	return result
}
