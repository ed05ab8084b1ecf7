// Package classification matches signals against a workspace's existing
// initiatives.
//
// Embedding similarity decides at the extremes. Only the ambiguous band in
// between is escalated to a verifier, and a verifier outage degrades to a
// fixed secondary threshold instead of blocking classification.
package classification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/signald/internal/embeddings"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"go.uber.org/zap"
)

const (
	// HighThreshold: similarity above it is accepted without verification.
	HighThreshold = 0.75

	// LowThreshold: similarity below it is a new initiative.
	LowThreshold = 0.5

	// FallbackThreshold decides the ambiguous band when the verifier fails.
	FallbackThreshold = 0.6

	// NoCandidatesConfidence is reported when nothing can be compared.
	NoCandidatesConfidence = 0.9

	// ReasonNoCandidates is the reason recorded when nothing can be compared.
	ReasonNoCandidates = "no comparable initiatives"
)

var (
	// ErrNoEmbedding is returned for signals that have not been processed.
	ErrNoEmbedding = errors.New("signal has no embedding")
)

// Store is the persistence the engine needs.
type Store interface {
	GetSignal(ctx context.Context, id string) (*signal.Signal, error)
	ListInitiatives(ctx context.Context, workspaceID string) ([]*signal.Initiative, error)
	SaveClassification(ctx context.Context, id string, c *signal.Classification, link bool) error
}

// Input is what Classify needs about a signal.
type Input struct {
	SignalID    string
	Embedding   []float32
	Verbatim    string
	WorkspaceID string
}

// Engine classifies signals.
type Engine struct {
	store    Store
	verifier Verifier
	logger   *zap.Logger
	autoLink bool
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAutoLink links pending signals to the matched initiative.
func WithAutoLink(enabled bool) Option {
	return func(e *Engine) { e.autoLink = enabled }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. A nil verifier behaves like one that always fails.
func New(st Store, verifier Verifier, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{store: st, verifier: verifier, logger: logger.Named("classification"), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ClassifySignal loads the signal and classifies it.
func (e *Engine) ClassifySignal(ctx context.Context, signalID string) (*signal.Classification, error) {
	sig, err := e.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if !sig.HasEmbedding() {
		return nil, fmt.Errorf("classifying %s: %w", signalID, ErrNoEmbedding)
	}
	return e.Classify(ctx, Input{
		SignalID:    sig.ID,
		Embedding:   sig.Embedding,
		Verbatim:    sig.Verbatim,
		WorkspaceID: sig.WorkspaceID,
	})
}

// Classify decides the signal's initiative and persists the result before
// returning it.
func (e *Engine) Classify(ctx context.Context, in Input) (*signal.Classification, error) {
	if len(in.Embedding) == 0 {
		return nil, fmt.Errorf("classifying %s: %w", in.SignalID, ErrNoEmbedding)
	}

	initiatives, err := e.store.ListInitiatives(ctx, in.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("loading initiatives: %w", err)
	}

	c := e.decide(ctx, in, initiatives)
	c.ClassifiedAt = e.now().UTC()

	if err := e.store.SaveClassification(ctx, in.SignalID, c, e.autoLink); err != nil {
		return nil, fmt.Errorf("saving classification: %w", err)
	}

	outcome := "matched"
	if c.IsNewInitiative {
		outcome = "new_initiative"
	}
	ClassificationsTotal.WithLabelValues(string(c.Method), outcome).Inc()
	e.logger.Info("signal classified",
		zap.String("signal.id", in.SignalID),
		zap.String("method", string(c.Method)),
		zap.Bool("new_initiative", c.IsNewInitiative),
		zap.String("project.id", c.MatchedProjectID),
		zap.Float64("confidence", c.Confidence))
	return c, nil
}

func (e *Engine) decide(ctx context.Context, in Input, initiatives []*signal.Initiative) *signal.Classification {
	best, sim := bestMatch(in.Embedding, initiatives)
	if best == nil {
		return &signal.Classification{
			IsNewInitiative: true,
			Confidence:      NoCandidatesConfidence,
			Method:          signal.MethodEmbedding,
			Reason:          ReasonNoCandidates,
		}
	}

	switch {
	case sim > HighThreshold:
		return matched(best, sim, signal.MethodEmbedding,
			fmt.Sprintf("embedding similarity %.2f to %q is above %.2f", sim, best.Name, HighThreshold))
	case sim < LowThreshold:
		return newInitiative(1-sim, signal.MethodEmbedding,
			fmt.Sprintf("best embedding similarity %.2f (%q) is below %.2f", sim, best.Name, LowThreshold))
	}

	verdict, err := e.verify(ctx, in.Verbatim, best)
	if err != nil {
		VerifierFailuresTotal.Inc()
		e.logger.Warn("verifier unavailable, using fallback threshold",
			zap.String("signal.id", in.SignalID),
			zap.Error(err))
		if sim > FallbackThreshold {
			return matched(best, sim, signal.MethodEmbedding,
				fmt.Sprintf("verifier unavailable; similarity %.2f to %q is above fallback %.2f", sim, best.Name, FallbackThreshold))
		}
		return newInitiative(1-sim, signal.MethodEmbedding,
			fmt.Sprintf("verifier unavailable; similarity %.2f to %q is not above fallback %.2f", sim, best.Name, FallbackThreshold))
	}

	if verdict.Belongs {
		return matched(best, verdict.Confidence, signal.MethodLLM, verdict.Reason)
	}
	return newInitiative(verdict.Confidence, signal.MethodLLM, verdict.Reason)
}

func (e *Engine) verify(ctx context.Context, verbatim string, initiative *signal.Initiative) (Verdict, error) {
	if e.verifier == nil {
		return Verdict{}, errors.New("no verifier configured")
	}
	return e.verifier.Verify(ctx, verbatim, initiative)
}

// bestMatch returns the initiative most similar to vec among those with an
// embedding. Ties keep the earlier initiative.
func bestMatch(vec []float32, initiatives []*signal.Initiative) (*signal.Initiative, float64) {
	var (
		best    *signal.Initiative
		bestSim float64
	)
	for _, in := range initiatives {
		if len(in.Embedding) == 0 {
			continue
		}
		sim := embeddings.Similarity(vec, in.Embedding)
		if best == nil || sim > bestSim {
			best, bestSim = in, sim
		}
	}
	return best, bestSim
}

func matched(in *signal.Initiative, confidence float64, method signal.Method, reason string) *signal.Classification {
	return &signal.Classification{
		MatchedProjectID:   in.ID,
		MatchedProjectName: in.Name,
		Confidence:         confidence,
		Method:             method,
		Reason:             reason,
	}
}

func newInitiative(confidence float64, method signal.Method, reason string) *signal.Classification {
	return &signal.Classification{
		IsNewInitiative: true,
		Confidence:      confidence,
		Method:          method,
		Reason:          reason,
	}
}
