// Package ingest turns inbound feedback into persisted, queued signals.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/signald/internal/sanitize"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	// ErrInvalidInput is returned for payloads that cannot become a signal.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIgnoredEvent is returned by ParseGitHubEvent for events that do not
	// carry feedback.
	ErrIgnoredEvent = errors.New("ignored event")
)

var ingestedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signald",
		Subsystem: "ingest",
		Name:      "signals_total",
		Help:      "Total number of ingested signals by source and result",
	},
	[]string{"source", "result"},
)

// Store is the persistence ingestion needs.
type Store interface {
	CreateSignal(ctx context.Context, sig *signal.Signal) error
	FindBySourceRef(ctx context.Context, workspaceID, sourceType, sourceRef string) (*signal.Signal, error)
}

// Enqueuer schedules processing of a signal.
type Enqueuer interface {
	Enqueue(ctx context.Context, signalID string) error
}

// Input is a raw signal before persistence.
type Input struct {
	WorkspaceID    string         `json:"-"`
	Verbatim       string         `json:"verbatim"`
	Interpretation string         `json:"interpretation,omitempty"`
	Severity       string         `json:"severity,omitempty"`
	Frequency      string         `json:"frequency,omitempty"`
	UserSegment    string         `json:"userSegment,omitempty"`
	SourceType     string         `json:"-"`
	SourceRef      string         `json:"sourceRef,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
}

// Result reports what Ingest did.
type Result struct {
	SignalID string `json:"signalId"`
	Created  bool   `json:"created"`
}

// Service persists signals and enqueues them.
type Service struct {
	store  Store
	queue  Enqueuer
	logger *zap.Logger
}

// New creates a Service.
func New(st Store, queue Enqueuer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, queue: queue, logger: logger.Named("ingest")}
}

// Ingest stores in as a pending signal and enqueues it for processing.
// A repeated source reference returns the existing signal without
// enqueueing it again. Severity and frequency outside their enums are
// dropped.
func (s *Service) Ingest(ctx context.Context, in Input) (*Result, error) {
	in.Verbatim = strings.TrimSpace(in.Verbatim)
	in.WorkspaceID = strings.TrimSpace(in.WorkspaceID)
	in.SourceRef = strings.TrimSpace(in.SourceRef)
	if err := sanitize.ValidateWorkspaceID(in.WorkspaceID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.Verbatim == "" {
		return nil, fmt.Errorf("%w: verbatim is required", ErrInvalidInput)
	}
	in.SourceType = sanitize.SourceName(in.SourceType, "api")

	if in.SourceRef != "" {
		if existing, err := s.existing(ctx, in); err != nil || existing != nil {
			return existing, err
		}
	}

	sig := &signal.Signal{
		WorkspaceID:    in.WorkspaceID,
		Verbatim:       in.Verbatim,
		Interpretation: optional(in.Interpretation),
		Severity:       signal.ParseSeverity(in.Severity),
		Frequency:      signal.ParseFrequency(in.Frequency),
		UserSegment:    optional(in.UserSegment),
		SourceType:     in.SourceType,
		SourceRef:      in.SourceRef,
		SourceMetadata: in.Metadata,
		Tags:           in.Tags,
	}
	if err := s.store.CreateSignal(ctx, sig); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a race with a concurrent delivery of the same ref.
			if existing, ferr := s.existing(ctx, in); ferr != nil || existing != nil {
				return existing, ferr
			}
		}
		return nil, fmt.Errorf("storing signal: %w", err)
	}
	ingestedTotal.WithLabelValues(in.SourceType, "created").Inc()

	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, sig.ID); err != nil {
			s.logger.Warn("enqueue failed, signal left for batch processing",
				zap.String("signal.id", sig.ID),
				zap.String("workspace.id", sig.WorkspaceID),
				zap.Error(err))
		}
	}

	s.logger.Info("signal ingested",
		zap.String("signal.id", sig.ID),
		zap.String("workspace.id", sig.WorkspaceID),
		zap.String("source", sig.SourceType))
	return &Result{SignalID: sig.ID, Created: true}, nil
}

func (s *Service) existing(ctx context.Context, in Input) (*Result, error) {
	sig, err := s.store.FindBySourceRef(ctx, in.WorkspaceID, in.SourceType, in.SourceRef)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up source ref: %w", err)
	}
	ingestedTotal.WithLabelValues(in.SourceType, "duplicate").Inc()
	s.logger.Debug("re-delivered signal ignored",
		zap.String("signal.id", sig.ID),
		zap.String("source_ref", in.SourceRef))
	return &Result{SignalID: sig.ID, Created: false}, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
