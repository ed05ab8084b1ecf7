// Package dedup finds near-duplicate signals and records merge and dismiss
// decisions.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fyrsmithlabs/signald/internal/embeddings"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/store"
	"go.uber.org/zap"
)

// DefaultMinSimilarity is the floor for a pair to count as a near-duplicate.
const DefaultMinSimilarity = 0.85

var (
	// ErrInvalidMerge is returned when the two signals cannot be merged.
	ErrInvalidMerge = errors.New("invalid merge")

	// ErrInvalidInput is returned for missing ids or actors.
	ErrInvalidInput = errors.New("invalid input")
)

// Store is the persistence the service needs.
type Store interface {
	GetSignal(ctx context.Context, id string) (*signal.Signal, error)
	ListSignals(ctx context.Context, opts store.ListOptions) ([]*signal.Signal, error)
	MergeSignals(ctx context.Context, primaryID, secondaryID, actorID string, at time.Time) error
	AddDismissal(ctx context.Context, d *signal.Dismissal) error
	DismissedWith(ctx context.Context, signalID string) (map[string]bool, error)
	DismissedPairs(ctx context.Context, workspaceID string) (map[[2]string]bool, error)
}

// Match is one candidate duplicate.
type Match struct {
	Signal     *signal.Signal `json:"signal"`
	Similarity float64        `json:"similarity"`
}

// Pair is two signals that look like duplicates. Primary is the older.
type Pair struct {
	Primary    *signal.Signal `json:"primary"`
	Secondary  *signal.Signal `json:"secondary"`
	Similarity float64        `json:"similarity"`
}

// Service implements deduplication.
type Service struct {
	store         Store
	logger        *zap.Logger
	minSimilarity float64
	now           func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMinSimilarity sets the near-duplicate floor.
func WithMinSimilarity(v float64) Option {
	return func(s *Service) { s.minSimilarity = v }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(st Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: st, logger: logger.Named("dedup"), minSimilarity: DefaultMinSimilarity, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// candidates are live signals of a workspace that can be compared.
var candidateStatuses = []signal.Status{signal.StatusPending, signal.StatusLinked}

// FindSimilarSignals ranks the workspace's other signals by similarity to
// signalID, most similar first. Merged signals and dismissed pairs are
// excluded, as are matches below the near-duplicate floor.
func (s *Service) FindSimilarSignals(ctx context.Context, signalID string, limit int) ([]Match, error) {
	target, err := s.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if !target.HasEmbedding() {
		return []Match{}, nil
	}

	others, err := s.store.ListSignals(ctx, store.ListOptions{
		WorkspaceID:   target.WorkspaceID,
		Statuses:      candidateStatuses,
		WithEmbedding: true,
	})
	if err != nil {
		return nil, err
	}
	dismissed, err := s.store.DismissedWith(ctx, signalID)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0)
	for _, other := range others {
		if other.ID == target.ID || dismissed[other.ID] {
			continue
		}
		sim := embeddings.Similarity(target.Embedding, other.Embedding)
		if sim < s.minSimilarity {
			continue
		}
		matches = append(matches, Match{Signal: other, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// FindDuplicatePairs scans the workspace for near-duplicate pairs, most
// similar first.
func (s *Service) FindDuplicatePairs(ctx context.Context, workspaceID string, limit int) ([]Pair, error) {
	sigs, err := s.store.ListSignals(ctx, store.ListOptions{
		WorkspaceID:   workspaceID,
		Statuses:      candidateStatuses,
		WithEmbedding: true,
	})
	if err != nil {
		return nil, err
	}
	dismissed, err := s.store.DismissedPairs(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	pairs := make([]Pair, 0)
	for i := 0; i < len(sigs); i++ {
		for j := i + 1; j < len(sigs); j++ {
			if dismissed[store.PairKey(sigs[i].ID, sigs[j].ID)] {
				continue
			}
			sim := embeddings.Similarity(sigs[i].Embedding, sigs[j].Embedding)
			if sim < s.minSimilarity {
				continue
			}
			primary, secondary := orderByAge(sigs[i], sigs[j])
			pairs = append(pairs, Pair{Primary: primary, Secondary: secondary, Similarity: sim})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs, nil
}

// Merge absorbs secondary into primary. The secondary becomes merged; both
// stay queryable.
func (s *Service) Merge(ctx context.Context, primaryID, secondaryID, actorID string) error {
	if primaryID == "" || secondaryID == "" || actorID == "" {
		return fmt.Errorf("%w: primary, secondary and actor are required", ErrInvalidInput)
	}
	if primaryID == secondaryID {
		return fmt.Errorf("%w: cannot merge a signal into itself", ErrInvalidMerge)
	}

	primary, err := s.store.GetSignal(ctx, primaryID)
	if err != nil {
		return err
	}
	secondary, err := s.store.GetSignal(ctx, secondaryID)
	if err != nil {
		return err
	}
	if primary.WorkspaceID != secondary.WorkspaceID {
		return fmt.Errorf("%w: signals belong to different workspaces", ErrInvalidMerge)
	}

	if err := s.store.MergeSignals(ctx, primaryID, secondaryID, actorID, s.now().UTC()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("%w: %v", ErrInvalidMerge, err)
		}
		return err
	}

	s.logger.Info("signals merged",
		zap.String("primary", primaryID),
		zap.String("secondary", secondaryID),
		zap.String("actor", actorID))
	return nil
}

// MergePair merges two signals choosing the older one as primary. It
// returns the primary id.
func (s *Service) MergePair(ctx context.Context, a, b, actorID string) (string, error) {
	if a == "" || b == "" {
		return "", fmt.Errorf("%w: two signal ids are required", ErrInvalidInput)
	}
	sa, err := s.store.GetSignal(ctx, a)
	if err != nil {
		return "", err
	}
	sb, err := s.store.GetSignal(ctx, b)
	if err != nil {
		return "", err
	}
	primary, secondary := orderByAge(sa, sb)
	if err := s.Merge(ctx, primary.ID, secondary.ID, actorID); err != nil {
		return "", err
	}
	return primary.ID, nil
}

// Dismiss records permanently that the pair is not a duplicate.
func (s *Service) Dismiss(ctx context.Context, signalID, otherID, actorID string) error {
	if signalID == "" || otherID == "" || actorID == "" {
		return fmt.Errorf("%w: signal, other and actor are required", ErrInvalidInput)
	}
	if signalID == otherID {
		return fmt.Errorf("%w: cannot dismiss a signal against itself", ErrInvalidInput)
	}
	for _, id := range []string{signalID, otherID} {
		if _, err := s.store.GetSignal(ctx, id); err != nil {
			return err
		}
	}

	err := s.store.AddDismissal(ctx, &signal.Dismissal{
		SignalID:    signalID,
		OtherID:     otherID,
		DismissedBy: actorID,
		DismissedAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}
	s.logger.Info("duplicate suggestion dismissed",
		zap.String("signal.id", signalID),
		zap.String("other", otherID),
		zap.String("actor", actorID))
	return nil
}

// orderByAge returns the older signal first. Equal timestamps fall back to
// id order so the choice is stable.
func orderByAge(a, b *signal.Signal) (*signal.Signal, *signal.Signal) {
	if b.CreatedAt.Before(a.CreatedAt) || (b.CreatedAt.Equal(a.CreatedAt) && b.ID < a.ID) {
		return b, a
	}
	return a, b
}
