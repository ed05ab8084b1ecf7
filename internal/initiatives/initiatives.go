// Package initiatives registers the externally owned initiatives that
// signals are classified against.
package initiatives

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/signald/internal/embeddings"
	"github.com/fyrsmithlabs/signald/internal/sanitize"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"go.uber.org/zap"
)

var (
	// ErrInvalidInput is returned when an initiative lacks an id, workspace
	// or name.
	ErrInvalidInput = errors.New("invalid initiative")

	// ErrNotEmbedded is returned when the initiative was stored but its
	// embedding could not be computed.
	ErrNotEmbedded = errors.New("initiative stored without embedding")
)

// Store is the persistence the registry needs.
type Store interface {
	UpsertInitiative(ctx context.Context, in *signal.Initiative) error
	GetInitiative(ctx context.Context, workspaceID, id string) (*signal.Initiative, error)
	ListInitiatives(ctx context.Context, workspaceID string) ([]*signal.Initiative, error)
}

// Registry keeps initiatives and their embeddings.
type Registry struct {
	store    Store
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// New creates a Registry.
func New(st Store, embedder embeddings.Embedder, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: st, embedder: embedder, logger: logger.Named("initiatives")}
}

// Upsert stores in with an embedding of its name and description. When
// embedding fails the initiative is still stored, without an embedding, and
// the error is returned.
func (r *Registry) Upsert(ctx context.Context, in *signal.Initiative) error {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := sanitize.ValidateWorkspaceID(in.WorkspaceID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := sanitize.ValidateID("initiative id", in.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var embedErr error
	in.Embedding = nil
	if r.embedder != nil {
		vec, err := r.embedder.Embed(ctx, in.Text())
		if err != nil {
			embedErr = fmt.Errorf("%w: %s: %w", ErrNotEmbedded, in.ID, err)
			r.logger.Warn("initiative stored without embedding",
				zap.String("workspace.id", in.WorkspaceID),
				zap.String("initiative.id", in.ID),
				zap.Error(err))
		} else {
			in.Embedding = vec
		}
	}

	if err := r.store.UpsertInitiative(ctx, in); err != nil {
		return err
	}
	r.logger.Info("initiative upserted",
		zap.String("workspace.id", in.WorkspaceID),
		zap.String("initiative.id", in.ID),
		zap.Bool("embedded", len(in.Embedding) > 0))
	return embedErr
}

// Get returns one initiative.
func (r *Registry) Get(ctx context.Context, workspaceID, id string) (*signal.Initiative, error) {
	return r.store.GetInitiative(ctx, workspaceID, id)
}

// List returns the workspace's initiatives.
func (r *Registry) List(ctx context.Context, workspaceID string) ([]*signal.Initiative, error) {
	out, err := r.store.ListInitiatives(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*signal.Initiative{}
	}
	return out, nil
}

// Reembed retries the embedding of every initiative in the workspace that
// has none. It returns how many were embedded and the first error seen.
func (r *Registry) Reembed(ctx context.Context, workspaceID string) (int, error) {
	all, err := r.store.ListInitiatives(ctx, workspaceID)
	if err != nil {
		return 0, err
	}
	var (
		done     int
		firstErr error
	)
	for _, in := range all {
		if len(in.Embedding) > 0 {
			continue
		}
		if err := r.Upsert(ctx, in); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		done++
	}
	return done, firstErr
}
