package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/signald/internal/embeddings"
	"github.com/fyrsmithlabs/signald/internal/signal"
)

// UpsertInitiative inserts or replaces an initiative.
func (s *Store) UpsertInitiative(ctx context.Context, in *signal.Initiative) error {
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = s.now().UTC()
	}
	var emb any
	if len(in.Embedding) > 0 {
		emb = embeddings.Encode(in.Embedding)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO initiatives (workspace_id, id, name, description, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (workspace_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`,
		in.WorkspaceID, in.ID, in.Name, in.Description, emb, micros(in.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting initiative %s: %w", in.ID, err)
	}
	return nil
}

// GetInitiative loads one initiative.
func (s *Store) GetInitiative(ctx context.Context, workspaceID, id string) (*signal.Initiative, error) {
	row := s.db.QueryRowContext(ctx, `SELECT workspace_id, id, name, description, embedding, updated_at
		FROM initiatives WHERE workspace_id = ? AND id = ?`, workspaceID, id)
	in, err := scanInitiative(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("initiative %s: %w", id, ErrNotFound)
	}
	return in, err
}

// ListInitiatives returns the workspace's initiatives ordered by name.
func (s *Store) ListInitiatives(ctx context.Context, workspaceID string) ([]*signal.Initiative, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT workspace_id, id, name, description, embedding, updated_at
		FROM initiatives WHERE workspace_id = ? ORDER BY name, id`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing initiatives: %w", err)
	}
	defer rows.Close()

	var out []*signal.Initiative
	for rows.Next() {
		in, err := scanInitiative(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func scanInitiative(row rowScanner) (*signal.Initiative, error) {
	var (
		in        signal.Initiative
		emb       sql.NullString
		updatedAt int64
	)
	if err := row.Scan(&in.WorkspaceID, &in.ID, &in.Name, &in.Description, &emb, &updatedAt); err != nil {
		return nil, err
	}
	in.UpdatedAt = fromMicros(updatedAt)
	if emb.Valid && emb.String != "" {
		vec, err := embeddings.Decode(emb.String)
		if err != nil {
			return nil, fmt.Errorf("initiative %s: %w", in.ID, err)
		}
		in.Embedding = vec
	}
	return &in, nil
}
