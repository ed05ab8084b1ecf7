package store

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/signald/internal/signal"
)

// pairKey orders a pair so (a, b) and (b, a) are the same row.
func pairKey(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// AddDismissal records that the pair is not a duplicate. Recording the same
// pair twice keeps the first record.
func (s *Store) AddDismissal(ctx context.Context, d *signal.Dismissal) error {
	if d.DismissedAt.IsZero() {
		d.DismissedAt = s.now().UTC()
	}
	a, b := pairKey(d.SignalID, d.OtherID)
	_, err := s.db.ExecContext(ctx, `INSERT INTO dismissals (signal_a, signal_b, dismissed_by, dismissed_at)
		VALUES (?, ?, ?, ?) ON CONFLICT (signal_a, signal_b) DO NOTHING`,
		a, b, d.DismissedBy, micros(d.DismissedAt))
	if err != nil {
		return fmt.Errorf("recording dismissal: %w", err)
	}
	return nil
}

// DismissedWith returns the ids dismissed as duplicates of signalID.
func (s *Store) DismissedWith(ctx context.Context, signalID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT signal_b FROM dismissals WHERE signal_a = ?
		UNION SELECT signal_a FROM dismissals WHERE signal_b = ?`, signalID, signalID)
	if err != nil {
		return nil, fmt.Errorf("listing dismissals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// DismissedPairs returns every dismissed pair touching the workspace, keyed
// by the ordered pair.
func (s *Store) DismissedPairs(ctx context.Context, workspaceID string) (map[[2]string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT d.signal_a, d.signal_b FROM dismissals d
		JOIN signals s ON s.id = d.signal_a WHERE s.workspace_id = ?`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing dismissed pairs: %w", err)
	}
	defer rows.Close()

	out := make(map[[2]string]bool)
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		out[[2]string{a, b}] = true
	}
	return out, rows.Err()
}

// PairKey returns the key DismissedPairs uses for a and b.
func PairKey(a, b string) [2]string {
	x, y := pairKey(a, b)
	return [2]string{x, y}
}
