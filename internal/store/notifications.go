package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/google/uuid"
)

// CreateNotification inserts n, assigning an id and creation time when
// they are empty.
func (s *Store) CreateNotification(ctx context.Context, n *signal.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	meta, err := marshalJSON(n.Metadata)
	if err != nil {
		return fmt.Errorf("encoding notification metadata: %w", err)
	}
	var clusterID any
	if n.ClusterID != "" {
		clusterID = n.ClusterID
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO notifications (
		id, workspace_id, type, title, message, priority, cluster_id, cluster_size, cluster_severity, metadata, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.WorkspaceID, n.Type, n.Title, n.Message, string(n.Priority), clusterID,
		n.ClusterSize, nullEnum(n.ClusterSeverity), meta, micros(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

// HasRecentNotification reports whether a notification for clusterID was
// created in the workspace at or after since.
func (s *Store) HasRecentNotification(ctx context.Context, workspaceID, clusterID string, since time.Time) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM notifications WHERE workspace_id = ? AND cluster_id = ? AND created_at >= ?
	)`, workspaceID, clusterID, micros(since)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking recent notifications: %w", err)
	}
	return exists == 1, nil
}

// ListNotifications returns the newest notifications first.
func (s *Store) ListNotifications(ctx context.Context, workspaceID string, limit int) ([]*signal.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, workspace_id, type, title, message, priority,
		cluster_id, cluster_size, cluster_severity, metadata, created_at
		FROM notifications WHERE workspace_id = ? ORDER BY created_at DESC, id LIMIT ?`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []*signal.Notification
	for rows.Next() {
		var (
			n                             signal.Notification
			priority                      string
			clusterID, severity, metadata sql.NullString
			createdAt                     int64
		)
		if err := rows.Scan(&n.ID, &n.WorkspaceID, &n.Type, &n.Title, &n.Message, &priority,
			&clusterID, &n.ClusterSize, &severity, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.Priority = signal.Priority(priority)
		n.ClusterID = clusterID.String
		if severity.Valid {
			n.ClusterSeverity = signal.ParseSeverity(severity.String)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &n.Metadata); err != nil {
				return nil, fmt.Errorf("notification %s: decoding metadata: %w", n.ID, err)
			}
		}
		n.CreatedAt = fromMicros(createdAt)
		out = append(out, &n)
	}
	return out, rows.Err()
}
