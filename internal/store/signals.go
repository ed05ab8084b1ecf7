package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/signald/internal/embeddings"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const signalColumns = `id, workspace_id, project_id, verbatim, interpretation, severity, frequency,
	user_segment, ai_interpretation, embedding, classification, status, processed_at,
	source_type, source_ref, source_metadata, tags, merged_into, merged_by, merged_at,
	created_at, updated_at`

// CreateSignal inserts sig as a new pending, unprocessed signal. ID and
// timestamps are assigned when empty. A repeated (workspace, source type,
// source ref) returns ErrConflict.
func (s *Store) CreateSignal(ctx context.Context, sig *signal.Signal) error {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = now
	}
	sig.UpdatedAt = now
	if sig.Status == "" {
		sig.Status = signal.StatusPending
	}
	if sig.SourceType == "" {
		sig.SourceType = "api"
	}

	meta, err := marshalJSON(sig.SourceMetadata)
	if err != nil {
		return fmt.Errorf("encoding source metadata: %w", err)
	}
	tags, err := marshalJSON(sig.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	var sourceRef any
	if sig.SourceRef != "" {
		sourceRef = sig.SourceRef
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO signals (
		id, workspace_id, project_id, verbatim, interpretation, severity, frequency,
		user_segment, status, source_type, source_ref, source_metadata, tags,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.WorkspaceID, nullString(sig.ProjectID), sig.Verbatim, nullString(sig.Interpretation),
		nullEnum(sig.Severity), nullEnum(sig.Frequency), nullString(sig.UserSegment),
		string(sig.Status), sig.SourceType, sourceRef, meta, tags,
		micros(sig.CreatedAt), micros(sig.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: signal %s/%s already exists", ErrConflict, sig.SourceType, sig.SourceRef)
	}
	if err != nil {
		return fmt.Errorf("inserting signal: %w", err)
	}
	return nil
}

// GetSignal loads a signal by id.
func (s *Store) GetSignal(ctx context.Context, id string) (*signal.Signal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading signal %s: %w", id, err)
	}
	return sig, nil
}

// FindBySourceRef returns the signal previously ingested from the same
// source reference.
func (s *Store) FindBySourceRef(ctx context.Context, workspaceID, sourceType, sourceRef string) (*signal.Signal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE workspace_id = ? AND source_type = ? AND source_ref = ?`, workspaceID, sourceType, sourceRef)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("signal %s/%s: %w", sourceType, sourceRef, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading signal by source ref: %w", err)
	}
	return sig, nil
}

// ListOptions filters ListSignals.
type ListOptions struct {
	WorkspaceID   string
	Statuses      []signal.Status
	WithEmbedding bool
	Limit         int
}

// ListSignals returns the workspace's signals oldest first.
func (s *Store) ListSignals(ctx context.Context, opts ListOptions) ([]*signal.Signal, error) {
	var (
		where = []string{"workspace_id = ?"}
		args  = []any{opts.WorkspaceID}
	)
	if len(opts.Statuses) > 0 {
		marks := make([]string, len(opts.Statuses))
		for i, st := range opts.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if opts.WithEmbedding {
		where = append(where, "embedding IS NOT NULL AND embedding != ''")
	}
	query := `SELECT ` + signalColumns + ` FROM signals WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at, id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing signals: %w", err)
	}
	defer rows.Close()

	var out []*signal.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// ListUnprocessedIDs returns ids of signals never processed (or whose
// processing was rolled back), oldest first.
func (s *Store) ListUnprocessedIDs(ctx context.Context, workspaceID string, limit int) ([]string, error) {
	query := `SELECT id FROM signals WHERE processed_at IS NULL AND status != 'merged'`
	var args []any
	if workspaceID != "" {
		query += ` AND workspace_id = ?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY created_at, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing unprocessed signals: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimProcessing sets processed_at only if it is still null. It reports
// whether this caller won the claim.
func (s *Store) ClaimProcessing(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE signals SET processed_at = ?, updated_at = ? WHERE id = ? AND processed_at IS NULL`,
		micros(at), micros(s.now()), id)
	if err != nil {
		return false, fmt.Errorf("claiming signal %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming signal %s: %w", id, err)
	}
	return n == 1, nil
}

// ReleaseProcessing clears processed_at so the signal can be retried.
func (s *Store) ReleaseProcessing(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE signals SET processed_at = NULL, updated_at = ? WHERE id = ?`, micros(s.now()), id)
	if err != nil {
		return fmt.Errorf("releasing signal %s: %w", id, err)
	}
	return nil
}

// ProcessingResult is what the processor writes back in one update.
type ProcessingResult struct {
	Severity         *signal.Severity
	Frequency        *signal.Frequency
	UserSegment      *string
	AIInterpretation *string
	Embedding        []float32
	ProcessedAt      time.Time
}

// CompleteProcessing persists extraction and embedding output as a unit.
// Values supplied at ingest are kept; the AI interpretation is written only
// when the signal has no human interpretation.
func (s *Store) CompleteProcessing(ctx context.Context, id string, r ProcessingResult) error {
	res, err := s.db.ExecContext(ctx, `UPDATE signals SET
		severity          = COALESCE(severity, ?),
		frequency         = COALESCE(frequency, ?),
		user_segment      = COALESCE(user_segment, ?),
		ai_interpretation = CASE WHEN interpretation IS NULL OR interpretation = '' THEN ? ELSE ai_interpretation END,
		embedding         = ?,
		processed_at      = ?,
		updated_at        = ?
		WHERE id = ?`,
		nullEnum(r.Severity), nullEnum(r.Frequency), nullString(r.UserSegment), nullString(r.AIInterpretation),
		embeddings.Encode(r.Embedding), micros(r.ProcessedAt), micros(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("completing signal %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveClassification stores c on the signal. When link is set and c matched
// an initiative, a pending signal becomes linked to it.
func (s *Store) SaveClassification(ctx context.Context, id string, c *signal.Classification, link bool) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding classification: %w", err)
	}

	var res sql.Result
	if link && !c.IsNewInitiative && c.MatchedProjectID != "" {
		res, err = s.db.ExecContext(ctx, `UPDATE signals SET
			classification = ?,
			project_id = CASE WHEN status = 'pending' THEN ? ELSE project_id END,
			status     = CASE WHEN status = 'pending' THEN 'linked' ELSE status END,
			updated_at = ?
			WHERE id = ?`, string(data), c.MatchedProjectID, micros(s.now()), id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE signals SET classification = ?, updated_at = ? WHERE id = ?`,
			string(data), micros(s.now()), id)
	}
	if err != nil {
		return fmt.Errorf("saving classification for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	return nil
}

// MergeSignals marks secondary as merged into primary. Either signal
// already being merged is a conflict.
func (s *Store) MergeSignals(ctx context.Context, primaryID, secondaryID, actorID string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var primaryStatus string
	err = tx.QueryRowContext(ctx, `SELECT status FROM signals WHERE id = ?`, primaryID).Scan(&primaryStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("signal %s: %w", primaryID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading primary: %w", err)
	}
	if primaryStatus == string(signal.StatusMerged) {
		return fmt.Errorf("%w: primary %s is itself merged", ErrConflict, primaryID)
	}

	res, err := tx.ExecContext(ctx, `UPDATE signals SET
		status = 'merged', merged_into = ?, merged_by = ?, merged_at = ?, updated_at = ?
		WHERE id = ? AND status != 'merged'`,
		primaryID, actorID, micros(at), micros(s.now()), secondaryID)
	if err != nil {
		return fmt.Errorf("merging %s: %w", secondaryID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM signals WHERE id = ?`, secondaryID).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("signal %s: %w", secondaryID, ErrNotFound)
		}
		return fmt.Errorf("%w: signal %s already merged", ErrConflict, secondaryID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing merge: %w", err)
	}
	s.logger.Debug("signals merged", zap.String("primary", primaryID), zap.String("secondary", secondaryID))
	return nil
}

func scanSignal(row rowScanner) (*signal.Signal, error) {
	var (
		sig signal.Signal

		projectID, interpretation, severity, frequency, userSegment sql.NullString
		aiInterpretation, embedding, classification                 sql.NullString
		sourceRef, sourceMetadata, tags, mergedInto, mergedBy       sql.NullString
		processedAt, mergedAt                                       sql.NullInt64
		status                                                      string
		createdAt, updatedAt                                        int64
	)
	err := row.Scan(
		&sig.ID, &sig.WorkspaceID, &projectID, &sig.Verbatim, &interpretation, &severity, &frequency,
		&userSegment, &aiInterpretation, &embedding, &classification, &status, &processedAt,
		&sig.SourceType, &sourceRef, &sourceMetadata, &tags, &mergedInto, &mergedBy, &mergedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sig.ProjectID = stringPtr(projectID)
	sig.Interpretation = stringPtr(interpretation)
	if severity.Valid {
		sig.Severity = signal.ParseSeverity(severity.String)
	}
	if frequency.Valid {
		sig.Frequency = signal.ParseFrequency(frequency.String)
	}
	sig.UserSegment = stringPtr(userSegment)
	sig.AIInterpretation = stringPtr(aiInterpretation)
	sig.Status = signal.Status(status)
	sig.ProcessedAt = timePtr(processedAt)
	sig.SourceRef = sourceRef.String
	sig.MergedInto = stringPtr(mergedInto)
	sig.MergedBy = stringPtr(mergedBy)
	sig.MergedAt = timePtr(mergedAt)
	sig.CreatedAt = fromMicros(createdAt)
	sig.UpdatedAt = fromMicros(updatedAt)

	if embedding.Valid && embedding.String != "" {
		vec, err := embeddings.Decode(embedding.String)
		if err != nil {
			return nil, fmt.Errorf("signal %s: %w", sig.ID, err)
		}
		sig.Embedding = vec
	}
	if classification.Valid && classification.String != "" {
		var c signal.Classification
		if err := json.Unmarshal([]byte(classification.String), &c); err != nil {
			return nil, fmt.Errorf("signal %s: decoding classification: %w", sig.ID, err)
		}
		sig.Classification = &c
	}
	if sourceMetadata.Valid && sourceMetadata.String != "" {
		if err := json.Unmarshal([]byte(sourceMetadata.String), &sig.SourceMetadata); err != nil {
			return nil, fmt.Errorf("signal %s: decoding source metadata: %w", sig.ID, err)
		}
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &sig.Tags); err != nil {
			return nil, fmt.Errorf("signal %s: decoding tags: %w", sig.ID, err)
		}
	}
	return &sig, nil
}

func nullEnum[T ~string](v *T) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func marshalJSON[T any](v T) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if s := string(data); s == "null" || s == "[]" || s == "{}" {
		return nil, nil
	}
	return string(data), nil
}
