// Package notify decides whether a discovered cluster is worth alerting a
// human about, and records the notification when it is.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/synthesis"
	"go.uber.org/zap"
)

// Suppression reasons.
const (
	ReasonClusterTooSmall = "cluster_too_small"
	ReasonBelowSeverity   = "below_min_severity"
	ReasonCooldown        = "duplicate_within_cooldown"
)

// Store is the persistence the filter needs.
type Store interface {
	HasRecentNotification(ctx context.Context, workspaceID, clusterID string, since time.Time) (bool, error)
	CreateNotification(ctx context.Context, n *signal.Notification) error
}

// Thresholds are the workspace notification settings. Zero values disable
// the corresponding check.
type Thresholds struct {
	MinClusterSize       int
	MinSeverity          *signal.Severity
	DuplicateSuppression bool
	Cooldown             time.Duration
}

// ThresholdsFrom converts the configuration section.
func ThresholdsFrom(cfg config.NotificationsConfig) Thresholds {
	return Thresholds{
		MinClusterSize:       cfg.MinClusterSize,
		MinSeverity:          signal.ParseSeverity(cfg.MinSeverity),
		DuplicateSuppression: cfg.DuplicateSuppression,
		Cooldown:             time.Duration(cfg.CooldownMinutes) * time.Minute,
	}
}

// Context describes the event being considered.
type Context struct {
	WorkspaceID     string
	ClusterID       string
	ClusterSize     int
	ClusterSeverity *signal.Severity
}

// Decision is the filter's verdict. Reason is set when Send is false.
type Decision struct {
	Send         bool                 `json:"send"`
	Reason       string               `json:"reason,omitempty"`
	Notification *signal.Notification `json:"notification,omitempty"`
}

// Filter applies thresholds and cooldown.
type Filter struct {
	store      Store
	thresholds Thresholds
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Filter.
type Option func(*Filter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) { f.now = now }
}

// New creates a Filter.
func New(st Store, thresholds Thresholds, logger *zap.Logger, opts ...Option) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Filter{store: st, thresholds: thresholds, logger: logger.Named("notify"), now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ShouldNotify applies, in order, the minimum cluster size, the minimum
// severity and the cooldown window. A cluster without a severity never
// passes a minimum severity.
func (f *Filter) ShouldNotify(ctx context.Context, c Context) (Decision, error) {
	t := f.thresholds

	if t.MinClusterSize > 0 && c.ClusterSize < t.MinClusterSize {
		return f.suppress(c, ReasonClusterTooSmall), nil
	}

	if t.MinSeverity != nil {
		if c.ClusterSeverity == nil || c.ClusterSeverity.Index() < 0 || c.ClusterSeverity.Index() > t.MinSeverity.Index() {
			return f.suppress(c, ReasonBelowSeverity), nil
		}
	}

	if t.DuplicateSuppression && t.Cooldown > 0 && c.ClusterID != "" {
		since := f.now().UTC().Add(-t.Cooldown)
		recent, err := f.store.HasRecentNotification(ctx, c.WorkspaceID, c.ClusterID, since)
		if err != nil {
			return Decision{}, fmt.Errorf("checking cooldown for cluster %s: %w", c.ClusterID, err)
		}
		if recent {
			return f.suppress(c, ReasonCooldown), nil
		}
	}

	return Decision{Send: true}, nil
}

func (f *Filter) suppress(c Context, reason string) Decision {
	NotificationsSuppressed.WithLabelValues(reason).Inc()
	f.logger.Info("notification suppressed",
		zap.String("workspace.id", c.WorkspaceID),
		zap.String("cluster.id", c.ClusterID),
		zap.Int("cluster.size", c.ClusterSize),
		zap.String("reason", reason))
	return Decision{Send: false, Reason: reason}
}

// NotifyClusterDiscovered runs the filter for a cluster and, when approved,
// creates the cluster_discovered notification.
func (f *Filter) NotifyClusterDiscovered(ctx context.Context, cluster *synthesis.Cluster) (Decision, error) {
	decision, err := f.ShouldNotify(ctx, Context{
		WorkspaceID:     cluster.WorkspaceID,
		ClusterID:       cluster.ID,
		ClusterSize:     cluster.Size(),
		ClusterSeverity: cluster.Severity,
	})
	if err != nil || !decision.Send {
		return decision, err
	}

	n := &signal.Notification{
		WorkspaceID:     cluster.WorkspaceID,
		Type:            signal.NotificationClusterDiscovered,
		Title:           title(cluster),
		Message:         message(cluster),
		Priority:        signal.PriorityFor(cluster.Severity),
		ClusterID:       cluster.ID,
		ClusterSize:     cluster.Size(),
		ClusterSeverity: cluster.Severity,
		Metadata:        metadata(cluster),
		CreatedAt:       f.now().UTC(),
	}
	if err := f.store.CreateNotification(ctx, n); err != nil {
		return Decision{}, fmt.Errorf("creating notification for cluster %s: %w", cluster.ID, err)
	}

	NotificationsSent.WithLabelValues(string(n.Priority)).Inc()
	f.logger.Info("notification sent",
		zap.String("workspace.id", n.WorkspaceID),
		zap.String("cluster.id", n.ClusterID),
		zap.String("notification.id", n.ID),
		zap.String("priority", string(n.Priority)))
	decision.Notification = n
	return decision, nil
}

func title(c *synthesis.Cluster) string {
	if c.Theme == "" {
		return fmt.Sprintf("New cluster of %d signals", c.Size())
	}
	return fmt.Sprintf("New cluster: %s", c.Theme)
}

func message(c *synthesis.Cluster) string {
	msg := fmt.Sprintf("%d signals share a theme", c.Size())
	if c.Severity != nil {
		msg += fmt.Sprintf(" (max severity %s)", *c.Severity)
	}
	switch c.SuggestedAction {
	case synthesis.ActionLinkToExisting:
		msg += fmt.Sprintf(". They look like part of %q.", c.NearestInitiative.Name)
	case synthesis.ActionReview:
		msg += ". They may relate to an existing initiative and need review."
	default:
		msg += ". No existing initiative covers them; consider a new project."
	}
	return msg
}

func metadata(c *synthesis.Cluster) map[string]any {
	meta := map[string]any{
		"signalIds":         c.SignalIDs,
		"suggestedAction":   string(c.SuggestedAction),
		"averageSimilarity": c.AverageSimilarity,
	}
	if c.NearestInitiative != nil {
		meta["nearestInitiativeId"] = c.NearestInitiative.ID
		meta["nearestInitiativeSimilarity"] = c.NearestInitiative.Similarity
	}
	return meta
}
