// Package synthesis groups unlinked signals into clusters that may warrant a
// new initiative.
package synthesis

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/signald/internal/embeddings"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/store"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

const (
	// DefaultThreshold is the similarity every pair in a cluster must exceed.
	DefaultThreshold = 0.8

	// DefaultMinClusterSize discards singletons.
	DefaultMinClusterSize = 2

	// LinkThreshold is the centroid similarity above which a cluster belongs
	// with an existing initiative.
	LinkThreshold = 0.75

	// NewProjectThreshold is the centroid similarity below which no
	// initiative is near.
	NewProjectThreshold = 0.5

	maxThemeRunes = 80
)

// Action is the suggested next step for a cluster.
type Action string

const (
	ActionNewProject     Action = "new_project"
	ActionLinkToExisting Action = "link_to_existing"
	ActionReview         Action = "review"
)

// Store is the persistence the engine reads.
type Store interface {
	ListSignals(ctx context.Context, opts store.ListOptions) ([]*signal.Signal, error)
	ListInitiatives(ctx context.Context, workspaceID string) ([]*signal.Initiative, error)
}

// NearestInitiative is the initiative closest to a cluster centroid.
type NearestInitiative struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// Cluster is a computed group of similar pending signals. It is never
// persisted.
type Cluster struct {
	ID                string             `json:"id"`
	WorkspaceID       string             `json:"workspaceId"`
	SignalIDs         []string           `json:"signalIds"`
	Theme             string             `json:"theme"`
	Severity          *signal.Severity   `json:"severity,omitempty"`
	SuggestedAction   Action             `json:"suggestedAction"`
	NearestInitiative *NearestInitiative `json:"nearestInitiative,omitempty"`
	AverageSimilarity float64            `json:"averageSimilarity"`
	Centroid          []float32          `json:"-"`
}

// Size is the number of member signals.
func (c *Cluster) Size() int { return len(c.SignalIDs) }

// Result is the output of Synthesize.
type Result struct {
	Clusters []*Cluster `json:"clusters"`
	Summary  string     `json:"summary"`
}

// Engine finds clusters.
type Engine struct {
	store          Store
	logger         *zap.Logger
	threshold      float64
	minClusterSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold sets the pairwise clustering threshold.
func WithThreshold(v float64) Option {
	return func(e *Engine) { e.threshold = v }
}

// WithMinClusterSize sets the size used when FindClusters is called
// without one.
func WithMinClusterSize(n int) Option {
	return func(e *Engine) { e.minClusterSize = n }
}

// New creates an Engine.
func New(st Store, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:          st,
		logger:         logger.Named("synthesis"),
		threshold:      DefaultThreshold,
		minClusterSize: DefaultMinClusterSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FindClusters clusters the workspace's pending signals that have an
// embedding. Clusters with fewer than minClusterSize members are dropped;
// values below 1 use the engine's configured size.
func (e *Engine) FindClusters(ctx context.Context, workspaceID string, minClusterSize int) ([]*Cluster, error) {
	if minClusterSize < 1 {
		minClusterSize = e.minClusterSize
	}

	sigs, err := e.store.ListSignals(ctx, store.ListOptions{
		WorkspaceID:   workspaceID,
		Statuses:      []signal.Status{signal.StatusPending},
		WithEmbedding: true,
	})
	if err != nil {
		return nil, fmt.Errorf("listing pending signals: %w", err)
	}
	initiatives, err := e.store.ListInitiatives(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing initiatives: %w", err)
	}

	groups := e.group(sigs)
	clusters := make([]*Cluster, 0, len(groups))
	for _, members := range groups {
		if len(members) < minClusterSize {
			continue
		}
		clusters = append(clusters, annotate(workspaceID, members, initiatives))
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Size() != clusters[j].Size() {
			return clusters[i].Size() > clusters[j].Size()
		}
		return clusters[i].AverageSimilarity > clusters[j].AverageSimilarity
	})

	e.logger.Debug("clusters found",
		zap.String("workspace.id", workspaceID),
		zap.Int("signals", len(sigs)),
		zap.Int("clusters", len(clusters)))
	ClustersFound.Add(float64(len(clusters)))
	return clusters, nil
}

// Synthesize finds clusters and summarizes them.
func (e *Engine) Synthesize(ctx context.Context, workspaceID string, minClusterSize int) (*Result, error) {
	clusters, err := e.FindClusters(ctx, workspaceID, minClusterSize)
	if err != nil {
		return nil, err
	}
	return &Result{Clusters: clusters, Summary: Summarize(clusters)}, nil
}

// group assigns signals greedily, oldest first. A signal joins the first
// group where its similarity to every member exceeds the threshold;
// otherwise it starts a new group.
func (e *Engine) group(sigs []*signal.Signal) [][]*signal.Signal {
	ordered := make([]*signal.Signal, len(sigs))
	copy(ordered, sigs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	var groups [][]*signal.Signal
	for _, sig := range ordered {
		placed := false
		for gi, members := range groups {
			if e.fits(sig, members) {
				groups[gi] = append(members, sig)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []*signal.Signal{sig})
		}
	}
	return groups
}

func (e *Engine) fits(sig *signal.Signal, members []*signal.Signal) bool {
	for _, m := range members {
		if embeddings.Similarity(sig.Embedding, m.Embedding) <= e.threshold {
			return false
		}
	}
	return true
}

func annotate(workspaceID string, members []*signal.Signal, initiatives []*signal.Initiative) *Cluster {
	ids := make([]string, len(members))
	vecs := make([][]float32, len(members))
	var severity *signal.Severity
	for i, m := range members {
		ids[i] = m.ID
		vecs[i] = m.Embedding
		severity = signal.MaxSeverity(severity, m.Severity)
	}
	sort.Strings(ids)

	avg, medoid := cohesion(members)
	c := &Cluster{
		ID:                ClusterID(ids),
		WorkspaceID:       workspaceID,
		SignalIDs:         ids,
		Theme:             theme(medoid),
		Severity:          severity,
		AverageSimilarity: avg,
		Centroid:          embeddings.Centroid(vecs),
	}

	c.SuggestedAction = ActionNewProject
	if nearest := nearestInitiative(c.Centroid, initiatives); nearest != nil {
		c.NearestInitiative = nearest
		c.SuggestedAction = SuggestAction(nearest.Similarity)
	}
	return c
}

// cohesion returns the mean pairwise similarity and the member most similar
// to the rest.
func cohesion(members []*signal.Signal) (float64, *signal.Signal) {
	if len(members) == 1 {
		return 1, members[0]
	}
	sums := make([]float64, len(members))
	var total float64
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			sim := embeddings.Similarity(members[i].Embedding, members[j].Embedding)
			sums[i] += sim
			sums[j] += sim
			total += sim
		}
	}
	best := 0
	for i := range sums {
		if sums[i] > sums[best] {
			best = i
		}
	}
	pairs := float64(len(members)*(len(members)-1)) / 2
	return total / pairs, members[best]
}

func nearestInitiative(centroid []float32, initiatives []*signal.Initiative) *NearestInitiative {
	var nearest *NearestInitiative
	for _, in := range initiatives {
		if len(in.Embedding) == 0 {
			continue
		}
		sim := embeddings.Similarity(centroid, in.Embedding)
		if nearest == nil || sim > nearest.Similarity {
			nearest = &NearestInitiative{ID: in.ID, Name: in.Name, Similarity: sim}
		}
	}
	return nearest
}

// SuggestAction maps the nearest initiative's similarity to an action.
func SuggestAction(similarity float64) Action {
	switch {
	case similarity > LinkThreshold:
		return ActionLinkToExisting
	case similarity < NewProjectThreshold:
		return ActionNewProject
	default:
		return ActionReview
	}
}

func theme(sig *signal.Signal) string {
	text := strings.Join(strings.Fields(sig.EffectiveInterpretation()), " ")
	if text == "" {
		text = strings.Join(strings.Fields(sig.Verbatim), " ")
	}
	if utf8.RuneCountInString(text) <= maxThemeRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxThemeRunes-1])) + "…"
}

// ClusterID fingerprints the sorted member ids, so the same members always
// produce the same id.
func ClusterID(sortedIDs []string) string {
	sum := blake3.Sum256([]byte(strings.Join(sortedIDs, "\n")))
	return "cl_" + hex.EncodeToString(sum[:16])
}

// Summarize describes clusters for a human.
func Summarize(clusters []*Cluster) string {
	if len(clusters) == 0 {
		return "No signal clusters found."
	}
	var newProjects, urgent int
	for _, c := range clusters {
		if c.SuggestedAction == ActionNewProject {
			newProjects++
		}
		if c.Severity != nil && (*c.Severity == signal.SeverityCritical || *c.Severity == signal.SeverityHigh) {
			urgent++
		}
	}
	return fmt.Sprintf("Found %d %s: %d %s a new project, %d high or critical severity.",
		len(clusters), plural(len(clusters), "cluster", "clusters"),
		newProjects, plural(newProjects, "suggests", "suggest"),
		urgent)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
