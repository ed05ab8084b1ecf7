package synthesis

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t     *testing.T
	store *store.Store
	base  time.Time
	n     int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "synthesis.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return &fixture{t: t, store: s, base: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fixture) add(workspace, verbatim string, sev *signal.Severity, vec []float32) *signal.Signal {
	f.t.Helper()
	f.n++
	sig := &signal.Signal{
		WorkspaceID: workspace,
		Verbatim:    verbatim,
		Severity:    sev,
		CreatedAt:   f.base.Add(time.Duration(f.n) * time.Minute),
	}
	ctx := context.Background()
	require.NoError(f.t, f.store.CreateSignal(ctx, sig))
	if vec != nil {
		require.NoError(f.t, f.store.CompleteProcessing(ctx, sig.ID, store.ProcessingResult{Embedding: vec, ProcessedAt: sig.CreatedAt}))
	}
	return sig
}

func sev(s signal.Severity) *signal.Severity { return &s }

func TestFindClusters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := New(f.store, nil)

	a1 := f.add("ws-1", "Export to CSV times out", sev(signal.SeverityMedium), []float32{1, 0, 0})
	a2 := f.add("ws-1", "CSV export never finishes", sev(signal.SeverityCritical), []float32{0.98, 0.2, 0})
	a3 := f.add("ws-1", "Large exports fail", nil, []float32{0.95, 0.3, 0})
	b1 := f.add("ws-1", "Dark mode please", sev(signal.SeverityLow), []float32{0, 1, 0})
	b2 := f.add("ws-1", "Need a dark theme", sev(signal.SeverityLow), []float32{0.1, 0.99, 0})
	f.add("ws-1", "SSO login broken", sev(signal.SeverityHigh), []float32{0, 0, 1}) // alone
	f.add("ws-1", "not processed yet", nil, nil)
	f.add("ws-2", "Export to CSV times out", nil, []float32{1, 0, 0})

	clusters, err := engine.FindClusters(ctx, "ws-1", 2)
	require.NoError(t, err)
	require.Len(t, clusters, 2)

	export := clusters[0]
	assert.ElementsMatch(t, []string{a1.ID, a2.ID, a3.ID}, export.SignalIDs)
	assert.Equal(t, "ws-1", export.WorkspaceID)
	require.NotNil(t, export.Severity)
	assert.Equal(t, signal.SeverityCritical, *export.Severity)
	assert.Equal(t, ActionNewProject, export.SuggestedAction)
	assert.Nil(t, export.NearestInitiative)
	assert.Greater(t, export.AverageSimilarity, DefaultThreshold)
	assert.Len(t, export.Centroid, 3)
	assert.True(t, strings.HasPrefix(export.ID, "cl_"))

	theme := clusters[1]
	assert.ElementsMatch(t, []string{b1.ID, b2.ID}, theme.SignalIDs)
	require.NotNil(t, theme.Severity)
	assert.Equal(t, signal.SeverityLow, *theme.Severity)
}

func TestFindClusters_Singleton(t *testing.T) {
	f := newFixture(t)
	engine := New(f.store, nil)

	lone := f.add("ws-1", "Only one of these", nil, []float32{1, 0})
	f.add("ws-1", "Something else", nil, []float32{0, 1})

	clusters, err := engine.FindClusters(context.Background(), "ws-1", 2)
	require.NoError(t, err)
	for _, c := range clusters {
		assert.NotContains(t, c.SignalIDs, lone.ID)
	}
	assert.Empty(t, clusters)

	ones, err := engine.FindClusters(context.Background(), "ws-1", 1)
	require.NoError(t, err)
	assert.Len(t, ones, 2)
}

func TestFindClusters_OnlyPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := New(f.store, nil)

	s1 := f.add("ws-1", "Search is slow", nil, []float32{1, 0})
	s2 := f.add("ws-1", "Search takes forever", nil, []float32{0.99, 0.05})
	require.NoError(t, f.store.SaveClassification(ctx, s2.ID, &signal.Classification{
		MatchedProjectID: "init-1",
		Confidence:       0.9,
		Method:           signal.MethodEmbedding,
		ClassifiedAt:     time.Now(),
	}, true))

	clusters, err := engine.FindClusters(ctx, "ws-1", 2)
	require.NoError(t, err)
	assert.Empty(t, clusters, "linked signal %s must not cluster with %s", s2.ID, s1.ID)
}

func TestFindClusters_CompleteLink(t *testing.T) {
	f := newFixture(t)
	engine := New(f.store, nil, WithThreshold(0.9))

	// b is close to a and c, but a and c are not close to each other.
	a := f.add("ws-1", "a", nil, []float32{1, 0})
	b := f.add("ws-1", "b", nil, []float32{0.97, 0.26})
	c := f.add("ws-1", "c", nil, []float32{0.87, 0.5})

	clusters, err := engine.FindClusters(context.Background(), "ws-1", 2)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, clusters[0].SignalIDs)
	assert.NotContains(t, clusters[0].SignalIDs, c.ID)
}

func TestFindClusters_SuggestedAction(t *testing.T) {
	tests := []struct {
		name       string
		initiative []float32
		want       Action
	}{
		{"near initiative", []float32{1, 0}, ActionLinkToExisting},
		{"ambiguous", []float32{0.6, 0.8}, ActionReview},
		{"far initiative", []float32{0, 1}, ActionNewProject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.store.UpsertInitiative(ctx, &signal.Initiative{
				ID: "init-1", WorkspaceID: "ws-1", Name: "Exports", Embedding: tt.initiative,
			}))
			require.NoError(t, f.store.UpsertInitiative(ctx, &signal.Initiative{
				ID: "init-2", WorkspaceID: "ws-1", Name: "No embedding yet",
			}))
			f.add("ws-1", "x", nil, []float32{1, 0})
			f.add("ws-1", "y", nil, []float32{0.99, 0.01})

			clusters, err := New(f.store, nil).FindClusters(ctx, "ws-1", 2)
			require.NoError(t, err)
			require.Len(t, clusters, 1)
			assert.Equal(t, tt.want, clusters[0].SuggestedAction)
			require.NotNil(t, clusters[0].NearestInitiative)
			assert.Equal(t, "init-1", clusters[0].NearestInitiative.ID)
		})
	}
}

func TestFindClusters_StableID(t *testing.T) {
	f := newFixture(t)
	engine := New(f.store, nil)
	f.add("ws-1", "x", nil, []float32{1, 0})
	f.add("ws-1", "y", nil, []float32{0.99, 0.01})

	first, err := engine.FindClusters(context.Background(), "ws-1", 2)
	require.NoError(t, err)
	second, err := engine.FindClusters(context.Background(), "ws-1", 2)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, ClusterID(first[0].SignalIDs), first[0].ID)
}

func TestClusterID(t *testing.T) {
	id := ClusterID([]string{"a", "b"})
	assert.Len(t, id, len("cl_")+32)
	assert.NotEqual(t, id, ClusterID([]string{"a", "c"}))
	assert.Equal(t, id, ClusterID([]string{"a", "b"}))
}

func TestSuggestAction(t *testing.T) {
	tests := []struct {
		sim  float64
		want Action
	}{
		{0.95, ActionLinkToExisting},
		{0.76, ActionLinkToExisting},
		{0.75, ActionReview},
		{0.5, ActionReview},
		{0.49, ActionNewProject},
		{0, ActionNewProject},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SuggestAction(tt.sim), "similarity %v", tt.sim)
	}
}

func TestTheme(t *testing.T) {
	long := strings.Repeat("word ", 40)
	tests := []struct {
		name string
		sig  *signal.Signal
		want string
	}{
		{"verbatim", &signal.Signal{Verbatim: "  Export\n times out "}, "Export times out"},
		{"ai interpretation", &signal.Signal{Verbatim: "v", AIInterpretation: signal.Ptr("Exports fail")}, "Exports fail"},
		{"human wins", &signal.Signal{Verbatim: "v", AIInterpretation: signal.Ptr("ai"), Interpretation: signal.Ptr("human")}, "human"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, theme(tt.sig))
		})
	}

	got := theme(&signal.Signal{Verbatim: long})
	assert.LessOrEqual(t, len([]rune(got)), maxThemeRunes)
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "No signal clusters found.", Summarize(nil))

	clusters := []*Cluster{
		{SignalIDs: []string{"a", "b"}, SuggestedAction: ActionNewProject, Severity: sev(signal.SeverityCritical)},
		{SignalIDs: []string{"c", "d"}, SuggestedAction: ActionReview, Severity: sev(signal.SeverityHigh)},
		{SignalIDs: []string{"e", "f"}, SuggestedAction: ActionLinkToExisting, Severity: sev(signal.SeverityLow)},
		{SignalIDs: []string{"g", "h"}, SuggestedAction: ActionNewProject},
	}
	assert.Equal(t, "Found 4 clusters: 2 suggest a new project, 2 high or critical severity.", Summarize(clusters))
	assert.Equal(t, "Found 1 cluster: 1 suggests a new project, 1 high or critical severity.", Summarize(clusters[:1]))
}

func TestSynthesize(t *testing.T) {
	f := newFixture(t)
	f.add("ws-1", "x", sev(signal.SeverityHigh), []float32{1, 0})
	f.add("ws-1", "y", nil, []float32{0.99, 0.01})

	res, err := New(f.store, nil).Synthesize(context.Background(), "ws-1", 0)
	require.NoError(t, err)
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, "Found 1 cluster: 1 suggests a new project, 1 high or critical severity.", res.Summary)
}

type failingStore struct{ Store }

func (failingStore) ListSignals(context.Context, store.ListOptions) ([]*signal.Signal, error) {
	return nil, errors.New("disk gone")
}

func TestFindClusters_StoreError(t *testing.T) {
	_, err := New(failingStore{}, nil).FindClusters(context.Background(), "ws-1", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestFindClusters_ConfiguredMinSize(t *testing.T) {
	f := newFixture(t)
	f.add("ws-1", "x", nil, []float32{1, 0})
	f.add("ws-1", "y", nil, []float32{0.99, 0.01})

	clusters, err := New(f.store, nil, WithMinClusterSize(3)).FindClusters(context.Background(), "ws-1", 0)
	require.NoError(t, err)
	assert.Empty(t, clusters)
}
