package classification

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	signals     map[string]*signal.Signal
	initiatives []*signal.Initiative
	saved       map[string]*signal.Classification
	linked      map[string]bool
	saveErr     error
}

func newMemStore(initiatives ...*signal.Initiative) *memStore {
	return &memStore{
		signals:     map[string]*signal.Signal{},
		initiatives: initiatives,
		saved:       map[string]*signal.Classification{},
		linked:      map[string]bool{},
	}
}

func (m *memStore) GetSignal(_ context.Context, id string) (*signal.Signal, error) {
	s, ok := m.signals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (m *memStore) ListInitiatives(context.Context, string) ([]*signal.Initiative, error) {
	return m.initiatives, nil
}

func (m *memStore) SaveClassification(_ context.Context, id string, c *signal.Classification, link bool) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[id] = c
	m.linked[id] = link && !c.IsNewInitiative
	return nil
}

type stubVerifier struct {
	verdict Verdict
	err     error
	calls   int
}

func (s *stubVerifier) Verify(context.Context, string, *signal.Initiative) (Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

// vecAt returns a unit vector whose cosine similarity to (1, 0) is sim.
func vecAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

var exports = &signal.Initiative{ID: "init-exports", Name: "Exports", Description: "CSV/PDF export", Embedding: []float32{1, 0}}

// signVec returns a 16-dim vector of ones with the first neg entries
// negated. Its cosine to signVec(0) is exactly (16-2*neg)/16.
func signVec(neg int) []float32 {
	v := make([]float32, 16)
	for i := range v {
		v[i] = 1
		if i < neg {
			v[i] = -1
		}
	}
	return v
}

var exportsWide = &signal.Initiative{ID: "init-exports", Name: "Exports", Embedding: signVec(0)}

func TestClassify_DecisionProcedure(t *testing.T) {
	tests := []struct {
		name        string
		initiatives []*signal.Initiative
		sim         float64
		embedding   []float32
		verifier    *stubVerifier
		wantNew     bool
		wantMethod  signal.Method
		wantConf    float64
		wantProject string
		wantReason  string
		wantCalls   int
	}{
		{
			name:       "no initiatives",
			sim:        0.9,
			verifier:   &stubVerifier{},
			wantNew:    true,
			wantMethod: signal.MethodEmbedding,
			wantConf:   0.9,
			wantReason: ReasonNoCandidates,
		},
		{
			name:        "initiatives without embeddings",
			initiatives: []*signal.Initiative{{ID: "bare", Name: "Bare"}},
			sim:         0.9,
			verifier:    &stubVerifier{},
			wantNew:     true,
			wantMethod:  signal.MethodEmbedding,
			wantConf:    0.9,
			wantReason:  ReasonNoCandidates,
		},
		{
			name:        "high similarity accepted",
			initiatives: []*signal.Initiative{exports},
			sim:         0.8,
			verifier:    &stubVerifier{},
			wantMethod:  signal.MethodEmbedding,
			wantConf:    0.8,
			wantProject: "init-exports",
		},
		{
			name:        "low similarity rejected",
			initiatives: []*signal.Initiative{exports},
			sim:         0.4,
			verifier:    &stubVerifier{},
			wantNew:     true,
			wantMethod:  signal.MethodEmbedding,
			wantConf:    0.6,
		},
		{
			name:        "ambiguous band verified as belonging",
			initiatives: []*signal.Initiative{exports},
			sim:         0.6,
			verifier:    &stubVerifier{verdict: Verdict{Belongs: true, Confidence: 0.85, Reason: "about CSV export"}},
			wantMethod:  signal.MethodLLM,
			wantConf:    0.85,
			wantProject: "init-exports",
			wantReason:  "about CSV export",
			wantCalls:   1,
		},
		{
			name:        "ambiguous band verified as not belonging",
			initiatives: []*signal.Initiative{exports},
			sim:         0.7,
			verifier:    &stubVerifier{verdict: Verdict{Belongs: false, Confidence: 0.7, Reason: "about billing"}},
			wantNew:     true,
			wantMethod:  signal.MethodLLM,
			wantConf:    0.7,
			wantReason:  "about billing",
			wantCalls:   1,
		},
		{
			name:        "exactly high threshold is verified",
			initiatives: []*signal.Initiative{exportsWide},
			embedding:   signVec(2),
			verifier:    &stubVerifier{verdict: Verdict{Belongs: true, Confidence: 0.8, Reason: "export timeouts"}},
			wantMethod:  signal.MethodLLM,
			wantConf:    0.8,
			wantProject: "init-exports",
			wantCalls:   1,
		},
		{
			name:        "just above high threshold accepted",
			initiatives: []*signal.Initiative{exports},
			sim:         0.751,
			verifier:    &stubVerifier{},
			wantMethod:  signal.MethodEmbedding,
			wantConf:    0.751,
			wantProject: "init-exports",
		},
		{
			name:        "exactly low threshold is verified",
			initiatives: []*signal.Initiative{exportsWide},
			embedding:   signVec(4),
			verifier:    &stubVerifier{verdict: Verdict{Belongs: false, Confidence: 0.6, Reason: "about login"}},
			wantNew:     true,
			wantMethod:  signal.MethodLLM,
			wantConf:    0.6,
			wantCalls:   1,
		},
		{
			name:        "just below low threshold rejected",
			initiatives: []*signal.Initiative{exports},
			sim:         0.499,
			verifier:    &stubVerifier{},
			wantNew:     true,
			wantMethod:  signal.MethodEmbedding,
			wantConf:    0.501,
		},
		{
			name:        "verifier failure above fallback",
			initiatives: []*signal.Initiative{exports},
			sim:         0.65,
			verifier:    &stubVerifier{err: errors.New("429")},
			wantMethod:  signal.MethodEmbedding,
			wantConf:    0.65,
			wantProject: "init-exports",
			wantReason:  "verifier unavailable",
			wantCalls:   1,
		},
		{
			name:        "verifier failure below fallback",
			initiatives: []*signal.Initiative{exports},
			sim:         0.55,
			verifier:    &stubVerifier{err: errors.New("timeout")},
			wantNew:     true,
			wantMethod:  signal.MethodEmbedding,
			wantConf:    0.45,
			wantReason:  "verifier unavailable",
			wantCalls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemStore(tt.initiatives...)
			e := New(st, tt.verifier, nil)
			vec := tt.embedding
			if vec == nil {
				vec = vecAt(tt.sim)
			}

			c, err := e.Classify(context.Background(), Input{
				SignalID:    "sig-1",
				Embedding:   vec,
				Verbatim:    "CSV export drops the last column",
				WorkspaceID: "ws-1",
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantNew, c.IsNewInitiative)
			assert.Equal(t, tt.wantMethod, c.Method)
			assert.InDelta(t, tt.wantConf, c.Confidence, 1e-5)
			assert.Equal(t, tt.wantProject, c.MatchedProjectID)
			if tt.wantProject != "" {
				assert.Equal(t, "Exports", c.MatchedProjectName)
			} else {
				assert.Empty(t, c.MatchedProjectName)
			}
			if tt.wantReason != "" {
				assert.Contains(t, c.Reason, tt.wantReason)
			}
			assert.Equal(t, tt.wantCalls, tt.verifier.calls)
			assert.False(t, c.ClassifiedAt.IsZero())

			assert.Same(t, c, st.saved["sig-1"], "every outcome is persisted")
		})
	}
}

func TestClassify_PicksBestInitiative(t *testing.T) {
	billing := &signal.Initiative{ID: "init-billing", Name: "Billing", Embedding: []float32{0, 1}}
	st := newMemStore(billing, exports)

	c, err := New(st, nil, nil).Classify(context.Background(), Input{SignalID: "s", Embedding: vecAt(0.9), WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.Equal(t, "init-exports", c.MatchedProjectID)
}

func TestClassify_NilVerifierFallsBack(t *testing.T) {
	st := newMemStore(exports)
	before := testutil.ToFloat64(VerifierFailuresTotal)

	c, err := New(st, nil, nil).Classify(context.Background(), Input{SignalID: "s", Embedding: vecAt(0.7), WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.Equal(t, signal.MethodEmbedding, c.Method)
	assert.Equal(t, "init-exports", c.MatchedProjectID)
	assert.Equal(t, before+1, testutil.ToFloat64(VerifierFailuresTotal))
}

func TestClassify_AutoLink(t *testing.T) {
	st := newMemStore(exports)
	e := New(st, nil, nil, WithAutoLink(true), WithClock(func() time.Time { return time.Unix(100, 0) }))

	c, err := e.Classify(context.Background(), Input{SignalID: "s", Embedding: vecAt(0.9), WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.True(t, st.linked["s"])
	assert.Equal(t, time.Unix(100, 0).UTC(), c.ClassifiedAt)
}

func TestClassify_Errors(t *testing.T) {
	st := newMemStore(exports)
	e := New(st, nil, nil)

	_, err := e.Classify(context.Background(), Input{SignalID: "s", WorkspaceID: "ws-1"})
	assert.ErrorIs(t, err, ErrNoEmbedding)

	st.saveErr = errors.New("disk full")
	_, err = e.Classify(context.Background(), Input{SignalID: "s", Embedding: vecAt(0.9), WorkspaceID: "ws-1"})
	assert.ErrorContains(t, err, "disk full")
}

func TestClassifySignal(t *testing.T) {
	st := newMemStore(exports)
	st.signals["ready"] = &signal.Signal{ID: "ready", WorkspaceID: "ws-1", Verbatim: "x", Embedding: vecAt(0.95)}
	st.signals["raw"] = &signal.Signal{ID: "raw", WorkspaceID: "ws-1", Verbatim: "x"}
	e := New(st, nil, nil)

	c, err := e.ClassifySignal(context.Background(), "ready")
	require.NoError(t, err)
	assert.Equal(t, "init-exports", c.MatchedProjectID)

	_, err = e.ClassifySignal(context.Background(), "raw")
	assert.ErrorIs(t, err, ErrNoEmbedding)

	_, err = e.ClassifySignal(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
