package initiatives

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	err   error
	texts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "initiatives.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsert(t *testing.T) {
	st := openStore(t)
	emb := &fakeEmbedder{}
	reg := New(st, emb, nil)
	ctx := context.Background()

	err := reg.Upsert(ctx, &signal.Initiative{
		ID:          " exports ",
		WorkspaceID: "ws-1",
		Name:        "Faster exports",
		Description: "Make CSV and XLSX exports finish under a minute",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Faster exports\n\nMake CSV and XLSX exports finish under a minute"}, emb.texts)

	got, err := reg.Get(ctx, "ws-1", "exports")
	require.NoError(t, err)
	assert.Equal(t, "Faster exports", got.Name)
	assert.Equal(t, []float32{1, 0, 0}, got.Embedding)
}

func TestUpsert_EmbeddingFailure(t *testing.T) {
	st := openStore(t)
	reg := New(st, &fakeEmbedder{err: errors.New("model down")}, nil)
	ctx := context.Background()

	err := reg.Upsert(ctx, &signal.Initiative{ID: "i1", WorkspaceID: "ws-1", Name: "Dark mode"})
	require.ErrorIs(t, err, ErrNotEmbedded)
	assert.Contains(t, err.Error(), "model down")

	got, err := reg.Get(ctx, "ws-1", "i1")
	require.NoError(t, err)
	assert.Empty(t, got.Embedding)
}

func TestUpsert_Invalid(t *testing.T) {
	reg := New(openStore(t), &fakeEmbedder{}, nil)
	tests := []struct {
		name string
		in   *signal.Initiative
	}{
		{"missing id", &signal.Initiative{WorkspaceID: "ws-1", Name: "n"}},
		{"missing workspace", &signal.Initiative{ID: "i", Name: "n"}},
		{"blank name", &signal.Initiative{ID: "i", WorkspaceID: "ws-1", Name: "  "}},
		{"id with slash", &signal.Initiative{ID: "a/b", WorkspaceID: "ws-1", Name: "n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, reg.Upsert(context.Background(), tt.in), ErrInvalidInput)
		})
	}
}

func TestList(t *testing.T) {
	reg := New(openStore(t), &fakeEmbedder{}, nil)
	ctx := context.Background()

	empty, err := reg.List(ctx, "ws-1")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, reg.Upsert(ctx, &signal.Initiative{ID: "b", WorkspaceID: "ws-1", Name: "Billing"}))
	require.NoError(t, reg.Upsert(ctx, &signal.Initiative{ID: "a", WorkspaceID: "ws-1", Name: "Analytics"}))
	require.NoError(t, reg.Upsert(ctx, &signal.Initiative{ID: "c", WorkspaceID: "ws-2", Name: "Other"}))

	list, err := reg.List(ctx, "ws-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Analytics", list[0].Name)
	assert.Equal(t, "Billing", list[1].Name)
}

func TestReembed(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	emb := &fakeEmbedder{err: errors.New("down")}
	reg := New(st, emb, nil)

	require.Error(t, reg.Upsert(ctx, &signal.Initiative{ID: "a", WorkspaceID: "ws-1", Name: "A"}))
	emb.err = nil
	require.NoError(t, reg.Upsert(ctx, &signal.Initiative{ID: "b", WorkspaceID: "ws-1", Name: "B"}))
	emb.texts = nil

	n, err := reg.Reembed(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"A"}, emb.texts)

	got, err := reg.Get(ctx, "ws-1", "a")
	require.NoError(t, err)
	assert.NotEmpty(t, got.Embedding)
}
