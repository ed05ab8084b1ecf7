package embeddings

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"45 degrees", []float32{1, 0}, []float32{1, 1}, 1 / math.Sqrt2},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"both empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	a := []float32{0.3, -0.2, 0.9}
	b := []float32{0.1, 0.5, 0.4}
	assert.InDelta(t, Similarity(a, b), Similarity(b, a), 1e-12)
}

func TestCentroid(t *testing.T) {
	c := Centroid([][]float32{{1, 0}, {0, 1}, {1, 2, 3}})
	assert.Equal(t, []float32{0.5, 0.5}, c)
	assert.Nil(t, Centroid(nil))
}
