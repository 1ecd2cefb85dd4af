package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/candidate-matcher/internal/domain"
)

func TestSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b domain.Vector
		want float64
	}{
		{name: "identical", a: domain.Vector{1, 0}, b: domain.Vector{2, 0}, want: 1},
		{name: "orthogonal", a: domain.Vector{1, 0}, b: domain.Vector{0, 1}, want: 0.5},
		{name: "opposite", a: domain.Vector{1, 0}, b: domain.Vector{-1, 0}, want: 0},
		{name: "zero vector", a: domain.Vector{0, 0}, b: domain.Vector{1, 0}, want: 0.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Similarity(tc.a, tc.b)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestSimilarityRejectsDimensionMismatch(t *testing.T) {
	_, err := Similarity(domain.Vector{1}, domain.Vector{1, 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestSortHits(t *testing.T) {
	hits := []Hit{{ID: "c", Score: 0.5}, {ID: "b", Score: 0.9}, {ID: "a", Score: 0.5}}
	SortHits(hits)

	assert.Equal(t, []Hit{{ID: "b", Score: 0.9}, {ID: "a", Score: 0.5}, {ID: "c", Score: 0.5}}, hits)
}

func TestValidateDocument(t *testing.T) {
	require.NoError(t, ValidateDocument(domain.Document{ID: "x", Kind: domain.KindJob}))
	assert.ErrorIs(t, ValidateDocument(domain.Document{Kind: domain.KindJob}), domain.ErrInvalidInput)
	assert.ErrorIs(t, ValidateDocument(domain.Document{ID: "x", Kind: "resume"}), domain.ErrInvalidInput)
}
