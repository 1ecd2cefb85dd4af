// Package store defines the persistence contract for jobs and candidate profiles.
package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/spigell/candidate-matcher/internal/domain"
)

// Store persists documents and answers nearest-neighbour queries over their
// average vectors. Implementations return domain.ErrNotFound for unknown ids.
type Store interface {
	Upsert(ctx context.Context, doc domain.Document) error
	Get(ctx context.Context, kind domain.Kind, id string) (domain.Document, error)
	// VectorSearch returns up to topN documents of kind closest to vector, best
	// first. Documents without an average vector never appear.
	VectorSearch(ctx context.Context, kind domain.Kind, vector domain.Vector, topN int) ([]Hit, error)
	// FindByAttributes returns the ids of documents having at least one of the
	// filter labels in the given attribute field.
	FindByAttributes(ctx context.Context, kind domain.Kind, filter AttributeFilter) ([]string, error)
	Close(ctx context.Context) error
}

// Hit is a single vector search result. Score lies in [0, 1], higher is closer.
type Hit struct {
	ID    string  `json:"id" bson:"_id"`
	Score float64 `json:"score" bson:"score"`
}

// AttributeFilter selects documents by label membership.
type AttributeFilter struct {
	Field string
	AnyOf []string
}

// ValidateDocument checks the fields every store relies on.
func ValidateDocument(doc domain.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	if !doc.Kind.Valid() {
		return fmt.Errorf("%w: unknown document kind %q", domain.ErrInvalidInput, doc.Kind)
	}
	return nil
}

// Similarity maps the cosine similarity of a and b into [0, 1] as (1+cos)/2,
// the convention of cosine vector indexes. Zero vectors score 0.5.
func Similarity(a, b domain.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: vector dimensions differ (%d vs %d)", domain.ErrInvalidConfiguration, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0.5, nil
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	cos = math.Max(-1, math.Min(1, cos))
	return (1 + cos) / 2, nil
}

// SortHits orders hits by score descending, then id ascending.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
