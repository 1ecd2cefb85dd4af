package ai

import (
	"context"

	"github.com/spigell/candidate-matcher/internal/domain"
)

// ContentGenerator produces free text for a prompt. The output may embed a
// structured payload and is not expected to be deterministic.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Embedder turns a non-empty text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.Vector, error)
}

// Modeler is implemented by collaborators that can report their model name for logs.
type Modeler interface {
	Model() string
}

// ModelName returns the model reported by v, or an empty string.
func ModelName(v any) string {
	if m, ok := v.(Modeler); ok {
		return m.Model()
	}
	return ""
}
