package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/spigell/candidate-matcher/internal/domain"
)

const taskRetrievalDocument = "RETRIEVAL_DOCUMENT"

// Embedder produces document embeddings with a Gemini embedding model.
type Embedder struct {
	client     *Client
	model      string
	dimensions int
}

// NewEmbedder creates an Embedder. A positive dimensions value asks the model
// for reduced output dimensionality.
func NewEmbedder(client *Client, model string, dimensions int) *Embedder {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultEmbeddingModel
	}
	return &Embedder{client: client, model: model, dimensions: dimensions}
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.Vector, error) {
	if e == nil || e.client == nil {
		return nil, errors.New("gemini embedder is not initialized")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text to embed must not be empty", domain.ErrInvalidInput)
	}

	config := &genai.EmbedContentConfig{TaskType: taskRetrievalDocument}
	if e.dimensions > 0 {
		config.OutputDimensionality = genai.Ptr(int32(e.dimensions))
	}

	var vector domain.Vector
	err := e.client.call(ctx, "embed content", func(ctx context.Context) error {
		resp, err := e.client.models.EmbedContent(ctx, e.model, genai.Text(text), config)
		if err != nil {
			return err
		}
		if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
			return errors.New("gemini api returned no embedding")
		}
		vector = append(domain.Vector(nil), resp.Embeddings[0].Values...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return vector, nil
}

// Model returns the configured embedding model name.
func (e *Embedder) Model() string {
	if e == nil {
		return ""
	}
	return e.model
}
