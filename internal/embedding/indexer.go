package embedding

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/candidate-matcher/internal/ai"
	"github.com/spigell/candidate-matcher/internal/domain"
	"github.com/spigell/candidate-matcher/internal/logger"
)

const defaultConcurrency = 4

// Indexer embeds document chunks and derives the document average vector.
type Indexer struct {
	embedder    ai.Embedder
	dimensions  int
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

// NewIndexer creates an Indexer. A positive dimensions value pins the expected
// vector length; otherwise the first vector seen in a document sets it.
func NewIndexer(embedder ai.Embedder, dimensions, concurrency int, log *zap.Logger) *Indexer {
	if log == nil {
		log = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if model := ai.ModelName(embedder); model != "" {
		log = logger.WithCommonFields(log, "gemini", model)
	}

	return &Indexer{
		embedder:    embedder,
		dimensions:  dimensions,
		concurrency: concurrency,
		logger:      log,
		now:         time.Now,
	}
}

// Index returns a copy of doc with every chunk vector and the average vector
// filled in. Chunks whose embedding fails are left without a vector. The only
// error is the context's.
func (i *Indexer) Index(ctx context.Context, doc domain.Document) (domain.Document, error) {
	out := doc.Clone()
	log := logger.WithDocument(i.logger, string(doc.Kind), doc.ID)

	vectors := make([]domain.Vector, len(out.Chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for idx := range out.Chunks {
		text := out.Chunks[idx].Text
		if strings.TrimSpace(text) == "" {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			vector, err := i.embedder.Embed(gctx, text)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("chunk embedding failed",
					zap.Int("position", out.Chunks[idx].Position),
					zap.Error(err),
				)
				return nil
			}

			vectors[idx] = vector
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.Document{}, err
	}

	dims := i.dimensions
	usable := make([]domain.Vector, 0, len(vectors))
	for idx, vector := range vectors {
		if len(vector) == 0 {
			out.Chunks[idx].Vector = nil
			continue
		}
		if dims == 0 {
			dims = len(vector)
		}
		if len(vector) != dims {
			log.Warn("dropping chunk vector with unexpected dimensionality",
				zap.Int("position", out.Chunks[idx].Position),
				zap.Int("expected", dims),
				zap.Int("got", len(vector)),
			)
			out.Chunks[idx].Vector = nil
			continue
		}

		out.Chunks[idx].Vector = vector
		usable = append(usable, vector)
	}

	out.AverageVector = Average(usable)
	out.IndexedAt = i.now().UTC()

	log.Debug("document indexed",
		zap.Int("chunks", len(out.Chunks)),
		zap.Int("embedded", len(usable)),
		zap.Bool("has_vector", out.HasVector()),
	)

	return out, nil
}

// Average returns the element-wise mean of vectors, or nil when there is
// nothing to average. All vectors must share one length; the first one decides
// it and others are ignored.
func Average(vectors []domain.Vector) domain.Vector {
	var (
		sum   []float64
		count int
	)
	for _, vector := range vectors {
		if len(vector) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(vector))
		}
		if len(vector) != len(sum) {
			continue
		}
		for k, v := range vector {
			sum[k] += float64(v)
		}
		count++
	}
	if count == 0 {
		return nil
	}

	avg := make(domain.Vector, len(sum))
	for k, v := range sum {
		avg[k] = float32(v / float64(count))
	}
	return avg
}
