// Package ingest turns raw documents into indexed store records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/candidate-matcher/internal/domain"
	"github.com/spigell/candidate-matcher/internal/logger"
	"github.com/spigell/candidate-matcher/internal/store"
	"github.com/spigell/candidate-matcher/internal/utils"
)

const previewLength = 120

const defaultConcurrency = 2

type segmenter interface {
	Segment(text string) []string
}

type indexer interface {
	Index(ctx context.Context, doc domain.Document) (domain.Document, error)
}

type skillExtractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// Pipeline extracts skills, segments and indexes a document, then stores it.
type Pipeline struct {
	segmenter   segmenter
	indexer     indexer
	extractor   skillExtractor
	store       store.Store
	logger      *zap.Logger
	concurrency int
}

// New creates a Pipeline. The extractor is optional; without it only the
// skills supplied with the document are kept.
func New(seg segmenter, idx indexer, extractor skillExtractor, st store.Store, log *zap.Logger, concurrency int) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Pipeline{
		segmenter:   seg,
		indexer:     idx,
		extractor:   extractor,
		store:       st,
		logger:      log,
		concurrency: concurrency,
	}
}

// Ingest rebuilds doc from its raw text and upserts it. The store write is the
// last step. The stored document is returned.
func (p *Pipeline) Ingest(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if err := store.ValidateDocument(doc); err != nil {
		return domain.Document{}, err
	}

	log := logger.WithDocument(p.logger, string(doc.Kind), doc.ID)
	doc = doc.Clone()

	skills := doc.Attributes.Skills
	if p.extractor != nil && strings.TrimSpace(doc.RawText) != "" {
		extracted, err := p.extractor.Extract(ctx, doc.RawText)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.Document{}, ctxErr
			}
			log.Warn("skill extraction failed, keeping supplied skills", zap.Error(err))
		}
		skills = append(skills, extracted...)
	}
	doc.Attributes.Skills = domain.NormalizeLabels(skills)

	texts := p.segmenter.Segment(doc.RawText)
	doc.Chunks = make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		doc.Chunks = append(doc.Chunks, domain.Chunk{Position: i, Text: text})
		log.Debug("chunk", zap.Int("position", i), zap.String("preview", utils.Preview(text, previewLength)))
	}
	doc.AverageVector = nil

	indexed, err := p.indexer.Index(ctx, doc)
	if err != nil {
		return domain.Document{}, fmt.Errorf("indexing %s %q: %w", doc.Kind, doc.ID, err)
	}

	if err := p.store.Upsert(ctx, indexed); err != nil {
		return domain.Document{}, fmt.Errorf("storing %s %q: %w", doc.Kind, doc.ID, err)
	}

	if !indexed.HasVector() {
		log.Warn("document stored without vector, it is excluded from semantic ranking until re-ingested")
	}
	log.Info("document ingested",
		zap.Int("chunks", len(indexed.Chunks)),
		zap.Int("skills", len(indexed.Attributes.Skills)),
		zap.Bool("has_vector", indexed.HasVector()),
	)
	return indexed, nil
}

// IngestMany ingests documents concurrently. Every document is attempted;
// the failures are joined into the returned error.
func (p *Pipeline) IngestMany(ctx context.Context, docs []domain.Document) ([]domain.Document, error) {
	out := make([]domain.Document, len(docs))
	errs := make([]error, len(docs))
	ok := make([]bool, len(docs))

	var eg errgroup.Group
	eg.SetLimit(p.concurrency)

	for i, doc := range docs {
		eg.Go(func() error {
			stored, err := p.Ingest(ctx, doc)
			if err != nil {
				errs[i] = err
				return nil
			}
			out[i] = stored
			ok[i] = true
			return nil
		})
	}
	_ = eg.Wait()

	stored := make([]domain.Document, 0, len(docs))
	for i := range docs {
		if ok[i] {
			stored = append(stored, out[i])
		}
	}
	return stored, errors.Join(errs...)
}
