// Package matching ranks candidates for a job by semantic similarity and attribute overlap.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/candidate-matcher/internal/domain"
	"github.com/spigell/candidate-matcher/internal/filtering"
	"github.com/spigell/candidate-matcher/internal/logger"
	"github.com/spigell/candidate-matcher/internal/store"
)

// Engine runs the two-phase hybrid ranking.
type Engine struct {
	store   store.Store
	cfg     Config
	filters []filtering.Filter
	logger  *zap.Logger
}

// New validates cfg and builds an Engine. The extra filters run after the
// per-request hard filters on every match.
func New(st store.Store, cfg Config, log *zap.Logger, extra ...filtering.Filter) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: store is required", domain.ErrInvalidConfiguration)
	}

	return &Engine{store: st, cfg: cfg, filters: extra, logger: log}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Match returns up to limit candidates for jobID, best first. A missing job or
// a job without a vector yields an empty result. A non-positive limit uses the
// configured default.
func (e *Engine) Match(ctx context.Context, jobID string, filters []filtering.HardFilter, limit int) ([]domain.MatchResult, error) {
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	steps := make([]filtering.Filter, 0, len(filters)+len(e.filters))
	for _, f := range filters {
		steps = append(steps, filtering.NewAttribute(f))
	}
	steps = append(steps, e.filters...)
	if err := filtering.ValidateAll(steps); err != nil {
		return nil, err
	}

	log := logger.WithFields(e.logger, zap.String(logger.FieldRunID, uuid.NewString()))
	log = logger.WithDocument(log, string(domain.KindJob), jobID)

	job, err := e.store.Get(ctx, domain.KindJob, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info("job not found, nothing to match")
		return []domain.MatchResult{}, nil
	}
	if err != nil {
		return nil, classify(fmt.Sprintf("fetching job %q", jobID), err)
	}

	if !job.HasVector() {
		log.Info("job has no vector, nothing to match")
		return []domain.MatchResult{}, nil
	}
	if e.cfg.Dimensions > 0 && len(job.AverageVector) != e.cfg.Dimensions {
		return nil, fmt.Errorf("%w: job vector has %d dimensions, expected %d",
			domain.ErrInvalidConfiguration, len(job.AverageVector), e.cfg.Dimensions)
	}

	hits, err := e.search(ctx, job.AverageVector, e.cfg.searchSize(limit))
	if err != nil {
		return nil, err
	}
	log.Debug("semantic retrieval done", zap.Int("hits", len(hits)))
	if len(hits) == 0 {
		return []domain.MatchResult{}, nil
	}

	candidates, err := e.loadCandidates(ctx, log, hits)
	if err != nil {
		return nil, err
	}

	candidates, err = filtering.Run(ctx, log, steps, candidates)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		log.Info("every candidate was filtered out")
		return []domain.MatchResult{}, nil
	}

	semantic := make(map[string]float64, len(hits))
	for _, hit := range hits {
		semantic[hit.ID] = hit.Score
	}

	jobLabels := job.Attributes.Values(e.cfg.Attribute)
	results := make([]domain.MatchResult, 0, len(candidates))
	for i := range candidates {
		candidate := &candidates[i]
		overlap, shared := Overlap(jobLabels, candidate.Attributes.Values(e.cfg.Attribute))
		score := semantic[candidate.ID]

		results = append(results, domain.MatchResult{
			CandidateID:   candidate.ID,
			SemanticScore: score,
			OverlapScore:  overlap,
			CombinedScore: e.cfg.Combined(score, overlap),
			Overlap:       shared,
			Candidate:     candidate,
		})
	}

	Rank(results)
	if len(results) > limit {
		results = results[:limit]
	}

	log.Info("match finished",
		zap.Int("retrieved", len(hits)),
		zap.Int("ranked", len(candidates)),
		zap.Int("returned", len(results)),
	)
	return results, nil
}

func (e *Engine) search(ctx context.Context, vector domain.Vector, topN int) ([]store.Hit, error) {
	searchCtx := ctx
	if e.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, e.cfg.SearchTimeout)
		defer cancel()
	}

	hits, err := e.store.VectorSearch(searchCtx, domain.KindCandidate, vector, topN)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfiguration) {
			return nil, err
		}
		return nil, classify("vector search", err)
	}
	if err := searchCtx.Err(); err != nil {
		// A result that arrived after the deadline may be incomplete.
		return nil, classify("vector search", err)
	}
	return hits, nil
}

// loadCandidates fetches hit documents concurrently, keeping hit order.
// Candidates that vanished, failed to load or lost their vector are skipped.
func (e *Engine) loadCandidates(ctx context.Context, log *zap.Logger, hits []store.Hit) ([]domain.Document, error) {
	slots := make([]*domain.Document, len(hits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for i, hit := range hits {
		g.Go(func() error {
			doc, err := e.store.Get(gctx, domain.KindCandidate, hit.ID)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("skipping candidate that failed to load",
					zap.String("candidate_id", hit.ID),
					zap.Error(err),
				)
				return nil
			}
			if !doc.HasVector() {
				log.Warn("skipping candidate without vector", zap.String("candidate_id", hit.ID))
				return nil
			}
			slots[i] = &doc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, classify("loading candidates", err)
	}

	candidates := make([]domain.Document, 0, len(slots))
	for _, doc := range slots {
		if doc != nil {
			candidates = append(candidates, *doc)
		}
	}
	return candidates, nil
}

// Rank sorts results by combined score, then semantic score, both descending,
// then by candidate id.
func Rank(results []domain.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.SemanticScore != b.SemanticScore {
			return a.SemanticScore > b.SemanticScore
		}
		return a.CandidateID < b.CandidateID
	})
}

func classify(op string, err error) error {
	if errors.Is(err, domain.ErrCollaboratorUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrCollaboratorUnavailable, err)
}
