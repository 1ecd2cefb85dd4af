package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/candidate-matcher/internal/domain"
	"github.com/spigell/candidate-matcher/internal/filtering"
	"github.com/spigell/candidate-matcher/internal/store"
	"github.com/spigell/candidate-matcher/internal/store/memory"
)

type stubStore struct {
	mu         sync.Mutex
	docs       map[string]domain.Document
	hits       []store.Hit
	searchErr  error
	getErr     map[string]error
	block      bool
	searchTopN int
	searches   int
}

func newStubStore() *stubStore {
	return &stubStore{docs: map[string]domain.Document{}, getErr: map[string]error{}}
}

func (s *stubStore) add(doc domain.Document) {
	s.docs[string(doc.Kind)+"/"+doc.ID] = doc
}

func (s *stubStore) Upsert(_ context.Context, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(doc)
	return nil
}

func (s *stubStore) Get(_ context.Context, kind domain.Kind, id string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErr[id]; err != nil {
		return domain.Document{}, err
	}
	doc, ok := s.docs[string(kind)+"/"+id]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	return doc, nil
}

func (s *stubStore) VectorSearch(ctx context.Context, _ domain.Kind, _ domain.Vector, topN int) ([]store.Hit, error) {
	s.mu.Lock()
	s.searches++
	s.searchTopN = topN
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	hits := s.hits
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

func (s *stubStore) FindByAttributes(context.Context, domain.Kind, store.AttributeFilter) ([]string, error) {
	return nil, nil
}

func (s *stubStore) Close(context.Context) error { return nil }

func job(id string, vector domain.Vector, skills ...string) domain.Document {
	return domain.Document{ID: id, Kind: domain.KindJob, AverageVector: vector, Attributes: domain.Attributes{Skills: skills}}
}

func candidate(id string, vector domain.Vector, skills ...string) domain.Document {
	return domain.Document{ID: id, Kind: domain.KindCandidate, AverageVector: vector, Attributes: domain.Attributes{Skills: skills}}
}

func resultIDs(results []domain.MatchResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.CandidateID)
	}
	return ids
}

func TestOverlapScenario(t *testing.T) {
	score, shared := Overlap([]string{"python", "sql"}, []string{"Python", "aws"})
	assert.InDelta(t, 1.0/3.0, score, 1e-9)
	assert.Equal(t, []string{"python"}, shared)
}

func TestOverlapSharedLabelsAreSorted(t *testing.T) {
	score, shared := Overlap([]string{"SQL", "python", "aws", "go"}, []string{"aws", "Python", "sql", "java"})
	assert.InDelta(t, 3.0/5.0, score, 1e-9)
	assert.Equal(t, []string{"aws", "python", "sql"}, shared)
}

func TestOverlapProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	pool := []string{"go", "python", "sql", "aws", "gcp", "k8s", "java", "rust"}
	pick := func() []string {
		var out []string
		for _, label := range pool {
			if rng.Intn(2) == 0 {
				out = append(out, label)
			}
		}
		return out
	}

	for i := 0; i < 100; i++ {
		a, b := pick(), pick()

		ab, _ := Overlap(a, b)
		ba, _ := Overlap(b, a)
		assert.InDelta(t, ab, ba, 1e-12, "overlap must be symmetric for %v %v", a, b)
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.LessOrEqual(t, ab, 1.0)

		if len(a) > 0 {
			self, _ := Overlap(a, a)
			assert.Equal(t, 1.0, self)
		}
		empty, shared := Overlap(a, nil)
		assert.Equal(t, 0.0, empty)
		assert.Nil(t, shared)
	}
}

func TestCombinedScenario(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 0.66, cfg.Combined(0.80, 1.0/3.0), 1e-3)
}

func TestCombinedIsMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	for step := 0; step < 10; step++ {
		lo, hi := float64(step)/10, float64(step+1)/10
		assert.LessOrEqual(t, cfg.Combined(lo, 0.5), cfg.Combined(hi, 0.5))
		assert.LessOrEqual(t, cfg.Combined(0.5, lo), cfg.Combined(0.5, hi))
	}
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "weights do not sum to one", cfg: Config{SemanticWeight: 0.6, OverlapWeight: 0.3}},
		{name: "negative weight", cfg: Config{SemanticWeight: 1.2, OverlapWeight: -0.2}},
		{name: "over-fetch below one", cfg: Config{OverFetchFactor: -1}},
		{name: "ceiling below one", cfg: Config{MaxCandidates: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStubStore()
			_, err := New(st, tt.cfg, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
			assert.Zero(t, st.searches, "no collaborator call before validation")
		})
	}
}

func TestNewAcceptsCustomWeights(t *testing.T) {
	engine, err := New(newStubStore(), Config{SemanticWeight: 1, OverlapWeight: 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, engine.Config().SemanticWeight)
	assert.Equal(t, 0.0, engine.Config().OverlapWeight)
	assert.Equal(t, 20, engine.Config().OverFetchFactor)
}

func TestMatchUsesStoreScoresAndWeights(t *testing.T) {
	st := newStubStore()
	st.add(job("j1", domain.Vector{1, 0}, "python", "sql"))
	st.add(candidate("c1", domain.Vector{1, 0}, "python", "aws"))
	st.hits = []store.Hit{{ID: "c1", Score: 0.80}}

	engine, err := New(st, DefaultConfig(), nil)
	require.NoError(t, err)

	results, err := engine.Match(context.Background(), "j1", nil, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "c1", r.CandidateID)
	assert.InDelta(t, 0.80, r.SemanticScore, 1e-9)
	assert.InDelta(t, 1.0/3.0, r.OverlapScore, 1e-9)
	assert.InDelta(t, 0.66, r.CombinedScore, 1e-3)
	assert.Equal(t, []string{"python"}, r.Overlap)
	require.NotNil(t, r.Candidate)
	assert.Equal(t, "c1", r.Candidate.ID)
}

func TestMatchJobWithoutVectorReturnsEmpty(t *testing.T) {
	st := newStubStore()
	st.add(job("empty", nil, "go"))

	engine, err := New(st, DefaultConfig(), nil)
	require.NoError(t, err)

	results, err := engine.Match(context.Background(), "empty", nil, 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, st.searches)
}

func TestMatchMissingJobReturnsEmpty(t *testing.T) {
	engine, err := New(newStubStore(), DefaultConfig(), nil)
	require.NoError(t, err)

	results, err := engine.Match(context.Background(), "nope", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMatchJobFetchFailureIsCollaboratorError(t *testing.T) {
	st := newStubStore()
	st.getErr["j1"] = errors.New("connection reset")

	engine, err := New(st, DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = engine.Match(context.Background(), "j1", nil, 5)
	assert.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)
}

func TestMatchRejectsJobDimensionMismatch(t *testing.T) {
	st := newStubStore()
	st.add(job("j1", domain.Vector{1, 0, 0}))

	engine, err := New(st, Config{Dimensions: 2}, nil)
	require.NoError(t, err)

	_, err = engine.Match(context.Background(), "j1", nil, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	assert.Zero(t, st.searches)
}

func TestMatchSearchSize(t *testing.T) {
	st := newStubStore()
	st.add(job("j1", domain.Vector{1}))

	engine, err := New(st, Config{OverFetchFactor: 10, MaxCandidates: 35}, nil)
	require.NoError(t, err)

	_, err = engine.Match(context.Background(), "j1", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 30, st.searchTopN)

	_, err = engine.Match(context.Background(), "j1", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, 35, st.searchTopN)

	_, err = engine.Match(context.Background(), "j1", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 35, st.searchTopN, "default limit 5 times factor 10 is capped")
}

func TestSearchSizeNeverOverflows(t *testing.T) {
	cfg := Config{OverFetchFactor: 20, MaxCandidates: 200}

	assert.Equal(t, 180, cfg.searchSize(9))
	assert.Equal(t, 200, cfg.searchSize(10))
	assert.Equal(t, 200, cfg.searchSize(math.MaxInt/10))
	assert.Equal(t, 200, cfg.searchSize(math.MaxInt))

	wide := Config{OverFetchFactor: 500, MaxCandidates: 200}
	assert.Equal(t, 200, wide.searchSize(1))
}

func TestMatchHugeLimitUsesCandidateCeiling(t *testing.T) {
	st := newStubStore()
	st.add(job("j1", domain.Vector{1}))

	engine, err := New(st, Config{OverFetchFactor: 10, MaxCandidates: 35}, nil)
	require.NoError(t, err)

	_, err = engine.Match(context.Background(), "j1", nil, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 35, st.searchTopN)
}

func TestMatchSearchTimeoutIsCollaboratorError(t *testing.T) {
	st := newStubStore()
	st.add(job("j1", domain.Vector{1}))
	st.block = true

	engine, err := New(st, Config{SearchTimeout: 10 * time.Millisecond}, nil)
	require.NoError(t, err)

	results, err := engine.Match(context.Background(), "j1", nil, 5)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMatchSearchFailureIsCollaboratorError(t *testing.T) {
	st := newStubStore()
	st.add(job("j1", domain.Vector{1}))
	st.searchErr = errors.New("atlas unavailable")

	engine, err := New(st, DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = engine.Match(context.Background(), "j1", nil, 5)
	assert.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)
}

func TestMatchSkipsCandidatesThatFailToLoad(t *testing.T) {
	st := newStubStore()
	st.add(job("j1", domain.Vector{1}))
	st.add(candidate("ok", domain.Vector{1}))
	st.add(candidate("novector", nil))
	st.getErr["broken"] = errors.New("decode failure")
	st.hits = []store.Hit{{ID: "broken", Score: 0.9}, {ID: "gone", Score: 0.85}, {ID: "novector", Score: 0.8}, {ID: "ok", Score: 0.7}}

	engine, err := New(st, DefaultConfig(), nil)
	require.NoError(t, err)

	results, err := engine.Match(context.Background(), "j1", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, resultIDs(results))
}

func TestMatchOrderingAndTieBreaks(t *testing.T) {
	st := newStubStore()
	st.add(job("j1", domain.Vector{1}, "go"))
	for _, id := range []string{"a", "b", "c", "d"} {
		st.add(candidate(id, domain.Vector{1}))
	}
	st.add(candidate("e", domain.Vector{1}, "go"))
	st.hits = []store.Hit{
		{ID: "b", Score: 0.5},
		{ID: "a", Score: 0.5},
		{ID: "c", Score: 0.9},
		{ID: "d", Score: 0.1},
		{ID: "e", Score: 0.4},
	}

	engine, err := New(st, DefaultConfig(), nil)
	require.NoError(t, err)

	results, err := engine.Match(context.Background(), "j1", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "e", "a", "b", "d"}, resultIDs(results))

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].CombinedScore, results[i].CombinedScore)
	}

	limited, err := engine.Match(context.Background(), "j1", nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "e"}, resultIDs(limited))
}

func TestMatchAppliesHardFilters(t *testing.T) {
	st := newStubStore()
	st.add(job("j1", domain.Vector{1}, "python"))
	st.add(candidate("py", domain.Vector{1}, "python"))
	st.add(candidate("java", domain.Vector{1}, "java", "sql"))
	st.add(candidate("go", domain.Vector{1}, "go"))
	st.hits = []store.Hit{{ID: "go", Score: 0.99}, {ID: "java", Score: 0.8}, {ID: "py", Score: 0.6}}

	engine, err := New(st, DefaultConfig(), nil)
	require.NoError(t, err)

	results, err := engine.Match(context.Background(), "j1", []filtering.HardFilter{{AnyOf: []string{"Python", "JAVA"}}}, 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"py", "java"}, resultIDs(results))

	results, err = engine.Match(context.Background(), "j1", []filtering.HardFilter{{AllOf: []string{"rust"}}}, 5)
	require.NoError(t, err)
	assert.Empty(t, results, "filters never widen the search")
}

func TestMatchRejectsEmptyHardFilterBeforeStoreCalls(t *testing.T) {
	st := newStubStore()
	engine, err := New(st, DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = engine.Match(context.Background(), "j1", []filtering.HardFilter{{Field: "skills"}}, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, st.searches)
}

func TestMatchWithExcludeFile(t *testing.T) {
	st := newStubStore()
	st.add(job("j1", domain.Vector{1}))
	st.add(candidate("a", domain.Vector{1}))
	st.add(candidate("b", domain.Vector{1}))
	st.hits = []store.Hit{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}}

	path := filepath.Join(t.TempDir(), "exclude.json")
	require.NoError(t, filtering.ExcludedFromResults("j1", []domain.MatchResult{{CandidateID: "a"}}).ToFile(path))

	engine, err := New(st, DefaultConfig(), nil, filtering.NewExcludeFile(path, nil))
	require.NoError(t, err)

	results, err := engine.Match(context.Background(), "j1", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, resultIDs(results))
}

func TestMatchWithMemoryStore(t *testing.T) {
	ctx := context.Background()
	st, err := memory.New("", nil)
	require.NoError(t, err)

	require.NoError(t, st.Upsert(ctx, job("j1", domain.Vector{1, 0}, "go", "sql")))
	require.NoError(t, st.Upsert(ctx, candidate("close", domain.Vector{0.9, 0.1}, "go")))
	require.NoError(t, st.Upsert(ctx, candidate("far", domain.Vector{-1, 0}, "go", "sql")))
	require.NoError(t, st.Upsert(ctx, candidate("unindexed", nil, "go", "sql")))
	for i := 0; i < 20; i++ {
		require.NoError(t, st.Upsert(ctx, candidate(fmt.Sprintf("filler_%02d", i), domain.Vector{0, 1})))
	}

	engine, err := New(st, DefaultConfig(), nil)
	require.NoError(t, err)

	results, err := engine.Match(ctx, "j1", nil, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "close", results[0].CandidateID)
	assert.NotContains(t, resultIDs(results), "unindexed")
	for _, r := range results {
		assert.GreaterOrEqual(t, r.SemanticScore, 0.0)
		assert.LessOrEqual(t, r.SemanticScore, 1.0)
	}
}

func TestRankIsDeterministic(t *testing.T) {
	results := []domain.MatchResult{
		{CandidateID: "z", CombinedScore: 0.5, SemanticScore: 0.5},
		{CandidateID: "y", CombinedScore: 0.5, SemanticScore: 0.6},
		{CandidateID: "x", CombinedScore: 0.5, SemanticScore: 0.5},
	}
	Rank(results)
	assert.Equal(t, []string{"y", "x", "z"}, resultIDs(results))
}
