// Package memory implements store.Store in process memory with an optional JSON snapshot.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/candidate-matcher/internal/domain"
	"github.com/spigell/candidate-matcher/internal/store"
)

// Store keeps documents per kind in maps. When a snapshot path is configured,
// every write is persisted to it and New loads it back.
type Store struct {
	mu       sync.RWMutex
	docs     map[domain.Kind]map[string]domain.Document
	snapshot string
	logger   *zap.Logger
}

type snapshotFile struct {
	Documents []domain.Document `json:"documents"`
}

// New creates a memory store. An empty snapshot path keeps everything in memory.
func New(snapshot string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		docs: map[domain.Kind]map[string]domain.Document{
			domain.KindJob:       {},
			domain.KindCandidate: {},
		},
		snapshot: snapshot,
		logger:   logger,
	}

	if snapshot == "" {
		return s, nil
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	file, err := os.Open(s.snapshot)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 {
		return nil
	}

	var data snapshotFile
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return fmt.Errorf("decoding snapshot %q: %w", s.snapshot, err)
	}

	for _, doc := range data.Documents {
		if err := store.ValidateDocument(doc); err != nil {
			return fmt.Errorf("snapshot %q: %w", s.snapshot, err)
		}
		s.docs[doc.Kind][doc.ID] = doc
	}

	s.logger.Debug("memory store snapshot loaded",
		zap.String("path", s.snapshot),
		zap.Int("documents", len(data.Documents)),
	)
	return nil
}

// persist writes the snapshot atomically. Callers hold the write lock.
func (s *Store) persist() error {
	if s.snapshot == "" {
		return nil
	}

	var data snapshotFile
	for _, kind := range []domain.Kind{domain.KindJob, domain.KindCandidate} {
		ids := make([]string, 0, len(s.docs[kind]))
		for id := range s.docs[kind] {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			data.Documents = append(data.Documents, s.docs[kind][id])
		}
	}

	file, err := os.CreateTemp(filepath.Dir(s.snapshot), "snapshot_*.json")
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	defer os.Remove(file.Name())

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		file.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	return os.Rename(file.Name(), s.snapshot)
}

// Upsert replaces the document with the same kind and id.
func (s *Store) Upsert(ctx context.Context, doc domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateDocument(doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.docs[doc.Kind][doc.ID]
	s.docs[doc.Kind][doc.ID] = doc.Clone()

	if err := s.persist(); err != nil {
		if existed {
			s.docs[doc.Kind][doc.ID] = previous
		} else {
			delete(s.docs[doc.Kind], doc.ID)
		}
		return fmt.Errorf("%w: %w", domain.ErrCollaboratorUnavailable, err)
	}
	return nil
}

// Get returns a copy of the stored document.
func (s *Store) Get(ctx context.Context, kind domain.Kind, id string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[kind][id]
	if !ok {
		return domain.Document{}, fmt.Errorf("%s %q: %w", kind, id, domain.ErrNotFound)
	}
	return doc.Clone(), nil
}

// VectorSearch scans every document of kind and returns the topN closest.
func (s *Store) VectorSearch(ctx context.Context, kind domain.Kind, vector domain.Vector, topN int) ([]store.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topN <= 0 || len(vector) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	hits := make([]store.Hit, 0, len(s.docs[kind]))
	for id, doc := range s.docs[kind] {
		if !doc.HasVector() {
			continue
		}
		score, err := store.Similarity(vector, doc.AverageVector)
		if err != nil {
			s.mu.RUnlock()
			return nil, fmt.Errorf("document %q: %w", id, err)
		}
		hits = append(hits, store.Hit{ID: id, Score: score})
	}
	s.mu.RUnlock()

	store.SortHits(hits)
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

// FindByAttributes returns ids, sorted, of documents sharing at least one label with the filter.
func (s *Store) FindByAttributes(ctx context.Context, kind domain.Kind, filter store.AttributeFilter) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wanted := domain.NormalizeLabels(filter.AnyOf)
	if len(wanted) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, doc := range s.docs[kind] {
		for _, label := range doc.Attributes.Values(filter.Field) {
			if slices.Contains(wanted, label) {
				ids = append(ids, id)
				break
			}
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Len returns the number of stored documents of kind.
func (s *Store) Len(kind domain.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[kind])
}

// Close is a no-op; every write is already persisted.
func (s *Store) Close(context.Context) error {
	return nil
}

var _ store.Store = (*Store)(nil)
