package filtering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/candidate-matcher/internal/domain"
)

// ExcludedCandidates is the on-disk list of candidates that must not be shortlisted again.
type ExcludedCandidates struct {
	Items []*ExcludedCandidate `json:"items"`
}

// ExcludedCandidate records why and when a candidate was excluded.
type ExcludedCandidate struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	JobID      string    `json:"job_id,omitempty"`
	ExcludedAt time.Time `json:"excluded_at"`
}

// ExcludedFromResults builds exclusion entries for a shortlist of jobID.
func ExcludedFromResults(jobID string, results []domain.MatchResult) *ExcludedCandidates {
	excluded := &ExcludedCandidates{}
	now := time.Now().UTC()
	for _, r := range results {
		item := &ExcludedCandidate{ID: r.CandidateID, JobID: jobID, ExcludedAt: now}
		if r.Candidate != nil {
			item.Name = r.Candidate.DisplayName()
		}
		excluded.Items = append(excluded.Items, item)
	}
	return excluded
}

// ExcludedFromFile reads an exclusion list. A missing or empty file is an empty list.
func ExcludedFromFile(path string) (*ExcludedCandidates, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &ExcludedCandidates{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedCandidates{}, nil
	}

	var excluded ExcludedCandidates
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

// Append adds entries whose id is not listed yet.
func (e *ExcludedCandidates) Append(other *ExcludedCandidates) {
	if other == nil {
		return
	}
	seen := e.IDs()
	for _, item := range other.Items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		e.Items = append(e.Items, item)
	}
}

// IDs returns the excluded candidate ids as a set.
func (e *ExcludedCandidates) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(e.Items))
	for _, item := range e.Items {
		ids[item.ID] = struct{}{}
	}
	return ids
}

// ToFile writes the list as indented JSON, replacing the file contents.
func (e *ExcludedCandidates) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

type excludeFileFilter struct {
	path     string
	logger   *zap.Logger
	disabled string
}

// NewExcludeFile creates a filter that removes candidates listed in an exclude file.
func NewExcludeFile(path string, logger *zap.Logger) Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &excludeFileFilter{path: strings.TrimSpace(path), logger: logger}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Disable(reason string) { f.disabled = reason }

func (f *excludeFileFilter) IsEnabled() bool { return f.disabled == "" }

func (f *excludeFileFilter) Validate() error { return nil }

func (f *excludeFileFilter) Apply(_ context.Context, candidates []domain.Document) ([]domain.Document, Step, error) {
	initial := len(candidates)
	if f.path == "" {
		return candidates, Step{Initial: initial, Left: initial}, nil
	}

	excluded, err := ExcludedFromFile(f.path)
	if err != nil {
		return nil, Step{}, fmt.Errorf("getting excluded candidates from file: %w", err)
	}

	ids := excluded.IDs()
	kept, removed := keep(candidates, func(c domain.Document) bool {
		_, skip := ids[c.ID]
		return !skip
	})
	if len(removed) > 0 {
		f.logger.Info("excluding candidates based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_candidates", removed),
			zap.Int("candidates_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(removed), Left: len(kept)}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.disabled, Details: details}
}
