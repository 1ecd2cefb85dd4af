package insight

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/candidate-matcher/internal/domain"
)

type stubGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	delays    map[string]time.Duration
	prompts   []string
}

// GenerateContent answers by the candidate name embedded in the prompt.
func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	for name, resp := range s.responses {
		if strings.Contains(prompt, "Name: "+name+"\n") {
			time.Sleep(s.delays[name])
			return resp, s.errs[name]
		}
	}
	for name, err := range s.errs {
		if strings.Contains(prompt, "Name: "+name+"\n") {
			return "", err
		}
	}
	return "", errors.New("unexpected prompt")
}

func (s *stubGenerator) Model() string { return "stub-model" }

func shortlisted(names ...string) []domain.MatchResult {
	results := make([]domain.MatchResult, 0, len(names))
	for _, name := range names {
		results = append(results, domain.MatchResult{
			CandidateID: "id_" + name,
			Candidate: &domain.Document{
				ID:         "id_" + name,
				Kind:       domain.KindCandidate,
				Attributes: domain.Attributes{Name: name, Skills: []string{"python", "sql"}},
				RawText:    name + " resume text",
			},
		})
	}
	return results
}

var testJob = &domain.Document{
	ID:         "linkedin_1",
	Kind:       domain.KindJob,
	Attributes: domain.Attributes{Title: "Data Engineer", Company: "Acme"},
	RawText:    "We need Python and SQL.",
}

func TestGenerateParsesFencedResponse(t *testing.T) {
	gen := &stubGenerator{responses: map[string]string{
		"ada": "```json\n{\"summary\": \"Solid\", \"match_score\": 72, \"justification\": \"Python heavy\", \"interview_questions\": [\"a\", \"b\", \"c\"]}\n```",
	}}

	reports, err := NewGenerator(gen, nil, 2, 0).Generate(context.Background(), testJob, shortlisted("ada"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}

	report := reports[0]
	if report.CandidateID != "id_ada" || report.MatchScore != 72 || report.Summary != "Solid" {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.InterviewQuestions) != 3 {
		t.Fatalf("expected 3 questions, got %q", report.InterviewQuestions)
	}

	prompt := gen.prompts[0]
	for _, want := range []string{"Title: Data Engineer", "We need Python and SQL.", "Name: ada", "Skills: python, sql", "ada resume text"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt is missing %q", want)
		}
	}
}

func TestGenerateOmitsUnparseableCandidates(t *testing.T) {
	gen := &stubGenerator{
		responses: map[string]string{
			"ada":   `{"summary": "ok", "match_score": 80}`,
			"bob":   "I cannot produce JSON today.",
			"carol": `{"summary": "fine", "match_score": "64"}`,
		},
		errs: map[string]error{"dave": errors.New("quota exceeded")},
	}
	core, observed := observer.New(zapcore.WarnLevel)

	reports, err := NewGenerator(gen, zap.New(core), 4, 0).Generate(context.Background(), testJob, shortlisted("ada", "bob", "carol", "dave"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(reports) != 2 || reports[0].CandidateID != "id_ada" || reports[1].CandidateID != "id_carol" {
		t.Fatalf("unexpected reports %+v", reports)
	}
	failed := observed.FilterMessage("candidate assessment failed")
	if n := failed.Len(); n != 2 {
		t.Fatalf("expected 2 warnings, got %d", n)
	}
	names := map[string]bool{}
	for _, entry := range failed.All() {
		names[entry.ContextMap()["candidate"].(string)] = true
	}
	if !names["bob"] || !names["dave"] {
		t.Fatalf("expected failed candidates to be named in logs, got %v", names)
	}
}

func TestGeneratePreservesShortlistOrder(t *testing.T) {
	gen := &stubGenerator{
		responses: map[string]string{
			"first":  `{"match_score": 10}`,
			"second": `{"match_score": 20}`,
			"third":  `{"match_score": 30}`,
		},
		delays: map[string]time.Duration{
			"first":  30 * time.Millisecond,
			"second": 10 * time.Millisecond,
		},
	}

	reports, err := NewGenerator(gen, nil, 3, 0).Generate(context.Background(), testJob, shortlisted("first", "second", "third"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"id_first", "id_second", "id_third"}
	if len(reports) != len(want) {
		t.Fatalf("expected %d reports, got %d", len(want), len(reports))
	}
	for i, id := range want {
		if reports[i].CandidateID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, reports[i].CandidateID)
		}
	}
}

func TestGenerateRequiresJob(t *testing.T) {
	_, err := NewGenerator(&stubGenerator{}, nil, 1, 0).Generate(context.Background(), nil, shortlisted("ada"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestGenerateEmptyShortlist(t *testing.T) {
	reports, err := NewGenerator(&stubGenerator{}, nil, 1, 0).Generate(context.Background(), testJob, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("expected no reports, got %d", len(reports))
	}
}

func TestBuildPromptFillsMissingFields(t *testing.T) {
	prompt := BuildPrompt(&domain.Document{}, &domain.Document{})
	if strings.Contains(prompt, "{{") {
		t.Fatalf("unreplaced placeholder in prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Title: N/A") || !strings.Contains(prompt, "Other attributes: N/A") {
		t.Fatalf("expected N/A placeholders:\n%s", prompt)
	}
}
