package insight

import (
	"errors"
	"testing"

	"github.com/spigell/candidate-matcher/internal/domain"
)

func TestExtractPayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		summary string
	}{
		{name: "plain json", raw: `{"summary": "plain"}`, summary: "plain"},
		{name: "fenced json", raw: "```json\n{\"summary\": \"fenced\"}\n```", summary: "fenced"},
		{name: "fence after prose", raw: "Here you go:\n```\n{\"summary\": \"prose\"}\n```\nThanks", summary: "prose"},
		{name: "brace span", raw: `Result: {"summary": "span", "nested": {"a": 1}} done`, summary: "span"},
		{name: "fence with broken content falls back to span", raw: "```\nnot json\n``` then {\"summary\": \"late\"}", summary: "late"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := ExtractPayload(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if payload["summary"] != tt.summary {
				t.Fatalf("expected summary %q, got %v", tt.summary, payload["summary"])
			}
		})
	}
}

func TestExtractPayloadFailures(t *testing.T) {
	for _, raw := range []string{
		"",
		"no structured output here",
		"} reversed {",
		"{ this is not json }",
	} {
		if _, err := ExtractPayload(raw); !errors.Is(err, domain.ErrMalformedGenerationOutput) {
			t.Fatalf("%q: expected malformed output error, got %v", raw, err)
		}
	}
}

func TestParseReport(t *testing.T) {
	report, err := parseReport(map[string]any{
		"summary":             "  Strong Go background ",
		"match_score":         "72",
		"justification":       "Led two migrations.",
		"interview_questions": []any{"Q1", " ", "Q2", "Q3", "Q4"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Summary != "Strong Go background" {
		t.Fatalf("unexpected summary %q", report.Summary)
	}
	if report.MatchScore != 72 {
		t.Fatalf("unexpected score %d", report.MatchScore)
	}
	if len(report.InterviewQuestions) != 3 || report.InterviewQuestions[2] != "Q3" {
		t.Fatalf("unexpected questions %q", report.InterviewQuestions)
	}
}

func TestParseReportScoreHandling(t *testing.T) {
	tests := []struct {
		raw  any
		want int
	}{
		{raw: 150.0, want: 100},
		{raw: -3.0, want: 1},
		{raw: 0.0, want: 1},
		{raw: 64.6, want: 65},
		{raw: "85%", want: 85},
	}

	for _, tt := range tests {
		report, err := parseReport(map[string]any{"match_score": tt.raw})
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", tt.raw, err)
		}
		if report.MatchScore != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.raw, tt.want, report.MatchScore)
		}
	}

	for _, raw := range []any{nil, "high", true, "Infinity", "-inf", "+Inf%"} {
		if _, err := parseReport(map[string]any{"match_score": raw}); !errors.Is(err, domain.ErrMalformedGenerationOutput) {
			t.Fatalf("%v: expected malformed output error, got %v", raw, err)
		}
	}
}

func TestCoerceQuestionsFromString(t *testing.T) {
	got := coerceQuestions("What is a goroutine?\n\nHow do channels close?")
	if len(got) != 2 || got[1] != "How do channels close?" {
		t.Fatalf("unexpected questions %q", got)
	}
}
