package insight

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spigell/candidate-matcher/internal/domain"
)

const (
	minMatchScore = 1
	maxMatchScore = 100
	questionCount = 3
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\\n?(.*?)```")

// ExtractPayload isolates the JSON object carried by a free-text generation
// response. It tries, in order: the whole response, the content of each fenced
// code block, and the span from the first '{' to the last '}'.
func ExtractPayload(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", domain.ErrMalformedGenerationOutput)
	}

	if payload, ok := decodeObject(raw); ok {
		return payload, nil
	}

	for _, match := range fencePattern.FindAllStringSubmatch(raw, -1) {
		if payload, ok := decodeObject(match[1]); ok {
			return payload, nil
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", domain.ErrMalformedGenerationOutput)
	}

	payload, ok := decodeObject(raw[start : end+1])
	if !ok {
		return nil, fmt.Errorf("%w: JSON object does not parse", domain.ErrMalformedGenerationOutput)
	}
	return payload, nil
}

func decodeObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, false
	}
	return payload, true
}

// parseReport converts an extracted payload into a report. A missing or
// non-numeric match score makes the payload malformed.
func parseReport(payload map[string]any) (domain.AssessmentReport, error) {
	score := coerceFloat(payload["match_score"])
	if math.IsNaN(score) {
		return domain.AssessmentReport{}, fmt.Errorf("%w: match_score is missing or not a number", domain.ErrMalformedGenerationOutput)
	}

	return domain.AssessmentReport{
		Summary:            coerceString(payload["summary"]),
		MatchScore:         clampScore(score),
		Justification:      coerceString(payload["justification"]),
		InterviewQuestions: coerceQuestions(payload["interview_questions"]),
	}, nil
}

func clampScore(score float64) int {
	rounded := int(math.Round(score))
	return max(minMatchScore, min(maxMatchScore, rounded))
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "%"))
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsInf(f, 0) {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// coerceQuestions keeps at most three non-empty questions. A single string is
// split on newlines.
func coerceQuestions(v any) []string {
	var items []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			items = append(items, coerceString(item))
		}
	case string:
		items = strings.Split(val, "\n")
	}

	questions := make([]string, 0, questionCount)
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		questions = append(questions, item)
		if len(questions) == questionCount {
			break
		}
	}
	return questions
}
