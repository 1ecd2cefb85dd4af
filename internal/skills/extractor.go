// Package skills extracts normalised skill labels from free text.
package skills

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/candidate-matcher/internal/ai"
	"github.com/spigell/candidate-matcher/internal/domain"
	"github.com/spigell/candidate-matcher/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

// MaxWords bounds the text sent for extraction.
const MaxWords = 450

var separators = regexp.MustCompile(`[,\n;]+`)

// Extractor asks the generation collaborator for a comma-separated skill list.
type Extractor struct {
	generator ai.ContentGenerator
	logger    *zap.Logger
	maxLogLen int
}

// NewExtractor creates an Extractor.
func NewExtractor(generator ai.ContentGenerator, logger *zap.Logger, maxLogLength int) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{generator: generator, logger: logger, maxLogLen: maxLogLength}
}

// Extract returns ordered, lower-cased, de-duplicated skill labels. Blank text
// yields no labels without a collaborator call.
func (e *Extractor) Extract(ctx context.Context, text string) ([]string, error) {
	text = truncateWords(text, MaxWords)
	if text == "" {
		return nil, nil
	}

	raw, err := e.generator.GenerateContent(ctx, strings.ReplaceAll(promptTemplate, "{{TEXT}}", text))
	if err != nil {
		return nil, fmt.Errorf("extracting skills: %w", err)
	}

	e.logger.Debug("skills extracted", zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)))
	return ParseList(raw), nil
}

// ParseList splits a comma-separated model answer into normalised labels.
// Bullets, quotes and a leading "Skills:" label are stripped.
func ParseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if label, rest, ok := strings.Cut(raw, ":"); ok {
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "skills", "extracted skills":
			raw = rest
		}
	}

	var labels []string
	for _, part := range separators.Split(raw, -1) {
		part = strings.Trim(strings.TrimSpace(part), "-*•`\"'")
		part = strings.TrimRight(part, ".")
		if part = strings.TrimSpace(part); part != "" {
			labels = append(labels, part)
		}
	}
	return domain.NormalizeLabels(labels)
}

func truncateWords(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) > limit {
		words = words[:limit]
	}
	return strings.Join(words, " ")
}
