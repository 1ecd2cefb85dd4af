// Package insight turns a ranked shortlist into per-candidate assessments.
package insight

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/candidate-matcher/internal/ai"
	"github.com/spigell/candidate-matcher/internal/domain"
	"github.com/spigell/candidate-matcher/internal/logger"
	"github.com/spigell/candidate-matcher/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength = 200
	defaultConcurrency  = 2
	notAvailable        = "N/A"
)

// Generator drives the generation collaborator once per shortlisted candidate.
type Generator struct {
	generator   ai.ContentGenerator
	logger      *zap.Logger
	maxLogLen   int
	concurrency int
}

// NewGenerator creates a Generator.
func NewGenerator(generator ai.ContentGenerator, log *zap.Logger, concurrency, maxLogLength int) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Generator{
		generator:   generator,
		logger:      logger.WithCommonFields(log, "gemini", ai.ModelName(generator)),
		maxLogLen:   maxLogLength,
		concurrency: concurrency,
	}
}

// Generate returns one report per candidate that produced a parseable
// response, in shortlist order. Failed candidates are logged and omitted.
func (g *Generator) Generate(ctx context.Context, job *domain.Document, shortlist []domain.MatchResult) ([]domain.AssessmentReport, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: job is required", domain.ErrInvalidInput)
	}

	slots := make([]*domain.AssessmentReport, len(shortlist))

	eg := errgroup.Group{}
	eg.SetLimit(g.concurrency)

	for i, result := range shortlist {
		eg.Go(func() error {
			log := logger.WithDocument(g.logger, string(domain.KindCandidate), result.CandidateID)

			if result.Candidate == nil {
				log.Warn("skipping candidate without loaded document")
				return nil
			}

			report, err := g.assess(ctx, log, job, result.Candidate)
			if err != nil {
				log.Warn("candidate assessment failed",
					zap.String("candidate", result.Candidate.DisplayName()),
					zap.Error(err),
				)
				return nil
			}

			report.CandidateID = result.CandidateID
			slots[i] = &report
			return nil
		})
	}
	_ = eg.Wait()

	reports := make([]domain.AssessmentReport, 0, len(slots))
	for _, report := range slots {
		if report != nil {
			reports = append(reports, *report)
		}
	}

	g.logger.Info("insights generated",
		zap.String("job_id", job.ID),
		zap.Int("shortlist", len(shortlist)),
		zap.Int("reports", len(reports)),
	)
	return reports, nil
}

func (g *Generator) assess(ctx context.Context, log *zap.Logger, job, candidate *domain.Document) (domain.AssessmentReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.AssessmentReport{}, err
	}

	prompt := BuildPrompt(job, candidate)

	log.Debug("generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)

	raw, err := g.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return domain.AssessmentReport{}, err
	}

	log.Debug("generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, g.maxLogLen)),
	)

	payload, err := ExtractPayload(raw)
	if err != nil {
		return domain.AssessmentReport{}, err
	}
	return parseReport(payload)
}

// BuildPrompt renders the assessment prompt for one job and candidate.
func BuildPrompt(job, candidate *domain.Document) string {
	replacer := strings.NewReplacer(
		"{{JOB_TITLE}}", orNA(job.Attributes.Title),
		"{{JOB_DESCRIPTION}}", orNA(job.RawText),
		"{{CANDIDATE_NAME}}", orNA(candidate.Attributes.Name),
		"{{CANDIDATE_SKILLS}}", orNA(strings.Join(candidate.Attributes.Skills, ", ")),
		"{{CANDIDATE_ATTRIBUTES}}", otherAttributes(candidate.Attributes),
		"{{CANDIDATE_TEXT}}", orNA(candidate.RawText),
	)
	return replacer.Replace(promptTemplate)
}

func otherAttributes(attrs domain.Attributes) string {
	other := maps.Clone(attrs.Extra)
	if other == nil {
		other = map[string]any{}
	}
	for key, value := range map[string]string{
		"title":    attrs.Title,
		"company":  attrs.Company,
		"location": attrs.Location,
	} {
		if value != "" {
			other[key] = value
		}
	}
	if len(other) == 0 {
		return notAvailable
	}

	data, err := json.Marshal(other)
	if err != nil {
		return notAvailable
	}
	return string(data)
}

func orNA(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return notAvailable
	}
	return s
}
