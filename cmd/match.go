package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/candidate-matcher/internal/domain"
	"github.com/spigell/candidate-matcher/internal/filtering"
	"github.com/spigell/candidate-matcher/internal/logger"
)

type matchOutput struct {
	JobID    string                    `json:"job_id"`
	Matches  []domain.MatchResult      `json:"matches"`
	Insights []domain.AssessmentReport `json:"insights,omitempty"`
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank stored candidates for a job and optionally generate insights",
	Run: func(cmd *cobra.Command, _ []string) {
		runMatch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
	addMatchFlags(matchCmd)

	viper.BindPFlag("matching.exclude-file", matchCmd.Flags().Lookup("exclude-file"))
}

func addMatchFlags(cmd *cobra.Command) {
	cmd.Flags().String("job", "", "stored job id, e.g. linkedin_4296641686")
	cmd.Flags().StringSlice("any-of", nil, "candidates must have at least one of these labels")
	cmd.Flags().StringSlice("all-of", nil, "candidates must have all of these labels")
	cmd.Flags().String("field", "", "attribute field the label filters apply to (default is matching.attribute)")
	cmd.Flags().IntP("limit", "l", 0, "number of candidates to return (default is matching.limit)")
	cmd.Flags().Bool("insights", false, "generate an assessment for every shortlisted candidate")
	cmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before generating insights")
	cmd.Flags().StringP("exclude-file", "e", "", "file with candidates to exclude. Default is unset.")
	cmd.Flags().Bool("mark-shortlisted", false, "append the shortlist to the exclude file")
	cmd.Flags().StringSlice("skip-filter", nil, "names of configured filters to disable for this run, e.g. exclude_file")

	cmd.MarkFlagRequired("job")
}

func runMatch(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	flags := cmd.Flags()
	jobID, _ := flags.GetString("job")
	limit, _ := flags.GetInt("limit")
	withInsights, _ := flags.GetBool("insights")
	autoApprove, _ := flags.GetBool("auto-approve")
	markShortlisted, _ := flags.GetBool("mark-shortlisted")

	st, err := openStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close(ctx)

	engine, extra, err := newEngine(config, st, "", logger)
	if err != nil {
		logger.Fatal("creating the matching engine", zap.Error(err))
	}

	skipped, _ := flags.GetStringSlice("skip-filter")
	for _, name := range skipped {
		filtering.DisableByName(extra, name, "disabled by --skip-filter")
	}

	hardFilters := hardFiltersFromFlags(cmd, engine.Config().Attribute)

	steps := append([]filtering.Filter{}, extra...)
	for _, f := range hardFilters {
		steps = append(steps, filtering.NewAttribute(f))
	}
	logger.Debug("filters", zap.Any("statuses", filtering.Describe(steps)))

	logger.Info("starting the match", zap.String("job_id", jobID), zap.Int("limit", limit))

	results, err := engine.Match(ctx, jobID, hardFilters, limit)
	if err != nil {
		logger.Fatal("matching failed", zap.Error(err))
	}

	output := matchOutput{JobID: jobID, Matches: results}

	if len(results) == 0 {
		logger.Info("no candidates matched", zap.String("job_id", jobID))
	}

	if withInsights && len(results) > 0 && confirm(autoApprove, fmt.Sprintf("Generate insights for %d candidates", len(results))) {
		job, err := st.Get(ctx, domain.KindJob, jobID)
		if err != nil {
			logger.Fatal("loading the job for insights", zap.Error(err))
		}

		client, err := newGeminiClient(ctx, config.AI.Gemini, logger)
		if err != nil {
			logger.Fatal("creating gemini client", zap.Error(err))
		}

		output.Insights, err = newInsightGenerator(client, config, logger).Generate(ctx, &job, results)
		if err != nil {
			logger.Fatal("generating insights", zap.Error(err))
		}
	}

	if markShortlisted && len(results) > 0 {
		if err := markExcluded(config.Matching.ExcludeFile, jobID, results); err != nil {
			logger.Fatal("updating exclude file", zap.Error(err))
		}
		logger.Info("appended to exclude file", zap.String("filename", config.Matching.ExcludeFile))
	}

	pretty, _ = json.MarshalIndent(output, "", "  ")
	fmt.Println(string(pretty))
}

func hardFiltersFromFlags(cmd *cobra.Command, defaultField string) []filtering.HardFilter {
	flags := cmd.Flags()
	anyOf, _ := flags.GetStringSlice("any-of")
	allOf, _ := flags.GetStringSlice("all-of")
	field, _ := flags.GetString("field")

	if len(anyOf) == 0 && len(allOf) == 0 {
		return nil
	}
	if strings.TrimSpace(field) == "" {
		field = defaultField
	}
	return []filtering.HardFilter{{Field: field, AnyOf: anyOf, AllOf: allOf}}
}

func confirm(autoApprove bool, label string) bool {
	if autoApprove {
		return true
	}

	prompt := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := prompt.Run(); err != nil {
		return false
	}
	return true
}

func markExcluded(path, jobID string, results []domain.MatchResult) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("exclude file is not configured (use --exclude-file or matching.exclude-file)")
	}

	excluded, err := filtering.ExcludedFromFile(path)
	if err != nil {
		return err
	}
	excluded.Append(filtering.ExcludedFromResults(jobID, results))
	return excluded.ToFile(path)
}
