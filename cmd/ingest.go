package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/candidate-matcher/internal/domain"
	"github.com/spigell/candidate-matcher/internal/logger"
	"github.com/spigell/candidate-matcher/internal/textextract"
)

var ingestCmd = &cobra.Command{
	Use:       "ingest job|candidate",
	Short:     "Segment, embed and store a job posting or a candidate profile",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(domain.KindJob), string(domain.KindCandidate)},
	Run: func(cmd *cobra.Command, args []string) {
		runIngest(cmd, domain.Kind(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	addIngestFlags(ingestCmd)
}

func addIngestFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("file", "f", nil, "text, markdown, pdf or docx file(s) to ingest")
	cmd.Flags().String("id", "", "external id of the document (default is the file name)")
	cmd.Flags().String("source", "", "source of the document, e.g. linkedin; prefixes the stored id")
	cmd.Flags().String("title", "", "job or profile title")
	cmd.Flags().String("company", "", "company name")
	cmd.Flags().String("location", "", "location")
	cmd.Flags().String("name", "", "candidate name")
	cmd.Flags().StringSlice("skills", nil, "known skills, merged with extracted ones")
	cmd.Flags().StringToString("attr", nil, "extra attributes as key=value pairs")

	cmd.MarkFlagRequired("file")
}

func runIngest(cmd *cobra.Command, kind domain.Kind) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the ingestion", zap.String("version", version), zap.String("kind", string(kind)))

	docs, err := documentsFromFlags(cmd, kind)
	if err != nil {
		logger.Fatal("preparing documents", zap.Error(err))
	}

	st, err := openStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close(ctx)

	client, err := newGeminiClient(ctx, config.AI.Gemini, logger)
	if err != nil {
		logger.Fatal("creating gemini client", zap.Error(err), zap.String("hint", "set GEMINI_API_KEY_FILE environment variable or the 'ai.gemini.api-key-file' key in the configuration file"))
	}

	pipeline := newPipeline(client, config, st, logger)

	stored, err := pipeline.IngestMany(ctx, docs)
	for _, doc := range stored {
		logger.Info("stored document",
			zap.String("id", doc.ID),
			zap.Strings("skills", doc.Attributes.Skills),
			zap.Bool("has_vector", doc.HasVector()),
		)
	}
	if err != nil {
		logger.Fatal("ingestion failed", zap.Error(err), zap.Int("stored", len(stored)), zap.Int("requested", len(docs)))
	}

	summary := make([]map[string]any, 0, len(stored))
	for _, doc := range stored {
		summary = append(summary, map[string]any{
			"id":         doc.ID,
			"kind":       doc.Kind,
			"chunks":     len(doc.Chunks),
			"skills":     doc.Attributes.Skills,
			"has_vector": doc.HasVector(),
		})
	}
	pretty, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(pretty))
}

func documentsFromFlags(cmd *cobra.Command, kind domain.Kind) ([]domain.Document, error) {
	flags := cmd.Flags()
	files, _ := flags.GetStringSlice("file")
	id, _ := flags.GetString("id")
	source, _ := flags.GetString("source")

	if id != "" && len(files) > 1 {
		return nil, fmt.Errorf("%w: --id can only be used with a single file", domain.ErrInvalidInput)
	}

	attrs, err := attributesFromFlags(cmd)
	if err != nil {
		return nil, err
	}

	docs := make([]domain.Document, 0, len(files))
	for _, file := range files {
		text, err := textextract.File(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}

		externalID := id
		if externalID == "" {
			externalID = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		}
		docID, err := domain.DocumentID(source, externalID)
		if err != nil {
			return nil, err
		}

		docs = append(docs, domain.Document{
			ID:         docID,
			Kind:       kind,
			Attributes: attrs.Clone(),
			RawText:    text,
		})
	}
	return docs, nil
}

func attributesFromFlags(cmd *cobra.Command) (domain.Attributes, error) {
	flags := cmd.Flags()
	raw := map[string]any{}
	for _, name := range []string{"title", "company", "location", "name", "source"} {
		if value, _ := flags.GetString(name); value != "" {
			raw[name] = value
		}
	}
	if skills, _ := flags.GetStringSlice("skills"); len(skills) > 0 {
		raw[domain.SkillsField] = skills
	}
	extra, _ := flags.GetStringToString("attr")
	for key, value := range extra {
		if _, reserved := raw[key]; reserved {
			return domain.Attributes{}, fmt.Errorf("%w: attribute %q has its own flag", domain.ErrInvalidInput, key)
		}
		raw[key] = value
	}

	return domain.DecodeAttributes(raw)
}
