package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/candidate-matcher/internal/ai"
	"github.com/spigell/candidate-matcher/internal/ai/gemini"
	"github.com/spigell/candidate-matcher/internal/domain"
	"github.com/spigell/candidate-matcher/internal/embedding"
	"github.com/spigell/candidate-matcher/internal/filtering"
	"github.com/spigell/candidate-matcher/internal/ingest"
	"github.com/spigell/candidate-matcher/internal/insight"
	"github.com/spigell/candidate-matcher/internal/matching"
	"github.com/spigell/candidate-matcher/internal/secrets"
	"github.com/spigell/candidate-matcher/internal/segment"
	"github.com/spigell/candidate-matcher/internal/skills"
	"github.com/spigell/candidate-matcher/internal/store"
	"github.com/spigell/candidate-matcher/internal/store/memory"
	"github.com/spigell/candidate-matcher/internal/store/mongo"
)

func openStore(ctx context.Context, config *Config, logger *zap.Logger) (store.Store, error) {
	driver := strings.ToLower(strings.TrimSpace(config.Store.Driver))
	storeLogger := logger.With(zap.String("store", driver))

	switch driver {
	case "", "memory":
		return memory.New(config.Store.Snapshot, storeLogger)
	case "mongo", "mongodb":
		mc := config.Store.Mongo
		uri, err := secrets.Load(secrets.Source{
			Name:  "mongo uri",
			Value: mc.URI,
			Env:   "MONGO_URI",
			File:  mc.URIFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set store.mongo.uri-file or MONGO_URI_FILE)", err)
		}

		return mongo.Open(ctx, mongo.Config{
			URI:                  uri,
			Database:             mc.Database,
			JobsCollection:       mc.JobsCollection,
			CandidatesCollection: mc.CandidatesCollection,
			VectorIndex:          mc.VectorIndex,
			Dimensions:           config.Embedding.Dimensions,
			CreateVectorIndex:    mc.CreateVectorIndex,
		}, storeLogger)
	default:
		return nil, fmt.Errorf("%w: unsupported store driver %q", domain.ErrInvalidConfiguration, config.Store.Driver)
	}
}

func newGeminiClient(ctx context.Context, cfg *GeminiConfig, logger *zap.Logger) (*gemini.Client, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		Env:   "GEMINI_API_KEY",
		File:  cfg.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.Int("ai_retry_attempts", cfg.MaxRetries),
	)

	guard := ai.NewGuard(guardConfig(cfg), genLogger)

	return gemini.NewClient(ctx, gemini.Config{
		APIKey:     apiKey,
		MaxRetries: cfg.MaxRetries,
		Guard:      guard,
	}, genLogger)
}

func guardConfig(cfg *GeminiConfig) ai.GuardConfig {
	return ai.GuardConfig{
		Name:              "gemini",
		RequestsPerMinute: cfg.RequestsPerMinute,
	}
}

func newPipeline(client *gemini.Client, config *Config, st store.Store, logger *zap.Logger) *ingest.Pipeline {
	embedder := gemini.NewEmbedder(client, config.Embedding.Model, config.Embedding.Dimensions)
	indexer := embedding.NewIndexer(embedder, config.Embedding.Dimensions, config.Embedding.Concurrency, logger)

	var extractor *skills.Extractor
	if config.Ingest.ExtractSkills {
		generator := gemini.NewGenerator(client, config.AI.Gemini.Model, 0)
		extractor = skills.NewExtractor(generator, logger, config.AI.Gemini.MaxLogLength)
	}

	seg := segment.New(config.Segmentation.Headers)
	logger.Debug("segmentation headers", zap.Strings("headers", seg.Headers()))

	if extractor == nil {
		return ingest.New(seg, indexer, nil, st, logger, config.Ingest.Concurrency)
	}
	return ingest.New(seg, indexer, extractor, st, logger, config.Ingest.Concurrency)
}

func newEngine(config *Config, st store.Store, excludeFile string, logger *zap.Logger) (*matching.Engine, []filtering.Filter, error) {
	cfg := *config.Matching
	if cfg.Dimensions == 0 {
		cfg.Dimensions = config.Embedding.Dimensions
	}
	if excludeFile == "" {
		excludeFile = cfg.ExcludeFile
	}

	var extra []filtering.Filter
	if excludeFile != "" {
		extra = append(extra, filtering.NewExcludeFile(excludeFile, logger))
	}

	engine, err := matching.New(st, cfg, logger, extra...)
	if err != nil {
		return nil, nil, err
	}
	return engine, extra, nil
}

func newInsightGenerator(client *gemini.Client, config *Config, logger *zap.Logger) *insight.Generator {
	generator := gemini.NewGenerator(client, config.AI.Gemini.Model, config.AI.Gemini.Temperature)

	maxLogLength := config.Insight.MaxLogLength
	if maxLogLength == 0 {
		maxLogLength = config.AI.Gemini.MaxLogLength
	}
	return insight.NewGenerator(generator, logger, config.Insight.Concurrency, maxLogLength)
}
