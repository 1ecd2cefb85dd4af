package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/candidate-matcher/internal/matching"
)

const (
	app = "candidate-matcher"
)

type Config struct {
	Store        *StoreConfig        `mapstructure:"store"`
	Embedding    *EmbeddingConfig    `mapstructure:"embedding"`
	Segmentation *SegmentationConfig `mapstructure:"segmentation"`
	Ingest       *IngestConfig       `mapstructure:"ingest"`
	Matching     *matching.Config    `mapstructure:"matching"`
	Insight      *InsightConfig      `mapstructure:"insight"`
	AI           *AIConfig           `mapstructure:"ai"`
}

type StoreConfig struct {
	// Driver is "memory" or "mongo".
	Driver   string       `mapstructure:"driver"`
	Snapshot string       `mapstructure:"snapshot"`
	Mongo    *MongoConfig `mapstructure:"mongo"`
}

type MongoConfig struct {
	URI                  string `mapstructure:"uri"`
	URIFile              string `mapstructure:"uri-file"`
	Database             string `mapstructure:"database"`
	JobsCollection       string `mapstructure:"jobs-collection"`
	CandidatesCollection string `mapstructure:"candidates-collection"`
	VectorIndex          string `mapstructure:"vector-index"`
	CreateVectorIndex    bool   `mapstructure:"create-vector-index"`
}

type EmbeddingConfig struct {
	Model       string `mapstructure:"model"`
	Dimensions  int    `mapstructure:"dimensions"`
	Concurrency int    `mapstructure:"concurrency"`
}

type SegmentationConfig struct {
	Headers []string `mapstructure:"headers"`
}

type IngestConfig struct {
	ExtractSkills bool `mapstructure:"extract-skills"`
	Concurrency   int  `mapstructure:"concurrency"`
}

type InsightConfig struct {
	Concurrency  int `mapstructure:"concurrency"`
	MaxLogLength int `mapstructure:"max-log-length"`
}

type AIConfig struct {
	Gemini *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey            string  `mapstructure:"api-key"`
	APIKeyFile        string  `mapstructure:"api-key-file"`
	Model             string  `mapstructure:"model"`
	Temperature       float32 `mapstructure:"temperature"`
	MaxRetries        int     `mapstructure:"max-retries"`
	MaxLogLength      int     `mapstructure:"max-log-length"`
	RequestsPerMinute float64 `mapstructure:"requests-per-minute"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "candidate-matcher ranks candidate profiles against job requisitions and explains the shortlist",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"store.mongo.uri-file":   "MONGO_URI_FILE",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("store.driver", "memory")
	viper.SetDefault("store.snapshot", app+"-store.json")
	viper.SetDefault("ingest.extract-skills", true)
	viper.SetDefault("embedding.model", "text-embedding-004")
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.requests-per-minute", 60)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is candidate-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Without an explicit --config the defaults are enough to run.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}
	if config == nil {
		config = &Config{}
	}

	if config.Store == nil {
		config.Store = &StoreConfig{}
	}
	if config.Store.Mongo == nil {
		config.Store.Mongo = &MongoConfig{}
	}
	if config.Embedding == nil {
		config.Embedding = &EmbeddingConfig{}
	}
	if config.Segmentation == nil {
		config.Segmentation = &SegmentationConfig{}
	}
	if config.Ingest == nil {
		config.Ingest = &IngestConfig{}
	}
	if config.Matching == nil {
		config.Matching = &matching.Config{}
	}
	if config.Insight == nil {
		config.Insight = &InsightConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}

	return config, nil
}
