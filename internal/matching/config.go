package matching

import (
	"fmt"
	"math"
	"time"

	"github.com/spigell/candidate-matcher/internal/domain"
)

const weightTolerance = 1e-9

// Config tunes retrieval and scoring.
type Config struct {
	SemanticWeight float64 `mapstructure:"semantic-weight"`
	OverlapWeight  float64 `mapstructure:"overlap-weight"`
	// OverFetchFactor multiplies the limit to size the broad vector query.
	OverFetchFactor int `mapstructure:"over-fetch-factor"`
	// MaxCandidates caps the broad vector query.
	MaxCandidates int    `mapstructure:"max-candidates"`
	DefaultLimit  int    `mapstructure:"limit"`
	Attribute     string `mapstructure:"attribute"`
	// Dimensions, when positive, is the only accepted job vector length.
	Dimensions    int           `mapstructure:"dimensions"`
	Concurrency   int           `mapstructure:"concurrency"`
	SearchTimeout time.Duration `mapstructure:"search-timeout"`
	ExcludeFile   string        `mapstructure:"exclude-file"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SemanticWeight:  0.7,
		OverlapWeight:   0.3,
		OverFetchFactor: 20,
		MaxCandidates:   200,
		DefaultLimit:    5,
		Attribute:       domain.SkillsField,
		Concurrency:     8,
	}
}

// withDefaults fills unset fields. Weights are defaulted only when both are unset.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SemanticWeight == 0 && c.OverlapWeight == 0 {
		c.SemanticWeight, c.OverlapWeight = def.SemanticWeight, def.OverlapWeight
	}
	if c.OverFetchFactor == 0 {
		c.OverFetchFactor = def.OverFetchFactor
	}
	if c.MaxCandidates == 0 {
		c.MaxCandidates = def.MaxCandidates
	}
	if c.DefaultLimit == 0 {
		c.DefaultLimit = def.DefaultLimit
	}
	if c.Attribute == "" {
		c.Attribute = def.Attribute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	return c
}

// Validate rejects configurations that cannot produce a meaningful ranking.
func (c Config) Validate() error {
	if c.SemanticWeight < 0 || c.OverlapWeight < 0 {
		return fmt.Errorf("%w: score weights must not be negative (semantic %v, overlap %v)",
			domain.ErrInvalidConfiguration, c.SemanticWeight, c.OverlapWeight)
	}
	if sum := c.SemanticWeight + c.OverlapWeight; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: score weights must sum to 1.0, got %v", domain.ErrInvalidConfiguration, sum)
	}
	if c.OverFetchFactor < 1 {
		return fmt.Errorf("%w: over-fetch factor must be at least 1, got %d", domain.ErrInvalidConfiguration, c.OverFetchFactor)
	}
	if c.MaxCandidates < 1 {
		return fmt.Errorf("%w: candidate ceiling must be at least 1, got %d", domain.ErrInvalidConfiguration, c.MaxCandidates)
	}
	if c.DefaultLimit < 1 {
		return fmt.Errorf("%w: default limit must be at least 1, got %d", domain.ErrInvalidConfiguration, c.DefaultLimit)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("%w: dimensions must not be negative", domain.ErrInvalidConfiguration)
	}
	if c.SearchTimeout < 0 {
		return fmt.Errorf("%w: search timeout must not be negative", domain.ErrInvalidConfiguration)
	}
	return nil
}

// Combined weighs the semantic and overlap scores.
func (c Config) Combined(semantic, overlap float64) float64 {
	return c.SemanticWeight*semantic + c.OverlapWeight*overlap
}

// searchSize is the number of candidates requested from the vector index.
func (c Config) searchSize(limit int) int {
	if limit >= c.MaxCandidates/c.OverFetchFactor {
		return c.MaxCandidates
	}
	return limit * c.OverFetchFactor
}
