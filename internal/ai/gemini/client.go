package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/candidate-matcher/internal/ai"
	"github.com/spigell/candidate-matcher/internal/domain"
	"github.com/spigell/candidate-matcher/internal/utils"
)

const (
	defaultModel          = "gemini-2.5-flash"
	defaultEmbeddingModel = "text-embedding-004"
	defaultMaxRetries     = 3
	defaultBackoff        = 2 * time.Second
	defaultMaxRetryDelay  = 30 * time.Second
)

var retryDelayPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*(ms|s|sec|secs|seconds?)\b`)

// modelsAPI is the subset of *genai.Models used by the adapters.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config configures the shared Gemini client.
type Config struct {
	APIKey     string
	MaxRetries int
	// Backoff is the base delay between retries of transient failures.
	Backoff time.Duration
	// MaxRetryDelay caps server-requested delays; longer quota waits are not retried.
	MaxRetryDelay time.Duration
	Guard         *ai.Guard
}

// Client holds the genai connection shared by the generator and the embedder.
type Client struct {
	models        modelsAPI
	guard         *ai.Guard
	logger        *zap.Logger
	maxRetries    int
	backoff       time.Duration
	maxRetryDelay time.Duration
}

// NewClient creates a client configured for the Gemini API backend.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", domain.ErrInvalidConfiguration)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = defaultBackoff
	}

	return newClient(client.Models, cfg, logger), nil
}

func newClient(models modelsAPI, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = defaultMaxRetryDelay
	}

	return &Client{
		models:        models,
		guard:         cfg.Guard,
		logger:        logger,
		maxRetries:    cfg.MaxRetries,
		backoff:       cfg.Backoff,
		maxRetryDelay: cfg.MaxRetryDelay,
	}
}

// call runs fn through the guard, retrying transient API failures. The final
// error is classified as domain.ErrCollaboratorUnavailable.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err := c.guard.Do(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		delay, retry := c.retryDelay(err, attempt)
		if !retry || attempt == c.maxRetries {
			break
		}

		c.logger.Debug("retrying gemini call",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := utils.WaitFor(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	if errors.Is(lastErr, domain.ErrCollaboratorUnavailable) {
		return fmt.Errorf("%s: %w", op, lastErr)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrCollaboratorUnavailable, op, lastErr)
}

func (c *Client) retryDelay(err error, attempt int) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	if errors.Is(err, domain.ErrCollaboratorUnavailable) {
		// The guard already gave up on this collaborator.
		return 0, false
	}

	backoff := c.backoff * time.Duration(1<<(attempt-1))

	apiErr, ok := asAPIError(err)
	if !ok {
		return backoff, true
	}

	switch apiErr.Code {
	case http.StatusTooManyRequests:
		requested, found := parseRetryDelay(apiErr.Message)
		if !found {
			return backoff, true
		}
		if requested > c.maxRetryDelay {
			return 0, false
		}
		return requested, true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return backoff, true
	default:
		return 0, false
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var value genai.APIError
	if errors.As(err, &value) {
		return value, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return genai.APIError{}, false
}

func parseRetryDelay(message string) (time.Duration, bool) {
	match := retryDelayPattern.FindStringSubmatch(message)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(match[2], "ms") {
		return time.Duration(value * float64(time.Millisecond)), true
	}
	return time.Duration(value * float64(time.Second)), true
}
