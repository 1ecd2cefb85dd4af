package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/candidate-matcher/internal/domain"
)

// GuardConfig bounds the call rate to a collaborator and trips a breaker on
// repeated failures.
type GuardConfig struct {
	Name              string
	RequestsPerMinute float64
	Burst             int
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
	// MinRequests and FailureRatio control when the breaker trips.
	MinRequests  uint32
	FailureRatio float64
}

// Guard wraps collaborator calls with a shared rate limiter and a circuit
// breaker. A nil *Guard runs calls unguarded.
type Guard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuard builds a guard. A non-positive RequestsPerMinute disables rate limiting.
func NewGuard(cfg GuardConfig, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "collaborator"
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 60 * time.Second
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = 0.6
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RequestsPerMinute/10))
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), burst)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// Cancellation by the caller says nothing about the collaborator.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Guard{limiter: limiter, breaker: breaker}
}

// Do waits for a rate slot and runs fn through the breaker. An open breaker is
// reported as domain.ErrCollaboratorUnavailable.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: waiting for rate limiter: %w", domain.ErrCollaboratorUnavailable, err)
		}
	}

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %w", domain.ErrCollaboratorUnavailable, g.breaker.Name(), err)
	}
	return err
}

// State returns the breaker state for status output.
func (g *Guard) State() string {
	if g == nil {
		return "disabled"
	}
	return g.breaker.State().String()
}
