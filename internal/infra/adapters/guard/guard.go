// Package guard wraps external collaborators with a timeout, a client-side rate limit
// and a circuit breaker.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/infra/metrics"
)

// ErrOpen is returned without calling out while the breaker is open. It is retryable.
var ErrOpen = errors.New("circuit open")

type Config struct {
	Name             string
	Timeout          time.Duration
	RatePerSecond    float64 // 0 disables the limiter
	Burst            int
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

func (c *Config) defaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = 1
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
}

type Guard struct {
	name    string
	timeout time.Duration
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[any]
}

func New(cfg Config, logger *zerolog.Logger) *Guard {
	cfg.defaults()
	log := logger.With().Str("component", "guard").Str("collaborator", cfg.Name).Logger()
	g := &Guard{name: cfg.Name, timeout: cfg.Timeout}
	if cfg.RatePerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	g.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// bad input says nothing about the collaborator's health
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsRetryable(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, float64(to))
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	metrics.SetBreakerState(cfg.Name, float64(gobreaker.StateClosed))
	return g
}

func (g *Guard) Name() string { return g.name }

func (g *Guard) State() gobreaker.State { return g.cb.State() }

// Do runs fn under the guard.
func Do[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("%s: rate limit wait: %w", g.name, err)
		}
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	out, err := g.cb.Execute(func() (any, error) { return fn(ctx) })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.IncBreakerRejection(g.name)
		return zero, fmt.Errorf("%s: %w", g.name, ErrOpen)
	}
	if err != nil {
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}
