package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/models"
	"tradeledger/pkg/utils"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // Normal operation
	CircuitOpen     CircuitState = "OPEN"      // Failing, rejecting requests
	CircuitHalfOpen CircuitState = "HALF_OPEN" // Testing if the provider recovered
)

// ErrCircuitOpen is returned while the provider is considered down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes needed to close.
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before a trial request.
	Cooldown time.Duration
}

// CircuitBreaker stops calling a provider after repeated failures so a
// down provider does not stall every symbol of a replay through retries.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	now    func() time.Time

	mu          sync.Mutex
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{config: config, now: time.Now, state: CircuitClosed}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastFailure) < cb.config.Cooldown {
			return ErrCircuitOpen
		}
		cb.transitionTo(CircuitHalfOpen)
	}
	return nil
}

// record updates the circuit after a call. Missing data and canceled calls
// say nothing about provider health and are ignored.
func (cb *CircuitBreaker) record(err error) {
	if err != nil && (errors.Is(err, apperrors.ErrDataNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		switch cb.state {
		case CircuitHalfOpen:
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.transitionTo(CircuitClosed)
			}
		case CircuitClosed:
			cb.failures = 0
		}
		return
	}

	cb.lastFailure = cb.now()
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	cb.state = state
	cb.failures = 0
	cb.successes = 0
}

// WithCircuitBreaker rejects fetches while cb is open. The rejection is
// permanent so an outer WithRetry gives up at once.
func WithCircuitBreaker(p Provider, cb *CircuitBreaker) Provider {
	return ProviderFunc(func(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
		if err := cb.allow(); err != nil {
			return nil, utils.Permanent(fmt.Errorf("%s: %w", symbol, err))
		}
		bars, err := p.DailyPrices(ctx, symbol, from, to)
		cb.record(err)
		return bars, err
	})
}
