package session

import (
	"context"
	"fmt"
	"sync"

	apperrors "tradeledger/internal/errors"
)

// State is the position of a portfolio in the session state machine.
type State string

const (
	StateIdle       State = "IDLE"
	StateValidating State = "VALIDATING"
	StatePersisting State = "PERSISTING"
	StateReplaying  State = "REPLAYING"
	StateReporting  State = "REPORTING"
)

// portfolioLocks serializes runs per portfolio and tracks their state.
type portfolioLocks struct {
	mu     sync.Mutex
	sems   map[string]chan struct{}
	states map[string]State
}

func newPortfolioLocks() *portfolioLocks {
	return &portfolioLocks{
		sems:   make(map[string]chan struct{}),
		states: make(map[string]State),
	}
}

// acquire blocks until the portfolio is free or ctx is done. Giving up
// returns ErrPortfolioBusy wrapping the context error.
func (l *portfolioLocks) acquire(ctx context.Context, portfolioID string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.sems[portfolioID]
	if !ok {
		sem = make(chan struct{}, 1)
		l.sems[portfolioID] = sem
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrPortfolioBusy, portfolioID, ctx.Err())
	}
}

func (l *portfolioLocks) set(portfolioID string, s State) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, ok := l.states[portfolioID]
	if !ok {
		prev = StateIdle
	}
	l.states[portfolioID] = s
	return prev
}

func (l *portfolioLocks) get(portfolioID string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.states[portfolioID]; ok {
		return s
	}
	return StateIdle
}
