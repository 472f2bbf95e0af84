// Package orderlog implements the append-only order log, the single source of
// truth from which every ledger is rebuilt.
package orderlog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/models"
)

// Store persists order logs. SaveOrders receives the full sorted log of a
// portfolio; implementations must never drop orders already saved.
type Store interface {
	LoadOrders(ctx context.Context, portfolioID string) ([]models.Order, error)
	SaveOrders(ctx context.Context, portfolioID string, orders []models.Order) error
	ListPortfolios(ctx context.Context) ([]string, error)
	// DeletePortfolio removes every order of a portfolio and reports how many
	// were removed.
	DeletePortfolio(ctx context.Context, portfolioID string) (int64, error)
}

// Log is the order log of every portfolio held by a Store.
type Log struct {
	store  Store
	ids    *IDGenerator
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the session clock used for validation and stamping.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithIDGenerator overrides the ULID source.
func WithIDGenerator(ids *IDGenerator) Option {
	return func(l *Log) { l.ids = ids }
}

// New creates a Log over store.
func New(store Store, logger zerolog.Logger, opts ...Option) *Log {
	l := &Log{
		store:  store,
		ids:    NewIDGenerator(),
		now:    time.Now,
		logger: logger.With().Str("component", "orderlog").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the session clock.
func (l *Log) Now() time.Time {
	return l.now()
}

// Load returns the full history of a portfolio sorted by (TradeDate, Seq).
// An unknown portfolio has an empty history.
func (l *Log) Load(ctx context.Context, portfolioID string) ([]models.Order, error) {
	orders, err := l.store.LoadOrders(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("load", portfolioID, err)
	}
	SortLog(orders)
	return orders, nil
}

// Portfolios lists every portfolio with a persisted log.
func (l *Log) Portfolios(ctx context.Context) ([]string, error) {
	ids, err := l.store.ListPortfolios(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list", "", err)
	}
	return ids, nil
}

// Delete drops the whole history of a portfolio. It is an administrative
// reset; normal operation only ever appends.
func (l *Log) Delete(ctx context.Context, portfolioID string) (int64, error) {
	n, err := l.store.DeletePortfolio(ctx, portfolioID)
	if err != nil {
		return 0, apperrors.NewPersistenceError("delete", portfolioID, err)
	}
	l.logger.Warn().
		Str("portfolio", portfolioID).
		Int64("deleted", n).
		Msg("Order log deleted")
	return n, nil
}

// Prepare loads the log, validates events and merges them without writing.
func (l *Log) Prepare(ctx context.Context, portfolioID string, events []models.Order) (MergeResult, error) {
	existing, err := l.Load(ctx, portfolioID)
	if err != nil {
		return MergeResult{}, err
	}

	now := l.now()
	if err := Validate(events, now); err != nil {
		return MergeResult{}, err
	}

	res := Merge(existing, events, Stamp{PortfolioID: portfolioID, Now: now, IDs: l.ids})
	for _, key := range res.SkippedBatches {
		l.logger.Warn().
			Str("portfolio", portfolioID).
			Str("batch", key).
			Msg("Batch already in order log, skipping")
	}
	return res, nil
}

// Commit persists a prepared merge. Nothing is written when no order was appended.
func (l *Log) Commit(ctx context.Context, portfolioID string, res MergeResult) error {
	if len(res.Appended) == 0 {
		return nil
	}
	if err := l.store.SaveOrders(ctx, portfolioID, res.Orders); err != nil {
		return apperrors.NewPersistenceError("save", portfolioID, err)
	}
	l.logger.Info().
		Str("portfolio", portfolioID).
		Int("appended", len(res.Appended)).
		Int("total", len(res.Orders)).
		Msg("Order log saved")
	return nil
}

// Append validates, merges and persists events, returning the full merged log.
func (l *Log) Append(ctx context.Context, portfolioID string, events []models.Order) (MergeResult, error) {
	res, err := l.Prepare(ctx, portfolioID, events)
	if err != nil {
		return MergeResult{}, err
	}
	if err := l.Commit(ctx, portfolioID, res); err != nil {
		return MergeResult{}, err
	}
	return res, nil
}
