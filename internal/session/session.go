// Package session coordinates a portfolio run: validate and persist new
// orders, fetch prices, replay the full log and hand the result to reporters.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/ledger"
	"tradeledger/internal/logging"
	"tradeledger/internal/market"
	"tradeledger/internal/metrics"
	"tradeledger/internal/models"
	"tradeledger/internal/orderlog"
)

// Reporter consumes a finished replay.
type Reporter interface {
	Report(ctx context.Context, portfolioID string, res *ledger.Result) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, portfolioID string, res *ledger.Result) error

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, portfolioID string, res *ledger.Result) error {
	return f(ctx, portfolioID, res)
}

// Config holds session parameters.
type Config struct {
	Ledger ledger.Config
	// LookbackDays widens the price window before the first trade date.
	LookbackDays int
	// Parallelism bounds concurrent price fetches and portfolio refreshes.
	Parallelism int
}

// Run is the outcome of one session run.
type Run struct {
	PortfolioID    string           `json:"portfolio_id"`
	Appended       []models.Order   `json:"appended"`
	SkippedBatches []string         `json:"skipped_batches,omitempty"`
	Orders         int              `json:"orders"`
	Result         *ledger.Result   `json:"result"`
	PriceFailures  map[string]error `json:"-"`
	Warnings       []string         `json:"warnings,omitempty"`
	Duration       time.Duration    `json:"duration"`
}

// Session runs portfolios against one order log and price provider.
type Session struct {
	log       *orderlog.Log
	prices    market.Provider
	cfg       Config
	reporters []Reporter
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	locks     *portfolioLocks
}

// Option configures a Session.
type Option func(*Session)

// WithReporters registers reporters called after every successful replay
// except read-only valuations.
func WithReporters(r ...Reporter) Option {
	return func(s *Session) { s.reporters = append(s.reporters, r...) }
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// New creates a session.
func New(log *orderlog.Log, prices market.Provider, cfg Config, logger zerolog.Logger, opts ...Option) *Session {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	s := &Session{
		log:    log,
		prices: prices,
		cfg:    cfg,
		logger: logger.With().Str("component", "session").Logger(),
		locks:  newPortfolioLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state of a portfolio.
func (s *Session) State(portfolioID string) State {
	return s.locks.get(portfolioID)
}

func (s *Session) transition(portfolioID string, to State) {
	from := s.locks.set(portfolioID, to)
	logging.LogStateChange(s.logger, portfolioID, string(from), string(to))
}

// RunIncremental appends newOrders to the portfolio's log and replays the
// full log. Runs on one portfolio are serialized.
//
// A ValidationError leaves the log untouched. A PersistenceError stops the
// run before replay. A replay error is returned after the log was saved.
// Price fetch and reporter failures are warnings.
func (s *Session) RunIncremental(ctx context.Context, portfolioID string, newOrders []models.Order) (*Run, error) {
	return s.run(ctx, portfolioID, newOrders, true)
}

// Replay rebuilds a portfolio without adding orders and hands the result to
// the reporters.
func (s *Session) Replay(ctx context.Context, portfolioID string) (*Run, error) {
	return s.run(ctx, portfolioID, nil, true)
}

// Valuation rebuilds a portfolio for a read-only caller. Reporters are not
// invoked, so no report files are written and no notification is sent.
func (s *Session) Valuation(ctx context.Context, portfolioID string) (*Run, error) {
	return s.run(ctx, portfolioID, nil, false)
}

func (s *Session) run(ctx context.Context, portfolioID string, newOrders []models.Order, report bool) (run *Run, err error) {
	release, err := s.locks.acquire(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	logger := logging.WithPortfolio(s.logger, portfolioID)
	defer func() {
		s.transition(portfolioID, StateIdle)
		s.metrics.ObserveRun(outcome(err), time.Since(start))
		if run != nil {
			run.Duration = time.Since(start)
		}
	}()

	s.transition(portfolioID, StateValidating)
	stage := time.Now()
	merged, err := s.log.Prepare(ctx, portfolioID, newOrders)
	s.metrics.ObserveStage("validating", time.Since(stage))
	if err != nil {
		logger.Warn().Err(err).Int("orders", len(newOrders)).Msg("Order batch rejected")
		return nil, err
	}

	s.transition(portfolioID, StatePersisting)
	stage = time.Now()
	if err := s.log.Commit(ctx, portfolioID, merged); err != nil {
		logger.Error().Err(err).Msg("Failed to persist order log")
		return nil, err
	}
	s.metrics.ObserveStage("persisting", time.Since(stage))
	s.metrics.OrdersAppended(portfolioID, len(merged.Appended))

	run = &Run{
		PortfolioID:    portfolioID,
		Appended:       merged.Appended,
		SkippedBatches: merged.SkippedBatches,
		Orders:         len(merged.Orders),
	}

	s.transition(portfolioID, StateReplaying)
	stage = time.Now()
	res, failures, err := s.replay(ctx, merged.Orders)
	run.PriceFailures = failures
	for _, symbol := range sortedKeys(failures) {
		logger.Warn().Err(failures[symbol]).Str("symbol", symbol).Msg("Price fetch failed, replaying without data")
		run.Warnings = append(run.Warnings, "price fetch failed for "+symbol+": "+failures[symbol].Error())
	}
	if err != nil {
		logger.Error().Err(err).Int("orders", len(merged.Orders)).Msg("Replay failed")
		return run, err
	}
	s.metrics.ObserveStage("replaying", time.Since(stage))
	run.Result = res
	for _, sk := range res.Skipped {
		run.Warnings = append(run.Warnings, sk.Reason)
	}
	if last, ok := res.Last(); ok {
		s.metrics.ObserveResult(portfolioID, last.TotalValue.InexactFloat64(), res.FinalCash.InexactFloat64(), len(res.Skipped))
	}

	if report {
		s.transition(portfolioID, StateReporting)
		stage = time.Now()
		for _, r := range s.reporters {
			if rerr := r.Report(ctx, portfolioID, res); rerr != nil {
				logger.Warn().Err(rerr).Msg("Reporter failed")
				run.Warnings = append(run.Warnings, "reporter failed: "+rerr.Error())
			}
		}
		s.metrics.ObserveStage("reporting", time.Since(stage))
	}

	logger.Info().
		Int("appended", len(run.Appended)).
		Int("orders", run.Orders).
		Int("snapshots", len(res.Snapshots)).
		Bool("complete", res.Complete).
		Msg("Run complete")
	return run, nil
}

// replay fetches prices for the log's symbols and replays it up to today.
func (s *Session) replay(ctx context.Context, orders []models.Order) (*ledger.Result, map[string]error, error) {
	cfg := s.cfg.Ledger
	today := models.Day(s.log.Now())
	if cfg.End.IsZero() {
		cfg.End = today
	}
	if len(orders) == 0 {
		res, err := ledger.Replay(nil, nil, cfg)
		return res, nil, err
	}

	symbols := make([]string, 0)
	seen := map[string]bool{}
	first := orders[0].TradeDate
	for _, o := range orders {
		if !seen[o.Symbol] {
			seen[o.Symbol] = true
			symbols = append(symbols, o.Symbol)
		}
		if o.TradeDate.Before(first) {
			first = o.TradeDate
		}
	}
	sort.Strings(symbols)

	from := models.Day(first).AddDate(0, 0, -s.cfg.LookbackDays)
	book, failures, err := market.FetchAll(ctx, s.prices, symbols, from, cfg.End, s.cfg.Parallelism)
	if err != nil {
		return nil, failures, err
	}

	res, err := ledger.Replay(orders, book, cfg)
	return res, failures, err
}

// Orders returns a portfolio's order log.
func (s *Session) Orders(ctx context.Context, portfolioID string) ([]models.Order, error) {
	return s.log.Load(ctx, portfolioID)
}

// DeletePortfolio removes a portfolio's order log once no run holds it.
// Deleting an unknown portfolio is ErrDataNotFound.
func (s *Session) DeletePortfolio(ctx context.Context, portfolioID string) (int64, error) {
	release, err := s.locks.acquire(ctx, portfolioID)
	if err != nil {
		return 0, err
	}
	defer release()

	n, err := s.log.Delete(ctx, portfolioID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: portfolio %q has no orders", apperrors.ErrDataNotFound, portfolioID)
	}
	return n, nil
}

// Summaries describes every known portfolio.
func (s *Session) Summaries(ctx context.Context) ([]models.OrderLogSummary, error) {
	ids, err := s.log.Portfolios(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.OrderLogSummary, 0, len(ids))
	for _, id := range ids {
		orders, err := s.log.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, orderlog.Summary(id, orders))
	}
	return out, nil
}

// RefreshOutcome is the result of refreshing one portfolio.
type RefreshOutcome struct {
	PortfolioID string
	Run         *Run
	Err         error
}

// RefreshAll replays every known portfolio, several at a time. Failures
// are reported per portfolio; only listing the portfolios can fail the call.
func (s *Session) RefreshAll(ctx context.Context) ([]RefreshOutcome, error) {
	ids, err := s.log.Portfolios(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]RefreshOutcome, len(ids))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for i, id := range ids {
		g.Go(func() error {
			run, err := s.Replay(gctx, id)
			mu.Lock()
			outcomes[i] = RefreshOutcome{PortfolioID: id, Run: run, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, ctx.Err()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrInvalidOrder):
		return "invalid"
	case errors.Is(err, apperrors.ErrPersistence):
		return "persistence"
	case errors.Is(err, apperrors.ErrOversell):
		return "oversell"
	case errors.Is(err, apperrors.ErrMissingPrice):
		return "missing_price"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
