package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tradeledger/internal/cache"
	"tradeledger/internal/config"
	"tradeledger/internal/ingest"
	"tradeledger/internal/logging"
	"tradeledger/internal/market"
	"tradeledger/internal/metrics"
	"tradeledger/internal/models"
	"tradeledger/internal/notify"
	"tradeledger/internal/orderlog"
	"tradeledger/internal/report"
	"tradeledger/internal/session"
	"tradeledger/internal/store"
	"tradeledger/pkg/utils"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Store   *store.SQLiteStore
	Metrics *metrics.Metrics
	Session *session.Session
	// Pingers are checked by the readiness probe.
	Pingers []interface{ Ping(context.Context) error }

	closers []io.Closer
}

// Open connects the store and builds the session. A non-zero asOf replaces
// the clock, so validation and valuation stop at that date.
func (a *App) Open(asOf time.Time) error {
	cfg := a.Config
	lc, err := cfg.LedgerConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	a.Store = st
	a.closers = append(a.closers, st)
	a.Pingers = append(a.Pingers, st)
	a.Logger.Debug().Str("path", cfg.Storage.DBPath).Msg("SQLite store initialized")

	a.Metrics = metrics.New()

	prices, err := a.priceProvider()
	if err != nil {
		return err
	}

	var logOpts []orderlog.Option
	if !asOf.IsZero() {
		day := models.Day(asOf)
		logOpts = append(logOpts, orderlog.WithClock(func() time.Time { return day }))
	}
	olog := orderlog.New(st, a.Logger, logOpts...)

	opts := []session.Option{session.WithMetrics(a.Metrics)}
	if cfg.Reports.Enabled {
		r := report.NewFileReporter(cfg.Reports.Dir, lc.Currency)
		r.Formats = r.Formats[:0]
		for _, f := range cfg.Reports.Formats {
			format, err := report.ParseFormat(f)
			if err != nil {
				return err
			}
			r.Formats = append(r.Formats, format)
		}
		opts = append(opts, session.WithReporters(r))
	}
	if cfg.Notify.WebhookURL != "" {
		opts = append(opts, session.WithReporters(notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)))
	}

	a.Session = session.New(olog, prices, session.Config{
		Ledger:       lc,
		LookbackDays: cfg.Prices.LookbackDays,
		Parallelism:  cfg.Prices.Parallelism,
	}, a.Logger, opts...)
	return nil
}

// priceProvider builds the configured provider wrapped, innermost first, in
// metrics and logging, rate limiting, circuit breaker, retry and cache decorators.
func (a *App) priceProvider() (market.Provider, error) {
	cfg := a.Config
	var base market.Provider
	switch cfg.Prices.Provider {
	case "eodhd":
		if cfg.Credentials.EODHD.APIKey == "" {
			a.Logger.Warn().Msg("EODHD API key not set; price fetches will fail")
		}
		base = market.NewEODHDProvider(cfg.Prices.BaseURL, cfg.Credentials.EODHD.APIKey, &http.Client{Timeout: cfg.Prices.Timeout})
	case "kite":
		if cfg.Credentials.Kite.AccessToken == "" {
			a.Logger.Warn().Msg("Kite access token not set; price fetches will fail")
		}
		base = market.NewKiteProvider(cfg.Credentials.Kite.APIKey, cfg.Credentials.Kite.AccessToken)
	case "csv":
		base = market.NewCSVProvider(cfg.Prices.CSVDir)
	case "static":
		base = market.NewStaticProvider()
	default:
		return nil, fmt.Errorf("unknown price provider %q", cfg.Prices.Provider)
	}

	logFetch := logging.FetchLogger(a.Logger)
	p := market.WithObserver(base, func(symbol string, d time.Duration, bars int, err error) {
		a.Metrics.ObserveFetch(symbol, d, bars, err)
		logFetch(symbol, d, bars, err)
	})
	if cfg.Prices.RatePerSecond > 0 {
		p = market.WithRateLimit(p, rate.NewLimiter(rate.Limit(cfg.Prices.RatePerSecond), max(int(cfg.Prices.RatePerSecond), 1)))
	}
	if cfg.Prices.BreakerThreshold > 0 {
		p = market.WithCircuitBreaker(p, market.NewCircuitBreaker(market.CircuitBreakerConfig{
			FailureThreshold: cfg.Prices.BreakerThreshold,
			SuccessThreshold: 1,
			Cooldown:         cfg.Prices.BreakerCooldown,
		}))
	}
	if cfg.Prices.RetryAttempts > 1 {
		retry := utils.DefaultRetryConfig()
		retry.MaxAttempts = cfg.Prices.RetryAttempts
		retry.InitialDelay = cfg.Prices.RetryInitialDelay
		retry.MaxDelay = cfg.Prices.RetryMaxDelay
		p = market.WithRetry(p, retry)
	}

	switch cfg.Cache.Backend {
	case "sqlite", "":
		p = market.WithCache(p, store.NewPriceCache(a.Store, cfg.Cache.TTL), a.Logger)
	case "redis":
		rs := cache.NewRedisStore(&redis.Options{Addr: cfg.Cache.RedisAddr, DB: cfg.Cache.RedisDB})
		a.closers = append(a.closers, rs)
		a.Pingers = append(a.Pingers, rs)
		p = market.WithCache(p, cache.NewPriceCache(rs, cfg.Cache.TTL), a.Logger)
	}

	a.Logger.Debug().
		Str("provider", cfg.Prices.Provider).
		Str("cache", cfg.Cache.Backend).
		Msg("Price provider initialized")
	return p, nil
}

// Ping checks every backing service.
func (a *App) Ping(ctx context.Context) error {
	for _, p := range a.Pingers {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// IngestOptions returns the order file options from the [ingest] section.
func (a *App) IngestOptions(orderDate time.Time) ingest.Options {
	return ingest.Options{
		OrderDate: orderDate,
		Policy:    ingest.TradeDatePolicy(a.Config.Ingest.TradeDatePolicy),
		Mapper:    ingest.NewMapper(a.Config.Ingest.Symbols, a.Config.Ingest.DefaultSuffix),
	}
}

// Currency returns the configured reporting currency.
func (a *App) Currency() string {
	if a.Config == nil {
		return ""
	}
	return a.Config.Ledger.Currency
}

// Close releases every opened resource.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
