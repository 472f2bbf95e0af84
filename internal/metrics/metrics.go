// Package metrics exposes Prometheus collectors for ledger runs and price fetches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "tradeledger"

// Metrics holds every collector on a dedicated registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	stageDuration  *prometheus.HistogramVec
	ordersAppended *prometheus.CounterVec
	skippedFills   *prometheus.CounterVec

	priceFetches       *prometheus.CounterVec
	priceFetchDuration prometheus.Histogram
	priceBars          prometheus.Counter

	portfolioValue *prometheus.GaugeVec
	portfolioCash  *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them, along with the Go and
// process collectors, on a new registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Portfolio session runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of portfolio session runs",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each session stage",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"stage"},
		),
		ordersAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_appended_total",
				Help:      "Orders appended to order logs",
			},
			[]string{"portfolio_id"},
		),
		skippedFills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_fills_total",
				Help:      "Orders left out of a replay for lack of a fill price",
			},
			[]string{"portfolio_id"},
		),
		priceFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_fetches_total",
				Help:      "Price series fetches by outcome",
			},
			[]string{"outcome"},
		),
		priceFetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "price_fetch_duration_seconds",
				Help:      "Duration of price series fetches",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		priceBars: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_bars_fetched_total",
				Help:      "Daily bars returned by price fetches",
			},
		),
		portfolioValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "portfolio_value",
				Help:      "Total value at the last snapshot of the latest replay",
			},
			[]string{"portfolio_id"},
		),
		portfolioCash: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "portfolio_cash",
				Help:      "Cash after the latest replay",
			},
			[]string{"portfolio_id"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs, m.runDuration, m.stageDuration, m.ordersAppended, m.skippedFills,
		m.priceFetches, m.priceFetchDuration, m.priceBars,
		m.portfolioValue, m.portfolioCash,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// ObserveRun records a finished session run.
func (m *Metrics) ObserveRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveStage records the duration of one session stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// OrdersAppended counts orders added to a portfolio's log.
func (m *Metrics) OrdersAppended(portfolioID string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ordersAppended.WithLabelValues(portfolioID).Add(float64(n))
}

// ObserveResult records the outcome of a replay.
func (m *Metrics) ObserveResult(portfolioID string, total, cash float64, skipped int) {
	if m == nil {
		return
	}
	m.portfolioValue.WithLabelValues(portfolioID).Set(total)
	m.portfolioCash.WithLabelValues(portfolioID).Set(cash)
	if skipped > 0 {
		m.skippedFills.WithLabelValues(portfolioID).Add(float64(skipped))
	}
}

// ObserveFetch records one price fetch. Its signature matches market.Observer.
func (m *Metrics) ObserveFetch(_ string, d time.Duration, bars int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.priceFetches.WithLabelValues(outcome).Inc()
	m.priceFetchDuration.Observe(d.Seconds())
	m.priceBars.Add(float64(bars))
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
