// Package server exposes portfolios over HTTP and refreshes them on a schedule.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tradeledger/internal/metrics"
	"tradeledger/internal/session"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Session  *session.Session
	Pinger   Pinger
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Currency string
}

// Server is the HTTP API.
type Server struct {
	engine   *gin.Engine
	session  *session.Session
	pinger   Pinger
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	currency string
}

// New builds the gin engine and registers every route.
func New(opts Options) *Server {
	s := &Server{
		engine:   gin.New(),
		session:  opts.Session,
		pinger:   opts.Pinger,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With().Str("component", "server").Logger(),
		currency: opts.Currency,
	}
	s.engine.Use(gin.Recovery(), s.instrument())

	s.engine.GET("/healthz", s.health)
	s.engine.GET("/readyz", s.ready)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := s.engine.Group("/api")
	api.GET("/portfolios", s.listPortfolios)
	api.GET("/portfolios/:id/orders", s.listOrders)
	api.POST("/portfolios/:id/orders", s.postOrders)
	api.GET("/portfolios/:id/valuation", s.valuation)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("HTTP server shutting down")
	return srv.Shutdown(shutdownCtx)
}
