package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradeledger/internal/models"
	"tradeledger/internal/report"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	if s.pinger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_missing"})
		return
	}
	if err := s.pinger.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) listPortfolios(c *gin.Context) {
	summaries, err := s.session.Summaries(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, summaries, map[string]any{"count": len(summaries)})
}

func (s *Server) listOrders(c *gin.Context) {
	id := c.Param("id")
	orders, err := s.session.Orders(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, orders, map[string]any{"count": len(orders), "state": s.session.State(id)})
}

// orderRequest is one order in a POST body. Dates are YYYY-MM-DD.
type orderRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	Side      string `json:"side" binding:"required"`
	Quantity  int64  `json:"quantity"`
	TradeDate string `json:"trade_date" binding:"required"`
	OrderDate string `json:"order_date"`
	AssetType string `json:"asset_type"`
	BatchKey  string `json:"batch_key"`
}

type postOrdersRequest struct {
	Orders []orderRequest `json:"orders" binding:"required"`
}

func (r orderRequest) toOrder() (models.Order, error) {
	side, err := models.ParseSide(r.Side)
	if err != nil {
		return models.Order{}, err
	}
	trade, err := models.ParseDay(r.TradeDate)
	if err != nil {
		return models.Order{}, err
	}
	o := models.Order{
		Symbol:    r.Symbol,
		Side:      side,
		Quantity:  r.Quantity,
		TradeDate: trade,
		AssetType: r.AssetType,
		BatchKey:  r.BatchKey,
	}
	if strings.TrimSpace(r.OrderDate) != "" {
		if o.OrderDate, err = models.ParseDay(r.OrderDate); err != nil {
			return models.Order{}, err
		}
	}
	return o, nil
}

func (s *Server) postOrders(c *gin.Context) {
	var req postOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	orders := make([]models.Order, 0, len(req.Orders))
	for i, r := range req.Orders {
		o, err := r.toOrder()
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error(), map[string]any{"row": i + 1})
			return
		}
		orders = append(orders, o)
	}

	id := c.Param("id")
	run, err := s.session.RunIncremental(c.Request.Context(), id, orders)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{
		"appended":        run.Appended,
		"skipped_batches": run.SkippedBatches,
		"orders":          run.Orders,
		"report":          report.NewDocument(id, s.currency, run.Result),
	}, map[string]any{"warnings": run.Warnings, "duration_ms": run.Duration.Milliseconds()})
}

func (s *Server) valuation(c *gin.Context) {
	id := c.Param("id")
	run, err := s.session.Valuation(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	if run.Orders == 0 {
		fail(c, http.StatusNotFound, "unknown portfolio "+id, nil)
		return
	}

	doc := report.NewDocument(id, s.currency, run.Result)
	if c.Query("snapshots") == "false" {
		doc.Snapshots = nil
	}
	ok(c, doc, map[string]any{"warnings": run.Warnings, "duration_ms": run.Duration.Milliseconds()})
}

// instrument logs and measures every request.
func (s *Server) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		dur := time.Since(start)
		s.metrics.ObserveHTTP(route, c.Request.Method, strconv.Itoa(status), dur)

		event := s.logger.Debug()
		if status >= 500 {
			event = s.logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", dur).
			Msg("HTTP request")
	}
}
