package orderlog

import (
	"sort"
	"time"

	"tradeledger/internal/models"
)

// Summary describes a portfolio's order log.
func Summary(portfolioID string, orders []models.Order) models.OrderLogSummary {
	s := models.OrderLogSummary{
		PortfolioID: portfolioID,
		TotalOrders: len(orders),
		Symbols:     []string{},
		BatchDates:  []time.Time{},
	}
	if len(orders) == 0 {
		return s
	}

	symbols := make(map[string]bool)
	batches := make(map[time.Time]bool)
	for i, o := range orders {
		if i == 0 || o.TradeDate.Before(s.FirstTradeDate) {
			s.FirstTradeDate = o.TradeDate
		}
		if o.TradeDate.After(s.LastTradeDate) {
			s.LastTradeDate = o.TradeDate
		}
		if i == 0 || o.OrderDate.Before(s.FirstOrderDate) {
			s.FirstOrderDate = o.OrderDate
		}
		if o.OrderDate.After(s.LastOrderDate) {
			s.LastOrderDate = o.OrderDate
		}
		symbols[o.Symbol] = true
		batches[o.OrderDate] = true
	}

	for symbol := range symbols {
		s.Symbols = append(s.Symbols, symbol)
	}
	sort.Strings(s.Symbols)
	for date := range batches {
		s.BatchDates = append(s.BatchDates, date)
	}
	sort.Slice(s.BatchDates, func(i, j int) bool { return s.BatchDates[i].Before(s.BatchDates[j]) })
	return s
}
